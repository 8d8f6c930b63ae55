package halcyon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindMap
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return "null"
	}
}

// Value is an attribute value. The zero Value is null.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	m    map[string]Value
	l    []Value
}

func Null() Value               { return Value{} }
func String(s string) Value     { return Value{kind: KindString, s: s} }
func Int(i int64) Value         { return Value{kind: KindInt, i: i} }
func Float(f float64) Value     { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value         { return Value{kind: KindBool, b: b} }
func List(items ...Value) Value { return Value{kind: KindList, l: items} }

// Map wraps m without copying it.
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, m: m}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsString() (string, bool)        { return v.s, v.kind == KindString }
func (v Value) AsInt() (int64, bool)            { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool)        { return v.f, v.kind == KindFloat }
func (v Value) AsBool() (bool, bool)            { return v.b, v.kind == KindBool }
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }
func (v Value) AsList() ([]Value, bool)         { return v.l, v.kind == KindList }

// Get returns the named entry of a map value, or null.
func (v Value) Get(key string) Value {
	if v.kind != KindMap {
		return Value{}
	}
	return v.m[key]
}

// String renders scalars as text; maps and lists use their JSON form.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// Equal reports deep equality. Ints and floats never compare equal to each other.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == o.s
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindBool:
		return v.b == o.b
	case KindMap:
		return equalMaps(v.m, o.m)
	case KindList:
		if len(v.l) != len(o.l) {
			return false
		}
		for i := range v.l {
			if !v.l[i].Equal(o.l[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func equalMaps(a, b map[string]Value) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !av.Equal(bv) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so cached records never share maps with callers.
func (v Value) Clone() Value {
	switch v.kind {
	case KindMap:
		return Value{kind: KindMap, m: cloneValues(v.m)}
	case KindList:
		l := make([]Value, len(v.l))
		for i := range v.l {
			l[i] = v.l[i].Clone()
		}
		return Value{kind: KindList, l: l}
	default:
		return v
	}
}

func cloneValues(m map[string]Value) map[string]Value {
	if m == nil {
		return nil
	}
	out := make(map[string]Value, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

// Interface converts v into plain Go values (string, int64, float64, bool,
// map[string]any, []any or nil).
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindMap:
		return valuesToInterface(v.m)
	case KindList:
		out := make([]any, len(v.l))
		for i := range v.l {
			out[i] = v.l[i].Interface()
		}
		return out
	default:
		return nil
	}
}

func valuesToInterface(m map[string]Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Interface()
	}
	return out
}

// ValueOf converts decoded TOML, YAML or JSON data into a Value.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Int(int64(t)), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		if t > math.MaxInt64 {
			return Value{}, fmt.Errorf("halcyon: integer %d overflows", t)
		}
		return Int(int64(t)), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("halcyon: invalid number %q", t)
		}
		return Float(f), nil
	case time.Time:
		return String(t.Format(time.RFC3339Nano)), nil
	case fmt.Stringer:
		// go-toml local dates and times
		return String(t.String()), nil
	case map[string]Value:
		return Map(t), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, inner := range t {
			iv, err := ValueOf(inner)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			m[k] = iv
		}
		return Map(m), nil
	case map[any]any:
		m := make(map[string]Value, len(t))
		for k, inner := range t {
			iv, err := ValueOf(inner)
			if err != nil {
				return Value{}, err
			}
			m[fmt.Sprint(k)] = iv
		}
		return Map(m), nil
	case []Value:
		return List(t...), nil
	case []any:
		l := make([]Value, len(t))
		for i := range t {
			iv, err := ValueOf(t[i])
			if err != nil {
				return Value{}, err
			}
			l[i] = iv
		}
		return List(l...), nil
	case []string:
		l := make([]Value, len(t))
		for i := range t {
			l[i] = String(t[i])
		}
		return List(l...), nil
	case []map[string]any:
		l := make([]Value, len(t))
		for i := range t {
			iv, err := ValueOf(t[i])
			if err != nil {
				return Value{}, err
			}
			l[i] = iv
		}
		return List(l...), nil
	}
	return Value{}, fmt.Errorf("halcyon: unsupported value type %T", x)
}

// Values converts a plain map into attribute values.
func Values(m map[string]any) (map[string]Value, error) {
	out := make(map[string]Value, len(m))
	for k, x := range m {
		v, err := ValueOf(x)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindFloat && (math.IsInf(v.f, 0) || math.IsNaN(v.f)) {
		return json.Marshal(v.String())
	}
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var x any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&x); err != nil {
		return err
	}
	parsed, err := ValueOf(x)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
