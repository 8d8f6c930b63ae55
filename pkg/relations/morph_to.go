package relations

import (
	"context"
	"fmt"

	"halcyon-cms/pkg/halcyon"
)

// MorphTo points Parent at a model of any type. ForeignKey holds the file
// name and MorphType the type name of the target.
type MorphTo struct {
	Parent     *halcyon.Model
	ForeignKey string
	MorphType  string
	Name       string
	// Resolve returns the query for a type name, usually Store.Query.
	Resolve func(typeName string) (*halcyon.Query, error)
}

// SetSimpleValue accepts nil, a *halcyon.Model, a file name, or a
// [2]string{fileName, typeName} pair. An unsaved model is associated again
// once it has been saved, since saving may change its file name.
func (r *MorphTo) SetSimpleValue(value any) error {
	switch v := value.(type) {
	case nil:
		r.Dissociate()
	case *halcyon.Model:
		if v == nil {
			r.Dissociate()
			return nil
		}
		if !v.Exists() {
			v.AfterSave(func(ctx context.Context) error {
				r.Associate(v)
				return nil
			})
		}
		r.Associate(v)
	case [2]string:
		r.Parent.Set(r.ForeignKey, halcyon.String(v[0]))
		r.Parent.Set(r.MorphType, halcyon.String(v[1]))
		r.Parent.UnsetRelation(r.Name)
	case string:
		if v == "" {
			r.Dissociate()
			return nil
		}
		r.Parent.Set(r.ForeignKey, halcyon.String(v))
		r.Parent.UnsetRelation(r.Name)
	default:
		return fmt.Errorf("relations: %s: unsupported value %T", r.Name, value)
	}
	return nil
}

func (r *MorphTo) Associate(m *halcyon.Model) {
	r.Parent.Set(r.ForeignKey, halcyon.String(m.FileName()))
	r.Parent.Set(r.MorphType, halcyon.String(m.Type().Name))
	r.Parent.SetRelation(r.Name, m)
}

func (r *MorphTo) Dissociate() {
	r.Parent.Unset(r.ForeignKey)
	r.Parent.Unset(r.MorphType)
	r.Parent.UnsetRelation(r.Name)
}

// SimpleValue returns the stored file name and type name.
func (r *MorphTo) SimpleValue() (string, string) {
	return asString(r.Parent.Get(r.ForeignKey)), asString(r.Parent.Get(r.MorphType))
}

// Get returns the associated model, loading it when it is not cached.
func (r *MorphTo) Get(ctx context.Context) (*halcyon.Model, error) {
	if v, ok := r.Parent.Relation(r.Name); ok {
		if m, ok := v.(*halcyon.Model); ok {
			return m, nil
		}
	}
	key, typeName := r.SimpleValue()
	if key == "" || typeName == "" {
		return nil, nil
	}
	q, err := r.Resolve(typeName)
	if err != nil {
		return nil, err
	}
	m, err := q.Find(ctx, key)
	if err != nil || m == nil {
		return nil, err
	}
	r.Parent.SetRelation(r.Name, m)
	return m, nil
}
