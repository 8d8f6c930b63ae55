package halcyon

import (
	"context"
	"fmt"
	"sort"
)

// Reserved attribute names. Every other attribute is stored in the settings
// block of compound templates.
const (
	AttrFileName = "fileName"
	AttrMarkup   = "markup"
	AttrCode     = "code"
	AttrContent  = "content"
	AttrMTime    = "mtime"
)

func isReserved(name string) bool {
	switch name {
	case AttrFileName, AttrMarkup, AttrCode, AttrContent, AttrMTime:
		return true
	}
	return false
}

// Model is one template in memory. A Model is owned by a single goroutine.
type Model struct {
	store  *Store
	typ    *Type
	source string
	exists bool

	attributes map[string]Value
	original   map[string]Value
	dynamic    map[string]any
	relations  map[string]any
	afterSave  []func(ctx context.Context) error
}

func newModel(s *Store, t *Type, source string) *Model {
	return &Model{
		store:      s,
		typ:        t,
		source:     source,
		attributes: map[string]Value{},
		original:   map[string]Value{},
	}
}

func modelFromRecord(s *Store, t *Type, source string, rec Record) *Model {
	m := newModel(s, t, source)
	if t.Compound {
		for k, v := range rec.Settings {
			m.attributes[k] = v.Clone()
		}
		m.attributes[AttrCode] = String(rec.Code)
	}
	m.attributes[AttrFileName] = String(rec.FileName)
	m.attributes[AttrMarkup] = String(rec.Markup)
	m.attributes[AttrContent] = String(rec.Content)
	m.attributes[AttrMTime] = Int(rec.MTime.Unix())
	m.exists = true
	m.syncOriginal()
	return m
}

func (m *Model) Type() *Type { return m.typ }

// Datasource is the name of the datasource the model reads from and writes to.
func (m *Model) Datasource() string { return m.source }

func (m *Model) Exists() bool { return m.exists }

func (m *Model) FileName() string {
	s, _ := m.attributes[AttrFileName].AsString()
	return s
}

func (m *Model) SetFileName(name string) { m.Set(AttrFileName, String(name)) }

func (m *Model) Markup() string {
	s, _ := m.attributes[AttrMarkup].AsString()
	return s
}

func (m *Model) Code() string {
	s, _ := m.attributes[AttrCode].AsString()
	return s
}

// Content is the stored text as last read or written.
func (m *Model) Content() string {
	s, _ := m.attributes[AttrContent].AsString()
	return s
}

// Get returns an attribute, or null when unset.
func (m *Model) Get(name string) Value { return m.attributes[name] }

// Set assigns an attribute. File names without an extension get the type's
// default one. For content-only types markup and content are the same value.
func (m *Model) Set(name string, v Value) {
	switch name {
	case AttrFileName:
		if s, ok := v.AsString(); ok {
			v = String(m.typ.NormalizeFileName(s))
		}
	case AttrMarkup, AttrContent:
		if !m.typ.Compound {
			m.attributes[AttrMarkup] = v
			m.attributes[AttrContent] = v
			return
		}
	}
	m.attributes[name] = v
}

// Fill sets several attributes at once.
func (m *Model) Fill(attrs map[string]Value) {
	// fileName first so that later attributes never see a stale key.
	if v, ok := attrs[AttrFileName]; ok {
		m.Set(AttrFileName, v)
	}
	for _, k := range sortedKeys(attrs) {
		if k != AttrFileName {
			m.Set(k, attrs[k])
		}
	}
}

// Attributes returns a copy of the persisted attribute set. Dynamic
// properties are not included.
func (m *Model) Attributes() map[string]Value {
	return cloneValues(m.attributes)
}

// Settings returns the attributes that are written to the settings block.
func (m *Model) Settings() map[string]Value {
	out := map[string]Value{}
	if !m.typ.Compound {
		return out
	}
	for k, v := range m.attributes {
		if !isReserved(k) {
			out[k] = v.Clone()
		}
	}
	return out
}

// Original returns an attribute as it was when the model was loaded or last
// saved.
func (m *Model) Original(name string) Value { return m.original[name] }

// IsDirty reports whether any of the named attributes, or any attribute when
// none are named, changed since the last load or save. Content and mtime are
// derived and never count.
func (m *Model) IsDirty(names ...string) bool {
	if len(names) == 0 {
		for k := range m.attributes {
			names = append(names, k)
		}
		for k := range m.original {
			if _, ok := m.attributes[k]; !ok {
				names = append(names, k)
			}
		}
	}
	for _, k := range names {
		if k == AttrMTime || (k == AttrContent && m.typ.Compound) {
			continue
		}
		if !m.attributes[k].Equal(m.original[k]) {
			return true
		}
	}
	return false
}

// Dirty lists the changed attribute names in sorted order.
func (m *Model) Dirty() []string {
	var out []string
	seen := map[string]bool{}
	for _, src := range []map[string]Value{m.attributes, m.original} {
		for k := range src {
			if seen[k] {
				continue
			}
			seen[k] = true
			if m.IsDirty(k) {
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Unset removes an attribute from the settings block.
func (m *Model) Unset(name string) { delete(m.attributes, name) }

// AddDynamicProperty attaches a value that lives only in memory. Dynamic
// properties are never saved and do not make the model dirty.
func (m *Model) AddDynamicProperty(name string, v any) {
	if m.dynamic == nil {
		m.dynamic = map[string]any{}
	}
	m.dynamic[name] = v
}

func (m *Model) DynamicProperty(name string) (any, bool) {
	v, ok := m.dynamic[name]
	return v, ok
}

// SetRelation caches a loaded or assigned relation.
func (m *Model) SetRelation(name string, v any) {
	if m.relations == nil {
		m.relations = map[string]any{}
	}
	m.relations[name] = v
}

func (m *Model) Relation(name string) (any, bool) {
	v, ok := m.relations[name]
	return v, ok
}

func (m *Model) UnsetRelation(name string) { delete(m.relations, name) }

// AfterSave stages fn to run once, right after the next successful write of
// this model. Staged operations run in order; a failed save discards them.
func (m *Model) AfterSave(fn func(ctx context.Context) error) {
	m.afterSave = append(m.afterSave, fn)
}

// Pending reports the number of staged after-save operations.
func (m *Model) Pending() int { return len(m.afterSave) }

type saveOptions struct {
	skipValidation bool
}

type SaveOption func(*saveOptions)

// WithoutValidation skips the type's validation rules.
func WithoutValidation() SaveOption {
	return func(o *saveOptions) { o.skipValidation = true }
}

// Save writes the model. New models are inserted, a changed file name renames
// the stored template, and an unchanged clean model is not rewritten.
func (m *Model) Save(ctx context.Context, opts ...SaveOption) error {
	var o saveOptions
	for _, opt := range opts {
		opt(&o)
	}

	staged := m.afterSave
	m.afterSave = nil

	if !o.skipValidation {
		if err := m.Validate(ctx); err != nil {
			return err
		}
	}
	if hook := m.typ.Hooks.BeforeSave; hook != nil {
		if err := hook(ctx, m); err != nil {
			return err
		}
	}

	source, ds, err := m.store.datasource(m.source)
	if err != nil {
		return err
	}
	dir := m.typ.Dir()
	fileName := m.FileName()
	if err := checkKey(dir, fileName); err != nil {
		return err
	}

	rec := Record{
		FileName: fileName,
		Document: Document{Settings: m.Settings(), Code: m.Code(), Markup: m.Markup()},
	}
	data, err := dir.codec().Serialize(rec.Document)
	if err != nil {
		return err
	}

	oldName, _ := m.original[AttrFileName].AsString()
	switch {
	case !m.exists:
		err = ds.Insert(ctx, dir, rec)
	case oldName != fileName:
		err = ds.Update(ctx, dir, oldName, rec)
	case m.IsDirty():
		err = ds.Update(ctx, dir, fileName, rec)
	}
	if err != nil {
		return err
	}

	m.store.cache.Invalidate(source, dir.Name, fileName)
	if oldName != "" && oldName != fileName {
		m.store.cache.Invalidate(source, dir.Name, oldName)
	}

	m.source = source
	m.exists = true
	m.attributes[AttrContent] = String(string(data))
	if !m.typ.Compound {
		m.attributes[AttrMarkup] = String(string(data))
	}
	if mtime, err := ds.LastModified(ctx, dir, fileName); err == nil && !mtime.IsZero() {
		m.attributes[AttrMTime] = Int(mtime.Unix())
	}
	m.syncOriginal()

	for i, fn := range staged {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("halcyon: after-save operation %d of %s: %w", i+1, fileName, err)
		}
	}
	if hook := m.typ.Hooks.AfterSave; hook != nil {
		return hook(ctx, m)
	}
	return nil
}

// Update fills attrs and saves.
func (m *Model) Update(ctx context.Context, attrs map[string]Value, opts ...SaveOption) error {
	m.Fill(attrs)
	return m.Save(ctx, opts...)
}

// Delete removes the stored template. Deleting a model that was never saved
// does nothing.
func (m *Model) Delete(ctx context.Context) error {
	if !m.exists {
		return nil
	}
	if hook := m.typ.Hooks.BeforeDelete; hook != nil {
		if err := hook(ctx, m); err != nil {
			return err
		}
	}
	source, ds, err := m.store.datasource(m.source)
	if err != nil {
		return err
	}
	dir := m.typ.Dir()
	fileName, _ := m.original[AttrFileName].AsString()
	if err := ds.Delete(ctx, dir, fileName); err != nil {
		return err
	}
	m.store.cache.Invalidate(source, dir.Name, fileName)
	m.exists = false

	if hook := m.typ.Hooks.AfterDelete; hook != nil {
		return hook(ctx, m)
	}
	return nil
}

func (m *Model) syncOriginal() {
	m.original = cloneValues(m.attributes)
}
