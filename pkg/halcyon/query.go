package halcyon

import (
	"context"
	"time"
)

type filter struct {
	attr  string
	value Value
}

// Query reads models of one type from one datasource. Queries are values:
// On and Where return modified copies.
type Query struct {
	store   *Store
	typ     *Type
	source  string
	filters []filter
}

// On selects the named datasource instead of the default one.
func (q *Query) On(name string) *Query {
	c := *q
	c.source = name
	return &c
}

// Where keeps only models whose attribute equals v. Filters apply to All and
// Lists.
func (q *Query) Where(attr string, v Value) *Query {
	c := *q
	c.filters = append(append([]filter(nil), q.filters...), filter{attr, v})
	return &c
}

func (q *Query) Type() *Type { return q.typ }

// New returns an unsaved model bound to the query's datasource.
func (q *Query) New(attrs map[string]Value) *Model {
	m := newModel(q.store, q.typ, q.source)
	if q.typ.Compound {
		m.attributes[AttrCode] = String("")
	}
	m.Set(AttrMarkup, String(""))
	m.Fill(attrs)
	return m
}

// Create validates and inserts a new model.
func (q *Query) Create(ctx context.Context, attrs map[string]Value, opts ...SaveOption) (*Model, error) {
	m := q.New(attrs)
	if err := m.Save(ctx, opts...); err != nil {
		return nil, err
	}
	return m, nil
}

// Find loads a model by key. Keys without an extension get the type's
// default extension. A missing template yields (nil, nil).
func (q *Query) Find(ctx context.Context, key string) (*Model, error) {
	source, ds, err := q.store.datasource(q.source)
	if err != nil {
		return nil, err
	}
	dir := q.typ.Dir()
	fileName := q.typ.NormalizeFileName(key)
	if err := checkKey(dir, fileName); err != nil {
		return nil, err
	}

	cache := q.store.cache
	if rec, ok := cache.record(source, dir.Name, fileName); ok {
		mtime, err := ds.LastModified(ctx, dir, fileName)
		if err == nil && sameMTime(mtime, rec.MTime) {
			return modelFromRecord(q.store, q.typ, source, rec), nil
		}
		cache.Invalidate(source, dir.Name, fileName)
	}

	gen := cache.generation(source, dir.Name)
	rec, err := ds.Find(ctx, dir, fileName)
	if err != nil || rec == nil {
		return nil, err
	}
	cache.storeRecord(source, dir.Name, gen, *rec)
	return modelFromRecord(q.store, q.typ, source, *rec), nil
}

// All loads every model of the type that matches the query's filters, sorted
// by file name.
func (q *Query) All(ctx context.Context) ([]*Model, error) {
	source, ds, err := q.store.datasource(q.source)
	if err != nil {
		return nil, err
	}
	dir := q.typ.Dir()

	cache := q.store.cache
	records, ok := cache.listing(source, dir.Name)
	if !ok {
		gen := cache.generation(source, dir.Name)
		records, err = ds.List(ctx, dir)
		if err != nil {
			return nil, err
		}
		cache.storeListing(source, dir.Name, gen, records)
	}

	models := make([]*Model, 0, len(records))
	for _, rec := range records {
		m := modelFromRecord(q.store, q.typ, source, rec)
		if q.matches(m) {
			models = append(models, m)
		}
	}
	return models, nil
}

// Lists returns one attribute of every matching model.
func (q *Query) Lists(ctx context.Context, attr string) ([]Value, error) {
	models, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(models))
	for i, m := range models {
		out[i] = m.Get(attr)
	}
	return out, nil
}

// FileNames is Lists(ctx, "fileName") as strings.
func (q *Query) FileNames(ctx context.Context) ([]string, error) {
	values, err := q.Lists(ctx, AttrFileName)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.String()
	}
	return out, nil
}

func (q *Query) matches(m *Model) bool {
	for _, f := range q.filters {
		if !m.lookup(f.attr).Equal(f.value) {
			return false
		}
	}
	return true
}

func sameMTime(a, b time.Time) bool {
	return !a.IsZero() && a.Equal(b)
}
