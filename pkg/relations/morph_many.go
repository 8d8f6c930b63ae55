package relations

import (
	"context"
	"fmt"

	"halcyon-cms/pkg/halcyon"
)

// MorphMany is the inverse of MorphTo: every Related model whose ForeignKey
// is Parent's file name and whose MorphType is MorphClass belongs to Parent.
type MorphMany struct {
	Parent     *halcyon.Model
	Related    *halcyon.Query
	ForeignKey string
	MorphType  string
	MorphClass string
	Name       string
}

func (r *MorphMany) owned() *halcyon.Query {
	return r.Related.
		Where(r.ForeignKey, parentKey(r.Parent)).
		Where(r.MorphType, halcyon.String(r.MorphClass))
}

// SetSimpleValue replaces the collection. It accepts nil, a *halcyon.Model,
// a []*halcyon.Model or a []string of file names. On the parent's next save
// models no longer in the collection are detached and the others attached.
func (r *MorphMany) SetSimpleValue(ctx context.Context, value any) error {
	var collection []*halcyon.Model
	switch v := value.(type) {
	case nil:
		r.clear()
		return nil
	case *halcyon.Model:
		if v == nil {
			r.clear()
			return nil
		}
		collection = []*halcyon.Model{v}
	case []*halcyon.Model:
		if len(v) == 0 {
			r.clear()
			return nil
		}
		collection = v
	case []string:
		if len(v) == 0 {
			r.clear()
			return nil
		}
		for _, key := range v {
			m, err := r.Related.Find(ctx, key)
			if err != nil {
				return err
			}
			if m != nil {
				collection = append(collection, m)
			}
		}
	default:
		return fmt.Errorf("relations: %s: unsupported value %T", r.Name, value)
	}

	if r.Parent.Exists() {
		for _, m := range collection {
			r.attach(m)
		}
	}
	r.Parent.SetRelation(r.Name, collection)

	r.Parent.AfterSave(func(ctx context.Context) error {
		keep := make(map[string]bool, len(collection))
		for _, m := range collection {
			keep[m.FileName()] = true
		}
		if err := detach(ctx, r.owned(), keep, r.ForeignKey, r.MorphType); err != nil {
			return err
		}
		for _, m := range collection {
			r.attach(m)
			if err := m.Save(ctx); err != nil {
				return fmt.Errorf("relations: attach %s: %w", m.FileName(), err)
			}
		}
		return nil
	})
	return nil
}

func (r *MorphMany) attach(m *halcyon.Model) {
	m.Set(r.ForeignKey, parentKey(r.Parent))
	m.Set(r.MorphType, halcyon.String(r.MorphClass))
}

func (r *MorphMany) clear() {
	r.Parent.UnsetRelation(r.Name)
	if !r.Parent.Exists() {
		return
	}
	r.Parent.AfterSave(func(ctx context.Context) error {
		return detach(ctx, r.owned(), nil, r.ForeignKey, r.MorphType)
	})
}

// SimpleValue lists the file names of the assigned collection.
func (r *MorphMany) SimpleValue() []string {
	v, ok := r.Parent.Relation(r.Name)
	if !ok {
		return nil
	}
	models, _ := v.([]*halcyon.Model)
	out := make([]string, 0, len(models))
	for _, m := range models {
		out = append(out, m.FileName())
	}
	return out
}

// Get loads the related models from storage.
func (r *MorphMany) Get(ctx context.Context) ([]*halcyon.Model, error) {
	return r.owned().All(ctx)
}
