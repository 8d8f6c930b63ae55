package relations

import (
	"context"
	"fmt"

	"halcyon-cms/pkg/halcyon"
)

// HasOne is a relation where Related holds Parent's file name in ForeignKey.
type HasOne struct {
	Parent     *halcyon.Model
	Related    *halcyon.Query
	ForeignKey string
	Name       string
}

func (r *HasOne) owned() *halcyon.Query {
	return r.Related.Where(r.ForeignKey, parentKey(r.Parent))
}

// SetSimpleValue assigns the related model from nil, a *halcyon.Model or a
// file name. The write happens after the parent's next successful save.
func (r *HasOne) SetSimpleValue(ctx context.Context, value any) error {
	var instance *halcyon.Model
	switch v := value.(type) {
	case nil:
		r.clear()
		return nil
	case string:
		if v == "" {
			r.clear()
			return nil
		}
		m, err := r.Related.Find(ctx, v)
		if err != nil {
			return err
		}
		instance = m
	case *halcyon.Model:
		if v == nil {
			r.clear()
			return nil
		}
		instance = v
		if r.Parent.Exists() {
			instance.Set(r.ForeignKey, parentKey(r.Parent))
		}
	default:
		return fmt.Errorf("relations: %s: unsupported value %T", r.Name, value)
	}
	if instance == nil {
		return nil
	}

	r.Parent.SetRelation(r.Name, instance)
	r.Parent.AfterSave(func(ctx context.Context) error {
		key := parentKey(r.Parent)
		if instance.Exists() && instance.Original(r.ForeignKey).Equal(key) {
			return nil
		}
		if err := detach(ctx, r.owned(), map[string]bool{instance.FileName(): true}, r.ForeignKey); err != nil {
			return err
		}
		instance.Set(r.ForeignKey, key)
		return instance.Save(ctx)
	})
	return nil
}

func (r *HasOne) clear() {
	r.Parent.UnsetRelation(r.Name)
	if !r.Parent.Exists() {
		return
	}
	r.Parent.AfterSave(func(ctx context.Context) error {
		return detach(ctx, r.owned(), nil, r.ForeignKey)
	})
}

// SimpleValue is the file name of the assigned related model.
func (r *HasOne) SimpleValue() (string, bool) {
	v, ok := r.Parent.Relation(r.Name)
	if !ok {
		return "", false
	}
	m, ok := v.(*halcyon.Model)
	if !ok || m == nil {
		return "", false
	}
	return m.FileName(), true
}

// Get loads the related model from storage.
func (r *HasOne) Get(ctx context.Context) (*halcyon.Model, error) {
	models, err := r.owned().All(ctx)
	if err != nil || len(models) == 0 {
		return nil, err
	}
	return models[0], nil
}
