// Package relations links Halcyon models to each other. The owning side of
// a relation stores the other model's file name in a settings attribute.
// Assignments made before the parent is saved are staged on the parent with
// Model.AfterSave and written right after the parent's own write succeeds.
package relations

import (
	"context"
	"fmt"

	"halcyon-cms/pkg/halcyon"
)

// parentKey is the key related models point at.
func parentKey(m *halcyon.Model) halcyon.Value {
	return halcyon.String(m.FileName())
}

// detach clears attrs on every model matched by q, except those in keep.
func detach(ctx context.Context, q *halcyon.Query, keep map[string]bool, attrs ...string) error {
	models, err := q.All(ctx)
	if err != nil {
		return err
	}
	for _, m := range models {
		if keep[m.FileName()] {
			continue
		}
		for _, a := range attrs {
			m.Unset(a)
		}
		if err := m.Save(ctx); err != nil {
			return fmt.Errorf("relations: detach %s: %w", m.FileName(), err)
		}
	}
	return nil
}

func asString(v halcyon.Value) string {
	s, _ := v.AsString()
	return s
}
