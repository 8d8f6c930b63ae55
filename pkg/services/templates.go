package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"halcyon-cms/pkg/ctxlog"
	"halcyon-cms/pkg/halcyon"
	"halcyon-cms/pkg/models"
)

var ErrNotFound = errors.New("template not found")

// Theme describes a registered datasource.
type Theme struct {
	Name    string `json:"name"`
	Default bool   `json:"default"`
}

// Problem is a template listing that could not be loaded.
type Problem struct {
	Theme string
	Type  string
	Err   error
}

// Templates exposes the store to the API and the CLI by type and theme name.
// An empty theme selects the default datasource.
type Templates struct {
	store *halcyon.Store
	defs  map[string]models.TypeDefinition
	order []string
}

func NewTemplates(store *halcyon.Store, bp models.Blueprint) *Templates {
	s := &Templates{store: store, defs: map[string]models.TypeDefinition{}}
	for _, def := range bp.Types {
		s.defs[def.Name] = def
		s.order = append(s.order, def.Name)
	}
	return s
}

// Types returns the blueprint definitions in declaration order.
func (s *Templates) Types() []models.TypeDefinition {
	out := make([]models.TypeDefinition, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.defs[name])
	}
	return out
}

func (s *Templates) Themes() []Theme {
	resolver := s.store.Resolver()
	def := resolver.DefaultDatasource()
	names := resolver.Names()
	out := make([]Theme, len(names))
	for i, name := range names {
		out[i] = Theme{Name: name, Default: name == def}
	}
	return out
}

func (s *Templates) query(typ, theme string) (*halcyon.Query, error) {
	q, err := s.store.Query(typ)
	if err != nil {
		return nil, err
	}
	if theme != "" {
		q = q.On(theme)
	}
	return q, nil
}

func (s *Templates) List(ctx context.Context, typ, theme string) ([]models.TemplateSummary, error) {
	q, err := s.query(typ, theme)
	if err != nil {
		return nil, err
	}
	all, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.TemplateSummary, len(all))
	for i, m := range all {
		out[i] = models.NewTemplateSummary(m)
	}
	return out, nil
}

func (s *Templates) find(ctx context.Context, typ, theme, fileName string) (*halcyon.Model, error) {
	q, err := s.query(typ, theme)
	if err != nil {
		return nil, err
	}
	m, err := q.Find(ctx, fileName)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%s %s: %w", typ, fileName, ErrNotFound)
	}
	return m, nil
}

func (s *Templates) Get(ctx context.Context, typ, theme, fileName string) (models.Template, error) {
	m, err := s.find(ctx, typ, theme, fileName)
	if err != nil {
		return models.Template{}, err
	}
	return models.NewTemplate(m), nil
}

// Create inserts a new template. Blueprint defaults fill settings the input
// leaves out.
func (s *Templates) Create(ctx context.Context, typ, theme string, in models.TemplateInput) (models.Template, error) {
	q, err := s.query(typ, theme)
	if err != nil {
		return models.Template{}, err
	}
	attrs := inputAttributes(q.Type(), in)
	if def, ok := s.defs[typ]; ok && q.Type().Compound {
		defaults, err := def.Defaults()
		if err != nil {
			return models.Template{}, err
		}
		for path, v := range defaults {
			setDefault(attrs, strings.Split(path, "."), v)
		}
	}

	m, err := q.Create(ctx, attrs)
	if err != nil {
		return models.Template{}, err
	}
	ctxlog.FromContext(ctx).Info("template created", "type", typ, "theme", m.Datasource(), "file", m.FileName())
	return models.NewTemplate(m), nil
}

// Save replaces the template stored under fileName with in. Settings missing
// from in are removed; a different in.FileName renames the template.
func (s *Templates) Save(ctx context.Context, typ, theme, fileName string, in models.TemplateInput) (models.Template, error) {
	m, err := s.find(ctx, typ, theme, fileName)
	if err != nil {
		return models.Template{}, err
	}
	if in.FileName == "" {
		in.FileName = m.FileName()
	}
	for k := range m.Settings() {
		if _, ok := in.Settings[k]; !ok {
			m.Unset(k)
		}
	}

	previous := m.FileName()
	m.Fill(inputAttributes(m.Type(), in))
	if err := m.Save(ctx); err != nil {
		return models.Template{}, err
	}

	logger := ctxlog.FromContext(ctx).With("type", typ, "theme", m.Datasource())
	if previous != m.FileName() {
		logger.Info("template renamed", "from", previous, "to", m.FileName())
	} else {
		logger.Info("template saved", "file", m.FileName())
	}
	return models.NewTemplate(m), nil
}

func (s *Templates) Delete(ctx context.Context, typ, theme, fileName string) error {
	m, err := s.find(ctx, typ, theme, fileName)
	if err != nil {
		return err
	}
	if err := m.Delete(ctx); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("template deleted", "type", typ, "theme", m.Datasource(), "file", m.FileName())
	return nil
}

// Check reloads every type on every theme from storage and reports the
// listings that fail. Malformed files are reported even when the themes are
// configured to skip them.
func (s *Templates) Check(ctx context.Context) ([]Problem, error) {
	s.store.Cache().Purge()
	ctx = halcyon.WithStrictListing(ctx)
	var problems []Problem
	for _, theme := range s.store.Resolver().Names() {
		for _, t := range s.store.Types() {
			q, err := s.query(t.Name, theme)
			if err != nil {
				return nil, err
			}
			if _, err := q.All(ctx); err != nil {
				problems = append(problems, Problem{Theme: theme, Type: t.Name, Err: err})
			}
		}
	}
	sort.SliceStable(problems, func(i, j int) bool {
		if problems[i].Theme != problems[j].Theme {
			return problems[i].Theme < problems[j].Theme
		}
		return problems[i].Type < problems[j].Type
	})
	return problems, nil
}

// inputAttributes drops the parts of in that the type does not store.
func inputAttributes(t *halcyon.Type, in models.TemplateInput) map[string]halcyon.Value {
	if !t.Compound {
		return map[string]halcyon.Value{
			halcyon.AttrFileName: halcyon.String(in.FileName),
			halcyon.AttrMarkup:   halcyon.String(in.Markup),
		}
	}
	return in.Attributes()
}

// setDefault stores v under a dotted path unless something is already there.
func setDefault(attrs map[string]halcyon.Value, path []string, v halcyon.Value) {
	key := path[0]
	if len(path) == 1 {
		if attrs[key].IsNull() {
			attrs[key] = v
		}
		return
	}
	cur := attrs[key]
	if !cur.IsNull() && cur.Kind() != halcyon.KindMap {
		return
	}
	inner, _ := cur.AsMap()
	next := make(map[string]halcyon.Value, len(inner)+1)
	for k, iv := range inner {
		next[k] = iv
	}
	setDefault(next, path[1:], v)
	attrs[key] = halcyon.Map(next)
}
