package models

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"halcyon-cms/pkg/halcyon"
)

// Blueprint lists the template types a site uses.
type Blueprint struct {
	Types []TypeDefinition `yaml:"types" json:"types"`
}

type TypeDefinition struct {
	Name       string   `yaml:"name" json:"name"`
	Label      string   `yaml:"label" json:"label"`
	Directory  string   `yaml:"directory" json:"directory"`
	Extension  string   `yaml:"extension" json:"extension"`
	Extensions []string `yaml:"extensions" json:"extensions,omitempty"`
	MaxNesting int      `yaml:"max_nesting" json:"max_nesting"`
	Compound   bool     `yaml:"compound" json:"compound"`
	Fields     []Field  `yaml:"fields" json:"fields,omitempty"`
}

// Field is one settings attribute. Name may be a dotted path such as
// "viewBag.meta_title".
type Field struct {
	Name    string `yaml:"name" json:"name"`
	Label   string `yaml:"label" json:"label,omitempty"`
	Widget  string `yaml:"widget" json:"widget"`
	Rules   string `yaml:"rules" json:"rules,omitempty"`
	Default any    `yaml:"default,omitempty" json:"default,omitempty"`
}

// DefaultBlueprint is used when no blueprint file is configured.
func DefaultBlueprint() Blueprint {
	return Blueprint{Types: []TypeDefinition{
		{
			Name: "page", Label: "Pages", Directory: "pages", Extension: "htm", Compound: true,
			Fields: []Field{
				{Name: "title", Label: "Title", Widget: "string", Rules: "required"},
				{Name: "url", Label: "URL", Widget: "string", Rules: "required,startswith=/"},
				{Name: "layout", Label: "Layout", Widget: "string"},
			},
		},
		{Name: "layout", Label: "Layouts", Directory: "layouts", Extension: "htm", Compound: true},
		{Name: "partial", Label: "Partials", Directory: "partials", Extension: "htm", Compound: true},
		{Name: "menu", Label: "Menus", Directory: "menus", Extension: "htm"},
		{
			Name: "content", Label: "Content", Directory: "content", Extension: "htm",
			Extensions: []string{"htm", "txt", "md"},
		},
	}}
}

// LoadBlueprint reads a YAML blueprint file.
func LoadBlueprint(path string) (Blueprint, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Blueprint{}, err
	}
	var bp Blueprint
	if err := yaml.Unmarshal(content, &bp); err != nil {
		return Blueprint{}, fmt.Errorf("blueprint %s: %w", path, err)
	}
	if len(bp.Types) == 0 {
		return Blueprint{}, fmt.Errorf("blueprint %s: no types defined", path)
	}
	seen := map[string]bool{}
	for _, def := range bp.Types {
		if def.Name == "" {
			return Blueprint{}, fmt.Errorf("blueprint %s: type without a name", path)
		}
		if seen[def.Name] {
			return Blueprint{}, fmt.Errorf("blueprint %s: duplicate type %q", path, def.Name)
		}
		seen[def.Name] = true
	}
	return bp, nil
}

// Type converts the definition into a halcyon.Type.
func (d TypeDefinition) Type() halcyon.Type {
	t := halcyon.Type{
		Name:       d.Name,
		Directory:  d.Directory,
		Extension:  d.Extension,
		Extensions: append([]string(nil), d.Extensions...),
		MaxNesting: d.MaxNesting,
		Compound:   d.Compound,
	}
	for _, f := range d.Fields {
		if f.Rules == "" {
			continue
		}
		if t.Rules == nil {
			t.Rules = map[string]string{}
		}
		t.Rules[f.Name] = f.Rules
	}
	return t
}

// Defaults returns the field defaults as attribute values, for new templates.
func (d TypeDefinition) Defaults() (map[string]halcyon.Value, error) {
	out := map[string]halcyon.Value{}
	for _, f := range d.Fields {
		if f.Default == nil {
			continue
		}
		v, err := halcyon.ValueOf(f.Default)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out[f.Name] = v
	}
	return out, nil
}
