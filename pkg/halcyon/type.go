package halcyon

import (
	"context"
	"fmt"
	"strings"
)

// DefaultExtension is used when a type does not name one.
const DefaultExtension = "htm"

// Hook runs at a point of a model's lifecycle. Returning an error from a
// Before hook aborts the operation.
type Hook func(ctx context.Context, m *Model) error

type Hooks struct {
	BeforeSave   Hook
	AfterSave    Hook
	BeforeDelete Hook
	AfterDelete  Hook
}

// Type describes one kind of template: where it lives, which file names it
// accepts and how it is validated.
type Type struct {
	Name      string
	Directory string
	// Extension is appended to keys given without one.
	Extension string
	// Extensions lists the accepted extensions; defaults to Extension.
	Extensions []string
	// MaxNesting is the number of subdirectory levels keys may use. Zero
	// means DefaultMaxNesting, a negative value forbids subdirectories.
	MaxNesting int
	// Compound types store settings, code and markup; the others store the
	// markup only.
	Compound bool
	// Rules maps attribute paths ("title", "viewBag.meta_title") to
	// validator tags ("required", "max=80").
	Rules map[string]string
	Hooks Hooks
}

func (t *Type) normalize() error {
	if t.Name == "" {
		return fmt.Errorf("halcyon: type without a name")
	}
	if t.Directory == "" {
		t.Directory = t.Name
	}
	if strings.ContainsAny(t.Directory, "\\\x00") || strings.Contains(t.Directory, "..") {
		return fmt.Errorf("halcyon: type %s: invalid directory %q", t.Name, t.Directory)
	}
	t.Directory = strings.Trim(t.Directory, "/")
	t.Extension = strings.TrimPrefix(t.Extension, ".")
	if t.Extension == "" {
		t.Extension = DefaultExtension
	}
	if len(t.Extensions) == 0 {
		t.Extensions = []string{t.Extension}
	}
	for i, ext := range t.Extensions {
		t.Extensions[i] = strings.TrimPrefix(ext, ".")
	}
	if !hasAllowedExtension("x."+t.Extension, t.Extensions) {
		t.Extensions = append(t.Extensions, t.Extension)
	}
	return nil
}

func (t *Type) maxNesting() int {
	switch {
	case t.MaxNesting == 0:
		return DefaultMaxNesting
	case t.MaxNesting < 0:
		return 0
	}
	return t.MaxNesting
}

// Dir is the datasource directory of the type.
func (t *Type) Dir() Directory {
	dir := Directory{
		Name:       t.Directory,
		Extensions: t.Extensions,
		MaxNesting: t.maxNesting(),
		Codec:      SectionCodec{},
	}
	if !t.Compound {
		dir.Codec = RawCodec{}
	}
	return dir
}

// NormalizeFileName appends the default extension to keys that have none.
func (t *Type) NormalizeFileName(name string) string {
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return name
	}
	if _, ext := SplitExtension(name); ext == "" {
		return strings.TrimSuffix(name, ".") + "." + t.Extension
	}
	return name
}
