package halcyon

import (
	"context"
	"time"
)

// Record is one stored template.
type Record struct {
	FileName string
	Document
	// Content is the raw stored text.
	Content string
	MTime   time.Time
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	r.Settings = cloneValues(r.Settings)
	return r
}

// Directory describes a model type's namespace inside a datasource.
type Directory struct {
	Name       string
	Extensions []string
	MaxNesting int
	Codec      Codec
}

func (d Directory) codec() Codec {
	if d.Codec == nil {
		return SectionCodec{}
	}
	return d.Codec
}

// Datasource stores records grouped by directory. Find returns (nil, nil) when
// the record does not exist.
type Datasource interface {
	List(ctx context.Context, dir Directory) ([]Record, error)
	Find(ctx context.Context, dir Directory, fileName string) (*Record, error)
	Insert(ctx context.Context, dir Directory, rec Record) error
	Update(ctx context.Context, dir Directory, oldFileName string, rec Record) error
	Delete(ctx context.Context, dir Directory, fileName string) error
	LastModified(ctx context.Context, dir Directory, fileName string) (time.Time, error)
}

type strictListingKey struct{}

// WithStrictListing marks ctx so that List fails on malformed documents even
// when the datasource was configured to skip them.
func WithStrictListing(ctx context.Context) context.Context {
	return context.WithValue(ctx, strictListingKey{}, true)
}

func strictListing(ctx context.Context) bool {
	strict, _ := ctx.Value(strictListingKey{}).(bool)
	return strict
}
