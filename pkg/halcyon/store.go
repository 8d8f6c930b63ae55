package halcyon

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Store ties the model types to a Resolver and an optional Cache. It replaces
// any process-wide model state: every query starts from a Store.
type Store struct {
	resolver *Resolver
	cache    *Cache
	validate *validator.Validate

	mu    sync.RWMutex
	types map[string]*Type
}

type StoreOption func(*Store)

func WithCache(c *Cache) StoreOption {
	return func(s *Store) { s.cache = c }
}

// WithValidator replaces the default validator, e.g. to register custom tags.
func WithValidator(v *validator.Validate) StoreOption {
	return func(s *Store) { s.validate = v }
}

func NewStore(resolver *Resolver, opts ...StoreOption) *Store {
	s := &Store{
		resolver: resolver,
		types:    make(map[string]*Type),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.validate == nil {
		s.validate = validator.New()
	}
	return s
}

func (s *Store) Resolver() *Resolver { return s.resolver }

func (s *Store) Cache() *Cache { return s.cache }

// Register adds a model type. Registering a name twice replaces the type.
func (s *Store) Register(t Type) (*Type, error) {
	if err := t.normalize(); err != nil {
		return nil, err
	}
	if err := s.checkRules(&t); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types[t.Name] = &t
	return &t, nil
}

func (s *Store) Type(name string) (*Type, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.types[name]
	if !ok {
		return nil, &UnknownTypeError{Name: name}
	}
	return t, nil
}

// Types returns the registered types sorted by name.
func (s *Store) Types() []*Type {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Type, 0, len(s.types))
	for _, t := range s.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Query starts a query over the named type on the default datasource.
func (s *Store) Query(typeName string) (*Query, error) {
	t, err := s.Type(typeName)
	if err != nil {
		return nil, err
	}
	return &Query{store: s, typ: t}, nil
}

// checkRules compiles every rule once so that a typo in a tag fails at
// registration instead of on the first save.
func (s *Store) checkRules(t *Type) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("halcyon: type %s: invalid rule: %v", t.Name, r)
		}
	}()
	for _, field := range sortedRuleKeys(t.Rules) {
		// The result is irrelevant; an unknown tag panics.
		_ = s.validate.VarCtx(context.Background(), "", t.Rules[field])
	}
	return nil
}

// datasource resolves name (empty means default) and returns the effective
// name along with the datasource.
func (s *Store) datasource(name string) (string, Datasource, error) {
	return s.resolver.resolve(name)
}
