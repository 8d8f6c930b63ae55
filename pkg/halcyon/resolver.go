package halcyon

import (
	"sort"
	"sync"
)

// Resolver maps datasource names to Datasources. It is built at start-up and
// handed to a Store; reads are safe from any goroutine.
type Resolver struct {
	mu          sync.RWMutex
	datasources map[string]Datasource
	defaultName string
}

func NewResolver(datasources map[string]Datasource) *Resolver {
	r := &Resolver{datasources: make(map[string]Datasource, len(datasources))}
	for name, ds := range datasources {
		r.datasources[name] = ds
	}
	return r
}

func (r *Resolver) AddDatasource(name string, ds Datasource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.datasources[name] = ds
}

func (r *Resolver) SetDefaultDatasource(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultName = name
}

func (r *Resolver) DefaultDatasource() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

func (r *Resolver) HasDatasource(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.datasources[name]
	return ok
}

// Datasource returns the named datasource; an empty name selects the default.
func (r *Resolver) Datasource(name string) (Datasource, error) {
	_, ds, err := r.resolve(name)
	return ds, err
}

// resolve also reports the effective name, which cache keys need.
func (r *Resolver) resolve(name string) (string, Datasource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.defaultName
	}
	ds, ok := r.datasources[name]
	if !ok {
		return name, nil, &UnknownDatasourceError{Name: name}
	}
	return name, ds, nil
}

// Names lists the registered datasources in sorted order.
func (r *Resolver) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.datasources))
	for name := range r.datasources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
