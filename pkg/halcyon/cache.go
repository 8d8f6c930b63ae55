package halcyon

import (
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type cacheKey struct {
	source string
	dir    string
	// file is empty for directory listings.
	file string
}

type dirKey struct {
	source string
	dir    string
}

// Cache holds recently loaded records and directory listings. Entries are
// keyed by (datasource, directory, file name); any write to a directory drops
// its listing. A nil *Cache disables caching.
//
// Every invalidation bumps the directory's generation. Loaders read the
// generation before going to storage and pass it back when storing, so a
// result read before a concurrent write is dropped instead of cached.
type Cache struct {
	records  *expirable.LRU[cacheKey, Record]
	listings *expirable.LRU[cacheKey, []Record]

	mu    sync.Mutex
	epoch uint64
	gens  map[dirKey]uint64
}

// NewCache returns nil when size <= 0. A zero ttl keeps entries until evicted.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		return nil
	}
	return &Cache{
		records:  expirable.NewLRU[cacheKey, Record](size, nil, ttl),
		listings: expirable.NewLRU[cacheKey, []Record](size, nil, ttl),
		gens:     map[dirKey]uint64{},
	}
}

func (c *Cache) generation(source, dir string) uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch + c.gens[dirKey{source, dir}]
}

// current must be called with c.mu held.
func (c *Cache) current(source, dir string, gen uint64) bool {
	return c.epoch+c.gens[dirKey{source, dir}] == gen
}

func (c *Cache) record(source, dir, file string) (Record, bool) {
	if c == nil {
		return Record{}, false
	}
	rec, ok := c.records.Get(cacheKey{source, dir, file})
	if !ok {
		return Record{}, false
	}
	return rec.Clone(), true
}

func (c *Cache) storeRecord(source, dir string, gen uint64, rec Record) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(source, dir, gen) {
		return
	}
	c.records.Add(cacheKey{source, dir, rec.FileName}, rec.Clone())
}

func (c *Cache) listing(source, dir string) ([]Record, bool) {
	if c == nil {
		return nil, false
	}
	recs, ok := c.listings.Get(cacheKey{source: source, dir: dir})
	if !ok {
		return nil, false
	}
	return cloneRecords(recs), true
}

func (c *Cache) storeListing(source, dir string, gen uint64, recs []Record) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(source, dir, gen) {
		return
	}
	c.listings.Add(cacheKey{source: source, dir: dir}, cloneRecords(recs))
	for _, rec := range recs {
		c.records.Add(cacheKey{source, dir, rec.FileName}, rec.Clone())
	}
}

// Invalidate drops the record and its directory listing.
func (c *Cache) Invalidate(source, dir, file string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[dirKey{source, dir}]++
	c.records.Remove(cacheKey{source, dir, file})
	c.listings.Remove(cacheKey{source: source, dir: dir})
}

// InvalidateDir drops a listing and every record of the directory.
func (c *Cache) InvalidateDir(source, dir string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[dirKey{source, dir}]++
	for k := range c.gens {
		if k.source == source && strings.HasPrefix(k.dir, dir+"/") {
			c.gens[k]++
		}
	}
	c.listings.Remove(cacheKey{source: source, dir: dir})
	for _, k := range c.records.Keys() {
		if k.source == source && (k.dir == dir || strings.HasPrefix(k.dir, dir+"/")) {
			c.records.Remove(k)
		}
	}
}

// Purge empties the cache.
func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.records.Purge()
	c.listings.Purge()
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.records.Len()
}

func cloneRecords(recs []Record) []Record {
	out := make([]Record, len(recs))
	for i := range recs {
		out[i] = recs[i].Clone()
	}
	return out
}
