package halcyon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheDisabled(t *testing.T) {
	c := NewCache(0, time.Minute)
	assert.Nil(t, c)

	// A nil cache is usable and never hits.
	c.storeRecord("theme1", "pages", c.generation("theme1", "pages"), samplePage("home.htm"))
	_, ok := c.record("theme1", "pages", "home.htm")
	assert.False(t, ok)
	c.Invalidate("theme1", "pages", "home.htm")
	c.InvalidateDir("theme1", "pages")
	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestCacheRecordsAreCopies(t *testing.T) {
	c := NewCache(16, 0)
	c.storeRecord("theme1", "pages", c.generation("theme1", "pages"), samplePage("home.htm"))

	rec, ok := c.record("theme1", "pages", "home.htm")
	require.True(t, ok)
	rec.Settings["title"] = String("mutated")

	again, ok := c.record("theme1", "pages", "home.htm")
	require.True(t, ok)
	assert.Equal(t, String("Sample"), again.Settings["title"])
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache(16, 0)
	c.storeListing("theme1", "pages", c.generation("theme1", "pages"), []Record{samplePage("home.htm"), samplePage("blog/post.htm")})
	c.storeRecord("theme2", "pages", c.generation("theme2", "pages"), samplePage("home.htm"))

	_, ok := c.listing("theme1", "pages")
	require.True(t, ok)
	_, ok = c.record("theme1", "pages", "blog/post.htm")
	require.True(t, ok)

	c.Invalidate("theme1", "pages", "home.htm")
	_, ok = c.record("theme1", "pages", "home.htm")
	assert.False(t, ok)
	_, ok = c.listing("theme1", "pages")
	assert.False(t, ok, "a write drops the directory listing")
	_, ok = c.record("theme1", "pages", "blog/post.htm")
	assert.True(t, ok)
	_, ok = c.record("theme2", "pages", "home.htm")
	assert.True(t, ok, "other datasources are untouched")

	c.InvalidateDir("theme1", "pages")
	_, ok = c.record("theme1", "pages", "blog/post.htm")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestCacheDropsLoadsRacingAWrite(t *testing.T) {
	c := NewCache(16, 0)

	// A listing read from storage before a concurrent write lands.
	gen := c.generation("theme1", "pages")
	other := c.generation("theme2", "pages")
	c.Invalidate("theme1", "pages", "home.htm")
	c.storeListing("theme1", "pages", gen, []Record{samplePage("home.htm")})
	c.storeRecord("theme1", "pages", gen, samplePage("home.htm"))

	_, ok := c.listing("theme1", "pages")
	assert.False(t, ok)
	_, ok = c.record("theme1", "pages", "home.htm")
	assert.False(t, ok)

	c.storeListing("theme2", "pages", other, []Record{samplePage("home.htm")})
	_, ok = c.listing("theme2", "pages")
	assert.True(t, ok, "other datasources keep their generation")

	gen = c.generation("theme1", "pages")
	c.InvalidateDir("theme1", "pages")
	c.storeListing("theme1", "pages", gen, []Record{samplePage("home.htm")})
	_, ok = c.listing("theme1", "pages")
	assert.False(t, ok)

	gen = c.generation("theme1", "pages")
	c.Purge()
	c.storeListing("theme1", "pages", gen, []Record{samplePage("home.htm")})
	_, ok = c.listing("theme1", "pages")
	assert.False(t, ok)

	gen = c.generation("theme1", "pages")
	c.storeListing("theme1", "pages", gen, []Record{samplePage("home.htm")})
	_, ok = c.listing("theme1", "pages")
	assert.True(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(16, 20*time.Millisecond)
	c.storeRecord("theme1", "pages", c.generation("theme1", "pages"), samplePage("home.htm"))
	_, ok := c.record("theme1", "pages", "home.htm")
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok := c.record("theme1", "pages", "home.htm")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
