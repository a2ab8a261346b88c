package assets

import (
	"fmt"
	"image"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/Faultbox/otmap/pkg/formats"
)

// spriteCost is the memory charged for one decoded sprite.
const spriteCost = formats.SpritePixels * 4

// Cache keeps decoded sprites bounded by memory. A nil Cache never hits.
type Cache struct {
	c *ristretto.Cache[uint32, *image.NRGBA]
}

// NewCache creates a cache holding up to maxBytes of decoded sprites.
// A maxBytes of zero returns a nil Cache.
func NewCache(maxBytes int64) (*Cache, error) {
	if maxBytes <= 0 {
		return nil, nil
	}
	c, err := ristretto.NewCache(&ristretto.Config[uint32, *image.NRGBA]{
		NumCounters: max(10*(maxBytes/spriteCost), 1000),
		MaxCost:     maxBytes,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating sprite cache: %w", err)
	}
	return &Cache{c: c}, nil
}

// Get retrieves a sprite from cache.
func (c *Cache) Get(id uint32) (*image.NRGBA, bool) {
	if c == nil {
		return nil, false
	}
	return c.c.Get(id)
}

// Set stores a sprite. The write becomes visible once buffered sets are
// applied.
func (c *Cache) Set(id uint32, img *image.NRGBA) {
	if c == nil {
		return
	}
	c.c.Set(id, img, spriteCost)
	c.c.Wait()
}

// Clear drops every cached sprite.
func (c *Cache) Clear() {
	if c == nil {
		return
	}
	c.c.Clear()
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses uint64) {
	if c == nil {
		return 0, 0
	}
	return c.c.Metrics.Hits(), c.c.Metrics.Misses()
}

// Close stops the cache's background goroutines.
func (c *Cache) Close() {
	if c == nil {
		return
	}
	c.c.Close()
}
