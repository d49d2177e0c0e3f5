package view

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/524D/mzparquet/internal/store"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// DefaultCatalogTTL is how long an unused engine stays cached.
const DefaultCatalogTTL = 10 * time.Minute

type catalogEntry struct {
	engine  *Engine
	modTime time.Time
	size    int64
}

// Catalog keeps engines for recently opened files so that switching back
// and forth between runs does not reload them. An entry is dropped when the
// file changes on disk. A Catalog is safe for concurrent use.
type Catalog struct {
	cfg   Config
	cache *cache.Cache
	group singleflight.Group
}

// NewCatalog returns a catalog whose entries expire ttl after their last
// load. ttl <= 0 selects DefaultCatalogTTL.
func NewCatalog(cfg Config, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	return &Catalog{
		cfg:   cfg,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Open returns the engine for path, loading the file if it is not cached or
// has been modified since it was loaded.
func (c *Catalog) Open(path string) (*Engine, error) {
	key, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(key)
	if err != nil {
		return nil, err
	}
	if v, ok := c.cache.Get(key); ok {
		ent := v.(*catalogEntry)
		if ent.modTime.Equal(st.ModTime()) && ent.size == st.Size() {
			return ent.engine, nil
		}
		c.cache.Delete(key)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		s, err := store.Open(key)
		if err != nil {
			return nil, err
		}
		ent := &catalogEntry{
			engine:  New(s, c.cfg),
			modTime: st.ModTime(),
			size:    st.Size(),
		}
		c.cache.Set(key, ent, cache.DefaultExpiration)
		return ent, nil
	})
	if err != nil {
		return nil, fmt.Errorf("view: open %s: %w", path, err)
	}
	return v.(*catalogEntry).engine, nil
}

// Evict drops path from the catalog.
func (c *Catalog) Evict(path string) {
	if key, err := filepath.Abs(path); err == nil {
		c.cache.Delete(key)
	}
}

// Len returns the number of cached engines.
func (c *Catalog) Len() int {
	return c.cache.ItemCount()
}

// Flush drops every cached engine.
func (c *Catalog) Flush() {
	c.cache.Flush()
}
