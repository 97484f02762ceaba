package eligibility

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Cache keeps compiled expressions so repeated submissions with the same
// requirement skip parsing and checking.
type Cache struct {
	items *ttlcache.Cache[string, *Expr]
}

// NewCache returns a cache whose entries expire ttl after last use and
// which holds at most capacity entries.
func NewCache(ttl time.Duration, capacity uint64) *Cache {
	opts := []ttlcache.Option[string, *Expr]{ttlcache.WithTTL[string, *Expr](ttl)}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, *Expr](capacity))
	}
	return &Cache{items: ttlcache.New(opts...)}
}

// Compile returns the cached program for expr, compiling it on a miss.
// Compile errors are not cached.
func (c *Cache) Compile(expr string) (*Expr, error) {
	if it := c.items.Get(expr); it != nil {
		return it.Value(), nil
	}
	x, err := Compile(expr)
	if err != nil {
		return nil, err
	}
	c.items.Set(expr, x, ttlcache.DefaultTTL)
	return x, nil
}

// Len returns the number of cached programs.
func (c *Cache) Len() int { return c.items.Len() }

// Start runs the expiry loop until Stop is called.
func (c *Cache) Start() { c.items.Start() }

// Stop ends the expiry loop.
func (c *Cache) Stop() { c.items.Stop() }
