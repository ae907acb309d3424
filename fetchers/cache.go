package fetchers

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
)

// Cached memoizes successful fetches by location. Failures are not cached.
type Cached struct {
	next  Fetcher
	cache *lru.Cache
}

func NewCached(next Fetcher, size int) (*Cached, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: c}, nil
}

func (c *Cached) Name() string { return "cached(" + c.next.Name() + ")" }

func (c *Cached) Fetch(ctx context.Context, location string) ([]byte, error) {
	if v, ok := c.cache.Get(location); ok {
		return v.([]byte), nil
	}
	b, err := c.next.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	c.cache.Add(location, b)
	return b, nil
}
