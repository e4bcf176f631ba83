package rendition

import (
	"context"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 512

// Cache stores capability pairs per source mimetype.
type Cache interface {
	Get(ctx context.Context, sourceMimetype string) ([]Capability, bool)
	Put(ctx context.Context, sourceMimetype string, caps []Capability)
	Invalidate(ctx context.Context)
}

// MemoryCache is a process-local Cache bounded by an LRU.
type MemoryCache struct {
	lru *lru.Cache[string, []Capability]
}

func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, err := lru.New[string, []Capability](size)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{lru: c}, nil
}

func (m *MemoryCache) Get(_ context.Context, sourceMimetype string) ([]Capability, bool) {
	caps, ok := m.lru.Get(sourceMimetype)
	if !ok {
		return nil, false
	}
	return slices.Clone(caps), true
}

func (m *MemoryCache) Put(_ context.Context, sourceMimetype string, caps []Capability) {
	m.lru.Add(sourceMimetype, slices.Clone(caps))
}

func (m *MemoryCache) Invalidate(context.Context) { m.lru.Purge() }

func (m *MemoryCache) Len() int { return m.lru.Len() }
