package rendition

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"transformd/internal/logging"
)

// Registry holds every known Definition and answers which of them are
// possible for a source.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
	src  CapabilitySource

	cache Cache
	// gen is bumped on every invalidation; a result computed under an older
	// generation is not written back. cacheMu orders write-backs against
	// invalidations.
	gen     atomic.Uint64
	cacheMu sync.Mutex
}

// NewRegistry uses an in-memory cache when cache is nil.
func NewRegistry(src CapabilitySource, cache Cache) *Registry {
	if cache == nil {
		cache, _ = NewMemoryCache(defaultCacheSize)
	}
	return &Registry{defs: map[string]Definition{}, src: src, cache: cache}
}

func (r *Registry) Register(def Definition) error {
	if err := def.validate(); err != nil {
		return err
	}
	def.Options = maps.Clone(def.Options)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[def.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateDefinition, def.Name)
	}
	r.defs[def.Name] = def
	return nil
}

func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDefinition, name)
	}
	delete(r.defs, name)
	return nil
}

func (r *Registry) Definition(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	if !ok {
		return Definition{}, false
	}
	d.Options = maps.Clone(d.Options)
	return d, true
}

// Definitions returns all registered definitions ordered by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		d.Options = maps.Clone(d.Options)
		out = append(out, d)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Definition) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

// SetCapabilitySource swaps the capability source and drops every cached
// result computed against the previous one.
func (r *Registry) SetCapabilitySource(ctx context.Context, src CapabilitySource) {
	r.mu.Lock()
	r.src = src
	r.mu.Unlock()
	r.Invalidate(ctx)
}

func (r *Registry) Invalidate(ctx context.Context) {
	r.cacheMu.Lock()
	r.gen.Add(1)
	r.cache.Invalidate(ctx)
	r.cacheMu.Unlock()
	logging.With("rendition-registry").Debug("capability cache invalidated")
}

// RenditionNamesFrom lists, sorted, the renditions that can currently be
// produced from a source of the given mimetype and size.
func (r *Registry) RenditionNamesFrom(ctx context.Context, sourceMimetype string, size int64) []string {
	caps, ok := r.cache.Get(ctx, sourceMimetype)
	if !ok {
		gen := r.gen.Load()
		caps = r.computeCapabilities(sourceMimetype)
		r.cacheMu.Lock()
		if r.gen.Load() == gen {
			r.cache.Put(ctx, sourceMimetype, caps)
		}
		r.cacheMu.Unlock()
	}

	names := make([]string, 0, len(caps))
	for _, c := range caps {
		if c.Allows(size) {
			names = append(names, c.Name)
		}
	}
	slices.Sort(names)
	return names
}

func (r *Registry) computeCapabilities(sourceMimetype string) []Capability {
	r.mu.RLock()
	src := r.src
	defs := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		defs = append(defs, d)
	}
	r.mu.RUnlock()

	if src == nil {
		return nil
	}
	caps := make([]Capability, 0, len(defs))
	for _, d := range defs {
		max, ok := src.MaxSize(sourceMimetype, d.TargetMimetype, d.Options, d.Name)
		if !ok {
			continue
		}
		caps = append(caps, Capability{Name: d.Name, MaxSize: max})
	}
	return caps
}
