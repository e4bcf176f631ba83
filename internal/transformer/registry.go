// Package transformer is the local transform engine: an in-process set of
// transformers selected by source and target mimetype.
package transformer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"transformd/internal/content"
	"transformd/internal/logging"
)

var (
	ErrNoTransformer      = errors.New("transformer: no transformer for request")
	ErrDuplicateName      = errors.New("transformer: duplicate name")
	ErrSourceTooLarge     = errors.New("transformer: source exceeds size limit")
	ErrUnknownTransformer = errors.New("transformer: unknown name")
)

// Transformer converts content between mimetypes.
type Transformer interface {
	Name() string
	// Supported returns the largest source it accepts for the combination
	// (-1 unlimited), or ok=false when it cannot produce target at all.
	Supported(sourceMimetype, targetMimetype string, options map[string]string) (maxSize int64, ok bool)
	Transform(ctx context.Context, src content.Reader, out content.Writer, options map[string]string) error
}

// Registry holds transformers in registration order; the first match wins.
// Subscribers are told whenever the set changes so capability caches can be
// dropped.
type Registry struct {
	mu     sync.RWMutex
	ts     []Transformer
	subs   map[int]func()
	nextID int
}

func NewRegistry(ts ...Transformer) (*Registry, error) {
	r := &Registry{subs: map[int]func(){}}
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(t Transformer) error {
	r.mu.Lock()
	for _, have := range r.ts {
		if have.Name() == t.Name() {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicateName, t.Name())
		}
	}
	r.ts = append(r.ts, t)
	r.mu.Unlock()

	logging.With("transformer").Info("registered", "name", t.Name())
	r.notify()
	return nil
}

func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	idx := -1
	for i, t := range r.ts {
		if t.Name() == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTransformer, name)
	}
	r.ts = append(r.ts[:idx:idx], r.ts[idx+1:]...)
	r.mu.Unlock()

	logging.With("transformer").Info("unregistered", "name", name)
	r.notify()
	return nil
}

// Names lists registered transformers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ts))
	for _, t := range r.ts {
		out = append(out, t.Name())
	}
	sort.Strings(out)
	return out
}

// Subscribe registers fn to run after every change; the returned func
// removes it.
func (r *Registry) Subscribe(fn func()) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

func (r *Registry) notify() {
	r.mu.RLock()
	fns := make([]func(), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

// Find returns the first transformer accepting a source of the given size.
func (r *Registry) Find(sourceMimetype string, sourceSize int64, targetMimetype string, options map[string]string) (Transformer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tooLarge := false
	for _, t := range r.ts {
		limit, ok := t.Supported(sourceMimetype, targetMimetype, options)
		if !ok || limit == 0 {
			continue
		}
		if limit == -1 || sourceSize <= limit {
			return t, nil
		}
		tooLarge = true
	}
	if tooLarge {
		return nil, fmt.Errorf("%w: %s (%d bytes) -> %s", ErrSourceTooLarge, sourceMimetype, sourceSize, targetMimetype)
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrNoTransformer, sourceMimetype, targetMimetype)
}

// IsSupported implements rendition.CapabilitySource.
func (r *Registry) IsSupported(sourceMimetype string, sourceSize int64, targetMimetype string, options map[string]string, _ string) bool {
	_, err := r.Find(sourceMimetype, sourceSize, targetMimetype, options)
	return err == nil
}

// MaxSize implements rendition.CapabilitySource: -1 if any transformer is
// unbounded, otherwise the largest bound.
func (r *Registry) MaxSize(sourceMimetype, targetMimetype string, options map[string]string, _ string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best int64
	found := false
	for _, t := range r.ts {
		limit, ok := t.Supported(sourceMimetype, targetMimetype, options)
		if !ok {
			continue
		}
		found = true
		if limit == -1 {
			return -1, true
		}
		if limit > best {
			best = limit
		}
	}
	return best, found
}
