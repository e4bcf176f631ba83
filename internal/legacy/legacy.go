// Package legacy is the older transform engine. Its transformers are driven
// by structured options produced by the options translator rather than the
// flat rendition option map.
package legacy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"transformd/internal/content"
	"transformd/internal/logging"
	"transformd/internal/options"
)

var ErrNoTransformer = errors.New("legacy: no transformer available")

// ContentTransformer is one legacy engine transformer.
type ContentTransformer interface {
	Name() string
	// MaxSourceSize returns the accepted source bound in bytes (-1 for
	// unlimited), or ok=false when the combination is not handled.
	MaxSourceSize(sourceMimetype, targetMimetype string, opts *options.TransformationOptions) (int64, bool)
	Transform(ctx context.Context, src content.Reader, out content.Writer, opts *options.TransformationOptions) error
}

type Registry struct {
	mu     sync.RWMutex
	ts     []ContentTransformer
	subs   map[int]func()
	nextID int
}

func NewRegistry(ts ...ContentTransformer) *Registry {
	return &Registry{ts: ts, subs: map[int]func(){}}
}

// Add appends t and notifies subscribers.
func (r *Registry) Add(t ContentTransformer) {
	r.mu.Lock()
	r.ts = append(r.ts, t)
	fns := make([]func(), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Subscribe registers fn to run after every Add; the returned func removes
// it.
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

// effectiveMax narrows a transformer's own bound by the option limits.
func effectiveMax(own int64, opts *options.TransformationOptions) int64 {
	lim := opts.Limits.MaxSourceSizeBytes()
	switch {
	case lim < 0:
		return own
	case own < 0 || lim < own:
		return lim
	default:
		return own
	}
}

// Transformer picks the first transformer able to handle the request.
func (r *Registry) Transformer(sourceMimetype string, sourceSize int64, targetMimetype string, opts *options.TransformationOptions) (ContentTransformer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.ts {
		own, ok := t.MaxSourceSize(sourceMimetype, targetMimetype, opts)
		if !ok {
			continue
		}
		limit := effectiveMax(own, opts)
		if limit == 0 {
			continue
		}
		if limit < 0 || sourceSize <= limit {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s (%d bytes) -> %s", ErrNoTransformer, sourceMimetype, sourceSize, targetMimetype)
}

// MaxSourceSize is the largest bound over all transformers, -1 if any is
// unbounded.
func (r *Registry) MaxSourceSize(sourceMimetype, targetMimetype string, opts *options.TransformationOptions) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best int64
	found := false
	for _, t := range r.ts {
		own, ok := t.MaxSourceSize(sourceMimetype, targetMimetype, opts)
		if !ok {
			continue
		}
		found = true
		limit := effectiveMax(own, opts)
		if limit < 0 {
			return -1, true
		}
		best = max(best, limit)
	}
	return best, found
}

// Run executes t with the timeout carried in opts. On timeout the output is
// fenced off so further writes fail, and Run returns only once t has.
func Run(ctx context.Context, t ContentTransformer, src content.Reader, out content.Writer, opts *options.TransformationOptions) error {
	if opts.Limits.TimeoutMs <= 0 {
		return t.Transform(ctx, src, out, opts)
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(opts.Limits.TimeoutMs)*time.Millisecond)
	defer cancel()

	fenced := &fencedWriter{Writer: out}
	done := make(chan error, 1)
	go func() { done <- t.Transform(ctx, src, fenced, opts) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		fenced.fence()
		<-done
		return fmt.Errorf("legacy: %s: %w", t.Name(), ctx.Err())
	}
}

// fencedWriter forwards to Writer until fence is called.
type fencedWriter struct {
	content.Writer

	mu     sync.Mutex
	fenced bool
}

func (w *fencedWriter) fence() {
	w.mu.Lock()
	w.fenced = true
	w.mu.Unlock()
}

func (w *fencedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fenced {
		return 0, content.ErrClosed
	}
	return w.Writer.Write(p)
}

func (w *fencedWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fenced {
		return content.ErrClosed
	}
	return w.Writer.Close()
}

func (w *fencedWriter) SetMimetype(m string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.fenced {
		w.Writer.SetMimetype(m)
	}
}

func (w *fencedWriter) Mimetype() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Writer.Mimetype()
}

func (w *fencedWriter) Reader() (content.Reader, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fenced {
		return nil, content.ErrClosed
	}
	return w.Writer.Reader()
}

func (w *fencedWriter) Discard() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fenced {
		return content.ErrClosed
	}
	return w.Writer.Discard()
}

// Capabilities adapts a Registry to rendition.CapabilitySource by translating
// the rendition's flat options first.
type Capabilities struct {
	Registry *Registry
}

func (c Capabilities) IsSupported(sourceMimetype string, sourceSize int64, targetMimetype string, flat map[string]string, name string) bool {
	opts, err := options.Translate(name, flat)
	if err != nil {
		logging.With("legacy").Debug("options not translatable", "rendition", name, "err", err)
		return false
	}
	_, err = c.Registry.Transformer(sourceMimetype, sourceSize, targetMimetype, opts)
	return err == nil
}

func (c Capabilities) MaxSize(sourceMimetype, targetMimetype string, flat map[string]string, name string) (int64, bool) {
	opts, err := options.Translate(name, flat)
	if err != nil {
		return 0, false
	}
	return c.Registry.MaxSourceSize(sourceMimetype, targetMimetype, opts)
}
