// Package consumer applies finished renditions to their source node, unless
// the source changed while the transform was running.
package consumer

import (
	"context"
	"errors"
	"time"

	"transformd/internal/content"
	"transformd/internal/logging"
	"transformd/internal/rendition"
	"transformd/internal/telemetry"
	"transformd/sink"
)

// Store is the part of the content store the consumer writes to.
type Store interface {
	content.Service
	PutRendition(ctx context.Context, ref content.NodeRef, name string, src content.Reader, sourceHash int64) error
}

// Publisher receives outcome events.
type Publisher interface {
	Push(sink.Event) error
}

type Option func(*Consumer)

func WithPublisher(p Publisher) Option        { return func(c *Consumer) { c.events = p } }
func WithMetrics(m *telemetry.Metrics) Option { return func(c *Consumer) { c.metrics = m } }
func WithClock(now func() time.Time) Option   { return func(c *Consumer) { c.now = now } }

// Consumer implements executor.Consumer.
type Consumer struct {
	store   Store
	events  Publisher
	metrics *telemetry.Metrics
	now     func() time.Time
}

func New(store Store, opts ...Option) *Consumer {
	c := &Consumer{store: store, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Consume stores result as the def rendition of ref when the source still
// has capturedHash. A mismatch discards the result without error.
func (c *Consumer) Consume(ctx context.Context, ref content.NodeRef, result content.Reader, def rendition.Definition, capturedHash int64) error {
	log := logging.FromContext(ctx).With("node", ref, "rendition", def.Name)
	current, err := content.CurrentHash(ctx, c.store, ref)
	if err != nil {
		return err
	}
	if current != capturedHash {
		log.Info("source changed during transform, discarding result",
			"captured_hash", capturedHash, "current_hash", current)
		c.discard(ctx, ref, def, capturedHash)
		return nil
	}
	err = c.store.PutRendition(ctx, ref, def.Name, result, capturedHash)
	switch {
	case errors.Is(err, content.ErrStale):
		log.Info("source changed while storing rendition, discarding result", "captured_hash", capturedHash)
		c.discard(ctx, ref, def, capturedHash)
		return nil
	case err != nil:
		return err
	}
	log.Info("rendition stored", "size", result.Size(), "mimetype", result.Mimetype())
	c.publish(ctx, sink.EventCreated, ref, def, capturedHash, nil)
	return nil
}

func (c *Consumer) discard(ctx context.Context, ref content.NodeRef, def rendition.Definition, capturedHash int64) {
	c.metrics.RenditionDiscarded()
	c.publish(ctx, sink.EventDiscarded, ref, def, capturedHash, nil)
}

func (c *Consumer) Failure(ctx context.Context, ref content.NodeRef, def rendition.Definition, capturedHash int64, cause error) {
	logging.FromContext(ctx).Warn("rendition failed", "node", ref, "rendition", def.Name, "err", cause)
	c.publish(ctx, sink.EventFailed, ref, def, capturedHash, cause)
}

func (c *Consumer) publish(ctx context.Context, typ string, ref content.NodeRef, def rendition.Definition, hash int64, cause error) {
	if c.events == nil {
		return
	}
	e := sink.Event{
		Type:        typ,
		NodeRef:     string(ref),
		Rendition:   def.Name,
		ContentHash: hash,
		Time:        c.now().UTC(),
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	if err := c.events.Push(e); err != nil {
		logging.FromContext(ctx).Warn("event publish failed", "type", typ, "err", err)
	}
}
