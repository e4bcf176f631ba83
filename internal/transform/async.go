package transform

import (
	"context"
	"errors"

	"transformd/internal/executor"
	"transformd/internal/legacy"
	"transformd/internal/logging"
	"transformd/internal/transformer"
)

// AsyncClient runs an accepted Backend plan on the executor.
type AsyncClient struct {
	backend Backend
	exec    *executor.Executor
}

func NewAsyncClient(b Backend, exec *executor.Executor) *AsyncClient {
	return &AsyncClient{backend: b, exec: exec}
}

func NewLocalClient(reg *transformer.Registry, exec *executor.Executor) *AsyncClient {
	return NewAsyncClient(LocalBackend{Registry: reg}, exec)
}

func NewLegacyClient(reg *legacy.Registry, exec *executor.Executor) *AsyncClient {
	return NewAsyncClient(LegacyBackend{Registry: reg}, exec)
}

func (c *AsyncClient) Name() string { return c.backend.Name() }

func (c *AsyncClient) CheckSupported(ctx context.Context, req SupportRequest) (*Negotiation, error) {
	log := logging.FromContext(ctx).With("backend", c.backend.Name(), "node", req.SourceRef, "rendition", req.Definition.Name)
	run, err := c.backend.Negotiate(ctx, req)
	if err != nil {
		if errors.Is(err, ErrUnsupportedTransform) {
			log.Debug("transform not supported", "source", req.SourceMimetype, "target", req.Definition.TargetMimetype, "size", req.SourceSize)
		} else {
			log.Warn("negotiation failed", "err", err)
		}
		return nil, err
	}
	log.Debug("transform supported", "source", req.SourceMimetype, "target", req.Definition.TargetMimetype)
	return &Negotiation{
		owner:     c,
		sourceRef: req.SourceRef,
		name:      req.Definition.Name,
		backend:   c.backend.Name(),
		run:       run,
	}, nil
}

// Transform submits the negotiated work and returns without waiting for it.
func (c *AsyncClient) Transform(ctx context.Context, n *Negotiation, req Request) (*executor.Job, error) {
	if err := n.claim(c, req); err != nil {
		logging.FromContext(ctx).Error("transform refused", "backend", c.backend.Name(), "err", err)
		return nil, err
	}
	return c.exec.Submit(ctx, executor.Task{
		SourceRef:   req.SourceRef,
		Definition:  req.Definition,
		User:        req.User,
		ContentHash: req.ContentHash,
		Backend:     c.backend.Name(),
		Run:         n.run,
	}), nil
}
