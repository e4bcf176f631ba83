package transform

import (
	"context"
	"errors"

	"transformd/internal/content"
	"transformd/internal/executor"
	"transformd/internal/legacy"
	"transformd/internal/options"
	"transformd/internal/transformer"
)

// Backend is one transform engine. Negotiate returns the work to run for an
// accepted request, or an error wrapping ErrUnsupportedTransform.
type Backend interface {
	Name() string
	Negotiate(ctx context.Context, req SupportRequest) (executor.RunFunc, error)
}

// LocalBackend negotiates with the local transformer registry using the flat
// rendition options as-is.
type LocalBackend struct {
	Registry *transformer.Registry
}

func (LocalBackend) Name() string { return "local" }

func (b LocalBackend) Negotiate(_ context.Context, req SupportRequest) (executor.RunFunc, error) {
	def := req.Definition
	t, err := b.Registry.Find(req.SourceMimetype, req.SourceSize, def.TargetMimetype, def.Options)
	if errors.Is(err, transformer.ErrNoTransformer) || errors.Is(err, transformer.ErrSourceTooLarge) {
		return nil, Unsupported(err)
	}
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, src content.Reader, out content.Writer) error {
		return t.Transform(ctx, src, out, def.Options)
	}, nil
}

// LegacyBackend negotiates with the legacy registry using translated options.
type LegacyBackend struct {
	Registry *legacy.Registry
}

func (LegacyBackend) Name() string { return "legacy" }

func (b LegacyBackend) Negotiate(_ context.Context, req SupportRequest) (executor.RunFunc, error) {
	def := req.Definition
	opts, err := options.Translate(def.Name, def.Options)
	if err != nil {
		return nil, err
	}
	t, err := b.Registry.Transformer(req.SourceMimetype, req.SourceSize, def.TargetMimetype, opts)
	if errors.Is(err, legacy.ErrNoTransformer) {
		return nil, Unsupported(err)
	}
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, src content.Reader, out content.Writer) error {
		return legacy.Run(ctx, t, src, out, opts)
	}, nil
}
