package transform

import (
	"context"
	"errors"
	"fmt"

	"transformd/internal/content"
	"transformd/internal/executor"
	"transformd/internal/logging"
	"transformd/internal/rendition"
)

// SyncClient runs a transform on the calling goroutine. Backends are tried in
// order with the same fallback rule as SwitchingClient.
type SyncClient struct {
	backends []Backend
}

func NewSyncClient(backends ...Backend) *SyncClient {
	return &SyncClient{backends: backends}
}

func (c *SyncClient) IsSupported(ctx context.Context, req SupportRequest) bool {
	_, _, err := c.negotiate(ctx, req)
	return err == nil
}

// Transform reads src and writes the rendition into out, blocking until the
// engine is done.
func (c *SyncClient) Transform(ctx context.Context, src content.Reader, out content.Writer, def rendition.Definition, sourceRef content.NodeRef) error {
	if src == nil || !src.Exists() {
		return fmt.Errorf("%w: %s", content.ErrNoContent, sourceRef)
	}
	req := SupportRequest{
		SourceRef:      sourceRef,
		Definition:     def,
		SourceMimetype: src.Mimetype(),
		SourceSize:     src.Size(),
		ContentURL:     src.ContentURL(),
	}
	b, run, err := c.negotiate(ctx, req)
	if err != nil {
		return err
	}
	log := logging.FromContext(ctx).With("backend", b.Name(), "node", sourceRef, "rendition", def.Name)
	out.SetMimetype(def.TargetMimetype)
	if err := run(ctx, src, out); err != nil {
		log.Error("sync transform failed", "err", err)
		return err
	}
	log.Info("sync transform finished")
	return nil
}

func (c *SyncClient) negotiate(ctx context.Context, req SupportRequest) (Backend, executor.RunFunc, error) {
	err := error(ErrUnsupportedTransform)
	for _, b := range c.backends {
		run, nerr := b.Negotiate(ctx, req)
		if nerr == nil {
			return b, run, nil
		}
		err = nerr
		if !errors.Is(nerr, ErrUnsupportedTransform) {
			return nil, nil, nerr
		}
	}
	return nil, nil, err
}
