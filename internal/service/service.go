// Package service is the entry point for rendition requests: it resolves
// definitions, checks availability and drives the transform clients.
package service

import (
	"context"
	"fmt"
	"io"
	"slices"

	"transformd/internal/content"
	"transformd/internal/executor"
	"transformd/internal/logging"
	"transformd/internal/rendition"
	"transformd/internal/transform"
)

// Store is the content store view the service needs.
type Store interface {
	content.Service
	PutContent(ctx context.Context, ref content.NodeRef, mimetype string, r io.Reader) (content.Reader, error)
	Rendition(ctx context.Context, ref content.NodeRef, name string) (content.Reader, content.RenditionInfo, error)
}

type Service struct {
	defs   *rendition.Registry
	store  Store
	client transform.Client
	sync   *transform.SyncClient
}

func New(defs *rendition.Registry, store Store, client transform.Client, sync *transform.SyncClient) *Service {
	return &Service{defs: defs, store: store, client: client, sync: sync}
}

func (s *Service) Definitions() []rendition.Definition { return s.defs.Definitions() }

// RenditionNames lists the renditions possible for a source of the given
// mimetype and size.
func (s *Service) RenditionNames(ctx context.Context, mimetype string, size int64) []string {
	return s.defs.RenditionNamesFrom(ctx, mimetype, size)
}

// Available lists the renditions that can be produced from ref's content.
func (s *Service) Available(ctx context.Context, ref content.NodeRef) ([]string, error) {
	src, err := s.source(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.defs.RenditionNamesFrom(ctx, src.Mimetype(), src.Size()), nil
}

// Render requests the named rendition of ref asynchronously on behalf of
// user. Negotiation errors are returned; execution errors only reach the
// returned job and the consumer.
func (s *Service) Render(ctx context.Context, ref content.NodeRef, name, user string) (*executor.Job, error) {
	def, src, err := s.prepare(ctx, ref, name)
	if err != nil {
		return nil, err
	}
	log := logging.FromContext(ctx).With("node", ref, "rendition", name)

	n, err := s.client.CheckSupported(ctx, transform.SupportRequest{
		SourceRef:      ref,
		Definition:     def,
		SourceMimetype: src.Mimetype(),
		SourceSize:     src.Size(),
		ContentURL:     src.ContentURL(),
	})
	if err != nil {
		return nil, err
	}
	job, err := s.client.Transform(ctx, n, transform.Request{
		SourceRef:   ref,
		Definition:  def,
		User:        user,
		ContentHash: content.Hash(src),
	})
	if err != nil {
		return nil, err
	}
	log.Info("rendition requested", "job_id", job.ID, "backend", n.Backend(), "user", user)
	return job, nil
}

// RenderSync produces the rendition on the calling goroutine and streams it
// into w. It returns the rendition mimetype.
func (s *Service) RenderSync(ctx context.Context, ref content.NodeRef, name string, w io.Writer) (string, error) {
	def, src, err := s.prepare(ctx, ref, name)
	if err != nil {
		return "", err
	}
	out, err := s.store.GetTempWriter(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = out.Discard() }()

	if err := s.sync.Transform(ctx, src, out, def, ref); err != nil {
		_ = out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	res, err := out.Reader()
	if err != nil {
		return "", err
	}
	rc, err := res.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return "", err
	}
	return def.TargetMimetype, nil
}

// Rendition returns a stored rendition. One made from content the node no
// longer has is reported as ErrNoContent.
func (s *Service) Rendition(ctx context.Context, ref content.NodeRef, name string) (content.Reader, content.RenditionInfo, error) {
	r, info, err := s.store.Rendition(ctx, ref, name)
	if err != nil {
		return nil, info, err
	}
	current, err := content.CurrentHash(ctx, s.store, ref)
	if err != nil {
		return nil, info, err
	}
	if current != info.SourceHash {
		return nil, content.RenditionInfo{}, fmt.Errorf("%w: rendition %q of %s is out of date", content.ErrNoContent, name, ref)
	}
	return r, info, nil
}

// PutContent replaces ref's content; renditions still in flight for the old
// content will be discarded when they finish.
func (s *Service) PutContent(ctx context.Context, ref content.NodeRef, mimetype string, r io.Reader) (content.Reader, error) {
	return s.store.PutContent(ctx, ref, mimetype, r)
}

func (s *Service) source(ctx context.Context, ref content.NodeRef) (content.Reader, error) {
	src, err := s.store.GetReader(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !src.Exists() {
		return nil, fmt.Errorf("%w: %s", content.ErrNoContent, ref)
	}
	return src, nil
}

func (s *Service) prepare(ctx context.Context, ref content.NodeRef, name string) (rendition.Definition, content.Reader, error) {
	def, ok := s.defs.Definition(name)
	if !ok {
		return def, nil, fmt.Errorf("%w: %s", rendition.ErrUnknownDefinition, name)
	}
	src, err := s.source(ctx, ref)
	if err != nil {
		return def, nil, err
	}
	if !slices.Contains(s.defs.RenditionNamesFrom(ctx, src.Mimetype(), src.Size()), name) {
		return def, nil, transform.Unsupported(fmt.Errorf("%s not available for %s (%d bytes)", name, src.Mimetype(), src.Size()))
	}
	return def, src, nil
}
