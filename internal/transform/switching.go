package transform

import (
	"context"
	"errors"

	"transformd/internal/executor"
	"transformd/internal/logging"
)

// SwitchingClient tries primary first and falls back to secondary only when
// primary reports ErrUnsupportedTransform.
type SwitchingClient struct {
	primary   Client
	secondary Client
}

func NewSwitchingClient(primary, secondary Client) *SwitchingClient {
	return &SwitchingClient{primary: primary, secondary: secondary}
}

func (s *SwitchingClient) CheckSupported(ctx context.Context, req SupportRequest) (*Negotiation, error) {
	chosen := s.primary
	child, err := s.primary.CheckSupported(ctx, req)
	if errors.Is(err, ErrUnsupportedTransform) && s.secondary != nil {
		logging.FromContext(ctx).Debug("primary unsupported, trying secondary",
			"node", req.SourceRef, "rendition", req.Definition.Name)
		chosen = s.secondary
		child, err = s.secondary.CheckSupported(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return &Negotiation{
		owner:     s,
		sourceRef: req.SourceRef,
		name:      req.Definition.Name,
		child:     child,
		chosen:    chosen,
	}, nil
}

// Transform dispatches to the client chosen during negotiation.
func (s *SwitchingClient) Transform(ctx context.Context, n *Negotiation, req Request) (*executor.Job, error) {
	if err := n.claim(s, req); err != nil {
		return nil, err
	}
	return n.chosen.Transform(ctx, n.child, req)
}
