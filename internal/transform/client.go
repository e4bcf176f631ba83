package transform

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"transformd/internal/content"
	"transformd/internal/executor"
	"transformd/internal/rendition"
)

var (
	ErrUnsupportedTransform = errors.New("transform: unsupported transform")
	ErrProtocolViolation    = errors.New("transform: checkSupported was not called prior to transform")
)

// SupportRequest is the input of the negotiation phase.
type SupportRequest struct {
	SourceRef      content.NodeRef
	Definition     rendition.Definition
	SourceMimetype string
	SourceSize     int64
	ContentURL     string
}

// Request is the input of the execution phase.
type Request struct {
	SourceRef   content.NodeRef
	Definition  rendition.Definition
	User        string
	ContentHash int64
}

// Client is the two-phase contract every back-end implements. Transform must
// be given the Negotiation returned by the same client's CheckSupported.
type Client interface {
	CheckSupported(ctx context.Context, req SupportRequest) (*Negotiation, error)
	Transform(ctx context.Context, n *Negotiation, req Request) (*executor.Job, error)
}

// Negotiation is the single-use result of a successful CheckSupported.
type Negotiation struct {
	owner     Client
	sourceRef content.NodeRef
	name      string
	backend   string
	run       executor.RunFunc

	// set when a SwitchingClient delegated to child
	child  *Negotiation
	chosen Client

	used atomic.Bool
}

// Backend names the engine that accepted the request.
func (n *Negotiation) Backend() string {
	if n.child != nil {
		return n.child.Backend()
	}
	return n.backend
}

// claim checks n against owner and req and marks it used.
func (n *Negotiation) claim(owner Client, req Request) error {
	if n == nil {
		return ErrProtocolViolation
	}
	if n.owner != owner {
		return fmt.Errorf("%w: negotiation belongs to another client", ErrProtocolViolation)
	}
	if n.sourceRef != req.SourceRef || n.name != req.Definition.Name {
		return fmt.Errorf("%w: negotiated %s/%s, got %s/%s",
			ErrProtocolViolation, n.sourceRef, n.name, req.SourceRef, req.Definition.Name)
	}
	if !n.used.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: negotiation already used", ErrProtocolViolation)
	}
	return nil
}

// Unsupported wraps reason as ErrUnsupportedTransform.
func Unsupported(reason error) error {
	if reason == nil {
		return ErrUnsupportedTransform
	}
	return fmt.Errorf("%w: %w", ErrUnsupportedTransform, reason)
}
