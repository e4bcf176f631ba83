package sink

import (
	"fmt"
	"time"
)

// Event types emitted by the rendition consumer.
const (
	EventCreated   = "rendition.created"
	EventDiscarded = "rendition.discarded"
	EventFailed    = "rendition.failed"
)

// Event reports the outcome of one transform job.
type Event struct {
	Type        string    `json:"type"`
	NodeRef     string    `json:"nodeRef"`
	Rendition   string    `json:"rendition"`
	ContentHash int64     `json:"contentHash"`
	Error       string    `json:"error,omitempty"`
	Time        time.Time `json:"time"`
}

// Adapter is the common behaviour every sink exposes.
type Adapter interface {
	Configure(any) error // driver-specific config struct
	Push(Event) error
	Close() error // idempotent
}

/*──────── registry ───────*/

type factory = func() Adapter

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewAdapter(name string) (Adapter, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}

// Fanout pushes every event to all adapters and reports the first error.
type Fanout []Adapter

func (f Fanout) Push(e Event) error {
	var first error
	for _, a := range f {
		if err := a.Push(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f Fanout) Close() error {
	var first error
	for _, a := range f {
		if err := a.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
