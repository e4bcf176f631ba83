// Package content is the narrow view of the content store used by the
// transform layer: readers for a node's current binary, temporary writers
// for transform output, and the staleness hash derived from a reader.
package content

import (
	"context"
	"errors"
	"io"

	"github.com/cespare/xxhash/v2"
)

var (
	ErrNoContent    = errors.New("content: source has no content")
	ErrNodeNotFound = errors.New("content: node not found")
	ErrClosed       = errors.New("content: writer closed")
	// ErrStale reports a rendition whose source changed after it was
	// requested.
	ErrStale = errors.New("content: source changed")
)

// NodeRef identifies a content item.
type NodeRef string

type Reader interface {
	Exists() bool
	// ContentURL is the storage identity of the binary; it changes whenever
	// the node's content is replaced.
	ContentURL() string
	Mimetype() string
	Size() int64
	Open() (io.ReadCloser, error)
}

type Writer interface {
	io.WriteCloser
	SetMimetype(string)
	Mimetype() string
	// Reader returns a reader over what was written; the writer must be
	// closed first.
	Reader() (Reader, error)
	// Discard removes the temporary output.
	Discard() error
}

type Service interface {
	GetReader(ctx context.Context, ref NodeRef) (Reader, error)
	GetTempWriter(ctx context.Context) (Writer, error)
}

// Hash is the staleness token of a reader: a hash of its storage identity,
// or 0 when there is no content.
func Hash(r Reader) int64 {
	if r == nil || !r.Exists() {
		return 0
	}
	return hashURL(r.ContentURL())
}

func hashURL(url string) int64 {
	return int64(xxhash.Sum64String(url))
}

// CurrentHash reads the node's current staleness token.
func CurrentHash(ctx context.Context, svc Service, ref NodeRef) (int64, error) {
	r, err := svc.GetReader(ctx, ref)
	if err != nil {
		return 0, err
	}
	return Hash(r), nil
}

// Missing is a Reader for a node without content.
type Missing struct{}

func (Missing) Exists() bool                 { return false }
func (Missing) ContentURL() string           { return "" }
func (Missing) Mimetype() string             { return "" }
func (Missing) Size() int64                  { return 0 }
func (Missing) Open() (io.ReadCloser, error) { return nil, ErrNoContent }
