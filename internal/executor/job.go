package executor

import (
	"context"

	"transformd/internal/content"
	"transformd/internal/rendition"
)

// Consumer receives the outcome of every job. Both calls are made from the
// worker goroutine.
type Consumer interface {
	// Consume attaches result to sourceRef unless the source's current hash
	// differs from capturedHash.
	Consume(ctx context.Context, sourceRef content.NodeRef, result content.Reader, def rendition.Definition, capturedHash int64) error
	Failure(ctx context.Context, sourceRef content.NodeRef, def rendition.Definition, capturedHash int64, cause error)
}

// RunFunc performs the engine transform from src into out.
type RunFunc func(ctx context.Context, src content.Reader, out content.Writer) error

type Task struct {
	SourceRef   content.NodeRef
	Definition  rendition.Definition
	User        string
	ContentHash int64
	// Backend names the engine for logs and metrics.
	Backend string
	Run     RunFunc
}

// Job is the handle of a submitted Task.
type Job struct {
	ID   string
	done chan struct{}
	err  error
}

func newJob(id string) *Job {
	return &Job{ID: id, done: make(chan struct{})}
}

func (j *Job) finish(err error) {
	j.err = err
	close(j.done)
}

// Done is closed once the job has finished, successfully or not.
func (j *Job) Done() <-chan struct{} { return j.done }

// Err is the job's final error; only meaningful after Done is closed.
func (j *Job) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}

// Wait blocks until the job finishes or ctx ends.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
