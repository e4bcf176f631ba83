package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"transformd/internal/content"
	"transformd/internal/logging"
	"transformd/internal/telemetry"
)

var ErrShutdown = errors.New("executor: shut down")

type Option func(*Executor)

func WithImpersonator(i Impersonator) Option  { return func(e *Executor) { e.runAs = i } }
func WithTransactor(t Transactor) Option      { return func(e *Executor) { e.txn = t } }
func WithMetrics(m *telemetry.Metrics) Option { return func(e *Executor) { e.metrics = m } }

// Executor starts one goroutine per job; there is no upper bound, idle
// workers simply exit.
type Executor struct {
	content  content.Service
	consumer Consumer
	runAs    Impersonator
	txn      Transactor
	metrics  *telemetry.Metrics

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	active atomic.Int64
}

func New(svc content.Service, consumer Consumer, opts ...Option) *Executor {
	e := &Executor{
		content:  svc,
		consumer: consumer,
		runAs:    ContextImpersonator{},
		txn:      RetryingTransactor{Policy: DefaultRetryPolicy()},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Submit schedules t and returns immediately. The job outlives ctx: only its
// values are kept.
func (e *Executor) Submit(ctx context.Context, t Task) *Job {
	job := newJob(uuid.NewString())

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		job.finish(ErrShutdown)
		return job
	}
	e.wg.Add(1)
	e.mu.RUnlock()

	e.metrics.JobSubmitted(t.Backend)
	e.active.Add(1)
	jobCtx := logging.ContextWithJobID(context.WithoutCancel(ctx), job.ID)
	logging.FromContext(jobCtx).Info("transform submitted",
		"node", t.SourceRef, "rendition", t.Definition.Name, "backend", t.Backend, "hash", t.ContentHash)

	go func() {
		defer e.wg.Done()
		defer e.active.Add(-1)
		start := time.Now()
		err := e.run(jobCtx, t)
		outcome := telemetry.OutcomeSuccess
		if err != nil {
			outcome = telemetry.OutcomeFailure
		}
		e.metrics.JobFinished(t.Backend, outcome, time.Since(start))
		job.finish(err)
	}()
	return job
}

// Active is the number of jobs currently running.
func (e *Executor) Active() int64 { return e.active.Load() }

// Shutdown refuses new jobs and waits for running ones until ctx ends.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("executor: %d jobs still running: %w", e.active.Load(), ctx.Err())
	}
}

func (e *Executor) run(ctx context.Context, t Task) (err error) {
	log := logging.FromContext(ctx).With("node", t.SourceRef, "rendition", t.Definition.Name, "backend", t.Backend)
	defer func() {
		if r := recover(); r != nil {
			log.Error("transform panic", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("executor: transform panic: %v", r)
			e.consumer.Failure(ctx, t.SourceRef, t.Definition, t.ContentHash, err)
		}
	}()

	err = e.runAs.RunAs(ctx, t.User, func(ctx context.Context) error {
		return e.txn.RetryingTransaction(ctx, func(ctx context.Context) error {
			return e.attempt(ctx, t)
		})
	})
	if err != nil {
		log.Error("transform failed", "err", err)
		return err
	}
	log.Info("transform finished")
	return nil
}

func (e *Executor) attempt(ctx context.Context, t Task) error {
	err := e.transformAndConsume(ctx, t)
	if err != nil {
		e.consumer.Failure(ctx, t.SourceRef, t.Definition, t.ContentHash, err)
	}
	return err
}

func (e *Executor) transformAndConsume(ctx context.Context, t Task) error {
	src, err := e.content.GetReader(ctx, t.SourceRef)
	if err != nil {
		return err
	}
	if !src.Exists() {
		return fmt.Errorf("%w: %s", content.ErrNoContent, t.SourceRef)
	}

	out, err := e.content.GetTempWriter(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = out.Discard() }()
	out.SetMimetype(t.Definition.TargetMimetype)

	if err := t.Run(ctx, src, out); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	result, err := out.Reader()
	if err != nil {
		return err
	}
	return e.consumer.Consume(ctx, t.SourceRef, result, t.Definition, t.ContentHash)
}
