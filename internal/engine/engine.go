package engine

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"transformd/internal/config"
	"transformd/internal/executor"
	"transformd/internal/logging"
	"transformd/internal/remote"
	"transformd/internal/telemetry"
	"transformd/internal/transport"
	"transformd/sink"
	"transformd/source/kafka"
)

type Engine struct {
	cfg config.Config

	exec     *executor.Executor
	sinks    sink.Fanout
	remote   *remote.Client
	replies  kafka.Adapter
	redis    *redis.Client
	gatherer prometheus.Gatherer

	http        *http.Server
	grpc        *transport.Server
	metrics     *http.Server
	unsubscribe func()
}

// Run serves until ctx is cancelled, then drains in-flight jobs for at most
// cfg.ShutdownTimeout before closing everything.
func (e *Engine) Run(ctx context.Context) error {
	log := logging.With("engine")
	e.metrics = telemetry.Expose(e.cfg.Metrics.Port, e.gatherer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", "addr", e.http.Addr)
		if err := e.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("grpc listening", "addr", e.grpc.Addr().String())
		if err := e.grpc.Serve(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	if e.replies != nil {
		g.Go(func() error {
			err := e.replies.Run(gctx, e.remote.HandleReply)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		e.shutdown()
		return nil
	})
	return g.Wait()
}

func (e *Engine) shutdown() {
	log := logging.With("engine")
	e.grpc.SetServing(false)

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownTimeout)
	defer cancel()
	if err := e.http.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", "err", err)
	}
	if err := e.exec.Shutdown(ctx); err != nil {
		log.Warn("jobs still running at shutdown", "active", e.exec.Active(), "err", err)
	}
	e.closeAll()
	log.Info("stopped")
}

// closeAll releases whatever Bootstrap managed to build.
func (e *Engine) closeAll() {
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
	if e.grpc != nil {
		e.grpc.Stop()
	}
	if e.metrics != nil {
		_ = e.metrics.Close()
	}
	if e.replies != nil {
		_ = e.replies.Close()
	}
	if e.remote != nil {
		_ = e.remote.Close()
	}
	if err := e.sinks.Close(); err != nil {
		logging.With("engine").Warn("closing sinks", "err", err)
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
}
