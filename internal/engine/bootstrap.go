package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"transformd/internal/config"
	"transformd/internal/consumer"
	"transformd/internal/content"
	"transformd/internal/executor"
	"transformd/internal/httpapi"
	"transformd/internal/legacy"
	"transformd/internal/logging"
	"transformd/internal/remote"
	"transformd/internal/rendition"
	"transformd/internal/service"
	"transformd/internal/telemetry"
	"transformd/internal/transform"
	"transformd/internal/transformer"
	"transformd/internal/transport"
	"transformd/sink"
	"transformd/source/kafka"

	_ "transformd/sink/kafka"
	_ "transformd/sink/stdout"
)

// Bootstrap builds every component named by cfg. Nothing listens until Run.
func Bootstrap(ctx context.Context, cfg config.Config) (_ *Engine, err error) {
	logging.Configure(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	log := logging.With("engine")

	e := &Engine{cfg: cfg}
	defer func() {
		if err != nil {
			e.closeAll()
		}
	}()

	// 1. content store
	store, err := content.NewFileStore(cfg.Content.Root)
	if err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}

	// 2. metrics
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(promReg)
	e.gatherer = promReg

	// 3. event sinks
	for i, sc := range cfg.Sinks {
		a, err := sink.NewAdapter(sc.Type)
		if err != nil {
			return nil, fmt.Errorf("sinks[%d]: %w", i, err)
		}
		var raw any = sc.Stdout
		if sc.Type == "kafka" {
			raw = sc.Kafka
		}
		if err := a.Configure(raw); err != nil {
			return nil, fmt.Errorf("sinks[%d] %s: %w", i, sc.Type, err)
		}
		e.sinks = append(e.sinks, a)
	}

	// 4. executor and the consumer that applies its results
	cons := consumer.New(store, consumer.WithPublisher(e.sinks), consumer.WithMetrics(metrics))
	e.exec = executor.New(store, cons,
		executor.WithMetrics(metrics),
		executor.WithTransactor(executor.RetryingTransactor{Policy: cfg.Retry}),
	)

	// 5. back-ends
	local, err := transformer.NewRegistry(transformer.Builtins(cfg.Local.MaxImageBytes)...)
	if err != nil {
		return nil, fmt.Errorf("local transformers: %w", err)
	}
	legacyReg := legacy.NewRegistry(legacy.ImageResizer{MaxSourceBytes: cfg.Legacy.MaxImageBytes})

	backends := map[string]transform.Backend{
		config.BackendLocal:  transform.LocalBackend{Registry: local},
		config.BackendLegacy: transform.LegacyBackend{Registry: legacyReg},
	}
	capabilities := map[string]rendition.CapabilitySource{
		config.BackendLocal:  local,
		config.BackendLegacy: legacy.Capabilities{Registry: legacyReg},
	}
	if cfg.Backends.Primary == config.BackendRemote || cfg.Backends.Secondary == config.BackendRemote {
		if err := e.startRemote(store); err != nil {
			return nil, fmt.Errorf("remote: %w", err)
		}
		backends[config.BackendRemote] = e.remote
		capabilities[config.BackendRemote] = e.remote
	}

	var (
		client transform.Client = transform.NewAsyncClient(backends[cfg.Backends.Primary], e.exec)
		active                  = []transform.Backend{backends[cfg.Backends.Primary]}
		caps                    = transform.Capabilities{capabilities[cfg.Backends.Primary]}
	)
	if s := cfg.Backends.Secondary; s != "" {
		client = transform.NewSwitchingClient(client, transform.NewAsyncClient(backends[s], e.exec))
		active = append(active, backends[s])
		caps = append(caps, capabilities[s])
	}
	syncClient := transform.NewSyncClient(active...)

	// 6. rendition definitions
	cache, err := e.newCache(ctx)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	defs := rendition.NewRegistry(caps, cache)
	if cfg.Definitions != "" {
		if err := loadDefinitions(cfg.Definitions, defs); err != nil {
			return nil, err
		}
	}
	invalidate := func() { defs.Invalidate(context.Background()) }
	stopLocal := local.Subscribe(invalidate)
	stopLegacy := legacyReg.Subscribe(invalidate)
	e.unsubscribe = func() { stopLocal(); stopLegacy() }

	// 7. outer surfaces
	svc := service.New(defs, store, client, syncClient)
	e.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           httpapi.NewRouter(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if e.grpc, err = transport.StartServer(cfg.GRPC.Port); err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}

	log.Info("bootstrapped",
		"primary", cfg.Backends.Primary, "secondary", cfg.Backends.Secondary,
		"definitions", len(defs.Definitions()), "sinks", len(e.sinks), "cache", cfg.Cache.Backend)
	return e, nil
}

func loadDefinitions(path string, defs *rendition.Registry) error {
	f, err := config.LoadDefinitions(path)
	if err != nil {
		return fmt.Errorf("definitions: %w", err)
	}
	built, err := f.Build()
	if err != nil {
		return fmt.Errorf("definitions %s: %w", path, err)
	}
	var errs []error
	for _, d := range built {
		errs = append(errs, defs.Register(d))
	}
	return errors.Join(errs...)
}

func (e *Engine) newCache(ctx context.Context) (rendition.Cache, error) {
	c := e.cfg.Cache
	if c.Backend != "redis" {
		return rendition.NewMemoryCache(c.Size)
	}
	rdb := redis.NewClient(&redis.Options{Addr: c.Redis.Addr, Password: c.Redis.Password, DB: c.Redis.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	e.redis = rdb
	opts := []rendition.RedisCacheOption{rendition.WithRedisTTL(c.Redis.TTL)}
	if c.Redis.Prefix != "" {
		opts = append(opts, rendition.WithRedisPrefix(c.Redis.Prefix))
	}
	return rendition.NewRedisCache(rdb, opts...), nil
}

// startRemote connects the request producer and the reply consumer.
func (e *Engine) startRemote(store remote.ResultStore) error {
	rc := e.cfg.Remote
	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	producer, err := sarama.NewSyncProducer(rc.Kafka.Brokers, sc)
	if err != nil {
		return err
	}
	e.remote = remote.New(rc.Config, producer, store)

	replies, err := kafka.NewAdapter(rc.Kafka.Driver)
	if err != nil {
		return err
	}
	if err := replies.Configure(rc.Kafka); err != nil {
		return err
	}
	e.replies = replies
	return nil
}
