package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"transformd/internal/executor"
	"transformd/internal/remote"
	sinkkafka "transformd/sink/kafka"
	"transformd/sink/stdout"
	"transformd/source/kafka"
)

// EnvPrefix selects environment overrides: TRANSFORMD__HTTP__PORT=8081 sets
// http.port.
const EnvPrefix = "TRANSFORMD__"

// Backend names accepted in backends.primary/secondary.
const (
	BackendLocal  = "local"
	BackendLegacy = "legacy"
	BackendRemote = "remote"
)

type LogCfg struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

type PortCfg struct {
	Port int `koanf:"port"`
}

type ContentCfg struct {
	Root string `koanf:"root"`
}

type BackendsCfg struct {
	Primary   string `koanf:"primary"`
	Secondary string `koanf:"secondary"` // empty = no fallback
}

type EngineCfg struct {
	MaxImageBytes int64 `koanf:"max_image_bytes"` // 0 = unlimited
}

type RedisCfg struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Prefix   string        `koanf:"prefix"`
	TTL      time.Duration `koanf:"ttl"`
}

type CacheCfg struct {
	Backend string   `koanf:"backend"` // memory|redis
	Size    int      `koanf:"size"`
	Redis   RedisCfg `koanf:"redis"`
}

// RemoteCfg configures the Kafka-backed remote engine. Kafka is the reply
// consumer; its brokers are shared with the request producer. Every instance
// joins its own reply group (group_id + "." + instance_id) so each one sees
// every reply and picks out its own requests.
type RemoteCfg struct {
	remote.Config `koanf:",squash"`
	InstanceID    string       `koanf:"instance_id"` // default: hostname plus a random suffix
	Kafka         kafka.Config `koanf:"kafka"`
}

type SinkCfg struct {
	Type   string           `koanf:"type"` // stdout|kafka
	Stdout stdout.Config    `koanf:"stdout"`
	Kafka  sinkkafka.Config `koanf:"kafka"`
}

type Config struct {
	SchemaVersion string `koanf:"schema_version"`

	Log     LogCfg  `koanf:"log"`
	HTTP    PortCfg `koanf:"http"`
	GRPC    PortCfg `koanf:"grpc"`
	Metrics PortCfg `koanf:"metrics"`

	// Definitions is the rendition definitions file; relative paths are
	// resolved against the config file's directory.
	Definitions string     `koanf:"definitions"`
	Content     ContentCfg `koanf:"content"`

	Backends BackendsCfg          `koanf:"backends"`
	Local    EngineCfg            `koanf:"local"`
	Legacy   EngineCfg            `koanf:"legacy"`
	Remote   RemoteCfg            `koanf:"remote"`
	Cache    CacheCfg             `koanf:"cache"`
	Retry    executor.RetryPolicy `koanf:"retry"`
	Sinks    []SinkCfg            `koanf:"sinks"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ---------------------------------------------------------------------------
// Loader
// ---------------------------------------------------------------------------

// Load merges YAML (if present) with env-vars (prefix `TRANSFORMD__`,
// delimiter `__`).
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	// schema version check (only when YAML is present)
	sv := k.String("schema_version")
	if sv != "" && sv != SupportedSchema {
		return Config{}, fmt.Errorf("config schema_version %q not supported (want %s)", sv, SupportedSchema)
	}

	_ = k.Load(env.Provider(EnvPrefix, ".", envKey), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if cfg.Definitions != "" && path != "" && !filepath.IsAbs(cfg.Definitions) {
		cfg.Definitions = filepath.Join(filepath.Dir(path), cfg.Definitions)
	}
	if cfg.Content.Root != "" && path != "" && !filepath.IsAbs(cfg.Content.Root) {
		cfg.Content.Root = filepath.Join(filepath.Dir(path), cfg.Content.Root)
	}
	return cfg, cfg.Validate()
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks cross-field constraints that defaults cannot fix.
func (c Config) Validate() error {
	var errs []error
	for _, b := range []string{c.Backends.Primary, c.Backends.Secondary} {
		switch b {
		case "", BackendLocal, BackendLegacy, BackendRemote:
		default:
			errs = append(errs, fmt.Errorf("unknown backend %q", b))
		}
	}
	if c.Backends.Primary == "" {
		errs = append(errs, errors.New("backends.primary is required"))
	}
	if c.Backends.Primary != "" && c.Backends.Primary == c.Backends.Secondary {
		errs = append(errs, errors.New("backends.primary and backends.secondary must differ"))
	}
	if c.uses(BackendRemote) && len(c.Remote.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("remote.kafka.brokers is required for the remote backend"))
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, errors.New("cache.redis.addr is required for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}
	for i, s := range c.Sinks {
		if s.Type != "stdout" && s.Type != "kafka" {
			errs = append(errs, fmt.Errorf("sinks[%d]: unknown type %q", i, s.Type))
		}
	}
	return errors.Join(errs...)
}

func (c Config) uses(backend string) bool {
	return c.Backends.Primary == backend || c.Backends.Secondary == backend
}

// ---------------------------------------------------------------------------
// defaults
// ---------------------------------------------------------------------------

func applyDefaults(c *Config) {
	if c.SchemaVersion == "" {
		c.SchemaVersion = SupportedSchema
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.GRPC.Port == 0 {
		c.GRPC.Port = 9090
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 2112
	}
	if c.Content.Root == "" {
		c.Content.Root = "data"
	}
	if c.Backends.Primary == "" {
		c.Backends.Primary = BackendLocal
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = 512
	}
	if c.Cache.Redis.TTL == 0 {
		c.Cache.Redis.TTL = time.Hour
	}
	def := executor.DefaultRetryPolicy()
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = def.MaxAttempts
	}
	if c.Retry.InitialInterval == 0 {
		c.Retry.InitialInterval = def.InitialInterval
	}
	if c.Retry.MaxInterval == 0 {
		c.Retry.MaxInterval = def.MaxInterval
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	c.Remote.Config.ApplyDefaults()
	if len(c.Remote.Kafka.Topics) == 0 {
		c.Remote.Kafka.Topics = []string{c.Remote.ReplyTopic}
	}
	if c.Remote.InstanceID == "" {
		c.Remote.InstanceID = instanceID()
	}
	if c.Remote.Kafka.GroupID == "" {
		c.Remote.Kafka.GroupID = "transformd-replies"
	}
	c.Remote.Kafka.GroupID += "." + c.Remote.InstanceID
	c.Remote.Kafka.ApplyDefaults()
}

func instanceID() string {
	suffix := uuid.NewString()[:8]
	if host, err := os.Hostname(); err == nil && host != "" {
		return host + "-" + suffix
	}
	return suffix
}
