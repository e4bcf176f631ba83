package logging

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

type Options struct {
	Level string
	JSON  bool
}

type ctxKey string

const (
	userKey ctxKey = "acting_user"
	jobKey  ctxKey = "job_id"
)

var def atomic.Value

func init() {
	cfg := &slog.HandlerOptions{Level: slog.LevelInfo}
	h := slog.NewTextHandler(os.Stderr, cfg)
	def.Store(slog.New(h))
}

func Configure(opts Options) {
	lvl := parseLevel(opts.Level)
	cfg := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(os.Stderr, cfg)
	} else {
		h = slog.NewTextHandler(os.Stderr, cfg)
	}
	def.Store(slog.New(h))
}

func parseLevel(s string) slog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func L() *slog.Logger {
	l, _ := def.Load().(*slog.Logger)
	return l
}

// With returns the default logger tagged with a component name.
func With(component string) *slog.Logger {
	return L().With("component", component)
}

// FromContext enriches the default logger with the acting user and job id
// stored in ctx, if any.
func FromContext(ctx context.Context) *slog.Logger {
	l := L()
	if u, ok := ctx.Value(userKey).(string); ok && u != "" {
		l = l.With("user", u)
	}
	if id, ok := ctx.Value(jobKey).(string); ok && id != "" {
		l = l.With("job_id", id)
	}
	return l
}

func ContextWithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func ContextWithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobKey, id)
}

// UserFromContext returns the user installed by ContextWithUser.
func UserFromContext(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(userKey).(string)
	return u, ok && u != ""
}

func InitFromEnv() {
	lvl := os.Getenv("TRANSFORMD_LOG_LEVEL")
	jsonStr := os.Getenv("TRANSFORMD_LOG_JSON")
	json := false
	if b, err := strconv.ParseBool(strings.TrimSpace(jsonStr)); err == nil {
		json = b
	}
	Configure(Options{Level: lvl, JSON: json})
}
