package executor

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"transformd/internal/logging"
)

// ErrConflict marks a transient store conflict; the transaction is retried.
var ErrConflict = errors.New("executor: concurrent update conflict")

// IsTransient reports whether err is worth retrying: ErrConflict or any error
// in the chain with a Transient() bool method returning true.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) {
		return true
	}
	var t interface{ Transient() bool }
	return errors.As(err, &t) && t.Transient()
}

// Impersonator runs fn as the given user.
type Impersonator interface {
	RunAs(ctx context.Context, user string, fn func(context.Context) error) error
}

// Transactor runs fn inside a transaction, retrying it on transient failure.
type Transactor interface {
	RetryingTransaction(ctx context.Context, fn func(context.Context) error) error
}

// ContextImpersonator installs the user into the context seen by fn.
type ContextImpersonator struct{}

func (ContextImpersonator) RunAs(ctx context.Context, user string, fn func(context.Context) error) error {
	return fn(logging.ContextWithUser(ctx, user))
}

type RetryPolicy struct {
	MaxAttempts     int           `koanf:"max_attempts"`
	InitialInterval time.Duration `koanf:"initial_interval"`
	MaxInterval     time.Duration `koanf:"max_interval"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, InitialInterval: 100 * time.Millisecond, MaxInterval: 5 * time.Second}
}

// RetryingTransactor retries transient failures with exponential backoff.
// There is no real transaction behind it; stores that need one wrap it.
type RetryingTransactor struct {
	Policy RetryPolicy
}

func (t RetryingTransactor) RetryingTransaction(ctx context.Context, fn func(context.Context) error) error {
	p := t.Policy
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := fn(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if !IsTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		logging.FromContext(ctx).Debug("transaction conflict, retrying", "attempt", attempt, "err", err)
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(p.MaxAttempts)))
	return err
}
