package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ppiankov/tactimerge/internal/model"
)

// RetryOpts configures retries of external calls.
type RetryOpts struct {
	MaxAttempts    int
	InitialWait    time.Duration
	MaxWait        time.Duration
	AttemptTimeout time.Duration // Bound on a single attempt; 0 leaves only the caller's deadline
	Jitter         bool
}

// DefaultRetry provides sensible retry defaults.
var DefaultRetry = RetryOpts{
	MaxAttempts:    3,
	InitialWait:    500 * time.Millisecond,
	MaxWait:        8 * time.Second,
	AttemptTimeout: 30 * time.Second,
	Jitter:         true,
}

// RetryFromConfig builds options from configuration and a per-call timeout.
func RetryFromConfig(cfg model.RetryConfig, attemptTimeout time.Duration) RetryOpts {
	opts := RetryOpts{
		MaxAttempts:    cfg.MaxAttempts,
		InitialWait:    cfg.InitialWait,
		MaxWait:        cfg.MaxWait,
		AttemptTimeout: attemptTimeout,
		Jitter:         true,
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	return opts
}

// Retry runs f until it succeeds, fails with a non-transient error, or attempts
// run out, backing off exponentially in between. Deadline failures come back
// wrapped in model.ErrTimeout.
func Retry[T any](ctx context.Context, opts RetryOpts, op string, f func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	wait := opts.InitialWait

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		var v T
		v, err = runAttempt(ctx, opts.AttemptTimeout, f)
		if err == nil {
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, stopped(op, ctxErr)
		}
		err = model.AsTimeout(op, err)
		if !model.IsTransient(err) || attempt == attempts-1 {
			break
		}

		sleep := wait
		if opts.Jitter {
			sleep = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		if opts.MaxWait > 0 && sleep > opts.MaxWait {
			sleep = opts.MaxWait
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, stopped(op, ctx.Err())
		case <-timer.C:
		}

		wait *= 2
		if opts.MaxWait > 0 && wait > opts.MaxWait {
			wait = opts.MaxWait
		}
	}
	return zero, err
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, f func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return f(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return f(actx)
}

func stopped(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, model.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
