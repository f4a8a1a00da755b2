// Package retry retries remote operations on transient service errors.
//
// Policies are plain values: RateLimited waits for the duration advised by
// the server, Unavailable waits a fixed delay. Authentication errors are
// never retried.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/synctogit/synctogit/internal/service"
)

const (
	RateLimitedAttempts = 10
	UnavailableAttempts = 3
	UnavailableDelay    = 5 * time.Second
)

// Runner runs an operation, possibly several times.
type Runner interface {
	Run(ctx context.Context, op func(context.Context) error) error
}

// Policy retries an operation while Delay accepts the returned error.
type Policy struct {
	// Name is used in log messages.
	Name string

	// Attempts is the total number of calls, including the first one.
	Attempts int

	// Delay reports whether err is retryable by this policy and how long to
	// wait before the next attempt.
	Delay func(err error) (time.Duration, bool)

	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger zerolog.Logger
}

// RateLimited retries up to 10 times, waiting as long as the server asked.
func RateLimited(logger zerolog.Logger) Policy {
	return Policy{
		Name:     "rate limit",
		Attempts: RateLimitedAttempts,
		Delay: func(err error) (time.Duration, bool) {
			var rl *service.RateLimitError
			if errors.As(err, &rl) {
				return rl.RetryAfter, true
			}
			return 0, false
		},
		Logger: logger,
	}
}

// Unavailable retries up to 3 times with a fixed 5 second delay.
func Unavailable(logger zerolog.Logger) Policy {
	return Policy{
		Name:     "unavailable",
		Attempts: UnavailableAttempts,
		Delay: func(err error) (time.Duration, bool) {
			return UnavailableDelay, errors.Is(err, service.ErrUnavailable)
		},
		Logger: logger,
	}
}

// Run calls op until it succeeds, fails with an error the policy does not
// handle, or the attempts are exhausted. The last error of op is returned
// unchanged.
func (p Policy) Run(ctx context.Context, op func(context.Context) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if service.IsAuthError(err) {
			return err
		}
		d, ok := p.Delay(err)
		if !ok || attempt >= p.Attempts {
			return err
		}

		p.Logger.Warn().Err(err).
			Str("policy", p.Name).
			Int("attempt", attempt).
			Dur("wait", d).
			Msgf("Retrying in %s", d)

		if serr := sleep(ctx, d); serr != nil {
			return err
		}
	}
}

// Chain applies policies from the outermost to the innermost.
type Chain []Policy

// Run implements Runner.
func (c Chain) Run(ctx context.Context, op func(context.Context) error) error {
	if len(c) == 0 {
		return op(ctx)
	}
	return c[0].Run(ctx, func(ctx context.Context) error {
		return c[1:].Run(ctx, op)
	})
}

// Default is the chain used for every backend call.
func Default(logger zerolog.Logger) Chain {
	return Chain{RateLimited(logger), Unavailable(logger)}
}

// Do runs op under r and returns its result.
func Do[T any](ctx context.Context, r Runner, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := r.Run(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
