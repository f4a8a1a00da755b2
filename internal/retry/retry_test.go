package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synctogit/synctogit/internal/service"
)

// recordSleep collects the requested delays instead of waiting.
func recordSleep(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}

func TestRateLimitedUsesAdvisedDelay(t *testing.T) {
	var waits []time.Duration
	p := RateLimited(zerolog.Nop())
	p.Sleep = recordSleep(&waits)

	calls := 0
	got, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &service.RateLimitError{RetryAfter: time.Duration(calls) * time.Second}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
}

func TestRateLimitedExhaustion(t *testing.T) {
	var waits []time.Duration
	p := RateLimited(zerolog.Nop())
	p.Sleep = recordSleep(&waits)

	calls := 0
	rl := &service.RateLimitError{RetryAfter: time.Millisecond}
	err := p.Run(context.Background(), func(context.Context) error {
		calls++
		return rl
	})
	assert.Same(t, rl, err)
	assert.Equal(t, RateLimitedAttempts, calls)
	assert.Len(t, waits, RateLimitedAttempts-1)
}

func TestUnavailable(t *testing.T) {
	var waits []time.Duration
	p := Unavailable(zerolog.Nop())
	p.Sleep = recordSleep(&waits)

	calls := 0
	err := p.Run(context.Background(), func(context.Context) error {
		calls++
		return service.ErrUnavailable
	})
	assert.ErrorIs(t, err, service.ErrUnavailable)
	assert.Equal(t, UnavailableAttempts, calls)
	assert.Equal(t, []time.Duration{UnavailableDelay, UnavailableDelay}, waits)
}

func TestAuthErrorsAreNotRetried(t *testing.T) {
	for _, authErr := range []error{service.ErrTokenExpired, service.ErrAuth} {
		var waits []time.Duration
		c := Default(zerolog.Nop())
		for i := range c {
			c[i].Sleep = recordSleep(&waits)
		}

		calls := 0
		err := c.Run(context.Background(), func(context.Context) error {
			calls++
			return authErr
		})
		assert.ErrorIs(t, err, authErr)
		assert.Equal(t, 1, calls)
		assert.Empty(t, waits)
	}
}

func TestOtherErrorsPassThrough(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := Do(context.Background(), Default(zerolog.Nop()), func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	assert.Same(t, boom, err)
	assert.Equal(t, 1, calls)
}

func TestChainHandlesBothKinds(t *testing.T) {
	var waits []time.Duration
	c := Default(zerolog.Nop())
	for i := range c {
		c[i].Sleep = recordSleep(&waits)
	}

	errs := []error{
		service.ErrUnavailable,
		&service.RateLimitError{RetryAfter: 7 * time.Second},
		service.ErrUnavailable,
	}
	calls := 0
	got, err := Do(context.Background(), c, func(context.Context) (int, error) {
		if calls < len(errs) {
			e := errs[calls]
			calls++
			return 0, e
		}
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{UnavailableDelay, 7 * time.Second, UnavailableDelay}, waits)
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Unavailable(zerolog.Nop())
	calls := 0
	err := p.Run(ctx, func(context.Context) error {
		calls++
		return service.ErrUnavailable
	})
	assert.ErrorIs(t, err, service.ErrUnavailable)
	assert.Equal(t, 1, calls)
}
