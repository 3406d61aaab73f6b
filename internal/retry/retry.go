package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/jobscout/ingest/internal/core"
)

// Config is an exponential backoff policy.
type Config struct {
	// MaxAttempts is the total number of invocations, including the first.
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	// JitterFactor adds up to delay*JitterFactor of random extra wait. Zero disables jitter.
	JitterFactor float64

	// OnRetry is called before each backoff sleep.
	OnRetry func(Event)
	// Rand returns a uniform sample in [0,1). Defaults to math/rand.
	Rand func() float64
}

// Event describes a failed attempt that is about to be retried.
type Event struct {
	Attempt int
	Delay   time.Duration
	Err     error
}

func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be >= 1, got %d", ErrInvalidConfig, c.MaxAttempts)
	}
	if c.InitialDelay < 0 {
		return fmt.Errorf("%w: initial delay must be >= 0, got %s", ErrInvalidConfig, c.InitialDelay)
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("%w: max delay %s is below initial delay %s", ErrInvalidConfig, c.MaxDelay, c.InitialDelay)
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("%w: backoff multiplier must be >= 1, got %g", ErrInvalidConfig, c.BackoffMultiplier)
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		return fmt.Errorf("%w: jitter factor must be within [0,1], got %g", ErrInvalidConfig, c.JitterFactor)
	}
	return nil
}

// Do runs fn until it succeeds, returns a permanent error, or the attempts run
// out. The base delay grows by BackoffMultiplier after every failure without a
// ceiling; only the applied delay is capped at MaxDelay.
func Do(ctx context.Context, config Config, fn func(context.Context) error) error {
	if err := config.Validate(); err != nil {
		return err
	}
	random := config.Rand
	if random == nil {
		random = rand.Float64
	}
	logger := core.LoggerFromContext(ctx)

	delay := config.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return &Error{Attempts: attempt, Err: perm.err}
		}
		if attempt == config.MaxAttempts {
			break
		}

		sleep := nextSleep(delay, config, random)
		logger.Warn("retrying operation",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", config.MaxAttempts),
			slog.Duration("delay", sleep),
			slog.String("error", err.Error()),
		)
		if config.OnRetry != nil {
			config.OnRetry(Event{Attempt: attempt, Delay: sleep, Err: err})
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry interrupted after %d attempts: %w", attempt, errors.Join(ctx.Err(), err))
		case <-timer.C:
		}

		delay = grow(delay, config.BackoffMultiplier)
	}

	if lastErr == nil {
		return ErrMaxAttempts
	}
	var retryErr *Error
	if errors.As(lastErr, &retryErr) {
		return retryErr
	}
	return &Error{Attempts: config.MaxAttempts, Err: lastErr}
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, config Config, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, config, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func nextSleep(delay time.Duration, config Config, random func() float64) time.Duration {
	var jitter time.Duration
	if config.JitterFactor > 0 {
		jitter = time.Duration(float64(delay) * config.JitterFactor * random())
	}
	sleep := delay + jitter
	if sleep > config.MaxDelay || sleep < 0 {
		sleep = config.MaxDelay
	}
	return sleep
}

func grow(delay time.Duration, multiplier float64) time.Duration {
	next := float64(delay) * multiplier
	if next >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(next)
}
