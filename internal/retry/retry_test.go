package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:       attempts,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func TestDoBackoffWithoutJitter(t *testing.T) {
	t.Parallel()
	cfg := fastConfig(5)
	var delays []time.Duration
	cfg.OnRetry = func(e Event) { delays = append(delays, e.Delay) }

	_ = Do(context.Background(), cfg, func(ctx context.Context) error {
		return errors.New("nope")
	})

	want := []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond, 5 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("expected %d retries, got %d (%v)", len(want), len(delays), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("retry %d: expected delay %s, got %s", i+1, want[i], delays[i])
		}
	}
}

func TestDoJitterIsAdditiveAndCapped(t *testing.T) {
	t.Parallel()
	cfg := Config{
		MaxAttempts:       3,
		InitialDelay:      2 * time.Millisecond,
		MaxDelay:          3 * time.Millisecond,
		BackoffMultiplier: 2,
		JitterFactor:      0.5,
		Rand:              func() float64 { return 0.5 },
	}
	var delays []time.Duration
	cfg.OnRetry = func(e Event) { delays = append(delays, e.Delay) }

	_ = Do(context.Background(), cfg, func(ctx context.Context) error { return errors.New("nope") })

	// 2ms + 2ms*0.5*0.5 = 2.5ms, then 4ms + jitter is capped at 3ms.
	want := []time.Duration{2500 * time.Microsecond, 3 * time.Millisecond}
	if fmt.Sprint(delays) != fmt.Sprint(want) {
		t.Fatalf("expected delays %v, got %v", want, delays)
	}
}

func TestDoStopsAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	calls := 0
	errs := []error{errors.New("first"), errors.New("second"), errors.New("third")}

	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		e := errs[calls]
		calls++
		return e
	})

	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if !errors.Is(err, errs[2]) {
		t.Fatalf("expected last error to surface, got %v", err)
	}
	if errors.Is(err, errs[0]) {
		t.Fatalf("expected earlier errors to be dropped, got %v", err)
	}
	var retryErr *Error
	if !errors.As(err, &retryErr) || retryErr.Attempts != 3 {
		t.Fatalf("expected *Error with 3 attempts, got %#v", err)
	}
}

func TestDoReturnsOnFirstSuccess(t *testing.T) {
	t.Parallel()
	for k := 1; k <= 3; k++ {
		k := k
		t.Run(fmt.Sprintf("succeeds on attempt %d", k), func(t *testing.T) {
			t.Parallel()
			cfg := fastConfig(3)
			retries := 0
			cfg.OnRetry = func(Event) { retries++ }
			calls := 0

			got, err := DoValue(context.Background(), cfg, func(ctx context.Context) (string, error) {
				calls++
				if calls < k {
					return "", errors.New("not yet")
				}
				return "done", nil
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != "done" {
				t.Fatalf("expected done, got %q", got)
			}
			if calls != k {
				t.Fatalf("expected %d calls, got %d", k, calls)
			}
			if retries != k-1 {
				t.Fatalf("expected %d backoff sleeps, got %d", k-1, retries)
			}
		})
	}
}

func TestDoRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	cases := map[string]Config{
		"zero attempts":       {MaxAttempts: 0, BackoffMultiplier: 1},
		"negative delay":      {MaxAttempts: 1, InitialDelay: -time.Second, BackoffMultiplier: 1},
		"max below initial":   {MaxAttempts: 1, InitialDelay: time.Second, MaxDelay: time.Millisecond, BackoffMultiplier: 1},
		"shrinking backoff":   {MaxAttempts: 1, BackoffMultiplier: 0.5},
		"jitter out of range": {MaxAttempts: 1, BackoffMultiplier: 1, JitterFactor: 1.5},
	}
	for name, cfg := range cases {
		cfg := cfg
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			called := false
			err := Do(context.Background(), cfg, func(ctx context.Context) error {
				called = true
				return nil
			})
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if called {
				t.Fatalf("expected operation not to run")
			}
		})
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	t.Parallel()
	notFound := errors.New("not found")
	calls := 0

	err := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		calls++
		return Permanent(notFound)
	})

	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
	if !errors.Is(err, notFound) {
		t.Fatalf("expected permanent cause to surface, got %v", err)
	}
	if IsPermanent(err) {
		t.Fatalf("expected the permanent marker to be removed from the final error")
	}
}

func TestDoKeepsStructuredErrors(t *testing.T) {
	t.Parallel()
	inner := &Error{Attempts: 7, Err: errors.New("inner")}

	err := Do(context.Background(), fastConfig(2), func(ctx context.Context) error { return inner })

	if err != inner {
		t.Fatalf("expected the structured error to be returned as is, got %v", err)
	}
}

func TestDoStopsWhenContextIsCancelled(t *testing.T) {
	t.Parallel()
	cfg := Config{MaxAttempts: 3, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffMultiplier: 2}
	ctx, cancel := context.WithCancel(context.Background())
	cfg.OnRetry = func(Event) { cancel() }
	boom := errors.New("boom")

	err := Do(ctx, cfg, func(ctx context.Context) error { return boom })

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected last attempt error to be kept, got %v", err)
	}
}

func TestPresetsAreValid(t *testing.T) {
	t.Parallel()
	presets := Presets()
	if len(presets) != 3 {
		t.Fatalf("expected 3 presets, got %d", len(presets))
	}
	for name, cfg := range presets {
		if err := cfg.Validate(); err != nil {
			t.Fatalf("preset %s invalid: %v", name, err)
		}
	}
	if got := presets[PresetAggressive].MaxAttempts; got != 5 {
		t.Fatalf("expected aggressive preset to allow 5 attempts, got %d", got)
	}
}
