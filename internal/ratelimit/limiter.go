package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jobscout/ingest/internal/core"
)

const defaultWindow = time.Minute

// Config describes the quota a single source is allowed to consume.
type Config struct {
	// MaxRequests is the quota ceiling per window.
	MaxRequests int
	// Window is the length of the sliding window.
	Window time.Duration
	// MinDelay is the minimum spacing between two requests, regardless of
	// remaining quota. Zero disables it.
	MinDelay time.Duration
}

// Validate reports configs that cannot describe a usable quota.
func (c Config) Validate() error {
	if c.MaxRequests < 1 {
		return fmt.Errorf("max requests must be >= 1, got %d", c.MaxRequests)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be > 0, got %s", c.Window)
	}
	if c.MinDelay < 0 {
		return fmt.Errorf("min delay must be >= 0, got %s", c.MinDelay)
	}
	return nil
}

func (c Config) normalized() Config {
	if c.MaxRequests < 1 {
		c.MaxRequests = 1
	}
	if c.Window <= 0 {
		c.Window = defaultWindow
	}
	if c.MinDelay < 0 {
		c.MinDelay = 0
	}
	return c
}

type record struct {
	at    time.Time
	count int
}

type Option func(*Limiter)

// WithClock overrides the time source. Mostly useful in tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// Limiter tracks a sliding-window request log per source ID.
//
// A request recorded at t counts against its source until t+Window. The log
// for a source is pruned lazily whenever it is read. Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	config Config
	logs   map[string][]record
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// New returns a limiter enforcing cfg. Degenerate values are clamped: a quota
// below one becomes one and a non-positive window becomes one minute.
func New(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		config: cfg.normalized(),
		logs:   map[string][]record{},
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Config() Config {
	return l.config
}

// CanMakeRequest reports whether the source still has quota in the current window.
func (l *Limiter) CanMakeRequest(sourceID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return sum(l.pruneLocked(sourceID, l.now())) < l.config.MaxRequests
}

// WaitTime returns how long the caller should wait before the next request.
// With quota left it only honours MinDelay since the newest request; with the
// quota exhausted it waits for the oldest request to leave the window.
func (l *Limiter) WaitTime(sourceID string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	records := l.pruneLocked(sourceID, now)
	if len(records) == 0 {
		return 0
	}

	if sum(records) < l.config.MaxRequests {
		if l.config.MinDelay <= 0 {
			return 0
		}
		newest := records[0].at
		for _, r := range records[1:] {
			if r.at.After(newest) {
				newest = r.at
			}
		}
		if elapsed := now.Sub(newest); elapsed < l.config.MinDelay {
			return l.config.MinDelay - elapsed
		}
		return 0
	}

	oldest := records[0].at
	for _, r := range records[1:] {
		if r.at.Before(oldest) {
			oldest = r.at
		}
	}
	if wait := oldest.Add(l.config.Window).Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// RecordRequest appends count permits for the source at the current time.
// Counts below one are recorded as one.
func (l *Limiter) RecordRequest(sourceID string, count int) {
	if count < 1 {
		count = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logs[sourceID] = append(l.logs[sourceID], record{at: l.now(), count: count})
}

// WaitForSlot blocks for WaitTime(sourceID). It does not record a request.
func (l *Limiter) WaitForSlot(ctx context.Context, sourceID string) error {
	wait := l.WaitTime(sourceID)
	if wait <= 0 {
		return nil
	}
	logger := core.LoggerFromContext(ctx)
	if core.SourceIDFromContext(ctx) == "" {
		logger = logger.With(slog.String("source_id", sourceID))
	}
	logger.Debug("rate limit wait", slog.Duration("wait", wait))
	return l.sleep(ctx, wait)
}

// Execute waits for a slot, records one permit and then runs op. The permit is
// recorded before op starts and is kept even when op fails, so in-flight and
// failed requests both count against the quota.
func (l *Limiter) Execute(ctx context.Context, sourceID string, op func(context.Context) error) error {
	if err := l.WaitForSlot(ctx, sourceID); err != nil {
		return err
	}
	l.RecordRequest(sourceID, 1)
	return op(ctx)
}

// ExecuteValue is Execute for operations that produce a value.
func ExecuteValue[T any](ctx context.Context, l *Limiter, sourceID string, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := l.Execute(ctx, sourceID, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// RequestCount returns the number of permits used in the current window.
func (l *Limiter) RequestCount(sourceID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return sum(l.pruneLocked(sourceID, l.now()))
}

// Reset forgets all requests recorded for the source.
func (l *Limiter) Reset(sourceID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.logs, sourceID)
}

func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logs = map[string][]record{}
}

// pruneLocked drops records that have left the window. Caller holds l.mu.
func (l *Limiter) pruneLocked(sourceID string, now time.Time) []record {
	records, ok := l.logs[sourceID]
	if !ok {
		return nil
	}
	cutoff := now.Add(-l.config.Window)
	kept := records[:0]
	for _, r := range records {
		if r.at.After(cutoff) {
			kept = append(kept, r)
		}
	}
	l.logs[sourceID] = kept
	return kept
}

func sum(records []record) int {
	total := 0
	for _, r := range records {
		total += r.count
	}
	return total
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
