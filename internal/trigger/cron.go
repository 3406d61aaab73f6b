package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jobscout/ingest/internal/core"
)

// Trigger emits events whenever a pipeline should run. The channel is closed
// once the trigger stops.
type Trigger interface {
	Start(ctx context.Context, pipeline string) (<-chan core.TriggerEvent, error)
	Stop() error
}

// Cron fires on a standard five-field cron schedule. Ticks that arrive while
// a previous event is still pending are dropped.
type Cron struct {
	schedule string
	timezone string

	mu       sync.Mutex
	cron     *cron.Cron
	events   chan core.TriggerEvent
	stopOnce sync.Once
}

func NewCron(schedule, timezone string) *Cron {
	return &Cron{schedule: schedule, timezone: timezone}
}

func (c *Cron) Validate() error {
	if c.schedule == "" {
		return fmt.Errorf("cron schedule is required")
	}
	if _, err := cron.ParseStandard(c.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", c.schedule, err)
	}
	if _, err := c.location(); err != nil {
		return err
	}
	return nil
}

func (c *Cron) location() (*time.Location, error) {
	if c.timezone == "" {
		return time.UTC, nil
	}
	tz, err := time.LoadLocation(c.timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}
	return tz, nil
}

func (c *Cron) Start(ctx context.Context, pipeline string) (<-chan core.TriggerEvent, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	location, err := c.location()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil, fmt.Errorf("cron trigger already started")
	}
	events := make(chan core.TriggerEvent, 1)
	scheduler := cron.New(cron.WithLocation(location))
	if _, err := scheduler.AddFunc(c.schedule, func() {
		select {
		case events <- core.TriggerEvent{Pipeline: pipeline, Timestamp: time.Now().UTC()}:
		default:
			core.LoggerFromContext(ctx).Debug("cron tick dropped, run still pending", "pipeline", pipeline)
		}
	}); err != nil {
		return nil, err
	}
	c.events = events
	c.cron = scheduler
	scheduler.Start()

	go func() {
		<-ctx.Done()
		_ = c.Stop()
	}()

	return events, nil
}

// Stop halts the schedule, waits for a firing tick to finish and closes the
// event channel. It is safe to call more than once.
func (c *Cron) Stop() error {
	c.mu.Lock()
	scheduler, events := c.cron, c.events
	c.mu.Unlock()
	if scheduler == nil {
		return nil
	}
	c.stopOnce.Do(func() {
		<-scheduler.Stop().Done()
		close(events)
	})
	return nil
}
