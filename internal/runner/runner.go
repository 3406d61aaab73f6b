package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jobscout/ingest/internal/core"
	"github.com/jobscout/ingest/internal/dedupe"
	"github.com/jobscout/ingest/internal/filter"
	"github.com/jobscout/ingest/internal/sources/jobfeed"
	"github.com/jobscout/ingest/internal/trigger"
)

const defaultMaxConcurrency = 4

// SourceSpec is a source plus the filters that apply only to it.
type SourceSpec struct {
	Source  jobfeed.Source
	Filters []*filter.Rule
}

// Pipeline is the set of sources pulled together on each run.
type Pipeline struct {
	Name    string
	Sources []SourceSpec
	// Filters apply to every source after its own filters.
	Filters []*filter.Rule
}

type Config struct {
	// AllowPartialSourceErrors lets a run succeed when at least one source works.
	AllowPartialSourceErrors bool
	MaxConcurrency           int
}

type Runner struct {
	logger  *slog.Logger
	config  Config
	fetcher jobfeed.Fetcher
	store   dedupe.SeenStore
}

// New builds a runner. A nil store disables deduplication.
func New(logger *slog.Logger, cfg Config, fetcher jobfeed.Fetcher, store dedupe.SeenStore) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	return &Runner{logger: logger, config: cfg, fetcher: fetcher, store: store}
}

func (r *Runner) Start(ctx context.Context, pipeline *Pipeline, trig trigger.Trigger) error {
	if pipeline == nil {
		return fmt.Errorf("pipeline is required")
	}
	if trig == nil {
		return fmt.Errorf("trigger is required")
	}
	events, err := trig.Start(core.WithLogger(ctx, r.logger), pipeline.Name)
	if err != nil {
		return err
	}
	go r.listen(ctx, pipeline, events)
	return nil
}

func (r *Runner) RunOnce(ctx context.Context, pipeline *Pipeline) (*core.Run, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if r.fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	run := &core.Run{
		ID:        fmt.Sprintf("run-%d", time.Now().UnixNano()),
		Pipeline:  pipeline.Name,
		StartedAt: time.Now().UTC(),
		Status:    core.RunStatusRunning,
	}
	ctx = core.WithRunID(core.WithLogger(ctx, r.logger), run.ID)
	logger := core.LoggerFromContext(ctx)

	results, kept := r.fetchAll(ctx, pipeline)
	run.Sources = results

	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	switch {
	case len(errs) == 0:
	case !r.config.AllowPartialSourceErrors || len(errs) == len(results):
		err := errors.Join(errs...)
		r.finish(logger, run, core.RunStatusFailed, 0, err)
		return run, err
	default:
		logger.Warn("continuing with partial source errors", "failed", len(errs), "sources", len(results))
	}

	var listings []core.Listing
	for _, batch := range kept {
		listings = append(listings, batch...)
	}

	fresh, err := r.dedupe(ctx, listings)
	if err != nil {
		r.finish(logger, run, core.RunStatusFailed, len(listings), err)
		return run, err
	}
	newBySource := map[string]int{}
	for _, listing := range fresh {
		newBySource[listing.SourceID]++
	}
	for i := range run.Sources {
		run.Sources[i].New = newBySource[run.Sources[i].SourceID]
	}

	run.Listings = fresh
	status := core.RunStatusCompleted
	if len(errs) > 0 {
		status = core.RunStatusPartial
	}
	r.finish(logger, run, status, len(listings), nil)
	return run, nil
}

// finish stamps the terminal status and completion time and logs the run summary.
func (r *Runner) finish(logger *slog.Logger, run *core.Run, status core.RunStatus, listings int, err error) {
	completedAt := time.Now().UTC()
	run.CompletedAt = &completedAt
	run.Status = status
	attrs := []any{
		"pipeline", run.Pipeline,
		"status", run.Status,
		"sources", len(run.Sources),
		"failed_sources", len(run.Failed()),
		"listings", listings,
		"new", len(run.Listings),
		"duration", completedAt.Sub(run.StartedAt),
	}
	if err != nil {
		logger.Error("run finished", append(attrs, "error", err)...)
		return
	}
	logger.Info("run finished", attrs...)
}

// fetchAll pulls every source with at most MaxConcurrency in flight. Results
// keep the pipeline's source order.
func (r *Runner) fetchAll(ctx context.Context, pipeline *Pipeline) ([]core.SourceResult, [][]core.Listing) {
	results := make([]core.SourceResult, len(pipeline.Sources))
	kept := make([][]core.Listing, len(pipeline.Sources))
	sem := make(chan struct{}, r.config.MaxConcurrency)

	var wg sync.WaitGroup
	for i, spec := range pipeline.Sources {
		wg.Add(1)
		go func(i int, spec SourceSpec) {
			defer wg.Done()
			results[i].SourceID = spec.Source.ID
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i].Err = fmt.Errorf("source %s: %w", spec.Source.ID, ctx.Err())
				return
			}
			defer func() { <-sem }()

			srcCtx := core.WithSourceID(ctx, spec.Source.ID)
			started := time.Now()
			listings, err := r.fetcher.Fetch(srcCtx, spec.Source)
			results[i].Duration = time.Since(started)
			if err != nil {
				core.LoggerFromContext(srcCtx).Error("source fetch failed", "error", err)
				results[i].Err = err
				return
			}
			results[i].Fetched = len(listings)
			for _, rule := range spec.Filters {
				listings = rule.Apply(srcCtx, listings)
			}
			for _, rule := range pipeline.Filters {
				listings = rule.Apply(srcCtx, listings)
			}
			results[i].Kept = len(listings)
			kept[i] = listings
		}(i, spec)
	}
	wg.Wait()
	return results, kept
}

func (r *Runner) dedupe(ctx context.Context, listings []core.Listing) ([]core.Listing, error) {
	if r.store == nil {
		return listings, nil
	}
	fresh, err := r.store.Unseen(ctx, listings)
	if err != nil {
		return nil, fmt.Errorf("dedupe listings: %w", err)
	}
	if err := r.store.MarkSeen(ctx, fresh); err != nil {
		return nil, fmt.Errorf("mark listings seen: %w", err)
	}
	return fresh, nil
}

func (r *Runner) listen(ctx context.Context, pipeline *Pipeline, events <-chan core.TriggerEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			r.logger.Info("trigger event", "pipeline", event.Pipeline, "time", event.Timestamp)
			if r.store != nil {
				if removed, err := r.store.Prune(ctx); err != nil {
					r.logger.Warn("prune seen listings failed", "error", err)
				} else if removed > 0 {
					r.logger.Debug("pruned seen listings", "removed", removed)
				}
			}
			if _, err := r.RunOnce(ctx, pipeline); err != nil {
				r.logger.Error("pipeline run failed", "pipeline", pipeline.Name, "error", err)
			}
		}
	}
}
