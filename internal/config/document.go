package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jobscout/ingest/internal/feed"
	"github.com/jobscout/ingest/internal/filter"
	"github.com/jobscout/ingest/internal/ratelimit"
	"github.com/jobscout/ingest/internal/retry"
	"github.com/jobscout/ingest/internal/runner"
	"github.com/jobscout/ingest/internal/sources/jobfeed"
	"github.com/jobscout/ingest/internal/trigger"
)

const defaultPipelineName = "jobs"

// Document is the top-level ingestion file.
type Document struct {
	Ingest IngestConfig `yaml:"ingest"`
}

type IngestConfig struct {
	Name           string                      `yaml:"name"`
	MaxConcurrency int                         `yaml:"max_concurrency"`
	Schedule       string                      `yaml:"schedule"`
	Timezone       string                      `yaml:"timezone"`
	Filters        []string                    `yaml:"filters"`
	RateLimits     map[string]RateLimitProfile `yaml:"rate_limits"`
	RetryProfiles  map[string]RetryProfile     `yaml:"retry_profiles"`
	Sources        []SourceConfig              `yaml:"sources"`
}

type RateLimitProfile struct {
	MaxRequests int      `yaml:"max_requests"`
	Window      Duration `yaml:"window"`
	MinDelay    Duration `yaml:"min_delay"`
}

type RetryProfile struct {
	MaxAttempts       int      `yaml:"max_attempts"`
	InitialDelay      Duration `yaml:"initial_delay"`
	MaxDelay          Duration `yaml:"max_delay"`
	BackoffMultiplier float64  `yaml:"backoff_multiplier"`
	JitterFactor      float64  `yaml:"jitter_factor"`
}

type SourceConfig struct {
	ID        string   `yaml:"id"`
	URL       string   `yaml:"url"`
	RateLimit string   `yaml:"rate_limit"`
	Retry     string   `yaml:"retry"`
	Decoder   string   `yaml:"decoder"`
	Timeout   Duration `yaml:"timeout"`
	Limit     int      `yaml:"limit"`
	Filter    string   `yaml:"filter"`
	StripHTML bool     `yaml:"strip_html"`
	Markdown  bool     `yaml:"markdown"`
}

// Load reads, defaults and validates the document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	doc.applyDefaults()
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *Document) applyDefaults() {
	if d.Ingest.Name == "" {
		d.Ingest.Name = defaultPipelineName
	}
	for i := range d.Ingest.Sources {
		src := &d.Ingest.Sources[i]
		src.ID = strings.TrimSpace(src.ID)
		src.URL = strings.TrimSpace(src.URL)
		if src.RateLimit == "" {
			src.RateLimit = ProfileDefault
		}
		if src.Retry == "" {
			src.Retry = retry.PresetStandard
		}
		if src.Decoder == "" {
			src.Decoder = feed.DecoderPermissive
		}
	}
}

// Validate reports every problem in the document at once.
func (d *Document) Validate() error {
	var errs []error
	cfg := d.Ingest
	if len(cfg.Sources) == 0 {
		errs = append(errs, fmt.Errorf("ingest.sources: at least one source is required"))
	}
	if cfg.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("ingest.max_concurrency must be >= 0"))
	}
	if cfg.Schedule != "" {
		if err := trigger.NewCron(cfg.Schedule, cfg.Timezone).Validate(); err != nil {
			errs = append(errs, fmt.Errorf("ingest.schedule: %w", err))
		}
	}

	limits := d.RateLimitConfigs()
	for _, name := range sortedKeys(cfg.RateLimits) {
		if err := limits[name].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("ingest.rate_limits.%s: %w", name, err))
		}
	}
	policies := d.RetryConfigs()
	for _, name := range sortedKeys(cfg.RetryProfiles) {
		if err := policies[name].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("ingest.retry_profiles.%s: %w", name, err))
		}
	}
	for _, expression := range cfg.Filters {
		if _, err := filter.NewRule(expression); err != nil {
			errs = append(errs, fmt.Errorf("ingest.filters: %w", err))
		}
	}

	seen := map[string]bool{}
	for i, src := range cfg.Sources {
		field := fmt.Sprintf("ingest.sources[%d]", i)
		if src.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", field))
		} else {
			field = fmt.Sprintf("ingest.sources[%s]", src.ID)
			if seen[src.ID] {
				errs = append(errs, fmt.Errorf("%s: duplicate source id", field))
			}
			seen[src.ID] = true
		}
		if src.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required", field))
		} else if u, err := url.Parse(src.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("%s.url must be an http(s) url", field))
		}
		if _, ok := limits[src.RateLimit]; !ok {
			errs = append(errs, fmt.Errorf("%s.rate_limit: unknown profile %q", field, src.RateLimit))
		}
		if _, ok := policies[src.Retry]; !ok {
			errs = append(errs, fmt.Errorf("%s.retry: unknown profile %q", field, src.Retry))
		}
		if _, err := feed.DecoderByName(src.Decoder); err != nil {
			errs = append(errs, fmt.Errorf("%s.decoder: %w", field, err))
		}
		if src.Limit < 0 {
			errs = append(errs, fmt.Errorf("%s.limit must be >= 0", field))
		}
		if src.Filter != "" {
			if _, err := filter.NewRule(src.Filter); err != nil {
				errs = append(errs, fmt.Errorf("%s.filter: %w", field, err))
			}
		}
	}
	return errors.Join(errs...)
}

// RateLimitConfigs merges the built-in profiles with the document's overrides.
func (d *Document) RateLimitConfigs() map[string]ratelimit.Config {
	out := RateLimitProfiles()
	for name, p := range d.Ingest.RateLimits {
		out[name] = ratelimit.Config{MaxRequests: p.MaxRequests, Window: p.Window.Std(), MinDelay: p.MinDelay.Std()}
	}
	return out
}

// RetryConfigs merges the retry presets with the document's profiles.
func (d *Document) RetryConfigs() map[string]retry.Config {
	out := retry.Presets()
	for name, p := range d.Ingest.RetryProfiles {
		out[name] = retry.Config{
			MaxAttempts:       p.MaxAttempts,
			InitialDelay:      p.InitialDelay.Std(),
			MaxDelay:          p.MaxDelay.Std(),
			BackoffMultiplier: p.BackoffMultiplier,
			JitterFactor:      p.JitterFactor,
		}
	}
	return out
}

// SourceLimits maps each source ID to the quota of its rate-limit profile.
func (d *Document) SourceLimits() map[string]ratelimit.Config {
	profiles := d.RateLimitConfigs()
	out := make(map[string]ratelimit.Config, len(d.Ingest.Sources))
	for _, src := range d.Ingest.Sources {
		out[src.ID] = profiles[src.RateLimit]
	}
	return out
}

// Pipeline builds the runnable pipeline. defaultTimeout applies to sources
// without their own timeout.
func (d *Document) Pipeline(defaultTimeout time.Duration) (*runner.Pipeline, error) {
	policies := d.RetryConfigs()
	pipeline := &runner.Pipeline{Name: d.Ingest.Name}
	for _, expression := range d.Ingest.Filters {
		rule, err := filter.NewRule(expression)
		if err != nil {
			return nil, err
		}
		pipeline.Filters = append(pipeline.Filters, rule)
	}
	for _, src := range d.Ingest.Sources {
		decoder, err := feed.DecoderByName(src.Decoder)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.ID, err)
		}
		policy, ok := policies[src.Retry]
		if !ok {
			return nil, fmt.Errorf("source %s: unknown retry profile %q", src.ID, src.Retry)
		}
		timeout := src.Timeout.Std()
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		spec := runner.SourceSpec{Source: jobfeed.Source{
			ID:        src.ID,
			URL:       src.URL,
			Retry:     policy,
			Decoder:   decoder,
			Timeout:   timeout,
			Limit:     src.Limit,
			StripHTML: src.StripHTML,
			Markdown:  src.Markdown,
		}}
		if src.Filter != "" {
			rule, err := filter.NewRule(src.Filter)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", src.ID, err)
			}
			spec.Filters = []*filter.Rule{rule}
		}
		pipeline.Sources = append(pipeline.Sources, spec)
	}
	return pipeline, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
