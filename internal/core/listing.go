package core

import "time"

// Listing is a single job posting pulled from an external source, normalised
// so downstream dedupe and storage don't need to know which board it came from.
type Listing struct {
	ID          string            `json:"id" yaml:"id"`
	SourceID    string            `json:"source_id" yaml:"source_id"`
	Title       string            `json:"title" yaml:"title"`
	URL         string            `json:"url" yaml:"url"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Content     string            `json:"content,omitempty" yaml:"content,omitempty"`
	Author      string            `json:"author,omitempty" yaml:"author,omitempty"`
	Categories  []string          `json:"categories,omitempty" yaml:"categories,omitempty"`
	Extra       map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
	PublishedAt time.Time         `json:"published_at" yaml:"published_at"`
	FetchedAt   time.Time         `json:"fetched_at" yaml:"fetched_at"`
}

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// SourceResult summarises what one source produced during a run.
type SourceResult struct {
	SourceID string        `json:"source_id"`
	Fetched  int           `json:"fetched"`
	Kept     int           `json:"kept"`
	New      int           `json:"new"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Run is one pass over every configured source.
type Run struct {
	ID          string         `json:"id"`
	Pipeline    string         `json:"pipeline"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Status      RunStatus      `json:"status"`
	Sources     []SourceResult `json:"sources"`
	Listings    []Listing      `json:"listings,omitempty"`
}

// Failed returns the results of sources that errored.
func (r *Run) Failed() []SourceResult {
	if r == nil {
		return nil
	}
	var out []SourceResult
	for _, res := range r.Sources {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// TriggerEvent represents a trigger firing
type TriggerEvent struct {
	Pipeline  string
	Timestamp time.Time
}
