package jobfeed

import (
	"context"
	"time"

	"github.com/jobscout/ingest/internal/core"
	"github.com/jobscout/ingest/internal/feed"
	"github.com/jobscout/ingest/internal/retry"
)

// Source is one external job board feed and the policy used to pull it.
type Source struct {
	ID  string
	URL string
	// Retry is the backoff policy for the HTTP leg. A zero value means retry.Standard().
	Retry retry.Config
	// Decoder defaults to feed.Permissive.
	Decoder feed.Decoder
	Timeout time.Duration
	// Limit caps the number of listings taken from one fetch. Zero means no cap.
	Limit int
	// StripHTML reduces descriptions and content to plain text.
	StripHTML bool
	// Markdown converts descriptions and content to markdown. Takes precedence over StripHTML.
	Markdown bool
}

// Fetcher pulls a source and maps its items to listings.
type Fetcher interface {
	Fetch(ctx context.Context, source Source) ([]core.Listing, error)
}
