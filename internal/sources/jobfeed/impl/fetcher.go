package impl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jobscout/ingest/internal/core"
	"github.com/jobscout/ingest/internal/feed"
	"github.com/jobscout/ingest/internal/ratelimit"
	"github.com/jobscout/ingest/internal/retry"
	"github.com/jobscout/ingest/internal/sources/jobfeed"
)

const tracerName = "github.com/jobscout/ingest/internal/sources/jobfeed"

// pubDateLayouts are tried against raw pubDate text from decoders that do not
// parse dates themselves.
var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

type Option func(*Fetcher)

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(f *Fetcher) {
		if tp != nil {
			f.tracer = tp.Tracer(tracerName)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
	}
}

// Fetcher pulls job feeds politely: every HTTP attempt takes a permit from the
// source's limiter, and transient failures are retried with backoff.
type Fetcher struct {
	limits   *ratelimit.Registry
	client   *feed.Client
	renderer *jobfeed.Renderer
	tracer   trace.Tracer
	now      func() time.Time
}

func NewFetcher(limits *ratelimit.Registry, httpClient *http.Client, userAgent string, opts ...Option) *Fetcher {
	if limits == nil {
		limits = ratelimit.NewRegistry(nil, ratelimit.Config{MaxRequests: 5, Window: time.Minute})
	}
	f := &Fetcher{
		limits: limits,
		client:   feed.NewClient(httpClient, userAgent, nil),
		renderer: jobfeed.NewRenderer(),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) Fetch(ctx context.Context, source jobfeed.Source) ([]core.Listing, error) {
	if strings.TrimSpace(source.ID) == "" || strings.TrimSpace(source.URL) == "" {
		return nil, fmt.Errorf("jobfeed: source id and url are required")
	}
	ctx = core.WithSourceID(ctx, source.ID)
	ctx, span := f.tracer.Start(ctx, "jobfeed.fetch", trace.WithAttributes(
		attribute.String("source.id", source.ID),
		attribute.String("feed.url", source.URL),
	))
	defer span.End()

	listings, err := f.fetch(ctx, source, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("feed.items", len(listings)))
	return listings, nil
}

func (f *Fetcher) fetch(ctx context.Context, source jobfeed.Source, span trace.Span) ([]core.Listing, error) {
	policy := source.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.Standard()
	}
	attempts := 0
	userHook := policy.OnRetry
	policy.OnRetry = func(e retry.Event) {
		span.AddEvent("retry", trace.WithAttributes(
			attribute.Int("attempt", e.Attempt),
			attribute.Int64("delay_ms", e.Delay.Milliseconds()),
			attribute.String("error", e.Err.Error()),
		))
		if userHook != nil {
			userHook(e)
		}
	}

	limiter := f.limits.For(source.ID)
	opts := feed.Options{Timeout: source.Timeout}
	body, err := retry.DoValue(ctx, policy, func(ctx context.Context) (string, error) {
		return ratelimit.ExecuteValue(ctx, limiter, source.ID, func(ctx context.Context) (string, error) {
			attempts++
			body, err := f.client.Fetch(ctx, source.URL, opts)
			var statusErr *feed.StatusError
			if errors.As(err, &statusErr) && !statusErr.Transient() {
				return "", retry.Permanent(err)
			}
			return body, err
		})
	})
	span.SetAttributes(attribute.Int("http.attempts", attempts))
	if err != nil {
		return nil, fmt.Errorf("fetch source %s: %w", source.ID, err)
	}

	decoder := source.Decoder
	if decoder == nil {
		decoder = feed.Permissive{}
	}
	parsed, err := decoder.Decode(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("decode source %s: %w", source.ID, err)
	}
	return f.toListings(ctx, source, parsed), nil
}

func (f *Fetcher) toListings(ctx context.Context, source jobfeed.Source, parsed feed.Feed) []core.Listing {
	fetchedAt := f.now().UTC()
	format := jobfeed.FormatFor(source)

	limit := source.Limit
	if limit <= 0 {
		limit = len(parsed.Items)
	}
	listings := make([]core.Listing, 0, limit)
	for _, item := range parsed.Items {
		if len(listings) >= limit {
			break
		}
		listing := core.Listing{
			ID:          listingID(source.ID, item),
			SourceID:    source.ID,
			Title:       item.Title,
			URL:         item.Link,
			Description: f.renderer.Render(ctx, format, deref(item.Description)),
			Content:     f.renderer.Render(ctx, format, deref(item.Content)),
			Author:      deref(item.Author),
			Categories:  item.Categories,
			Extra:       item.Extra,
			PublishedAt: publishedAt(item),
			FetchedAt:   fetchedAt,
		}
		listings = append(listings, listing)
	}
	return listings
}

// listingID prefers the guid, then the link. Title-only items are keyed by
// source and title so they can still be deduplicated.
func listingID(sourceID string, item feed.Item) string {
	if id := deref(item.GUID); id != "" {
		return id
	}
	if item.Link != "" {
		return item.Link
	}
	return sourceID + ":" + item.Title
}

// publishedAt uses the decoder's parsed time when it has one and otherwise
// parses the raw pubDate.
func publishedAt(item feed.Item) time.Time {
	if item.PublishedAt != nil {
		return item.PublishedAt.UTC()
	}
	return parsePubDate(deref(item.PubDate))
}

func parsePubDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
