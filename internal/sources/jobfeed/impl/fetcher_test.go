package impl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jobscout/ingest/internal/feed"
	"github.com/jobscout/ingest/internal/ratelimit"
	"github.com/jobscout/ingest/internal/retry"
	"github.com/jobscout/ingest/internal/sources/jobfeed"
)

const boardRSS = `<rss version="2.0"><channel><title>Board</title>
<item>
  <title>Go Engineer</title>
  <link>https://board.example/go</link>
  <guid>go-1</guid>
  <description><![CDATA[<p>Build things</p><li>Go</li>]]></description>
  <pubDate>Tue, 07 May 2024 09:00:00 +0000</pubDate>
  <category>Remote</category>
</item>
<item><title>Second</title><link>https://board.example/2</link></item>
<item><title>Only a title</title></item>
</channel></rss>`

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffMultiplier: 2}
}

func newRegistry() *ratelimit.Registry {
	return ratelimit.NewRegistry(nil, ratelimit.Config{MaxRequests: 100, Window: time.Minute})
}

func TestFetcherMapsItemsToListings(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, boardRSS)
	}))
	defer server.Close()

	fetchedAt := time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)
	fetcher := NewFetcher(newRegistry(), server.Client(), "", WithClock(func() time.Time { return fetchedAt }))

	listings, err := fetcher.Fetch(context.Background(), jobfeed.Source{
		ID:        "board",
		URL:       server.URL,
		Retry:     fastRetry(),
		StripHTML: true,
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(listings) != 3 {
		t.Fatalf("expected 3 listings, got %d", len(listings))
	}

	first := listings[0]
	if first.ID != "go-1" || first.SourceID != "board" || first.URL != "https://board.example/go" {
		t.Fatalf("unexpected listing %+v", first)
	}
	if first.Description != "Build things\n\n- Go" {
		t.Fatalf("expected stripped description, got %q", first.Description)
	}
	if want := time.Date(2024, 5, 7, 9, 0, 0, 0, time.UTC); !first.PublishedAt.Equal(want) {
		t.Fatalf("expected published at %s, got %s", want, first.PublishedAt)
	}
	if !first.FetchedAt.Equal(fetchedAt) {
		t.Fatalf("expected fetched at %s, got %s", fetchedAt, first.FetchedAt)
	}
	if listings[1].ID != "https://board.example/2" {
		t.Fatalf("expected link to be used as id, got %q", listings[1].ID)
	}
	if listings[2].ID != "board:Only a title" {
		t.Fatalf("expected title-based id, got %q", listings[2].ID)
	}
	if !listings[1].PublishedAt.IsZero() {
		t.Fatalf("expected zero published time without pubDate")
	}
}

func TestFetcherAppliesLimit(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, boardRSS)
	}))
	defer server.Close()

	listings, err := NewFetcher(newRegistry(), server.Client(), "").Fetch(context.Background(), jobfeed.Source{
		ID: "board", URL: server.URL, Retry: fastRetry(), Limit: 1,
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(listings))
	}
}

func TestFetcherRetriesTransientStatus(t *testing.T) {
	t.Parallel()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, boardRSS)
	}))
	defer server.Close()

	registry := newRegistry()
	listings, err := NewFetcher(registry, server.Client(), "").Fetch(context.Background(), jobfeed.Source{
		ID: "board", URL: server.URL, Retry: fastRetry(),
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(listings) != 3 {
		t.Fatalf("expected 3 listings, got %d", len(listings))
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
	if got := registry.For("board").RequestCount("board"); got != 2 {
		t.Fatalf("expected every attempt to consume a permit, got %d", got)
	}
}

func TestFetcherDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewFetcher(newRegistry(), server.Client(), "").Fetch(context.Background(), jobfeed.Source{
		ID: "board", URL: server.URL, Retry: fastRetry(),
	})

	var statusErr *feed.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 status error, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected a single request, got %d", got)
	}
}

func TestFetcherSurfacesLastErrorAfterRetries(t *testing.T) {
	t.Parallel()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewFetcher(newRegistry(), server.Client(), "").Fetch(context.Background(), jobfeed.Source{
		ID: "board", URL: server.URL, Retry: fastRetry(),
	})

	var retryErr *retry.Error
	if !errors.As(err, &retryErr) || retryErr.Attempts != 3 {
		t.Fatalf("expected retry error after 3 attempts, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Fatalf("expected 3 requests, got %d", got)
	}
}

func TestFetcherRecordsSpan(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, boardRSS)
	}))
	defer server.Close()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	fetcher := NewFetcher(newRegistry(), server.Client(), "", WithTracerProvider(tp))

	if _, err := fetcher.Fetch(context.Background(), jobfeed.Source{ID: "board", URL: server.URL, Retry: fastRetry()}); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "jobfeed.fetch" {
		t.Fatalf("unexpected span name %q", spans[0].Name())
	}
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs["source.id"].AsString() != "board" {
		t.Fatalf("expected source.id attribute, got %v", attrs)
	}
	if attrs["feed.items"].AsInt64() != 3 {
		t.Fatalf("expected feed.items=3, got %v", attrs["feed.items"])
	}
}

func TestFetcherRequiresIDAndURL(t *testing.T) {
	t.Parallel()
	if _, err := NewFetcher(nil, nil, "").Fetch(context.Background(), jobfeed.Source{ID: "x"}); err == nil {
		t.Fatalf("expected missing url to fail")
	}
}

func TestParsePubDate(t *testing.T) {
	t.Parallel()
	cases := map[string]time.Time{
		"Tue, 07 May 2024 09:00:00 +0000": time.Date(2024, 5, 7, 9, 0, 0, 0, time.UTC),
		"2024-05-07T11:00:00+02:00":       time.Date(2024, 5, 7, 9, 0, 0, 0, time.UTC),
		"Tue, 7 May 2024 09:00:00 +0000":  time.Date(2024, 5, 7, 9, 0, 0, 0, time.UTC),
		"2024-05-07":                      time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC),
		"yesterday":                       {},
		"":                                {},
	}
	for in, want := range cases {
		if got := parsePubDate(in); !got.Equal(want) {
			t.Fatalf("parsePubDate(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestFetcherConvertsMarkdown(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<rss><channel><item><title>Lead</title><link>https://board.example/lead</link>`+
			`<description><![CDATA[<p><strong>Lead Engineer</strong></p>]]></description></item></channel></rss>`)
	}))
	defer server.Close()

	listings, err := NewFetcher(newRegistry(), server.Client(), "").Fetch(context.Background(), jobfeed.Source{
		ID: "board", URL: server.URL, Retry: fastRetry(), Markdown: true, StripHTML: true,
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(listings) != 1 || listings[0].Description != "**Lead Engineer**" {
		t.Fatalf("expected markdown description, got %+v", listings)
	}
}

func TestFetcherStrictDecoderConcurrentFetches(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, boardRSS)
	}))
	defer server.Close()

	fetcher := NewFetcher(newRegistry(), server.Client(), "")
	source := jobfeed.Source{ID: "board", URL: server.URL, Retry: fastRetry(), Decoder: feed.NewStrict()}

	var wg sync.WaitGroup
	counts := make([]int, 8)
	errs := make([]error, 8)
	for i := range counts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			listings, err := fetcher.Fetch(context.Background(), source)
			counts[i], errs[i] = len(listings), err
		}(i)
	}
	wg.Wait()
	for i := range counts {
		if errs[i] != nil {
			t.Fatalf("fetch %d error = %v", i, errs[i])
		}
		if counts[i] != 3 {
			t.Fatalf("fetch %d: expected 3 listings, got %d", i, counts[i])
		}
	}
}

func TestPublishedAtPrefersDecodedTime(t *testing.T) {
	t.Parallel()
	decoded := time.Date(2024, 5, 7, 11, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	raw := "Mon, 01 Jan 2024 00:00:00 +0000"

	got := publishedAt(feed.Item{PublishedAt: &decoded, PubDate: &raw})
	if want := time.Date(2024, 5, 7, 9, 0, 0, 0, time.UTC); !got.Equal(want) || got.Location() != time.UTC {
		t.Fatalf("expected decoded time %s in UTC, got %s", want, got)
	}
	if got := publishedAt(feed.Item{PubDate: &raw}); !got.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected raw pubDate fallback, got %s", got)
	}
}
