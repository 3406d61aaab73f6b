package dedupe

import (
	"context"
	"time"

	"github.com/jobscout/ingest/internal/core"
)

// SeenStore remembers which listings earlier runs already emitted. Listings
// are keyed by source and listing ID, so two boards reusing an ID don't collide.
type SeenStore interface {
	// Unseen returns the listings not seen within the store's TTL, in input order.
	Unseen(ctx context.Context, listings []core.Listing) ([]core.Listing, error)
	MarkSeen(ctx context.Context, listings []core.Listing) error
	// Prune drops entries older than the TTL and reports how many were removed.
	Prune(ctx context.Context) (int64, error)
	Close() error
}

type Option func(*options)

type options struct {
	now func() time.Time
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type key struct {
	source  string
	listing string
}

func keyOf(l core.Listing) key {
	return key{source: l.SourceID, listing: l.ID}
}

// expired reports whether an entry last seen at seenAt has aged out.
func expired(seenAt, now time.Time, ttl time.Duration) bool {
	return ttl > 0 && seenAt.Before(now.Add(-ttl))
}
