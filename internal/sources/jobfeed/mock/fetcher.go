package mock

import (
	"context"
	"sync"

	"github.com/jobscout/ingest/internal/core"
	"github.com/jobscout/ingest/internal/sources/jobfeed"
)

type Fetcher struct {
	ListingsBySource map[string][]core.Listing
	ErrBySource      map[string]error

	mu    sync.Mutex
	Calls []string
}

func (f *Fetcher) Fetch(ctx context.Context, source jobfeed.Source) ([]core.Listing, error) {
	_ = ctx
	f.mu.Lock()
	f.Calls = append(f.Calls, source.ID)
	f.mu.Unlock()

	if err, ok := f.ErrBySource[source.ID]; ok {
		return nil, err
	}
	listings := f.ListingsBySource[source.ID]
	if source.Limit > 0 && len(listings) > source.Limit {
		return listings[:source.Limit], nil
	}
	return listings, nil
}

func (f *Fetcher) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
