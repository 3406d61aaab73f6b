package dedupe

import (
	"context"
	"sync"
	"time"

	"github.com/jobscout/ingest/internal/core"
)

// MemoryStore is a process-local SeenStore, used when no database is configured.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[key]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryStore(ttl time.Duration, opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{seen: make(map[key]time.Time), ttl: ttl, now: o.now}
}

func (s *MemoryStore) Unseen(ctx context.Context, listings []core.Listing) ([]core.Listing, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make([]core.Listing, 0, len(listings))
	batch := make(map[key]struct{}, len(listings))
	for _, listing := range listings {
		k := keyOf(listing)
		if k.listing == "" {
			continue
		}
		if _, dup := batch[k]; dup {
			continue
		}
		batch[k] = struct{}{}
		if seenAt, ok := s.seen[k]; ok && !expired(seenAt, now, s.ttl) {
			continue
		}
		out = append(out, listing)
	}
	return out, nil
}

func (s *MemoryStore) MarkSeen(ctx context.Context, listings []core.Listing) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, listing := range listings {
		if k := keyOf(listing); k.listing != "" {
			s.seen[k] = now
		}
	}
	return nil
}

func (s *MemoryStore) Prune(ctx context.Context) (int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var removed int64
	for k, seenAt := range s.seen {
		if expired(seenAt, now, s.ttl) {
			delete(s.seen, k)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
