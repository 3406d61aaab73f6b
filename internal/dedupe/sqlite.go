package dedupe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jobscout/ingest/internal/core"
)

const defaultSQLiteTable = "seen_listings"

// SQLiteStore persists seen listings across restarts. Timestamps are stored as
// unix nanoseconds.
type SQLiteStore struct {
	db         *sql.DB
	table      string
	tableIdent string
	ttl        time.Duration
	now        func() time.Time
}

func NewSQLiteStore(dsn string, table string, ttl time.Duration, opts ...Option) (*SQLiteStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}
	if ttl < 0 {
		return nil, fmt.Errorf("sqlite ttl must be >= 0")
	}
	if table == "" {
		table = defaultSQLiteTable
	}
	tableIdent, err := quoteSQLiteIdentifier(table)
	if err != nil {
		return nil, err
	}
	if err := ensureSQLiteDir(dsn); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	o := buildOptions(opts)
	store := &SQLiteStore{
		db:         db,
		table:      table,
		tableIdent: tableIdent,
		ttl:        ttl,
		now:        o.now,
	}
	if err := store.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Unseen(ctx context.Context, listings []core.Listing) ([]core.Listing, error) {
	if len(listings) == 0 {
		return nil, nil
	}
	stmt, err := s.db.PrepareContext(ctx, fmt.Sprintf(
		"SELECT last_seen_at FROM %s WHERE source_id = ? AND listing_id = ?", s.tableIdent))
	if err != nil {
		return nil, fmt.Errorf("prepare seen lookup: %w", err)
	}
	defer stmt.Close()

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

		var lastSeen int64
		err := stmt.QueryRowContext(ctx, k.source, k.listing).Scan(&lastSeen)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			out = append(out, listing)
		case err != nil:
			return nil, fmt.Errorf("lookup listing %s/%s: %w", k.source, k.listing, err)
		case expired(time.Unix(0, lastSeen), now, s.ttl):
			out = append(out, listing)
		}
	}
	return out, nil
}

func (s *SQLiteStore) MarkSeen(ctx context.Context, listings []core.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (source_id, listing_id, title, url, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, listing_id) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			last_seen_at = excluded.last_seen_at`, s.tableIdent))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	now := s.now().UnixNano()
	for _, listing := range listings {
		if listing.ID == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, listing.SourceID, listing.ID, listing.Title, listing.URL, now, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("mark listing %s/%s seen: %w", listing.SourceID, listing.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Prune(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.ttl).UnixNano()
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE last_seen_at < ?", s.tableIdent), cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune seen listings: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		source_id TEXT NOT NULL,
		listing_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		first_seen_at INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL,
		PRIMARY KEY (source_id, listing_id)
	)`, s.tableIdent)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create sqlite table: %w", err)
	}
	index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_last_seen_idx ON %s (last_seen_at)", s.table, s.tableIdent)
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("create sqlite index: %w", err)
	}
	return nil
}

func ensureSQLiteDir(dsn string) error {
	if strings.HasPrefix(dsn, "file:") {
		dsn = strings.TrimPrefix(dsn, "file:")
		if idx := strings.IndexRune(dsn, '?'); idx >= 0 {
			dsn = dsn[:idx]
		}
	}
	if dsn == "" || dsn == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

var sqliteIdentifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func quoteSQLiteIdentifier(identifier string) (string, error) {
	if !sqliteIdentifierPattern.MatchString(identifier) {
		return "", fmt.Errorf("sqlite table name %q must match %s", identifier, sqliteIdentifierPattern.String())
	}
	return `"` + identifier + `"`, nil
}
