// Package store owns the two durable caches behind the retrieval
// pipeline: the crawl cache (per-URL extracted content, permanent) and
// the search cache (per-(query, result count) provider payloads with a
// TTL). Both live in Postgres; all mutation goes through atomic
// upserts.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
)

type Store struct {
	DB *sql.DB

	// SearchTTL is the freshness window for cached search results.
	// Zero or negative disables reads (every Get misses) while writes
	// still land; this is a supported operating mode.
	SearchTTL time.Duration

	Logger *log.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New opens a Postgres connection pool and verifies it.
func New(ctx context.Context, dsn string, searchTTL time.Duration, logger *log.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewWithDB(db, searchTTL, logger), nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db *sql.DB, searchTTL time.Duration, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(log.Writer(), "[STORE] ", log.LstdFlags)
	}
	return &Store{DB: db, SearchTTL: searchTTL, Logger: logger, now: time.Now}
}

func (s *Store) Close() error { return s.DB.Close() }
