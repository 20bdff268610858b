package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SearchEntry is one cached provider response, keyed by
// (query, result count).
type SearchEntry struct {
	Query      string
	NumResults int
	Results    json.RawMessage
	CreatedAt  time.Time
}

const getSearchSQL = `
SELECT results_json, created_at
FROM search_cache
WHERE query = $1 AND num_results = $2
`

// GetSearch returns the cached payload for (query, numResults) when it
// is still within the TTL window. With a zero TTL every read misses;
// rows are still written so a later TTL raise can serve them.
func (s *Store) GetSearch(ctx context.Context, query string, numResults int) (json.RawMessage, bool, error) {
	if s.SearchTTL <= 0 {
		return nil, false, nil
	}
	var payload []byte
	var createdAt time.Time
	err := s.DB.QueryRowContext(ctx, getSearchSQL, query, numResults).Scan(&payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get search %q: %w", query, err)
	}
	if s.now().Sub(createdAt) > s.SearchTTL {
		return nil, false, nil
	}
	return payload, true, nil
}

const upsertSearchSQL = `
INSERT INTO search_cache (query, num_results, results_json, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (query, num_results) DO UPDATE SET
  results_json = EXCLUDED.results_json,
  created_at = EXCLUDED.created_at
`

// UpsertSearch inserts or fully replaces one cached response.
func (s *Store) UpsertSearch(ctx context.Context, e SearchEntry) error {
	created := e.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err := s.DB.ExecContext(ctx, upsertSearchSQL, e.Query, e.NumResults, []byte(e.Results), created)
	if err != nil {
		return fmt.Errorf("upsert search %q: %w", e.Query, err)
	}
	return nil
}

// BatchUpsertSearch writes all entries in one transaction: either the
// whole batch lands or none of it does. Returns the number written.
// (The crawl cache deliberately uses the opposite, best-effort
// policy.)
func (s *Store) BatchUpsertSearch(ctx context.Context, entries []SearchEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin search batch: %w", err)
	}
	for _, e := range entries {
		created := e.CreatedAt
		if created.IsZero() {
			created = s.now()
		}
		if _, err := tx.ExecContext(ctx, upsertSearchSQL, e.Query, e.NumResults, []byte(e.Results), created); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("upsert search %q: %w", e.Query, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit search batch: %w", err)
	}
	return len(entries), nil
}
