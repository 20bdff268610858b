package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/deepchat/deepchat/internal/relevant"
)

// CrawlEntry is one row of the crawl cache, keyed by URL. Entries are
// permanent until overwritten; keywords only ever grow.
type CrawlEntry struct {
	URL      string
	Keywords []string
	Title    string
	SiteName string
	SiteIcon string
	Date     string
	Snippet  string
	Context  string
}

// CrawlEntryFromInfo drops the presentation ordinal and carries the
// rest of a pipeline record into the cache shape.
func CrawlEntryFromInfo(info relevant.Info) CrawlEntry {
	return CrawlEntry{
		URL:      info.URL,
		Keywords: info.Keywords,
		Title:    info.Title,
		SiteName: info.SiteName,
		SiteIcon: info.SiteIcon,
		Date:     info.Date,
		Snippet:  info.Snippet,
		Context:  info.Context,
	}
}

// Info converts a cached row back into a pipeline record (ID unset).
func (e CrawlEntry) Info() relevant.Info {
	return relevant.Info{
		Keywords: e.Keywords,
		Title:    e.Title,
		URL:      e.URL,
		SiteName: e.SiteName,
		SiteIcon: e.SiteIcon,
		Date:     e.Date,
		Snippet:  e.Snippet,
		Context:  e.Context,
	}
}

const upsertCrawlSQL = `
INSERT INTO crawl_cache (url, keywords, title, site_name, site_icon, date, snippet, context)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (url) DO UPDATE SET
  keywords = ARRAY(SELECT DISTINCT kw FROM unnest(crawl_cache.keywords || EXCLUDED.keywords) AS kw),
  title = EXCLUDED.title,
  site_name = EXCLUDED.site_name,
  site_icon = EXCLUDED.site_icon,
  date = EXCLUDED.date,
  snippet = EXCLUDED.snippet,
  context = EXCLUDED.context
`

// UpsertCrawl inserts or replaces one crawl row. Keywords become the
// union of the stored and incoming sets (done inside the statement, so
// the merge is atomic per key); every other field is replaced.
func (s *Store) UpsertCrawl(ctx context.Context, e CrawlEntry) error {
	_, err := s.DB.ExecContext(ctx, upsertCrawlSQL,
		e.URL, pq.Array(e.Keywords), e.Title, e.SiteName, e.SiteIcon, e.Date, e.Snippet, e.Context)
	if err != nil {
		return fmt.Errorf("upsert crawl %s: %w", e.URL, err)
	}
	return nil
}

// BatchUpsertCrawl writes entries best-effort: each row is its own
// upsert, failures are logged, and earlier successes survive a later
// failure. Returns the number of rows written. (The search cache
// deliberately uses the opposite, all-or-nothing policy.)
func (s *Store) BatchUpsertCrawl(ctx context.Context, entries []CrawlEntry) int {
	ok := 0
	for _, e := range entries {
		if err := s.UpsertCrawl(ctx, e); err != nil {
			s.Logger.Printf("batch upsert: %v", err)
			continue
		}
		ok++
	}
	return ok
}

const getCrawlSQL = `
SELECT url, keywords, title, site_name, site_icon, date, snippet, context
FROM crawl_cache
WHERE url = $1
`

// GetCrawl returns the cached entry for url, if any.
func (s *Store) GetCrawl(ctx context.Context, url string) (CrawlEntry, bool, error) {
	var e CrawlEntry
	var keywords pq.StringArray
	err := s.DB.QueryRowContext(ctx, getCrawlSQL, url).Scan(
		&e.URL, &keywords, &e.Title, &e.SiteName, &e.SiteIcon, &e.Date, &e.Snippet, &e.Context)
	if errors.Is(err, sql.ErrNoRows) {
		return CrawlEntry{}, false, nil
	}
	if err != nil {
		return CrawlEntry{}, false, fmt.Errorf("get crawl %s: %w", url, err)
	}
	e.Keywords = []string(keywords)
	return e, true, nil
}
