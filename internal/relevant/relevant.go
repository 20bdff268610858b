// Package relevant holds the uniform search-result record shared by
// the retrieval pipeline and its normalization, dedup and rerank
// steps. URL is the natural identity of a record; ID is a dense
// presentation ordinal reassigned on every rerank.
package relevant

import "github.com/microcosm-cc/bluemonday"

// Info is one normalized web search result, optionally filled with a
// context passage extracted from the fetched page.
type Info struct {
	ID       int      `json:"id"`
	Keywords []string `json:"keywords"`
	Title    string   `json:"title"`
	URL      string   `json:"url"`
	SiteName string   `json:"site_name"`
	SiteIcon string   `json:"site_icon"`
	Date     string   `json:"date"`
	Snippet  string   `json:"snippet"`
	Context  string   `json:"context"`
}

var snippetPolicy = bluemonday.StrictPolicy()

// CleanSnippet strips the highlight markup some providers embed in
// snippets (<b>…</b> and friends).
func CleanSnippet(s string) string {
	return snippetPolicy.Sanitize(s)
}

// Deduplicate merges result lists by URL. The first occurrence of a
// URL wins; later occurrences only contribute their keywords, merged
// as a set. IDs are reassigned densely in the resulting order.
func Deduplicate(lists [][]Info) []Info {
	var order []string
	byURL := make(map[string]*Info)
	for _, list := range lists {
		for i := range list {
			info := list[i]
			kept, seen := byURL[info.URL]
			if !seen {
				copied := info
				copied.Keywords = uniqueKeywords(info.Keywords, nil)
				byURL[info.URL] = &copied
				order = append(order, info.URL)
				continue
			}
			kept.Keywords = uniqueKeywords(kept.Keywords, info.Keywords)
		}
	}
	out := make([]Info, 0, len(order))
	for _, u := range order {
		out = append(out, *byURL[u])
	}
	return Rerank(out)
}

// Rerank reassigns IDs 1..N in the current order.
func Rerank(list []Info) []Info {
	for i := range list {
		list[i].ID = i + 1
	}
	return list
}

// uniqueKeywords unions two keyword lists preserving first-seen order.
func uniqueKeywords(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, kw := range a {
		if _, ok := seen[kw]; !ok {
			seen[kw] = struct{}{}
			out = append(out, kw)
		}
	}
	for _, kw := range b {
		if _, ok := seen[kw]; !ok {
			seen[kw] = struct{}{}
			out = append(out, kw)
		}
	}
	return out
}
