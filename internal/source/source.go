// Package source finds candidate image URLs for a query.
package source

import (
	"context"
	"strings"

	"github.com/tendant/simple-curator/pkg/schema"
)

// Source yields candidate image URLs for a query. An unreachable source is
// an error; a query with no results is an empty list.
type Source interface {
	Fetch(ctx context.Context, query string, max int) ([]schema.Candidate, error)
	// Name is recorded as the manifest source of kept images.
	Name() string
}

// collector dedupes absolute http(s) URLs up to a cap.
type collector struct {
	query string
	max   int
	seen  map[string]struct{}
	out   []schema.Candidate
}

func newCollector(query string, max int) *collector {
	return &collector{query: query, max: max, seen: map[string]struct{}{}}
}

func (c *collector) full() bool { return c.max > 0 && len(c.out) >= c.max }

func (c *collector) add(raw string) {
	if c.full() {
		return
	}
	u := strings.TrimSpace(raw)
	lower := strings.ToLower(u)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return
	}
	if _, dup := c.seen[u]; dup {
		return
	}
	c.seen[u] = struct{}{}
	c.out = append(c.out, schema.Candidate{URL: u, Title: c.query})
}
