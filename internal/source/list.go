package source

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tendant/simple-curator/pkg/schema"
)

// List serves a fixed set of URLs regardless of the query.
type List struct {
	SourceName string
	URLs       []string
}

func (l *List) Name() string {
	if l.SourceName == "" {
		return "list"
	}
	return l.SourceName
}

func (l *List) Fetch(_ context.Context, query string, max int) ([]schema.Candidate, error) {
	c := newCollector(query, max)
	for _, u := range l.URLs {
		if c.full() {
			break
		}
		c.add(u)
	}
	return c.out, nil
}

// LoadList reads one URL per line. Blank lines and lines starting with # are
// skipped.
func LoadList(path, name string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url list: %w", err)
	}
	defer f.Close()

	l := &List{SourceName: name}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		l.URLs = append(l.URLs, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read url list: %w", err)
	}
	return l, nil
}
