package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/tendant/simple-curator/pkg/schema"
)

const (
	DefaultSearchURL = "https://search.naver.com/search.naver?where=image&query={query}"
	DefaultName      = "naver"

	maxPageBytes = 10 * 1024 * 1024
)

// Selectors are tried in order; the first one matching any element wins.
var DefaultSelectors = []string{
	".image_tile_item img",
	"img._image._listImage",
	"img._img",
	".photowall img",
	"div.photowall._photoGridWrapper img",
	".photo_bx img",
	"a.thumb._thumb img",
	"#_sau_imageTab img[data-lazy-src]",
	"#_sau_imageTab img[data-source]",
	"#_sau_imageTab img[src*='http']",
	"img[data-lazy-src]",
	"img[data-source]",
	"img[src^='https://']",
}

// Attributes are read in order; the first non-empty one is the image URL.
var DefaultAttributes = []string{"data-lazy-src", "data-src", "data-source", "src"}

// HTML scrapes image URLs from a search results page.
type HTML struct {
	// SearchURL contains {query}, replaced by the escaped query.
	SearchURL  string
	SourceName string
	Selectors  []string
	Attributes []string
	UserAgent  string
	Client     *http.Client
}

func NewHTML(searchURL, name string) *HTML {
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	if name == "" {
		name = DefaultName
	}
	return &HTML{
		SearchURL:  searchURL,
		SourceName: name,
		Selectors:  DefaultSelectors,
		Attributes: DefaultAttributes,
		UserAgent:  "Mozilla/5.0",
		Client:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (h *HTML) Name() string { return h.SourceName }

func (h *HTML) Fetch(ctx context.Context, query string, max int) ([]schema.Candidate, error) {
	target := strings.ReplaceAll(h.SearchURL, "{query}", url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", h.UserAgent)

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch search page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, target)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return h.Extract(body, query, max)
}

// Extract pulls candidates out of a results page.
func (h *HTML) Extract(page []byte, query string, max int) ([]schema.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	var imgs *goquery.Selection
	for _, sel := range h.Selectors {
		if found := doc.Find(sel); found.Length() > 0 {
			imgs = found
			break
		}
	}
	if imgs == nil {
		return nil, nil
	}

	c := newCollector(query, max)
	imgs.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		c.add(h.imageURL(s))
		return !c.full()
	})
	return c.out, nil
}

func (h *HTML) imageURL(s *goquery.Selection) string {
	for _, attr := range h.Attributes {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
