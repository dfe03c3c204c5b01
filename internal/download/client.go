// internal/download/client.go
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultTimeout   = 5 * time.Second
	DefaultMaxBytes  = 20 * 1024 * 1024
	DefaultUserAgent = "Mozilla/5.0"
)

var (
	ErrNotImage = errors.New("response is not an image")
	ErrTooLarge = errors.New("response exceeds size limit")
)

// Client fetches candidate images over HTTP.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	maxBytes  int64
	userAgent string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRate caps requests per second. Zero or less disables the limit.
func WithRate(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		} else {
			c.limiter = nil
		}
	}
}

func WithMaxBytes(n int64) Option {
	return func(c *Client) { c.maxBytes = n }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{Timeout: DefaultTimeout},
		maxBytes:  DefaultMaxBytes,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Image is a downloaded body with its sniffed MIME type.
type Image struct {
	URL      string
	MimeType string
	Data     []byte
}

// Fetch downloads url and returns its body when it looks like an image.
func (c *Client) Fetch(ctx context.Context, url string) (*Image, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, ErrTooLarge
	}

	mimeType := detectMime(body)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%w: %s", ErrNotImage, mimeType)
	}
	return &Image{URL: url, MimeType: mimeType, Data: body}, nil
}

// detectMime sniffs the type from content. WebP is recognised explicitly
// since older sniffers report it as octet-stream.
func detectMime(data []byte) string {
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP" {
		return "image/webp"
	}
	n := len(data)
	if n > 512 {
		n = 512
	}
	return http.DetectContentType(data[:n])
}
