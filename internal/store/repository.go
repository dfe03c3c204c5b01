// Package store persists job records.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tendant/simple-curator/internal/jobs"
)

// Repository is the durable home of job records. Implementations must be
// safe for concurrent use.
type Repository interface {
	List(ctx context.Context) ([]jobs.Job, error)
	// UpsertAll writes every given record atomically.
	UpsertAll(ctx context.Context, records []jobs.Job) error
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	// MigrateLegacyIfEmpty imports legacyPath when the store holds no jobs.
	// It returns the number of imported records.
	MigrateLegacyIfEmpty(ctx context.Context, legacyPath string) (int, error)
	Ping(ctx context.Context) error
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// formatTimestamp is the text form used by every backend.
func formatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// parseTimestamp accepts RFC 3339 and naive ISO-8601 values. Naive values
// are read in local time.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
