package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tendant/simple-curator/internal/jobs"
)

// legacyRecord is one entry of the old jobs.json history file. Every field
// may be missing or null.
type legacyRecord struct {
	ID         string  `json:"id"`
	Query      *string `json:"query"`
	Limit      *int    `json:"limit"`
	OutDir     *string `json:"out_dir"`
	Status     *string `json:"status"`
	Count      *int    `json:"count"`
	Error      *string `json:"error"`
	Log        *string `json:"log"`
	StartedAt  *string `json:"started_at"`
	FinishedAt *string `json:"finished_at"`
}

// LoadLegacy reads a jobs.json history file. A missing file yields no jobs.
func LoadLegacy(path string) ([]jobs.Job, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read legacy jobs %s: %w", path, err)
	}

	var raw []legacyRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse legacy jobs %s: %w", path, err)
	}

	out := make([]jobs.Job, 0, len(raw))
	for _, r := range raw {
		if r.ID == "" {
			continue
		}
		out = append(out, r.toJob())
	}
	return out, nil
}

func (r legacyRecord) toJob() jobs.Job {
	j := jobs.Job{
		ID:     r.ID,
		Query:  deref(r.Query),
		OutDir: deref(r.OutDir),
		Status: jobs.StatusCancelled,
		Error:  deref(r.Error),
		Log:    deref(r.Log),
	}
	if r.Limit != nil {
		j.Limit = *r.Limit
	}
	if r.Status != nil && *r.Status != "" {
		j.Status = jobs.Status(*r.Status)
	}
	if r.StartedAt != nil {
		if t, err := parseTimestamp(*r.StartedAt); err == nil {
			j.StartedAt = t
		}
	}
	if r.FinishedAt != nil {
		if t, err := parseTimestamp(*r.FinishedAt); err == nil {
			j.FinishedAt = &t
		}
	}
	if j.Status == jobs.StatusDone && r.Count != nil {
		c := *r.Count
		j.Count = &c
	}
	if j.Terminal() && j.FinishedAt == nil {
		at := j.StartedAt
		if at.IsZero() {
			at = time.Unix(0, 0)
		}
		j.FinishedAt = &at
	}
	return j
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
