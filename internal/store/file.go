package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tendant/simple-curator/internal/jobs"
)

// File keeps every job in one JSON document, rewritten atomically on change.
type File struct {
	path string
	mu   sync.Mutex
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string { return f.path }

func (f *File) List(_ context.Context) ([]jobs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.load()
	if err != nil {
		return nil, err
	}
	return sortedJobs(m), nil
}

func (f *File) UpsertAll(_ context.Context, records []jobs.Job) error {
	if len(records) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.load()
	if err != nil {
		return err
	}
	for _, r := range records {
		m[r.ID] = r
	}
	return f.save(m)
}

func (f *File) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := m[id]; !ok {
		return nil
	}
	delete(m, id)
	return f.save(m)
}

func (f *File) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(map[string]jobs.Job{})
}

func (f *File) MigrateLegacyIfEmpty(_ context.Context, legacyPath string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.load()
	if err != nil {
		return 0, err
	}
	if len(m) > 0 {
		return 0, nil
	}
	legacy, err := LoadLegacy(legacyPath)
	if err != nil || len(legacy) == 0 {
		return 0, err
	}
	for _, j := range legacy {
		m[j.ID] = j
	}
	if err := f.save(m); err != nil {
		return 0, err
	}
	return len(legacy), nil
}

// Ping checks that the store's directory is reachable.
func (f *File) Ping(_ context.Context) error {
	dir := filepath.Dir(f.path)
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return os.MkdirAll(dir, 0o755)
		}
		return fmt.Errorf("stat store directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("store directory %s is not a directory", dir)
	}
	return nil
}

func (f *File) load() (map[string]jobs.Job, error) {
	m := map[string]jobs.Job{}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		return nil, fmt.Errorf("read file %s: %w", f.path, err)
	}
	if len(data) == 0 {
		return m, nil
	}

	var list []jobs.Job
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse JSON %s: %w", f.path, err)
	}
	for _, j := range list {
		m[j.ID] = j
	}
	return m, nil
}

func (f *File) save(m map[string]jobs.Job) error {
	data, err := json.MarshalIndent(sortedJobs(m), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON for %s: %w", f.path, err)
	}
	data = append(data, '\n')
	return writeAtomic(f.path, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".jobs-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("atomic rename for %s: %w", path, err)
	}
	return nil
}

func sortedJobs(m map[string]jobs.Job) []jobs.Job {
	out := make([]jobs.Job, 0, len(m))
	for _, j := range m {
		out = append(out, j)
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].StartedAt.Equal(out[b].StartedAt) {
			return out[a].StartedAt.After(out[b].StartedAt)
		}
		return out[a].ID < out[b].ID
	})
	return out
}
