// Package engine supervises collection runs. It owns the in-memory job
// table, persists every transition through a store.Repository and runs each
// accepted job as a supervised unit on a bounded pool.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tendant/simple-curator/internal/jobs"
	"github.com/tendant/simple-curator/internal/metrics"
	"github.com/tendant/simple-curator/internal/store"
	"github.com/tendant/simple-curator/internal/supervise"
)

const (
	defaultPerPage = 10
	maxPerPage     = 100
	flushTimeout   = 5 * time.Second
	idAttempts     = 16
)

// entry is the runtime side of one job. mu guards every field and is held
// across "read status, signal unit" so a signal never races the unit being
// cleared.
type entry struct {
	mu      sync.Mutex
	job     jobs.Job
	unit    supervise.Unit
	cancel  chan struct{}
	reason  string
	deleted bool
}

func newEntry(j jobs.Job) *entry {
	return &entry{job: j, cancel: make(chan struct{})}
}

// requestCancel must be called with mu held.
func (ent *entry) requestCancel(reason string) {
	if ent.job.CancelRequested {
		return
	}
	ent.job.CancelRequested = true
	ent.reason = reason
	close(ent.cancel)
	if ent.unit != nil {
		ent.unit.Terminate()
	}
}

func (ent *entry) cancelReason() string {
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.reason == "" {
		return jobs.ReasonCancelled
	}
	return ent.reason
}

type Engine struct {
	cfg      Config
	root     string
	repo     store.Repository
	runner   supervise.Runner
	logger   *slog.Logger
	notifier Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
	newID    func() string

	mu      sync.RWMutex
	entries map[string]*entry
	closing bool

	sem chan struct{}
	wg  sync.WaitGroup
}

// Page is one slice of the job list, newest first.
type Page struct {
	Jobs    []jobs.Job
	Total   int
	Page    int
	PerPage int
}

// Open loads every persisted job and reconciles the ones a previous process
// left running. A store failure here is returned.
func Open(ctx context.Context, repo store.Repository, runner supervise.Runner, opts ...Option) (*Engine, error) {
	e := &Engine{
		repo:    repo,
		runner:  runner,
		logger:  slog.Default(),
		now:     time.Now,
		newID:   shortID,
		entries: map[string]*entry{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cfg = e.cfg.withDefaults()
	e.sem = make(chan struct{}, e.cfg.Workers)

	root, err := filepath.Abs(e.cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if real, err := filepath.EvalSymlinks(root); err == nil {
		root = real
	}
	e.root = root

	if e.cfg.LegacyPath != "" {
		n, err := repo.MigrateLegacyIfEmpty(ctx, e.cfg.LegacyPath)
		if err != nil {
			return nil, fmt.Errorf("migrate legacy jobs: %w", err)
		}
		if n > 0 {
			e.logger.Info("migrated legacy jobs", "count", n, "path", e.cfg.LegacyPath)
		}
	}

	list, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	now := e.now()
	var changed []jobs.Job
	for _, j := range list {
		if jobs.Reconcile(&j, now) {
			changed = append(changed, j)
		}
		e.entries[j.ID] = newEntry(j)
	}
	if len(changed) > 0 {
		if err := repo.UpsertAll(ctx, changed); err != nil {
			return nil, fmt.Errorf("persist reconciled jobs: %w", err)
		}
		e.logger.Warn("reconciled interrupted jobs", "count", len(changed))
	}
	e.logger.Info("job engine ready", "jobs", len(list), "workers", e.cfg.Workers, "root", e.root)
	return e, nil
}

// Submit validates a request, persists a running job and schedules it. It
// never waits for the run.
func (e *Engine) Submit(ctx context.Context, query string, limit int, outBase string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ValidationError{Field: "query", Message: "query is required"}
	}
	if limit < 1 || limit > e.cfg.MaxLimit {
		return "", ValidationError{Field: "limit", Message: fmt.Sprintf("limit must be between 1 and %d", e.cfg.MaxLimit)}
	}
	base := strings.TrimSpace(outBase)
	if base == "" {
		base = e.cfg.DefaultOutBase
	}
	base = filepath.Clean(base)
	if !filepath.IsLocal(base) {
		return "", ValidationError{Field: "out_dir", Message: "output directory must be relative to the project root"}
	}

	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		return "", ErrClosed
	}
	id, err := e.allocateID()
	if err != nil {
		e.mu.Unlock()
		return "", err
	}
	job := jobs.New(id, query, limit, filepath.Join(base, id), e.now())
	if err := e.repo.UpsertAll(ctx, []jobs.Job{job}); err != nil {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	ent := newEntry(job)
	e.entries[id] = ent
	e.wg.Add(1)
	e.mu.Unlock()

	e.logger.Info("job submitted", "job_id", id, "query", query, "limit", limit, "out_dir", job.OutDir)
	e.publish(job)
	e.metrics.JobSubmitted()

	req := supervise.Request{JobID: id, Query: query, Limit: limit, OutDir: e.abs(job.OutDir)}
	go e.run(ent, req)
	return id, nil
}

// allocateID must be called with e.mu held.
func (e *Engine) allocateID() (string, error) {
	for i := 0; i < idAttempts; i++ {
		id := e.newID()
		if _, taken := e.entries[id]; id != "" && !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("allocate job id: %d collisions", idAttempts)
}

// Cancel requests cancellation of a running job. Cancelling a finished job
// is a no-op.
func (e *Engine) Cancel(id string) error {
	ent := e.lookup(id)
	if ent == nil {
		return ErrNotFound
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.job.Terminal() {
		return nil
	}
	ent.requestCancel(jobs.ReasonCancelled)
	e.logger.Info("cancel requested", "job_id", id)
	return nil
}

func (e *Engine) Get(ctx context.Context, id string) (jobs.Job, error) {
	if err := e.repo.Ping(ctx); err != nil {
		return jobs.Job{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	ent := e.lookup(id)
	if ent == nil {
		return jobs.Job{}, ErrNotFound
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return ent.job.Clone(), nil
}

// List returns one page of jobs ordered by start time, newest first. A page
// past the end is empty.
func (e *Engine) List(ctx context.Context, page, perPage int) (Page, error) {
	if err := e.repo.Ping(ctx); err != nil {
		return Page{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	all := e.snapshot()
	sort.Slice(all, func(i, j int) bool {
		if !all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].StartedAt.After(all[j].StartedAt)
		}
		return all[i].ID < all[j].ID
	})

	out := Page{Total: len(all), Page: page, PerPage: perPage, Jobs: []jobs.Job{}}
	start := (page - 1) * perPage
	if start >= len(all) {
		return out, nil
	}
	end := min(start+perPage, len(all))
	out.Jobs = all[start:end]
	return out, nil
}

// Delete removes a job record. Files already written stay on disk.
// Deleting a queued or running job also stops its collection: the unit is
// signalled like a cancel and whatever it produces afterwards is discarded.
func (e *Engine) Delete(ctx context.Context, id string) error {
	ent := e.lookup(id)
	if ent == nil {
		return ErrNotFound
	}
	ent.mu.Lock()
	if err := e.repo.Delete(ctx, id); err != nil {
		ent.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	ent.deleted = true
	if !ent.job.Terminal() {
		ent.requestCancel(jobs.ReasonCancelled)
	}
	ent.mu.Unlock()

	e.mu.Lock()
	if e.entries[id] == ent {
		delete(e.entries, id)
	}
	e.mu.Unlock()
	e.logger.Info("job deleted", "job_id", id)
	return nil
}

// Clear removes every job record. Files already written stay on disk.
// Every queued or running collection is stopped, as with Delete.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	locked := make([]*entry, 0, len(e.entries))
	for _, ent := range e.entries {
		ent.mu.Lock()
		locked = append(locked, ent)
	}
	err := e.repo.Clear(ctx)
	for _, ent := range locked {
		if err == nil {
			ent.deleted = true
			if !ent.job.Terminal() {
				ent.requestCancel(jobs.ReasonCancelled)
			}
		}
		ent.mu.Unlock()
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	e.entries = map[string]*entry{}
	e.logger.Info("jobs cleared", "count", len(locked))
	return nil
}

// Shutdown stops accepting jobs, cancels running ones and waits for them
// until ctx ends. Jobs still running after that are recorded as cancelled.
// Every known job is written to the store before Shutdown returns.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closing = true
	e.mu.Unlock()

	for _, ent := range e.entryList() {
		ent.mu.Lock()
		if !ent.job.Terminal() {
			ent.requestCancel(jobs.ReasonShutdown)
		}
		ent.mu.Unlock()
	}

	idle := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(idle)
	}()
	var waitErr error
	select {
	case <-idle:
	case <-ctx.Done():
		waitErr = ctx.Err()
		e.logger.Warn("shutdown deadline reached with runs in flight")
	}

	at := e.now()
	var flush []jobs.Job
	for _, ent := range e.entryList() {
		ent.mu.Lock()
		if !ent.deleted {
			if !ent.job.Terminal() {
				if ent.unit != nil {
					ent.unit.Kill()
					ent.unit = nil
				}
				jobs.MarkCancelled(&ent.job, jobs.ReasonShutdown, ent.job.Log, at)
			}
			flush = append(flush, ent.job.Clone())
		}
		ent.mu.Unlock()
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	if err := e.repo.UpsertAll(fctx, flush); err != nil {
		return fmt.Errorf("flush jobs: %w", err)
	}
	e.logger.Info("job engine stopped", "flushed", len(flush))
	return waitErr
}

func (e *Engine) lookup(id string) *entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.entries[id]
}

func (e *Engine) entryList() []*entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*entry, 0, len(e.entries))
	for _, ent := range e.entries {
		out = append(out, ent)
	}
	return out
}

func (e *Engine) snapshot() []jobs.Job {
	ents := e.entryList()
	out := make([]jobs.Job, 0, len(ents))
	for _, ent := range ents {
		ent.mu.Lock()
		out = append(out, ent.job.Clone())
		ent.mu.Unlock()
	}
	return out
}

func (e *Engine) publish(j jobs.Job) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(j.Event(e.now()))
}

// abs resolves a job directory against the project root.
func (e *Engine) abs(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(e.root, dir)
}
