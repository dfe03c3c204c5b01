package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/tendant/simple-curator/internal/curate"
	"github.com/tendant/simple-curator/internal/jobs"
	"github.com/tendant/simple-curator/internal/supervise"
)

type transition func(j *jobs.Job, at time.Time)

func done(count int, log string) transition {
	return func(j *jobs.Job, at time.Time) { jobs.MarkDone(j, count, log, at) }
}

func failed(reason, log string) transition {
	return func(j *jobs.Job, at time.Time) { jobs.MarkFailed(j, reason, log, at) }
}

func cancelled(reason, log string) transition {
	return func(j *jobs.Job, at time.Time) { jobs.MarkCancelled(j, reason, log, at) }
}

// run supervises one job from queueing to its terminal status.
func (e *Engine) run(ent *entry, req supervise.Request) {
	defer e.wg.Done()
	logger := e.logger.With("job_id", req.JobID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("run panicked", "panic", r, "stack", string(debug.Stack()))
			ent.mu.Lock()
			if ent.unit != nil {
				ent.unit.Kill()
			}
			ent.mu.Unlock()
			e.finish(ent, logger, failed(fmt.Sprintf("panic: %v", r), ""))
		}
	}()

	select {
	case e.sem <- struct{}{}:
	case <-ent.cancel:
		e.finish(ent, logger, cancelled(ent.cancelReason(), ""))
		return
	}
	defer func() { <-e.sem }()

	unit, err := e.attach(ent, req)
	if err != nil {
		logger.Error("start unit failed", "err", err)
		e.finish(ent, logger, failed(err.Error(), ""))
		return
	}
	if unit == nil {
		e.finish(ent, logger, cancelled(ent.cancelReason(), ""))
		return
	}

	e.metrics.UnitStarted()
	defer e.metrics.UnitStopped()
	logger.Info("unit started", "query", req.Query, "limit", req.Limit)

	timer := time.NewTimer(e.cfg.RunTimeout)
	defer timer.Stop()

	select {
	case <-unit.Done():
		e.complete(ent, logger, req, unit.Result())

	case <-ent.cancel:
		e.stop(unit, logger)
		stdout, stderr := unit.Output()
		e.finish(ent, logger, cancelled(ent.cancelReason(), jobs.CombineOutput(stdout, stderr)))

	case <-timer.C:
		logger.Warn("run timed out", "timeout", e.cfg.RunTimeout)
		unit.Kill()
		e.await(unit)
		stdout, stderr := unit.Output()
		reason := fmt.Sprintf("collection timed out after %s", e.cfg.RunTimeout)
		e.finish(ent, logger, failed(reason, jobs.CombineOutput(stdout, stderr)))
	}
}

// attach starts the unit unless the job was cancelled while queued, in
// which case it returns a nil unit.
func (e *Engine) attach(ent *entry, req supervise.Request) (supervise.Unit, error) {
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.job.CancelRequested {
		return nil, nil
	}
	unit, err := e.runner.Start(context.Background(), req)
	if err != nil {
		return nil, err
	}
	ent.unit = unit
	return unit, nil
}

// complete resolves a unit that ended on its own. A cancel that raced the
// natural exit still wins.
func (e *Engine) complete(ent *entry, logger *slog.Logger, req supervise.Request, res supervise.Result) {
	out := jobs.CombineOutput(res.Stdout, res.Stderr)

	ent.mu.Lock()
	requested := ent.job.CancelRequested
	ent.mu.Unlock()
	if requested {
		e.finish(ent, logger, cancelled(ent.cancelReason(), out))
		return
	}

	if res.Err != nil {
		logger.Warn("unit failed", "err", res.Err)
		e.finish(ent, logger, failed(out, out))
		return
	}
	e.finish(ent, logger, done(countKept(req.OutDir, res.Stdout), out))
}

// stop terminates u, then kills it if it outlives the grace period.
func (e *Engine) stop(u supervise.Unit, logger *slog.Logger) {
	u.Terminate()
	t := time.NewTimer(e.cfg.CancelGrace)
	defer t.Stop()
	select {
	case <-u.Done():
		return
	case <-t.C:
	}
	logger.Warn("unit ignored terminate, killing", "grace", e.cfg.CancelGrace)
	u.Kill()
	e.await(u)
}

func (e *Engine) await(u supervise.Unit) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CancelGrace)
	defer cancel()
	_, _ = supervise.Wait(ctx, u)
}

// finish applies a terminal transition unless the job already ended or was
// deleted. The record is persisted before it becomes visible.
func (e *Engine) finish(ent *entry, logger *slog.Logger, apply transition) {
	ent.mu.Lock()
	ent.unit = nil
	if ent.deleted || ent.job.Terminal() {
		ent.mu.Unlock()
		logger.Debug("discarding outcome of finished job")
		return
	}
	next := ent.job.Clone()
	at := e.now()
	apply(&next, at)
	if err := e.repo.UpsertAll(context.Background(), []jobs.Job{next}); err != nil {
		logger.Error("persist job failed", "status", next.Status, "err", err)
		e.metrics.StoreError()
	}
	ent.job = next
	ent.mu.Unlock()

	count := 0
	if next.Count != nil {
		count = *next.Count
	}
	logger.Info("job finished", "status", next.Status, "count", count)
	e.publish(next)
	e.metrics.JobFinished(string(next.Status), at.Sub(next.StartedAt), count)
}

// countKept prefers the manifest, then the done marker, then the images on
// disk. A zero marker is treated as missing.
func countKept(dir, stdout string) int {
	if n, ok, err := curate.CountManifest(dir); err == nil && ok {
		return n
	}
	if n, ok := curate.ParseDoneMarker(stdout); ok && n > 0 {
		return n
	}
	return len(jpegFiles(dir))
}

// jpegFiles lists the regular *.jpg files directly under dir, sorted.
func jpegFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, de := range entries {
		if !de.Type().IsRegular() || !strings.EqualFold(filepath.Ext(de.Name()), ".jpg") {
			continue
		}
		out = append(out, de.Name())
	}
	return out
}
