// internal/jobs/job.go
package jobs

import (
	"strings"
	"time"

	"github.com/tendant/simple-curator/pkg/schema"
)

// Status represents the lifecycle state of a collection job.
type Status = schema.JobStatus

const (
	StatusRunning   = schema.JobStatusRunning
	StatusDone      = schema.JobStatusDone
	StatusFailed    = schema.JobStatusFailed
	StatusCancelled = schema.JobStatusCancelled
)

const (
	// MaxLogBytes bounds the captured run output kept on a job.
	MaxLogBytes = 15000
	// MaxErrorBytes bounds the failure text kept on a job.
	MaxErrorBytes = 30000

	ReasonCancelled   = "cancelled by user"
	ReasonRestart     = "interrupted by restart"
	ReasonShutdown    = "interrupted by shutdown"
	ReasonUnknownFail = "unknown error"
)

// Job is the durable record of one collection run.
type Job struct {
	ID         string     `json:"id"`
	Query      string     `json:"query"`
	Limit      int        `json:"limit"`
	OutDir     string     `json:"out_dir"`
	Status     Status     `json:"status"`
	Count      *int       `json:"count"`
	Error      string     `json:"error,omitempty"`
	Log        string     `json:"log,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`

	CancelRequested bool `json:"-"`
}

func New(id, query string, limit int, outDir string, now time.Time) Job {
	return Job{
		ID:        id,
		Query:     query,
		Limit:     limit,
		OutDir:    outDir,
		Status:    StatusRunning,
		StartedAt: now,
	}
}

func (j Job) Terminal() bool { return j.Status != StatusRunning }

func MarkDone(j *Job, count int, log string, at time.Time) {
	j.Status = StatusDone
	j.Count = &count
	j.Error = ""
	j.Log = Tail(log, MaxLogBytes)
	j.FinishedAt = &at
}

func MarkFailed(j *Job, reason, log string, at time.Time) {
	if reason == "" {
		reason = ReasonUnknownFail
	}
	j.Status = StatusFailed
	j.Count = nil
	j.Error = Tail(reason, MaxErrorBytes)
	j.Log = Tail(log, MaxLogBytes)
	j.FinishedAt = &at
}

func MarkCancelled(j *Job, reason, log string, at time.Time) {
	j.Status = StatusCancelled
	j.Count = nil
	j.Error = reason
	j.Log = Tail(log, MaxLogBytes)
	j.FinishedAt = &at
}

// Reconcile turns a job persisted as running by a previous process into a
// cancelled one. It reports whether the job changed.
func Reconcile(j *Job, at time.Time) bool {
	if j.Status != StatusRunning {
		return false
	}
	reason := j.Error
	if reason == "" {
		reason = ReasonRestart
	}
	MarkCancelled(j, reason, j.Log, at)
	return true
}

// CombineOutput joins captured streams the way the job log stores them,
// stderr first.
func CombineOutput(stdout, stderr string) string {
	out := strings.TrimSpace(stdout)
	errText := strings.TrimSpace(stderr)
	if out == "" {
		return errText
	}
	return errText + "\n\n--- stdout ---\n" + out
}

// Tail keeps the last max bytes of s.
func Tail(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}

// View strips runtime-only state from a job before it leaves the engine.
func (j Job) View() schema.JobView {
	v := schema.JobView{
		ID:        j.ID,
		Query:     j.Query,
		Limit:     j.Limit,
		OutDir:    j.OutDir,
		Status:    j.Status,
		Error:     j.Error,
		Log:       j.Log,
		StartedAt: j.StartedAt.Format(time.RFC3339Nano),
	}
	if j.Count != nil {
		c := *j.Count
		v.Count = &c
	}
	if j.FinishedAt != nil {
		f := j.FinishedAt.Format(time.RFC3339Nano)
		v.FinishedAt = &f
	}
	return v
}

// Event builds the lifecycle event for the job's current state.
func (j Job) Event(at time.Time) schema.JobEvent {
	evt := schema.JobEvent{
		JobID:      j.ID,
		Query:      j.Query,
		Status:     j.Status,
		Error:      j.Error,
		HappenedAt: at.Unix(),
	}
	if j.Count != nil {
		c := *j.Count
		evt.Count = &c
	}
	return evt
}

// Clone returns a copy that shares no pointers with j.
func (j Job) Clone() Job {
	c := j
	if j.Count != nil {
		n := *j.Count
		c.Count = &n
	}
	if j.FinishedAt != nil {
		f := *j.FinishedAt
		c.FinishedAt = &f
	}
	return c
}
