// pkg/schema/events.go
package schema

type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusDone      JobStatus = "done"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Candidate is one scraped image URL. Title carries the query used to find it.
type Candidate struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// ManifestEntry is one line of manifest.jsonl.
type ManifestEntry struct {
	Query  string `json:"query"`
	File   string `json:"file"`
	Source string `json:"source"`
}

type JobEvent struct {
	JobID      string    `json:"job_id"`
	Query      string    `json:"query"`
	Status     JobStatus `json:"status"`
	Count      *int      `json:"count,omitempty"`
	Error      string    `json:"error,omitempty"`
	HappenedAt int64     `json:"happened_at"`
}
