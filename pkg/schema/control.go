// pkg/schema/control.go
package schema

type ErrorCode string

const (
	ErrorCodeInvalid     ErrorCode = "invalid"
	ErrorCodeNotFound    ErrorCode = "not_found"
	ErrorCodeUnavailable ErrorCode = "unavailable"
	ErrorCodeInternal    ErrorCode = "internal"
)

// SubmitRequest asks for a new collection. A nil Limit takes the server
// default; an explicit value is validated as given.
type SubmitRequest struct {
	Query  string `json:"query"`
	Limit  *int   `json:"limit,omitempty"`
	OutDir string `json:"out_dir,omitempty"`
}

type SubmitResponse struct {
	JobID string `json:"job_id"`
}

type JobRequest struct {
	JobID string `json:"job_id"`
}

type ListRequest struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

type JobView struct {
	ID         string    `json:"id"`
	Query      string    `json:"query"`
	Limit      int       `json:"limit"`
	OutDir     string    `json:"out_dir"`
	Status     JobStatus `json:"status"`
	Count      *int      `json:"count"`
	Error      string    `json:"error,omitempty"`
	Log        string    `json:"log,omitempty"`
	StartedAt  string    `json:"started_at"`
	FinishedAt *string   `json:"finished_at"`
}

type ListResponse struct {
	Jobs    []JobView `json:"jobs"`
	Total   int       `json:"total"`
	Page    int       `json:"page"`
	PerPage int       `json:"per_page"`
}

type ImagesResponse struct {
	JobID  string   `json:"job_id"`
	OutDir string   `json:"out_dir"`
	Files  []string `json:"files"`
}

type AckResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Reply wraps every control response. Exactly one of Error or Data is set.
type Reply struct {
	Data  any       `json:"data,omitempty"`
	Error string    `json:"error,omitempty"`
	Code  ErrorCode `json:"code,omitempty"`
}
