package engine

import "errors"

var (
	ErrNotFound         = errors.New("job not found")
	ErrStoreUnavailable = errors.New("job store unavailable")
	ErrInvalidFilename  = errors.New("invalid filename")
	ErrClosed           = errors.New("engine is shutting down")
)

// ValidationError rejects a submission before any job exists.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}
