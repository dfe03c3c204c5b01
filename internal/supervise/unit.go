// Package supervise starts collection runs as units that can be
// terminated, killed and awaited. A unit is either a child process or an
// in-process task.
package supervise

import (
	"context"
	"errors"
)

// DefaultOutputLimit bounds each captured stream of a unit.
const DefaultOutputLimit = 64 * 1024

// ErrKilled is the result error of a unit that was forcibly stopped.
var ErrKilled = errors.New("unit killed")

// Request describes one collection run.
type Request struct {
	JobID  string
	Query  string
	Limit  int
	OutDir string
}

// Result is the final state of a unit. Err is nil on a clean exit.
type Result struct {
	Stdout string
	Stderr string
	Err    error
}

// Unit is a started run.
type Unit interface {
	// Terminate asks the unit to stop and lets it clean up.
	Terminate()
	// Kill stops the unit immediately.
	Kill()
	// Done is closed once Result is final.
	Done() <-chan struct{}
	Result() Result
	// Output returns whatever has been captured so far.
	Output() (stdout, stderr string)
}

// Runner starts units.
type Runner interface {
	Start(ctx context.Context, req Request) (Unit, error)
}

// Wait blocks until u is done or ctx ends.
func Wait(ctx context.Context, u Unit) (Result, error) {
	select {
	case <-u.Done():
		return u.Result(), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
