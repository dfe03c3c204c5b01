package supervise

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// TaskFunc is an in-process run. It must return once ctx is cancelled.
type TaskFunc func(ctx context.Context, req Request, stdout, stderr io.Writer) error

// TaskRunner runs each request as a goroutine in this process.
type TaskRunner struct {
	Fn          TaskFunc
	OutputLimit int
}

func NewTaskRunner(fn TaskFunc) *TaskRunner {
	return &TaskRunner{Fn: fn}
}

func (r *TaskRunner) Start(ctx context.Context, req Request) (Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Fn == nil {
		return nil, fmt.Errorf("task runner has no function")
	}

	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	u := &taskUnit{
		cancel: cancel,
		stdout: NewTailBuffer(r.OutputLimit),
		stderr: NewTailBuffer(r.OutputLimit),
		done:   make(chan struct{}),
	}
	go u.run(taskCtx, r.Fn, req)
	return u, nil
}

type taskUnit struct {
	cancel context.CancelFunc
	stdout *TailBuffer
	stderr *TailBuffer

	once   sync.Once
	done   chan struct{}
	mu     sync.Mutex
	result Result
}

func (u *taskUnit) run(ctx context.Context, fn TaskFunc, req Request) {
	var err error
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
		u.finish(err)
	}()
	err = fn(ctx, req, u.stdout, u.stderr)
}

func (u *taskUnit) finish(err error) {
	u.once.Do(func() {
		u.mu.Lock()
		u.result = Result{Stdout: u.stdout.String(), Stderr: u.stderr.String(), Err: err}
		u.mu.Unlock()
		u.cancel()
		close(u.done)
	})
}

func (u *taskUnit) Terminate() { u.cancel() }

// Kill abandons the goroutine. Its later output is discarded.
func (u *taskUnit) Kill() {
	u.cancel()
	u.finish(ErrKilled)
}

func (u *taskUnit) Done() <-chan struct{} { return u.done }

func (u *taskUnit) Result() Result {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.result
}

func (u *taskUnit) Output() (string, string) {
	return u.stdout.String(), u.stderr.String()
}
