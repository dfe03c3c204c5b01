package supervise

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// ExecRunner runs each request as a child process.
type ExecRunner struct {
	Name string
	// Args builds the command line for a request.
	Args func(req Request) []string
	Dir  string
	Env  []string
	// OutputLimit bounds each captured stream. Zero means DefaultOutputLimit.
	OutputLimit int
	// WaitDelay bounds how long Wait keeps reading pipes after the process exits.
	WaitDelay time.Duration
}

// NewCollectRunner runs `<exe> collect` for each request.
func NewCollectRunner(exe, dir string, env []string) *ExecRunner {
	return &ExecRunner{
		Name:      exe,
		Args:      CollectArgs,
		Dir:       dir,
		Env:       env,
		WaitDelay: 5 * time.Second,
	}
}

// CollectArgs is the argument list understood by the collect command.
func CollectArgs(req Request) []string {
	return []string{
		"collect",
		"--query", req.Query,
		"--limit", strconv.Itoa(req.Limit),
		"--out-dir", req.OutDir,
		"--job-id", req.JobID,
	}
}

func (r *ExecRunner) Start(ctx context.Context, req Request) (Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var args []string
	if r.Args != nil {
		args = r.Args(req)
	}
	cmd := exec.Command(r.Name, args...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	cmd.WaitDelay = r.WaitDelay
	// Own process group: a terminal interrupt reaches the engine only, and
	// signals below cover anything the child spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	u := &execUnit{
		cmd:    cmd,
		stdout: NewTailBuffer(r.OutputLimit),
		stderr: NewTailBuffer(r.OutputLimit),
		done:   make(chan struct{}),
	}
	cmd.Stdout = u.stdout
	cmd.Stderr = u.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", r.Name, err)
	}
	go u.wait()
	return u, nil
}

type execUnit struct {
	cmd    *exec.Cmd
	stdout *TailBuffer
	stderr *TailBuffer

	done   chan struct{}
	mu     sync.Mutex
	result Result
	killed bool
}

func (u *execUnit) wait() {
	err := u.cmd.Wait()
	u.mu.Lock()
	if err != nil && u.killed {
		err = ErrKilled
	}
	u.result = Result{Stdout: u.stdout.String(), Stderr: u.stderr.String(), Err: err}
	u.mu.Unlock()
	close(u.done)
}

func (u *execUnit) Terminate() {
	if err := syscall.Kill(-u.cmd.Process.Pid, syscall.SIGTERM); err != nil {
		u.Kill()
	}
}

func (u *execUnit) Kill() {
	u.mu.Lock()
	u.killed = true
	u.mu.Unlock()
	_ = syscall.Kill(-u.cmd.Process.Pid, syscall.SIGKILL)
	_ = u.cmd.Process.Kill()
}

func (u *execUnit) Done() <-chan struct{} { return u.done }

func (u *execUnit) Result() Result {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.result
}

func (u *execUnit) Output() (string, string) {
	return u.stdout.String(), u.stderr.String()
}
