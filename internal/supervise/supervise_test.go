package supervise

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func shellRunner(script string) *ExecRunner {
	return &ExecRunner{
		Name:      "sh",
		Args:      func(Request) []string { return []string{"-c", script} },
		WaitDelay: 2 * time.Second,
	}
}

func waitDone(t *testing.T, u Unit) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := Wait(ctx, u)
	require.NoError(t, err, "unit did not finish")
	return res
}

func TestExecRunnerCapturesStreams(t *testing.T) {
	requireShell(t)

	u, err := shellRunner("echo '[done] total 3 saved: out'; echo warn >&2").Start(context.Background(), Request{})
	require.NoError(t, err)

	res := waitDone(t, u)
	assert.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "total 3 saved")
	assert.Equal(t, "warn\n", res.Stderr)
}

func TestExecRunnerReportsExitFailure(t *testing.T) {
	requireShell(t)

	u, err := shellRunner("echo broken >&2; exit 3").Start(context.Background(), Request{})
	require.NoError(t, err)

	res := waitDone(t, u)
	var exitErr *exec.ExitError
	require.ErrorAs(t, res.Err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode())
	assert.Contains(t, res.Stderr, "broken")
}

func TestExecRunnerTerminate(t *testing.T) {
	requireShell(t)

	u, err := shellRunner("echo started; exec sleep 30").Start(context.Background(), Request{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		out, _ := u.Output()
		return strings.Contains(out, "started")
	}, 5*time.Second, 10*time.Millisecond)

	u.Terminate()
	res := waitDone(t, u)
	assert.Error(t, res.Err)
	assert.Contains(t, res.Stdout, "started")
}

func TestExecRunnerKillIgnoresTrap(t *testing.T) {
	requireShell(t)

	u, err := shellRunner("trap '' TERM; echo ready; while true; do sleep 1; done").Start(context.Background(), Request{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		out, _ := u.Output()
		return strings.Contains(out, "ready")
	}, 5*time.Second, 10*time.Millisecond)

	u.Terminate()
	select {
	case <-u.Done():
		t.Fatal("unit exited despite ignoring SIGTERM")
	case <-time.After(200 * time.Millisecond):
	}

	u.Kill()
	res := waitDone(t, u)
	assert.ErrorIs(t, res.Err, ErrKilled)
}

func TestExecRunnerChildHasOwnProcessGroup(t *testing.T) {
	requireShell(t)

	u, err := shellRunner("exec sleep 30").Start(context.Background(), Request{})
	require.NoError(t, err)
	defer func() {
		u.Kill()
		waitDone(t, u)
	}()

	pid := u.(*execUnit).cmd.Process.Pid
	pgid, err := syscall.Getpgid(pid)
	require.NoError(t, err)
	assert.Equal(t, pid, pgid, "child leads its own group")
	assert.NotEqual(t, syscall.Getpgrp(), pgid, "terminal signals to our group must not reach the child")
}

func TestExecRunnerStartFailure(t *testing.T) {
	r := &ExecRunner{Name: "definitely-not-a-real-binary-xyz"}
	_, err := r.Start(context.Background(), Request{})
	assert.Error(t, err)
}

func TestCollectArgs(t *testing.T) {
	args := CollectArgs(Request{JobID: "ab12cd34", Query: "red fox", Limit: 7, OutDir: "data/collected/ab12cd34"})
	assert.Equal(t, []string{
		"collect",
		"--query", "red fox",
		"--limit", "7",
		"--out-dir", "data/collected/ab12cd34",
		"--job-id", "ab12cd34",
	}, args)
}

func TestTaskRunnerSuccessAndFailure(t *testing.T) {
	ok := NewTaskRunner(func(_ context.Context, req Request, stdout, _ io.Writer) error {
		fmt.Fprintf(stdout, "[done] total %d saved: %s\n", req.Limit, req.OutDir)
		return nil
	})
	u, err := ok.Start(context.Background(), Request{Limit: 4, OutDir: "x"})
	require.NoError(t, err)
	res := waitDone(t, u)
	assert.NoError(t, res.Err)
	assert.Equal(t, "[done] total 4 saved: x\n", res.Stdout)

	bad := NewTaskRunner(func(_ context.Context, _ Request, _, stderr io.Writer) error {
		io.WriteString(stderr, "no luck")
		return errors.New("boom")
	})
	u, err = bad.Start(context.Background(), Request{})
	require.NoError(t, err)
	res = waitDone(t, u)
	assert.EqualError(t, res.Err, "boom")
	assert.Equal(t, "no luck", res.Stderr)
}

func TestTaskRunnerTerminateCancelsContext(t *testing.T) {
	r := NewTaskRunner(func(ctx context.Context, _ Request, _, _ io.Writer) error {
		<-ctx.Done()
		return ctx.Err()
	})
	u, err := r.Start(context.Background(), Request{})
	require.NoError(t, err)

	u.Terminate()
	res := waitDone(t, u)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestTaskRunnerKillAbandonsStuckTask(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	r := NewTaskRunner(func(_ context.Context, _ Request, _, _ io.Writer) error {
		<-release
		return nil
	})
	u, err := r.Start(context.Background(), Request{})
	require.NoError(t, err)

	u.Terminate()
	u.Kill()
	res := waitDone(t, u)
	assert.ErrorIs(t, res.Err, ErrKilled)
}

func TestTaskRunnerRecoversPanic(t *testing.T) {
	r := NewTaskRunner(func(context.Context, Request, io.Writer, io.Writer) error {
		panic("kaboom")
	})
	u, err := r.Start(context.Background(), Request{})
	require.NoError(t, err)
	res := waitDone(t, u)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "kaboom")
}

func TestTailBufferKeepsSuffix(t *testing.T) {
	b := NewTailBuffer(5)
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defg"))
	assert.Equal(t, "cdefg", b.String())

	_, _ = b.Write([]byte("0123456789"))
	assert.Equal(t, "56789", b.String())
}
