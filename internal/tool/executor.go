package tool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// DefaultGracePeriod is how long a cancelled tool may take to exit after
// SIGTERM before it is killed.
const DefaultGracePeriod = 30 * time.Second

// tailSize bounds how much trailing output is kept for Diagnose.
const tailSize = 64 << 10

// Invoker runs one external command and reports its exit code. Output goes
// to log. A non-zero exit yields a *Failure; cancellation of ctx yields
// ErrInterrupted and an expired watchdog ErrTimeout.
type Invoker interface {
	Invoke(ctx context.Context, cmd Command, log io.Writer) (int, error)
}

// Exec is the os/exec-backed Invoker.
type Exec struct {
	// Echo, when non-nil, also receives tool output (verbose mode).
	Echo io.Writer
	// GracePeriod between SIGTERM and SIGKILL; 0 means DefaultGracePeriod.
	GracePeriod time.Duration

	mu   sync.Mutex
	live map[*group]struct{}
}

// NewExec returns an Exec that echoes tool output to echo when non-nil.
func NewExec(echo io.Writer) *Exec {
	return &Exec{Echo: echo, GracePeriod: DefaultGracePeriod}
}

// Invoke runs c with the inherited environment plus c.Env, streaming
// combined stdout/stderr into log.
func (e *Exec) Invoke(ctx context.Context, c Command, log io.Writer) (int, error) {
	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if env := c.Environ(); env != nil {
		cmd.Env = append(os.Environ(), env...)
	}
	grace := e.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	g := newGroup(cmd, grace)
	cmd.WaitDelay = grace

	tail := &tailBuffer{max: tailSize}
	writers := []io.Writer{tail}
	if log != nil {
		writers = append(writers, log)
	}
	if e.Echo != nil {
		writers = append(writers, e.Echo)
	}
	out := io.MultiWriter(writers...)
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Start()
	if err == nil {
		e.track(g)
		err = cmd.Wait()
		g.reap()
		e.untrack(g)
	}
	if err == nil {
		return 0, nil
	}

	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}

	switch {
	case ctx.Err() != nil:
		return code, fmt.Errorf("%s: %w", c.Name, ErrInterrupted)
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return code, fmt.Errorf("%s after %s: %w", c.Name, c.Timeout, ErrTimeout)
	case errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success():
		// The tool finished; a background helper it spawned kept the output
		// pipes open past the grace period.
		if log != nil {
			fmt.Fprintf(log, "%s exited 0 but its output stayed open for %s; continuing\n", c.Name, grace)
		}
		return 0, nil
	case exitErr != nil:
		return code, &Failure{Tool: c.Name, ExitCode: code, Hint: Diagnose(tail.String())}
	case errors.Is(err, exec.ErrNotFound):
		return code, fmt.Errorf("%s: %w", c.Name, ErrNotFound)
	default:
		return code, fmt.Errorf("start %s: %w", c.Name, err)
	}
}

// Kill immediately SIGKILLs the process group of every tool still running
// and reports how many there were. It is meant for a forced exit, after
// which nothing waits for the tools to clean up.
func (e *Exec) Kill() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	for g := range e.live {
		g.kill()
	}
	return len(e.live)
}

func (e *Exec) track(g *group) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.live == nil {
		e.live = map[*group]struct{}{}
	}
	e.live[g] = struct{}{}
}

func (e *Exec) untrack(g *group) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.live, g)
}

func (e *Exec) running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.live)
}

// Available reports the resolved path of a tool on PATH.
func Available(name string) (string, error) {
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return p, nil
}

// tailBuffer keeps roughly the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > 2*t.max {
		t.buf = append([]byte(nil), t.buf[len(t.buf)-t.max:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	if len(t.buf) > t.max {
		return string(t.buf[len(t.buf)-t.max:])
	}
	return string(t.buf)
}
