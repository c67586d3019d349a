//go:build unix

package tool

import (
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// reapPoll is how often a terminated group is checked for stragglers.
const reapPoll = 50 * time.Millisecond

// group is the process group a tool runs in. Cancellation sends SIGTERM to
// every member, so wrapper scripts such as dwifslpreproc pass the signal on
// to eddy and friends; whatever is left after the grace period is killed.
type group struct {
	cmd   *exec.Cmd
	grace time.Duration

	mu     sync.Mutex
	termed time.Time // zero until SIGTERM was sent
}

func newGroup(cmd *exec.Cmd, grace time.Duration) *group {
	g := &group{cmd: cmd, grace: grace}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = g.terminate
	return g
}

func (g *group) signal(sig syscall.Signal) error {
	if g.cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-g.cmd.Process.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}

func (g *group) terminate() error {
	g.mu.Lock()
	if g.termed.IsZero() {
		g.termed = time.Now()
	}
	g.mu.Unlock()
	return g.signal(syscall.SIGTERM)
}

// alive reports whether any member of the group still exists.
func (g *group) alive() bool {
	return g.cmd.Process != nil && syscall.Kill(-g.cmd.Process.Pid, 0) == nil
}

// reap runs after Wait. Exec only SIGKILLs the group leader, so members that
// ignored SIGTERM are given the rest of the grace period and then killed.
func (g *group) reap() {
	g.mu.Lock()
	termed := g.termed
	g.mu.Unlock()
	if termed.IsZero() {
		return
	}
	deadline := termed.Add(g.grace)
	for g.alive() && time.Now().Before(deadline) {
		time.Sleep(reapPoll)
	}
	_ = g.signal(syscall.SIGKILL)
}

// kill SIGKILLs every member of the group at once.
func (g *group) kill() {
	_ = g.signal(syscall.SIGKILL)
}
