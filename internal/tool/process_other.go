//go:build !unix

package tool

import (
	"os"
	"os/exec"
	"time"
)

// group tracks the tool process. Without process groups only the direct
// child is signalled.
type group struct {
	cmd *exec.Cmd
}

func newGroup(cmd *exec.Cmd, _ time.Duration) *group {
	g := &group{cmd: cmd}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Signal(os.Interrupt)
	}
	return g
}

func (g *group) reap() {}

func (g *group) kill() {
	if g.cmd.Process != nil {
		_ = g.cmd.Process.Kill()
	}
}
