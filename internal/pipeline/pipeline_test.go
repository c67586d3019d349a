package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/backmassage/neurobatch/internal/config"
	"github.com/backmassage/neurobatch/internal/logging"
	"github.com/backmassage/neurobatch/internal/naming"
	"github.com/backmassage/neurobatch/internal/tool"
	"github.com/backmassage/neurobatch/internal/workflow"
)

// --- Fake invoker ---

// fakeInvoker stands in for external tools. Every absolute argument ending
// in ".out" is written as an output file unless the tool is in noOutput.
type fakeInvoker struct {
	mu       sync.Mutex
	calls    []string // "<subject dir>:<tool>"
	fail     map[string]int
	noOutput map[string]bool
	delay    time.Duration

	running    atomic.Int32
	maxRunning atomic.Int32
}

func (f *fakeInvoker) Invoke(ctx context.Context, c tool.Command, log io.Writer) (int, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		m := f.maxRunning.Load()
		if n <= m || f.maxRunning.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, filepath.Base(filepath.Dir(c.Dir))+"/"+filepath.Base(c.Dir)+":"+c.Name)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return -1, fmt.Errorf("%s: %w", c.Name, tool.ErrInterrupted)
		case <-time.After(f.delay):
		}
	}
	if code, ok := f.fail[c.Name]; ok {
		fmt.Fprintf(log, "%s: fatal error\n", c.Name)
		return code, &tool.Failure{Tool: c.Name, ExitCode: code}
	}
	if !f.noOutput[c.Name] {
		for _, a := range c.Args {
			if filepath.IsAbs(a) && strings.HasSuffix(a, ".out") {
				if err := os.WriteFile(a, []byte(c.Name), 0o644); err != nil {
					return 1, err
				}
			}
		}
	}
	fmt.Fprintf(log, "%s ran\n", c.Name)
	return 0, nil
}

// tools returns the tool names called, in order, for one subject key
// such as "sub-01/ses-M00".
func (f *fakeInvoker) tools(subject string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if name, ok := strings.CutPrefix(c, subject+":"); ok {
			out = append(out, name)
		}
	}
	return out
}

func (f *fakeInvoker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// --- Fixtures ---

// threeStepDef chains step1 -> step2 -> step3. step2 also needs the raw
// file t1.txt.
func threeStepDef() workflow.Definition {
	return workflow.Definition{
		Name: "chain",
		Vars: workflow.VarList{{Name: "out", Value: "{subdir}/derivatives"}},
		Steps: []workflow.Step{
			{Name: "one", Tool: "step1", Args: []string{"{out}/a.out"},
				Inputs: []string{"{subdir}/in.txt"}, Outputs: []string{"{out}/a.out"}},
			{Name: "two", Tool: "step2", Args: []string{"{out}/b.out"},
				Inputs: []string{"{out}/a.out", "{subdir}/t1.txt"}, Outputs: []string{"{out}/b.out"}},
			{Name: "three", Tool: "step3", Args: []string{"{out}/c.out"},
				Inputs: []string{"{out}/b.out"}, Outputs: []string{"{out}/c.out"}},
		},
	}
}

type fixture struct {
	base   string
	cfg    *config.Config
	inv    *fakeInvoker
	runner *Runner
}

// newFixture lays out base/<id>/ses-M00/{in.txt,t1.txt} for each subject.
func newFixture(t *testing.T, subjects ...string) *fixture {
	t.Helper()
	base := t.TempDir()
	for _, id := range subjects {
		dir := filepath.Join(base, id, "ses-M00")
		write(t, filepath.Join(dir, "in.txt"), "raw")
		write(t, filepath.Join(dir, "t1.txt"), "raw")
	}

	cfg := config.DefaultConfig()
	cfg.BaseDir = base
	cfg.LogDir = filepath.Join(base, "logs")
	cfg.ColorMode = config.ColorNever

	log, err := logging.NewLogger(&cfg)
	require.NoError(t, err)
	log.SetOutput(io.Discard, io.Discard)
	t.Cleanup(func() { log.Close() })

	inv := &fakeInvoker{fail: map[string]int{}, noOutput: map[string]bool{}}
	return &fixture{
		base:   base,
		cfg:    &cfg,
		inv:    inv,
		runner: NewRunner(&cfg, threeStepDef(), inv, log),
	}
}

func (f *fixture) subject(id string) naming.Subject {
	return naming.Subject{ID: id, Session: "ses-M00"}
}

func (f *fixture) out(id, name string) string {
	return filepath.Join(f.base, id, "ses-M00", "derivatives", name)
}

// --- Helpers ---

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func touch(t *testing.T, path string) {
	t.Helper()
	write(t, path, "")
}

func mkdir(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o755))
}

func statuses(steps []StepResult) []StepStatus {
	out := make([]StepStatus, len(steps))
	for i, s := range steps {
		out[i] = s.Status
	}
	return out
}
