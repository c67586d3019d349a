package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/neurobatch/internal/tool"
)

func TestRunSubject_AllStepsInOrder(t *testing.T) {
	f := newFixture(t, "sub-01")
	res := f.runner.RunSubject(context.Background(), f.subject("sub-01"))

	require.NoError(t, res.Err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, -1, res.FailedStep)
	assert.Equal(t, []string{"step1", "step2", "step3"}, f.inv.tools("sub-01/ses-M00"))
	assert.Equal(t, []StepStatus{StepSucceeded, StepSucceeded, StepSucceeded}, statuses(res.Steps))
	assert.FileExists(t, f.out("sub-01", "c.out"))
	assert.Equal(t, int64(len("step1")), res.Steps[0].OutputBytes)
}

func TestRunSubject_WritesSubjectLog(t *testing.T) {
	f := newFixture(t, "sub-01")
	res := f.runner.RunSubject(context.Background(), f.subject("sub-01"))
	require.Equal(t, StateCompleted, res.State)

	require.NotEmpty(t, res.LogPath)
	assert.Equal(t, filepath.Join(f.cfg.LogDir, "sub-01_ses-M00_"), res.LogPath[:len(res.LogPath)-len("20060102-150405.log")])
	b, err := os.ReadFile(res.LogPath)
	require.NoError(t, err)
	log := string(b)
	assert.Contains(t, log, "=== [1/3 one] start")
	assert.Contains(t, log, "step1 ran")
	assert.Contains(t, log, "=== [3/3 three] done")
	assert.Less(t, strings.Index(log, "step1 ran"), strings.Index(log, "step2 ran"))
}

func TestRunSubject_Idempotent(t *testing.T) {
	f := newFixture(t, "sub-01")
	first := f.runner.RunSubject(context.Background(), f.subject("sub-01"))
	require.Equal(t, StateCompleted, first.State)
	calls := f.inv.count()

	second := f.runner.RunSubject(context.Background(), f.subject("sub-01"))
	assert.Equal(t, StateCompleted, second.State)
	assert.Equal(t, calls, f.inv.count(), "no tool may run again")
	assert.Equal(t, []StepStatus{StepSkipped, StepSkipped, StepSkipped}, statuses(second.Steps))
}

func TestRunSubject_MissingInputHalts(t *testing.T) {
	f := newFixture(t, "sub-01")
	require.NoError(t, os.Remove(filepath.Join(f.base, "sub-01", "ses-M00", "t1.txt")))

	res := f.runner.RunSubject(context.Background(), f.subject("sub-01"))

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 1, res.FailedStep)
	assert.Equal(t, "two", res.FailedName)
	assert.ErrorIs(t, res.Err, ErrMissingInput)
	assert.Contains(t, res.Err.Error(), "t1.txt")
	assert.Equal(t, "missing input", res.Reason)

	var serr *StepError
	require.True(t, errors.As(res.Err, &serr))
	assert.Equal(t, 1, serr.Index)
	assert.Equal(t, "two", serr.Step)
	assert.Equal(t, "sub-01", serr.Subject.ID)

	assert.Equal(t, []string{"step1"}, f.inv.tools("sub-01/ses-M00"))
	assert.NoFileExists(t, f.out("sub-01", "c.out"))
}

func TestRunSubject_SkipsStepWithExistingOutput(t *testing.T) {
	f := newFixture(t, "sub-01")
	write(t, f.out("sub-01", "b.out"), "previous run")

	res := f.runner.RunSubject(context.Background(), f.subject("sub-01"))

	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, []string{"step1", "step3"}, f.inv.tools("sub-01/ses-M00"))
	assert.Equal(t, []StepStatus{StepSucceeded, StepSkipped, StepSucceeded}, statuses(res.Steps))
}

func TestRunSubject_ZeroByteOutputReruns(t *testing.T) {
	f := newFixture(t, "sub-01")
	for _, name := range []string{"a.out", "b.out", "c.out"} {
		write(t, f.out("sub-01", name), "x")
	}
	touch(t, f.out("sub-01", "b.out"))

	res := f.runner.RunSubject(context.Background(), f.subject("sub-01"))

	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, []string{"step2"}, f.inv.tools("sub-01/ses-M00"))
}

func TestRunSubject_ToolFailureHalts(t *testing.T) {
	f := newFixture(t, "sub-01")
	f.inv.fail["step2"] = 2

	res := f.runner.RunSubject(context.Background(), f.subject("sub-01"))

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 1, res.FailedStep)
	assert.ErrorIs(t, res.Err, tool.ErrToolFailed)
	assert.Equal(t, "exit 2", res.Reason)
	assert.Equal(t, []string{"step1", "step2"}, f.inv.tools("sub-01/ses-M00"))
	assert.Equal(t, 2, res.Steps[1].ExitCode)

	b, err := os.ReadFile(res.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "step2: fatal error")
	assert.Contains(t, string(b), "=== [2/3 two] failed")
}

func TestRunSubject_MissingOutputAfterSuccess(t *testing.T) {
	f := newFixture(t, "sub-01")
	f.inv.noOutput["step1"] = true

	res := f.runner.RunSubject(context.Background(), f.subject("sub-01"))

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 0, res.FailedStep)
	assert.ErrorIs(t, res.Err, ErrMissingOutput)
	assert.Equal(t, []string{"step1"}, f.inv.tools("sub-01/ses-M00"))
}

func TestRunSubject_ResumesAfterFailure(t *testing.T) {
	f := newFixture(t, "sub-01")
	f.inv.fail["step3"] = 1
	res := f.runner.RunSubject(context.Background(), f.subject("sub-01"))
	require.Equal(t, StateFailed, res.State)

	delete(f.inv.fail, "step3")
	res = f.runner.RunSubject(context.Background(), f.subject("sub-01"))
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, []string{"step1", "step2", "step3", "step3"}, f.inv.tools("sub-01/ses-M00"))
}

func TestRunSubject_DryRun(t *testing.T) {
	f := newFixture(t, "sub-01")
	f.cfg.DryRun = true

	res := f.runner.RunSubject(context.Background(), f.subject("sub-01"))

	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, 0, f.inv.count())
	assert.Equal(t, []StepStatus{StepPlanned, StepPlanned, StepPlanned}, statuses(res.Steps))
	assert.NoDirExists(t, f.cfg.LogDir)
	assert.NoDirExists(t, filepath.Join(f.base, "sub-01", "ses-M00", "derivatives"))
}

func TestRunSubject_DryRunStillChecksRawInputs(t *testing.T) {
	f := newFixture(t, "sub-01")
	f.cfg.DryRun = true
	require.NoError(t, os.Remove(filepath.Join(f.base, "sub-01", "ses-M00", "in.txt")))

	res := f.runner.RunSubject(context.Background(), f.subject("sub-01"))

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 0, res.FailedStep)
	assert.ErrorIs(t, res.Err, ErrMissingInput)
}

func TestRunSubject_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t, "sub-01")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.runner.RunSubject(ctx, f.subject("sub-01"))

	assert.Equal(t, StateFailed, res.State)
	assert.True(t, res.Interrupted())
	assert.Equal(t, "interrupted", res.Reason)
	assert.Equal(t, 0, f.inv.count())
}

func TestStepError(t *testing.T) {
	f := newFixture(t, "sub-01")
	err := &StepError{Subject: f.subject("sub-01"), Step: "denoise", Index: 1, Err: tool.ErrTimeout}
	assert.Equal(t, "sub-01/ses-M00: step 2 (denoise): step timed out", err.Error())
	assert.ErrorIs(t, err, tool.ErrTimeout)
}
