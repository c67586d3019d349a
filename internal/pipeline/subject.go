package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/backmassage/neurobatch/internal/config"
	"github.com/backmassage/neurobatch/internal/logging"
	"github.com/backmassage/neurobatch/internal/naming"
	"github.com/backmassage/neurobatch/internal/planner"
	"github.com/backmassage/neurobatch/internal/tool"
	"github.com/backmassage/neurobatch/internal/workflow"
)

// Errors recorded against the failing step. Tool errors (tool.Failure,
// tool.ErrTimeout, tool.ErrInterrupted) pass through unchanged.
var (
	ErrMissingInput  = errors.New("missing input file")
	ErrMissingOutput = errors.New("expected output missing after step")
)

// StepError places a failure at a step of a subject's pipeline.
type StepError struct {
	Subject naming.Subject
	Step    string
	Index   int // Zero-based.
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: step %d (%s): %v", e.Subject, e.Index+1, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Runner executes a workflow definition for one subject at a time. A single
// Runner is shared by every dispatched subject; it holds no per-subject state.
type Runner struct {
	Cfg     *config.Config
	Def     workflow.Definition
	Invoker tool.Invoker
	Log     *logging.Logger
	Stamp   time.Time // Run start; names the per-subject log files.
}

// NewRunner returns a Runner stamped with the current time.
func NewRunner(cfg *config.Config, def workflow.Definition, inv tool.Invoker, log *logging.Logger) *Runner {
	return &Runner{Cfg: cfg, Def: def, Invoker: inv, Log: log, Stamp: time.Now()}
}

// RunSubject walks the subject's steps in order. A step whose outputs all
// exist is skipped; otherwise its inputs must exist, then the tool runs and
// its outputs are verified. The first failure halts the subject.
func (r *Runner) RunSubject(ctx context.Context, s naming.Subject) SubjectResult {
	res := SubjectResult{
		Subject:    s,
		State:      StatePending,
		FailedStep: -1,
		Started:    time.Now(),
	}
	defer func() {
		res.Finished = time.Now()
		res.Elapsed = res.Finished.Sub(res.Started)
	}()

	if ctx.Err() != nil {
		res.fail(-1, "", tool.ErrInterrupted)
		return res
	}

	plan, err := planner.BuildPlan(r.Cfg, r.Def, s)
	if err != nil {
		r.Log.Error("[%s] %v", s, err)
		res.fail(-1, "", err)
		return res
	}

	var sl *logging.SubjectLog
	if !r.Cfg.DryRun {
		sl, err = logging.OpenSubjectLog(r.Cfg.LogDir, s.Key(), r.Stamp)
		if err != nil {
			r.Log.Error("[%s] %v", s, err)
			res.fail(-1, "", err)
			return res
		}
		defer sl.Close()
		res.LogPath = sl.Path()
		sl.Note("pipeline %s, subject %s, %d steps", plan.Pipeline, s, len(plan.Steps))
	}

	res.State = StateRunning
	planned := map[string]bool{}
	for i, step := range plan.Steps {
		label := plan.Label(i)
		sr, err := r.runStep(ctx, plan, i, sl, planned)
		res.Steps = append(res.Steps, sr)
		if err != nil {
			serr := &StepError{Subject: s, Step: step.Name, Index: i, Err: err}
			res.fail(i, step.Name, serr)
			sl.Step(label, "failed: "+err.Error())
			r.Log.Error("[%s] %s failed: %v", s, label, err)
			if res.LogPath != "" {
				r.Log.Error("[%s] see %s", s, res.LogPath)
			}
			return res
		}
	}

	res.State = StateCompleted
	sl.Note("completed")
	if r.Cfg.DryRun {
		r.Log.Success("[%s] dry run complete", s)
	} else {
		r.Log.Success("[%s] completed in %s", s, time.Since(res.Started).Round(time.Second))
	}
	return res
}

// runStep performs one step. planned holds outputs that a dry run pretends
// earlier steps produced.
func (r *Runner) runStep(ctx context.Context, plan *planner.Plan, i int, sl *logging.SubjectLog, planned map[string]bool) (StepResult, error) {
	step := plan.Steps[i]
	label := plan.Label(i)
	s := plan.Subject
	sr := StepResult{Name: step.Name, Status: StepFailed}

	if ctx.Err() != nil {
		return sr, tool.ErrInterrupted
	}

	if !ShouldRun(step.Outputs) {
		sr.Status = StepSkipped
		r.Log.Skip("[%s] %s: outputs exist", s, label)
		sl.Step(label, "skipped (outputs exist)")
		return sr, nil
	}

	if miss := missing(step.Inputs, planned); len(miss) > 0 {
		return sr, fmt.Errorf("%w: %s", ErrMissingInput, strings.Join(miss, ", "))
	}

	if r.Cfg.DryRun {
		r.Log.Dry("[%s] %s: %s", s, label, step.Command)
		for _, out := range step.Outputs {
			planned[out] = true
		}
		sr.Status = StepPlanned
		return sr, nil
	}

	for _, out := range step.Outputs {
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return sr, fmt.Errorf("create output directory: %w", err)
		}
	}

	r.Log.Info("[%s] %s", s, label)
	r.Log.Debug("[%s] $ %s", s, step.Command)
	sl.Step(label, "start")
	sl.Note("$ %s", step.Command)

	start := time.Now()
	code, err := r.Invoker.Invoke(ctx, step.Command, sl)
	sr.Elapsed = time.Since(start)
	sr.ExitCode = code
	if err != nil {
		return sr, err
	}

	if miss := missing(step.Outputs, nil); len(miss) > 0 {
		return sr, fmt.Errorf("%w: %s", ErrMissingOutput, strings.Join(miss, ", "))
	}

	sr.Status = StepSucceeded
	sr.OutputBytes = sizeOf(step.Outputs)
	sl.Step(label, fmt.Sprintf("done in %s", sr.Elapsed.Round(time.Second)))
	return sr, nil
}
