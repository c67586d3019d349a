package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/backmassage/neurobatch/internal/naming"
	"github.com/backmassage/neurobatch/internal/tool"
)

// State is a subject pipeline's lifecycle position.
type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// StepStatus is the outcome of one step for one subject.
type StepStatus int

const (
	StepSkipped   StepStatus = iota // Outputs already existed.
	StepSucceeded                   // Tool ran and produced its outputs.
	StepFailed
	StepPlanned // Dry run: would have executed.
)

func (s StepStatus) String() string {
	switch s {
	case StepSkipped:
		return "skipped"
	case StepSucceeded:
		return "succeeded"
	case StepFailed:
		return "failed"
	case StepPlanned:
		return "planned"
	}
	return fmt.Sprintf("StepStatus(%d)", int(s))
}

// MarshalText renders the status by name in JSON.
func (s StepStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// StepResult records one executed, skipped or failed step.
type StepResult struct {
	Name        string        `json:"name"`
	Status      StepStatus    `json:"status"`
	ExitCode    int           `json:"exit_code,omitempty"`
	Elapsed     time.Duration `json:"elapsed_ns,omitempty"`
	OutputBytes int64         `json:"output_bytes,omitempty"`
}

// SubjectResult is the final state of one subject's pipeline.
type SubjectResult struct {
	Subject    naming.Subject `json:"-"`
	State      State          `json:"state"`
	FailedStep int            `json:"failed_step"` // Zero-based; -1 when none.
	FailedName string         `json:"failed_step_name,omitempty"`
	Err        error          `json:"-"`
	Reason     string         `json:"reason,omitempty"`
	Steps      []StepResult   `json:"steps"`
	LogPath    string         `json:"log,omitempty"`
	Started    time.Time      `json:"started"`
	Finished   time.Time      `json:"finished"`
	Elapsed    time.Duration  `json:"elapsed_ns"`
}

func (r *SubjectResult) fail(index int, name string, err error) {
	r.State = StateFailed
	r.FailedStep = index
	r.FailedName = name
	r.Err = err
	r.Reason = Reason(err)
}

// MarshalJSON adds the subject identity as flat fields.
func (r SubjectResult) MarshalJSON() ([]byte, error) {
	type plain SubjectResult
	return json.Marshal(struct {
		Key     string `json:"subject"`
		ID      string `json:"id"`
		Session string `json:"session,omitempty"`
		plain
	}{r.Subject.Key(), r.Subject.ID, r.Subject.Session, plain(r)})
}

// Interrupted reports whether the subject stopped because the run was cancelled.
func (r SubjectResult) Interrupted() bool {
	return errors.Is(r.Err, tool.ErrInterrupted)
}

// Reason condenses err into the short reason shown in summaries.
func Reason(err error) string {
	var f *tool.Failure
	switch {
	case err == nil:
		return ""
	case errors.Is(err, tool.ErrInterrupted):
		return "interrupted"
	case errors.Is(err, tool.ErrTimeout):
		return "timeout"
	case errors.As(err, &f):
		if f.Hint != "" {
			return fmt.Sprintf("exit %d: %s", f.ExitCode, f.Hint)
		}
		return fmt.Sprintf("exit %d", f.ExitCode)
	case errors.Is(err, ErrMissingInput):
		return "missing input"
	case errors.Is(err, ErrMissingOutput):
		return "missing output"
	case errors.Is(err, tool.ErrNotFound):
		return "tool not found"
	}
	return err.Error()
}

// RunSummary aggregates one batch run.
type RunSummary struct {
	RunID    string          `json:"run_id"`
	Pipeline string          `json:"pipeline"`
	DryRun   bool            `json:"dry_run,omitempty"`
	Started  time.Time       `json:"started"`
	Finished time.Time       `json:"finished"`
	Subjects []SubjectResult `json:"subjects"`
}

// NewRunSummary starts a summary with a fresh run ID.
func NewRunSummary(pipeline string, dryRun bool) *RunSummary {
	return &RunSummary{
		RunID:    uuid.NewString(),
		Pipeline: pipeline,
		DryRun:   dryRun,
		Started:  time.Now(),
	}
}

// Completed returns the subjects that reached StateCompleted, in order.
func (s *RunSummary) Completed() []SubjectResult {
	return s.filter(StateCompleted)
}

// Failed returns the subjects that did not complete, in order.
func (s *RunSummary) Failed() []SubjectResult {
	var out []SubjectResult
	for _, r := range s.Subjects {
		if r.State != StateCompleted {
			out = append(out, r)
		}
	}
	return out
}

func (s *RunSummary) filter(state State) []SubjectResult {
	var out []SubjectResult
	for _, r := range s.Subjects {
		if r.State == state {
			out = append(out, r)
		}
	}
	return out
}

// StepCounts tallies step outcomes across all subjects.
func (s *RunSummary) StepCounts() map[StepStatus]int {
	counts := map[StepStatus]int{}
	for _, r := range s.Subjects {
		for _, st := range r.Steps {
			counts[st.Status]++
		}
	}
	return counts
}

// Succeeded reports whether the batch is successful overall: at least one
// subject completed.
func (s *RunSummary) Succeeded() bool {
	return len(s.Completed()) > 0
}

// ExitCode is 0 when every subject completed and 1 otherwise.
func (s *RunSummary) ExitCode() int {
	if len(s.Subjects) == 0 || len(s.Failed()) > 0 {
		return 1
	}
	return 0
}

// Elapsed is the wall time of the run.
func (s *RunSummary) Elapsed() time.Duration {
	if s.Finished.IsZero() {
		return time.Since(s.Started)
	}
	return s.Finished.Sub(s.Started)
}

// FileName returns "run-<id>.json".
func (s *RunSummary) FileName() string {
	return "run-" + s.RunID + ".json"
}

// WriteJSON writes the summary into dir and returns the file path.
func (s *RunSummary) WriteJSON(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("summary: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("summary: encode: %w", err)
	}
	path := filepath.Join(dir, s.FileName())
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("summary: %w", err)
	}
	return path, nil
}
