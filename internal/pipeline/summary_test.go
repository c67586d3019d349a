package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/neurobatch/internal/naming"
	"github.com/backmassage/neurobatch/internal/tool"
)

func TestReason(t *testing.T) {
	s := naming.Subject{ID: "sub-01"}
	wrap := func(err error) error { return &StepError{Subject: s, Step: "x", Err: err} }
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{wrap(fmt.Errorf("tckgen: %w", tool.ErrInterrupted)), "interrupted"},
		{wrap(tool.ErrTimeout), "timeout"},
		{wrap(&tool.Failure{Tool: "eddy", ExitCode: 1, Hint: "disk full"}), "exit 1: disk full"},
		{wrap(&tool.Failure{Tool: "eddy", ExitCode: 137}), "exit 137"},
		{wrap(fmt.Errorf("%w: a.nii.gz", ErrMissingInput)), "missing input"},
		{wrap(ErrMissingOutput), "missing output"},
		{wrap(fmt.Errorf("bet: %w", tool.ErrNotFound)), "tool not found"},
		{errors.New("something else"), "something else"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Reason(tt.err))
	}
}

func TestRunSummary_ExitCode(t *testing.T) {
	s := NewRunSummary("adni3-dwi", false)
	assert.Equal(t, 1, s.ExitCode(), "no subjects")
	assert.False(t, s.Succeeded())

	s.Subjects = []SubjectResult{{State: StateCompleted}}
	assert.Equal(t, 0, s.ExitCode())
	assert.True(t, s.Succeeded())

	s.Subjects = append(s.Subjects, SubjectResult{State: StateFailed})
	assert.Equal(t, 1, s.ExitCode())
	assert.True(t, s.Succeeded())
}

func TestRunSummary_UniqueIDs(t *testing.T) {
	a, b := NewRunSummary("p", false), NewRunSummary("p", false)
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, "run-"+a.RunID+".json", a.FileName())
}

func TestRunSummary_WriteJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	s := NewRunSummary("adni3-dwi", false)
	ok := SubjectResult{Subject: naming.Subject{ID: "sub-01", Session: "ses-M00"}, State: StateCompleted, FailedStep: -1,
		Steps: []StepResult{{Name: "convert", Status: StepSkipped}, {Name: "denoise", Status: StepSucceeded, OutputBytes: 42}}}
	bad := SubjectResult{Subject: naming.Subject{ID: "sub-02"}, FailedStep: -1}
	bad.fail(1, "denoise", &StepError{Subject: bad.Subject, Step: "denoise", Index: 1, Err: &tool.Failure{Tool: "dwidenoise", ExitCode: 3}})
	s.Subjects = []SubjectResult{ok, bad}

	path, err := s.WriteJSON(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, s.FileName()), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got struct {
		RunID    string `json:"run_id"`
		Pipeline string `json:"pipeline"`
		Subjects []struct {
			Subject    string `json:"subject"`
			Session    string `json:"session"`
			State      string `json:"state"`
			FailedStep int    `json:"failed_step"`
			Reason     string `json:"reason"`
			Steps      []struct {
				Name   string `json:"name"`
				Status string `json:"status"`
			} `json:"steps"`
		} `json:"subjects"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, s.RunID, got.RunID)
	assert.Equal(t, "adni3-dwi", got.Pipeline)
	require.Len(t, got.Subjects, 2)
	assert.Equal(t, "sub-01_ses-M00", got.Subjects[0].Subject)
	assert.Equal(t, "ses-M00", got.Subjects[0].Session)
	assert.Equal(t, "completed", got.Subjects[0].State)
	assert.Equal(t, "skipped", got.Subjects[0].Steps[0].Status)
	assert.Equal(t, "failed", got.Subjects[1].State)
	assert.Equal(t, 1, got.Subjects[1].FailedStep)
	assert.Equal(t, "exit 3", got.Subjects[1].Reason)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "planned", StepPlanned.String())
	assert.Equal(t, "State(9)", State(9).String())
}
