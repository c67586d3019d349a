package tool

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Sentinel errors returned by [Exec.Invoke]. A non-zero exit is reported as
// a *Failure, which also matches ErrToolFailed via errors.Is.
var (
	ErrToolFailed  = errors.New("tool exited with non-zero status")
	ErrTimeout     = errors.New("step timed out")
	ErrInterrupted = errors.New("interrupted")
	ErrNotFound    = errors.New("tool not found on PATH")
)

// Failure reports a tool that ran and exited non-zero.
type Failure struct {
	Tool     string
	ExitCode int
	Hint     string // From Diagnose; may be empty.
}

// Error implements error.
func (f *Failure) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", f.Tool, f.ExitCode)
	if f.Hint != "" {
		msg += " (" + f.Hint + ")"
	}
	return msg
}

// Is lets errors.Is(err, ErrToolFailed) match any *Failure.
func (f *Failure) Is(target error) bool {
	return target == ErrToolFailed
}

// Pre-compiled patterns for classifying the tail of tool output into
// actionable hints. Checked in order by [Diagnose]; first match wins.
var diagnoses = []struct {
	re   *regexp.Regexp
	hint string
}{
	{regexp.MustCompile(`(?i)command not found|No such file or directory.*(bin|exec)|executable file not found`),
		"a helper program is missing from PATH"},
	{regexp.MustCompile(`(?i)FSLDIR (environment variable )?(is )?not set|FSLDIR.*undefined`),
		"FSL environment not configured (source $FSLDIR/etc/fslconf/fsl.sh)"},
	{regexp.MustCompile(`(?i)freesurfer license|license\.txt.*(not found|missing|invalid)|FS_LICENSE`),
		"FreeSurfer license file missing or invalid"},
	{regexp.MustCompile(`(?i)out of memory|std::bad_alloc|MemoryError|Cannot allocate memory|Killed`),
		"ran out of memory; lower --jobs or --threads"},
	{regexp.MustCompile(`(?i)No space left on device|Disk quota exceeded`),
		"disk full"},
	{regexp.MustCompile(`(?i)CUDA|cudaError|no CUDA-capable device`),
		"GPU/CUDA problem"},
	{regexp.MustCompile(`(?i)Cannot connect to the Docker daemon|permission denied.*docker\.sock`),
		"container runtime unavailable"},
	{regexp.MustCompile(`(?i)output file .* already exists|use -force`),
		"stale output present; remove it or add -force"},
}

// diagnoseTail is how many trailing lines of output Diagnose inspects.
const diagnoseTail = 40

// Diagnose returns a short hint for a failed tool's output, or "" when no
// known signature matches.
func Diagnose(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > diagnoseTail {
		lines = lines[len(lines)-diagnoseTail:]
	}
	tail := strings.Join(lines, "\n")
	for _, d := range diagnoses {
		if d.re.MatchString(tail) {
			return d.hint
		}
	}
	return ""
}
