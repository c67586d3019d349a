// Package config holds runtime configuration: defaults, the optional YAML
// config file, CLI flag parsing, and validation. The resulting Config is
// built once at startup and passed by pointer to every package that needs it.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/backmassage/neurobatch/internal/naming"
)

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// DefaultPipeline is the built-in pipeline used when none is selected.
const DefaultPipeline = "adni3-dwi"

// Config holds all runtime settings. It is populated by [DefaultConfig],
// then by the optional config file, then mutated by [ParseFlags]. Fields are
// grouped by concern.
type Config struct {
	// Dataset layout.
	BaseDir        string   // Positional arg: BIDS-like dataset root.
	Session        string   // Restrict to one session (e.g. "ses-M00"). Empty: every session found.
	SubjectPattern string   // Glob for subject directories. Default: "sub-*".
	Subjects       []string // Explicit subject IDs; empty means every subject discovered.

	// Pipeline selection.
	Pipeline string // Built-in name or path to a YAML definition. Default: "adni3-dwi".
	Threads  int    // Per-tool thread count substituted as {threads}. Default: 4.

	// Scheduling.
	MaxConcurrency int           // Subjects processed at once. Default: 2.
	StepTimeout    time.Duration // Watchdog per step; 0 disables. Default: 0.

	// Behavior flags.
	DryRun      bool
	SummaryJSON bool // Default: true. Write run-<id>.json into LogDir.

	// Display and logging.
	LogDir        string    // Per-subject logs. Default: <BaseDir>/logs.
	Verbose       bool      // Tee tool output to the console.
	ColorMode     ColorMode // Default: "auto".
	LogFile       string    // Optional console log mirror.
	CheckOnly     bool      // Run --check diagnostics and exit.
	ListPipelines bool      // Print built-in pipelines and exit.

	// ConfigFile is the YAML file applied between defaults and flags.
	ConfigFile string
}

// DefaultConfig returns a Config with all defaults. Used as the base before
// the config file and [ParseFlags] apply overrides.
func DefaultConfig() Config {
	return Config{
		SubjectPattern: "sub-*",
		Pipeline:       DefaultPipeline,
		Threads:        4,
		MaxConcurrency: 2,
		StepTimeout:    0,
		DryRun:         false,
		SummaryJSON:    true,
		Verbose:        false,
		ColorMode:      ColorAuto,
	}
}

// NormalizeDirArg strips trailing slashes from a directory path.
// The filesystem root "/" is returned unchanged so we don't produce an empty string.
func NormalizeDirArg(path string) string {
	if path == "/" {
		return "/"
	}
	return strings.TrimRight(path, "/")
}

// NeedsDataset reports whether this invocation operates on a dataset. The
// informational modes (--check, --list-pipelines) do not.
func (c *Config) NeedsDataset() bool {
	return !c.CheckOnly && !c.ListPipelines
}

// Validate checks enum and numeric fields, subject/session labels, and the
// dataset path. It also derives LogDir from BaseDir when unset.
func (c *Config) Validate() error {
	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return errors.New("invalid color mode (use 'auto', 'always' or 'never')")
	}

	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max concurrency must be at least 1 (got %d)", c.MaxConcurrency)
	}
	if c.Threads < 1 {
		return fmt.Errorf("threads must be at least 1 (got %d)", c.Threads)
	}
	if c.StepTimeout < 0 {
		return fmt.Errorf("step timeout must not be negative (got %s)", c.StepTimeout)
	}
	if strings.TrimSpace(c.Pipeline) == "" {
		return errors.New("pipeline must not be empty")
	}

	if c.SubjectPattern == "" {
		return errors.New("subject pattern must not be empty")
	}
	if _, err := filepath.Match(c.SubjectPattern, ""); err != nil {
		return fmt.Errorf("invalid subject pattern %q: %w", c.SubjectPattern, err)
	}
	if c.Session != "" && !naming.IsSessionLabel(c.Session) {
		return fmt.Errorf("invalid session %q (expected ses-<label>)", c.Session)
	}
	for _, id := range c.Subjects {
		if !naming.IsSubjectLabel(id) {
			return fmt.Errorf("invalid subject %q (expected sub-<label>)", id)
		}
	}

	if !c.NeedsDataset() {
		return nil
	}
	if c.BaseDir == "" {
		return errors.New("need exactly one base_dir")
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(c.BaseDir, "logs")
	}
	return nil
}

// ValidatePaths ensures the resolved log directory does not live inside a
// subject directory of the resolved base directory, where it would be
// picked up as derived data or clobbered by a step. Both arguments must be
// absolute, symlink-resolved paths.
func (c *Config) ValidatePaths(baseAbs, logAbs string) error {
	if logAbs == baseAbs {
		return errors.New("log directory must not be the dataset root")
	}
	rel, err := filepath.Rel(baseAbs, logAbs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil
	}
	first := strings.SplitN(rel, string(filepath.Separator), 2)[0]
	if ok, _ := filepath.Match(c.SubjectPattern, first); ok {
		return fmt.Errorf("log directory must not be inside subject directory %s", first)
	}
	return nil
}
