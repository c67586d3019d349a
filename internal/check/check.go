// Package check provides system diagnostics (--check mode) and pre-run
// dependency validation (CheckDeps) for the external tools a pipeline calls.
package check

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/backmassage/neurobatch/internal/tool"
	"github.com/backmassage/neurobatch/internal/workflow"
)

// ErrToolNotFound is returned by CheckDeps when a pipeline tool is not on PATH.
var ErrToolNotFound = errors.New("pipeline tool not found on PATH")

// Logger is the minimal logging interface needed by RunCheck.
// Defined here (rather than importing the logging package) so that check
// remains dependency-light and testable with a mock logger.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
}

// envHints maps tools to the environment variables their suites expect.
var envHints = map[string][]string{
	"dwifslpreproc": {"FSLDIR"},
	"eddy":          {"FSLDIR"},
	"bet":           {"FSLDIR"},
	"flirt":         {"FSLDIR"},
	"5ttgen":        {"FSLDIR"},
	"recon-all":     {"FREESURFER_HOME"},
}

// lookPath is swapped in tests.
var lookPath = tool.Available

// RunCheck runs the --check flow: for every tool in def it prints the
// resolved path or an error, plus warnings for unset suite environment
// variables. It reports whether every tool was found.
func RunCheck(def workflow.Definition, log Logger) bool {
	log.Info("=== System Check: %s ===", def.Name)

	ok := true
	warned := map[string]bool{}
	for _, name := range def.Tools() {
		path, err := lookPath(name)
		if err != nil {
			log.Error("%s: not found", name)
			ok = false
			continue
		}
		log.Success("%s: %s", name, path)
		for _, env := range envHints[name] {
			if os.Getenv(env) == "" && !warned[env] {
				warned[env] = true
				log.Warn("%s is not set (needed by %s)", env, name)
			}
		}
	}
	if ok {
		log.Success("All %d tools available", len(def.Tools()))
	}
	return ok
}

// CheckDeps is the pre-run validation: every tool of def must be on PATH.
// The error wraps ErrToolNotFound and names all missing tools.
func CheckDeps(def workflow.Definition) error {
	missing := Missing(def)
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrToolNotFound, strings.Join(missing, ", "))
}

// Missing returns the tools of def that are not on PATH, sorted.
func Missing(def workflow.Definition) []string {
	var missing []string
	for _, name := range def.Tools() {
		if _, err := lookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	return missing
}
