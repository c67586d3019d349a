// Command neurobatch is the CLI entrypoint for the per-subject neuroimaging
// pipeline runner.
//
// It parses flags, validates configuration and paths, and either lists
// pipelines (--list-pipelines), runs tool diagnostics (--check) or runs the
// selected pipeline across every discovered subject.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/backmassage/neurobatch/internal/check"
	"github.com/backmassage/neurobatch/internal/config"
	"github.com/backmassage/neurobatch/internal/display"
	"github.com/backmassage/neurobatch/internal/logging"
	"github.com/backmassage/neurobatch/internal/pipeline"
	"github.com/backmassage/neurobatch/internal/tool"
	"github.com/backmassage/neurobatch/internal/workflow"
)

// version and commit are injected at build time via -ldflags.
var (
	version = "0.3.0"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Phase 1: Bootstrap. The logger doesn't exist yet, so errors go
	// directly to stderr via fmt.
	cfg := config.DefaultConfig()
	if err := config.ParseFlags(&cfg, version, os.Args[1:]); err != nil {
		if errors.Is(err, config.ErrExitEarly) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "neurobatch: %v\n", err)
		return 1
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "neurobatch: %v\n", err)
		return 1
	}

	log, err := logging.NewLogger(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "neurobatch: %v\n", err)
		return 1
	}
	defer log.Close()

	// Phase 2: Logger available; all output goes through log from here on.
	display.PrintBanner(os.Stdout)

	if cfg.ListPipelines {
		return listPipelines(log)
	}

	def, err := workflow.Resolve(cfg.Pipeline)
	if err != nil {
		log.Error("%v", err)
		return 1
	}

	if cfg.CheckOnly {
		if !check.RunCheck(def, log) {
			return 1
		}
		return 0
	}

	// Resolve and validate paths: the dataset must exist and the log
	// directory must not sit inside a subject directory.
	baseAbs, err := absPath(cfg.BaseDir)
	if err != nil || !isDir(baseAbs) {
		log.Error("Dataset not found: %s", cfg.BaseDir)
		return 1
	}
	if !cfg.DryRun {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			log.Error("Cannot create log directory: %s", cfg.LogDir)
			return 1
		}
	}
	logAbs, err := absPath(cfg.LogDir)
	if err != nil {
		log.Error("Cannot resolve log path: %s", cfg.LogDir)
		return 1
	}
	if err := cfg.ValidatePaths(baseAbs, logAbs); err != nil {
		log.Error("%v", err)
		log.Error("Choose a log directory outside the subject directories of: %s", cfg.BaseDir)
		return 1
	}

	log.Info("=== neurobatch v%s (%s) ===", version, commit)
	log.Info("Dataset:  %s", cfg.BaseDir)
	log.Info("Pipeline: %s", def.Name)
	if cfg.ConfigFile != "" {
		log.Info("Config:   %s", cfg.ConfigFile)
	}
	if cfg.DryRun {
		log.Warn("DRY RUN: no tool will be executed")
	}

	// Fail fast if a pipeline tool is missing; a dry run only warns.
	if err := check.CheckDeps(def); err != nil {
		if !cfg.DryRun {
			log.Error("%v", err)
			log.Error("Run with --check for details")
			return 1
		}
		log.Warn("%v", err)
	}

	subjects, err := pipeline.Discover(&cfg)
	if err != nil {
		log.Error("%v", err)
		return 1
	}
	for _, id := range pipeline.Unmatched(cfg.Subjects, subjects) {
		log.Warn("Requested subject not found: %s", id)
	}
	if len(subjects) == 0 {
		log.Error("No subjects matching %s found in %s", cfg.SubjectPattern, cfg.BaseDir)
		return 1
	}

	// Phase 3: Signal handling. The first SIGINT/SIGTERM cancels the run:
	// running tools get SIGTERM and pending subjects are not started. A
	// second signal kills every tool process group and exits immediately.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	invoker := newInvoker(log)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("Received interrupt, stopping running tools…")
		cancel()
		<-sigCh
		n := invoker.Kill()
		log.Error("Second interrupt, killed %d running tool(s), exiting now", n)
		os.Exit(130)
	}()

	// Phase 4: Run pipeline (discover → plan → guard → invoke, per subject).
	runner := pipeline.NewRunner(&cfg, def, invoker, log)
	summary := runner.Run(ctx, subjects, cfg.MaxConcurrency)

	display.RenderSummary(os.Stdout, summary)

	if cfg.SummaryJSON && !cfg.DryRun {
		path, err := summary.WriteJSON(cfg.LogDir)
		if err != nil {
			log.Error("%v", err)
		} else {
			log.Info("Summary: %s", path)
		}
	}

	return summary.ExitCode()
}

// newInvoker returns the exec-backed tool invoker. In verbose mode tool
// output is echoed through the console logger.
func newInvoker(log *logging.Logger) *tool.Exec {
	if !log.Verbose() {
		return tool.NewExec(nil)
	}
	return tool.NewExec(log.Stdout())
}

func listPipelines(log *logging.Logger) int {
	defs, err := workflow.Builtins()
	if err != nil {
		log.Error("%v", err)
		return 1
	}
	display.RenderPipelines(os.Stdout, defs)
	if log.Verbose() {
		for _, d := range defs {
			display.RenderSteps(os.Stdout, d)
		}
	}
	return 0
}

// absPath returns the absolute path, resolving symlinks when the path
// exists, for safe comparison of dataset and log directory hierarchies.
func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if errors.Is(err, os.ErrNotExist) {
		return abs, nil
	}
	return resolved, err
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
