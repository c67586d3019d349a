package pipeline

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/backmassage/neurobatch/internal/logging"
	"github.com/backmassage/neurobatch/internal/naming"
	"github.com/backmassage/neurobatch/internal/tool"
	"github.com/backmassage/neurobatch/internal/workflow"
)

// SubjectRunner runs one subject's pipeline to completion or failure.
type SubjectRunner interface {
	RunSubject(ctx context.Context, s naming.Subject) SubjectResult
}

// Run is the top-level batch entry point. It processes subjects with at
// most maxConcurrency pipelines in flight, admitting them in the given
// order, and returns the summary once every admitted subject has finished.
// Subjects are first mapped onto the definition's units, so a per-subject
// pipeline runs once per subject however many sessions were found.
func (r *Runner) Run(ctx context.Context, subjects []naming.Subject, maxConcurrency int) *RunSummary {
	subjects = r.Def.Units(subjects)
	summary := NewRunSummary(r.Def.Name, r.Cfg.DryRun)
	logBatchHeader(r, subjects, maxConcurrency)
	summary.Subjects = dispatch(ctx, r.Log, r, subjects, maxConcurrency)
	summary.Finished = time.Now()
	logSummary(r.Log, summary)
	return summary
}

// dispatch fans subjects out over a bounded pool. Results are indexed by
// admission position, so the returned slice follows the input order no
// matter when each subject finishes. A failing subject never cancels the
// others: goroutines always return nil to the group.
func dispatch(ctx context.Context, log *logging.Logger, run SubjectRunner, subjects []naming.Subject, maxConcurrency int) []SubjectResult {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	results := make([]SubjectResult, len(subjects))
	total := len(subjects)

	var (
		g        errgroup.Group
		inFlight atomic.Int32
		finished atomic.Int32
	)
	g.SetLimit(maxConcurrency)

	for i, s := range subjects {
		if ctx.Err() != nil {
			results[i] = notStarted(s)
			continue
		}
		g.Go(func() error {
			// Admission may have waited on a slot; re-check before starting.
			if ctx.Err() != nil {
				results[i] = notStarted(s)
				return nil
			}
			n := inFlight.Add(1)
			log.Info("[%d/%d] %s: start (%d running)", i+1, total, s, n)

			results[i] = run.RunSubject(ctx, s)

			inFlight.Add(-1)
			done := finished.Add(1)
			log.Debug("%d/%d subjects finished", done, total)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		log.Warn("Interrupted")
	}
	return results
}

func notStarted(s naming.Subject) SubjectResult {
	r := SubjectResult{Subject: s, State: StatePending, FailedStep: -1}
	r.fail(-1, "", tool.ErrInterrupted)
	return r
}

// --- Logging helpers ---

func logBatchHeader(r *Runner, subjects []naming.Subject, maxConcurrency int) {
	log := r.Log
	log.Info("Found %d subjects", len(subjects))
	log.Info("Pipeline: %s (%s)", r.Def.Name, strings.Join(r.Def.StepNames(), " → "))
	if r.Def.Per == workflow.PerSubject {
		log.Info("One run per subject; sessions are handled by the tool")
	}
	log.Info("Concurrency: %d subjects, %d threads per tool", maxConcurrency, r.Cfg.Threads)
	if r.Cfg.StepTimeout > 0 {
		log.Info("Step timeout: %s", r.Cfg.StepTimeout)
	}
	if r.Cfg.DryRun {
		log.Info("Dry run: commands are logged, nothing is executed")
	} else {
		log.Info("Logs: %s", r.Cfg.LogDir)
	}
}

func logSummary(log *logging.Logger, s *RunSummary) {
	completed, failed := s.Completed(), s.Failed()
	counts := s.StepCounts()
	log.Info("==============================")
	log.Info("Done: %d completed, %d failed (%d steps run, %d skipped) in %s",
		len(completed), len(failed), counts[StepSucceeded], counts[StepSkipped], s.Elapsed().Round(time.Second))
	for _, r := range completed {
		log.Success("  %s", r.Subject)
	}
	for _, r := range failed {
		if r.FailedName != "" {
			log.Error("  %s: %s: %s", r.Subject, r.FailedName, r.Reason)
		} else {
			log.Error("  %s: %s", r.Subject, r.Reason)
		}
	}
}
