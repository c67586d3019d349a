package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/backmassage/neurobatch/internal/pipeline"
	"github.com/backmassage/neurobatch/internal/term"
	"github.com/backmassage/neurobatch/internal/workflow"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(term.ColorDim)).
		Headers(headers...)
}

// RenderSummary writes the end-of-run table: one row per subject with its
// state, step tallies, failing step and reason.
func RenderSummary(w io.Writer, s *pipeline.RunSummary) {
	rows := make([][]string, 0, len(s.Subjects))
	states := make([]pipeline.State, 0, len(s.Subjects))
	for _, r := range s.Subjects {
		var ran, skipped int
		var bytes int64
		for _, st := range r.Steps {
			switch st.Status {
			case pipeline.StepSucceeded, pipeline.StepPlanned:
				ran++
			case pipeline.StepSkipped:
				skipped++
			}
			bytes += st.OutputBytes
		}
		failed := "-"
		if r.FailedName != "" {
			failed = fmt.Sprintf("%d %s", r.FailedStep+1, r.FailedName)
		}
		reason := r.Reason
		if reason == "" {
			reason = "-"
		}
		rows = append(rows, []string{
			r.Subject.String(),
			r.State.String(),
			fmt.Sprintf("%d/%d", ran, skipped),
			failed,
			reason,
			FormatBytes(bytes),
			FormatDuration(r.Elapsed),
		})
		states = append(states, r.State)
	}

	t := newTable("Subject", "State", "Ran/Skipped", "Failed step", "Reason", "Written", "Elapsed").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			base := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow || row >= len(states) {
				return base.Bold(true).Foreground(term.ColorInfo)
			}
			if col == 1 {
				if states[row] == pipeline.StateCompleted {
					return base.Foreground(term.ColorSuccess)
				}
				return base.Foreground(term.ColorError)
			}
			return base
		})

	completed, failed := len(s.Completed()), len(s.Failed())
	title := fmt.Sprintf("Run %s (%s): %d completed, %d failed in %s",
		shortID(s.RunID), s.Pipeline, completed, failed, FormatDuration(s.Elapsed()))
	if s.DryRun {
		title += " [dry run]"
	}
	fmt.Fprintln(w, lipgloss.NewStyle().Bold(true).Render(title))
	fmt.Fprintln(w, t.String())
}

// RenderPipelines writes one row per pipeline definition.
func RenderPipelines(w io.Writer, defs []workflow.Definition) {
	t := newTable("Pipeline", "Steps", "Tools", "Description")
	for _, d := range defs {
		t.Row(d.Name, fmt.Sprint(len(d.Steps)), strings.Join(d.Tools(), " "), d.Description)
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		base := lipgloss.NewStyle().Padding(0, 1)
		if row == table.HeaderRow {
			return base.Bold(true).Foreground(term.ColorInfo)
		}
		return base
	})
	fmt.Fprintln(w, t.String())
}

// RenderSteps writes the steps of one definition in order.
func RenderSteps(w io.Writer, def workflow.Definition) {
	t := newTable("#", "Step", "Tool", "Outputs", "Description")
	for i, s := range def.Steps {
		t.Row(fmt.Sprint(i+1), s.Name, s.Tool, fmt.Sprint(len(s.Outputs)), s.Description)
	}
	fmt.Fprintln(w, lipgloss.NewStyle().Bold(true).Render(def.Name))
	fmt.Fprintln(w, t.String())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
