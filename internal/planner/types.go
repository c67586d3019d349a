package planner

import (
	"fmt"

	"github.com/backmassage/neurobatch/internal/naming"
	"github.com/backmassage/neurobatch/internal/tool"
)

// Plan is the expanded pipeline for one subject. It is produced by
// BuildPlan and consumed by the subject pipeline, which walks Steps in order.
type Plan struct {
	Subject  naming.Subject
	Pipeline string
	Dir      string // Subject directory (<base>/<sub>/<ses>).
	Steps    []PlannedStep
}

// PlannedStep is one step with every template resolved.
type PlannedStep struct {
	Index       int // Zero-based position in the definition.
	Name        string
	Description string
	Command     tool.Command
	Inputs      []string // Must exist before the tool runs.
	Outputs     []string // Drive the skip check and post-run verification.
}

// Label returns "<n>/<total> <name>" for progress logs.
func (p *Plan) Label(i int) string {
	return fmt.Sprintf("%d/%d %s", i+1, len(p.Steps), p.Steps[i].Name)
}
