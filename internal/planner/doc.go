// Package planner expands a workflow definition for one subject into a Plan:
// concrete input/output paths and fully substituted tool commands, in step
// order. Planning touches no files; the pipeline package executes plans.
//
//   - Plan, PlannedStep (types.go)
//   - BuildPlan: placeholder scope, env merge, timeout resolution (planner.go)
package planner
