// Package pipeline runs a workflow across the subjects of a dataset.
//
//   - Discover: subject/session enumeration under the dataset root (discover.go)
//   - ShouldRun: the output-exists skip check (guard.go)
//   - Runner.RunSubject: one subject's steps in order, halting on the first
//     failure (subject.go)
//   - Runner.Run: bounded parallel dispatch across subjects (dispatch.go)
//   - RunSummary: per-run aggregate, exit code and JSON report (summary.go)
package pipeline
