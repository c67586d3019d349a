// Package tool runs external neuroimaging binaries (MRtrix3, FSL, TractSeg,
// container runtimes) as black boxes with an exit-code contract.
//
// Types:
//   - Command (program, argv, working directory, extra environment)
//   - Invoker (interface) and Exec (os/exec implementation)
//   - Failure (non-zero exit) plus ErrTimeout / ErrInterrupted sentinels
//
// Functions:
//   - (*Exec).Invoke(ctx, cmd, log) → (exitCode, error)
//     Streams combined stdout/stderr into the caller's log, forwards
//     cancellation to the child as SIGTERM, enforces the optional watchdog.
//   - Diagnose(output) → hint
//     Matches the tail of tool output against known failure signatures.
//
// There is no retry logic: tools are long-running and not safely
// re-entrant, so a failure always surfaces for manual inspection.
package tool
