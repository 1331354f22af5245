// Package build drives one source installation of a PHP runtime or
// extension through its stages.
//
// # States
//
// A run moves strictly forward through
//
//	Pending → DepsInstalled → SourceAcquired → Configured → Compiled →
//	Installed → PostConfigured → Done
//
// and any failure moves it to Failed, which records the state the run was
// in and freezes the [Machine]. Each transition calls into the resolved
// [driver.Driver]: it declares OS packages, names its source artifact,
// supplies configure options and commands, and writes prefix-local
// configuration. The pipeline runs the commands through a [shell.Runner].
//
// # Rollback
//
// [Pipeline.Run] always removes the attempt's TempDir. When a run fails it
// also removes InstallPrefix, but only if the prefix did not exist before the
// run started. The rollback runs from a deferred function, so it also covers
// a driver that panics.
//
// # Locking
//
// A run holds an advisory lock on "<InstallPrefix>.lock" for its whole
// duration. A second run against the same prefix fails with LOCKED instead of
// waiting.
package build
