// Package provision is the entry point for installing and removing PHP
// runtimes and extensions.
//
// An [Orchestrator] composes the driver resolver, the build pipeline and the
// artifact fetcher:
//
//	o := provision.New(p, resolver, pipeline, fetcher, logger)
//	res, err := o.Install(ctx, capability.NewRuntime("8.2"), tags, provision.Options{
//	    PreferBinary: true,
//	    Retries:      2,
//	})
//
// Install refuses to touch a capability that is already installed and
// returns ALREADY_INSTALLED before any driver stage runs; reinstalling takes
// an explicit Remove first. Partial runtime versions ("8.2") are expanded
// through a [VersionIndex]. An extension without a version gets the newest
// release compatible with its runtime: the driver's pin when one applies,
// otherwise the latest stable from an [ExtensionIndex].
//
// With PreferBinary, a runtime is first installed from a prebuilt static
// binary. Any failure on that path falls back to a source build. Source builds
// are retried up to Options.Retries times while the error is recoverable.
package provision
