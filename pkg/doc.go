// Package pkg provides the core libraries of the phpup provisioning engine.
//
// # Overview
//
// phpup builds PHP runtimes and PECL extensions from source on Linux hosts.
// A request names a capability ("php 8.2.10", "redis for php 8.2"); the
// engine picks the most specific build driver for the host, downloads the
// source through an ordered mirror set, and runs a staged build that rolls
// back on failure. The pkg directory is organized into four main areas:
//
//  1. Resolution - what to build and with which driver ([capability], [driver], [drivers])
//  2. Acquisition - where to download from and how ([mirror], [acquire], [cache], [checksum])
//  3. Building - running the stages ([build], [archive], [shell], [pkgmgr])
//  4. Orchestration - the install and remove entry points ([provision])
//
// # Architecture
//
// The typical data flow of an install:
//
//	capability + platform tags
//	         ↓
//	    [driver] Resolver (score registered drivers, pick the best)
//	         ↓
//	    [build] Pipeline (dependencies → source → configure → compile → install → post-configure)
//	         ↓                 ↑
//	         ↓            [acquire] Fetcher ([mirror] Catalog/Ranker → cached, verified download)
//	         ↓
//	    installed prefix under <root>/versions/<version>
//
// # Quick Start
//
// Install a runtime:
//
//	reg := driver.NewRegistry()
//	drivers.Register(reg)
//
//	fetcher := &acquire.Fetcher{
//	    Catalog:  mirror.NewCatalog(mirror.Config{AutoFallbackToOfficial: true}),
//	    Acquirer: acquire.New(acquire.Options{Store: store}),
//	}
//	pipeline := build.NewPipeline(nil, fetcher, shell.NewExec(logger), logger)
//	o := provision.New(paths.New(root), driver.NewResolver(reg), pipeline, fetcher, logger)
//
//	plat, _ := platform.Detect()
//	res, err := o.Install(ctx, capability.NewRuntime("8.2.10"), plat, provision.Options{})
//
// # Main Packages
//
// ## Resolution
//
// [capability] - The immutable request value and PHP version helpers.
//
// [driver] - The driver contract, the tag registry and the scoring resolver.
//
// [drivers] - Built-in PHP runtime and extension drivers, including the
// generic PECL fallback.
//
// [platform] - os-release parsing into distro, version and architecture tags.
//
// ## Acquisition
//
// [mirror] - Artifact references, ordered mirror sets and latency ranking.
//
// [acquire] - Downloads with ordered fallback, chunked range requests,
// caching and checksum enforcement.
//
// [cache] - The on-disk artifact store plus file, redis and null backends
// for small metadata values.
//
// [integrations] - php.net, PECL and getcomposer.org metadata clients.
//
// ## Building
//
// [build] - The staged pipeline, its state machine and rollback.
//
// [archive] - Tarball and zip extraction and source root detection.
//
// [shell] - Child process execution with output capture.
//
// [pkgmgr] - OS package manager commands for build dependencies.
//
// ## Infrastructure
//
// [config] - TOML configuration store. [paths] - On-disk layout.
// [errors] - Coded errors. [httputil] - HTTP client and retry helpers.
// [observability] - Build, download and HTTP hooks.
//
// # Testing
//
// Run tests:
//
//	go test ./pkg/...                    # All tests
//	go test ./pkg/build/...              # Specific package
//	go test -tags integration ./pkg/...  # Include tests against vendor APIs
//
// [capability]: https://pkg.go.dev/github.com/matzehuels/phpup/pkg/capability
// [driver]: https://pkg.go.dev/github.com/matzehuels/phpup/pkg/driver
// [drivers]: https://pkg.go.dev/github.com/matzehuels/phpup/pkg/drivers
// [platform]: https://pkg.go.dev/github.com/matzehuels/phpup/pkg/platform
// [mirror]: https://pkg.go.dev/github.com/matzehuels/phpup/pkg/mirror
// [acquire]: https://pkg.go.dev/github.com/matzehuels/phpup/pkg/acquire
// [cache]: https://pkg.go.dev/github.com/matzehuels/phpup/pkg/cache
// [checksum]: https://pkg.go.dev/github.com/matzehuels/phpup/pkg/checksum
// [integrations]: https://pkg.go.dev/github.com/matzehuels/phpup/pkg/integrations
// [build]: https://pkg.go.dev/github.com/matzehuels/phpup/pkg/build
// [archive]: https://pkg.go.dev/github.com/matzehuels/phpup/pkg/archive
// [shell]: https://pkg.go.dev/github.com/matzehuels/phpup/pkg/shell
// [pkgmgr]: https://pkg.go.dev/github.com/matzehuels/phpup/pkg/pkgmgr
// [provision]: https://pkg.go.dev/github.com/matzehuels/phpup/pkg/provision
// [config]: https://pkg.go.dev/github.com/matzehuels/phpup/pkg/config
// [paths]: https://pkg.go.dev/github.com/matzehuels/phpup/pkg/paths
// [errors]: https://pkg.go.dev/github.com/matzehuels/phpup/pkg/errors
// [httputil]: https://pkg.go.dev/github.com/matzehuels/phpup/pkg/httputil
// [observability]: https://pkg.go.dev/github.com/matzehuels/phpup/pkg/observability
package pkg
