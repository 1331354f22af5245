// Package driver selects the driver that knows how to provision a
// capability on a given platform.
//
// # Overview
//
// A [Driver] describes how one runtime or extension is built: which OS
// packages it needs, which artifact holds its source, which configure flags
// apply, and what happens after installation. Drivers are plain values
// assembled from small strategies (see package drivers); the build pipeline
// calls them stage by stage.
//
// Drivers are registered as [Descriptor] values in a [Registry] under the
// capability kind and name ("php" for the runtime, the PECL name for
// extensions). A descriptor carries two tag sets:
//
//   - RequiredTags: every tag must be derived from the request or the
//     descriptor is not a candidate.
//   - OptionalTags: each matching tag raises the descriptor's score.
//
// # Resolution
//
// [Resolver.Resolve] derives the request's tags from the capability and
// the platform:
//
//	php82          PHP major-minor version  (weight 25)
//	ubuntu-22.04   distro and version       (weight 15)
//	ubuntu         distro                   (weight 10)
//	x86_64         CPU architecture         (weight 5)
//
// and picks the highest-scoring candidate whose driver supports the
// requested PHP version. Equal scores go to the descriptor registered first, so
// resolution never depends on map iteration order. When no specific
// descriptor qualifies the kind's generic descriptor is used; when there is
// none either, resolution fails with UNSUPPORTED_CAPABILITY.
//
// Resolved drivers are memoized per (kind, name, descriptor) by the
// Resolver value. Call [Resolver.Reset] to drop them.
package driver
