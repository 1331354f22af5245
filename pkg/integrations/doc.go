// Package integrations provides HTTP clients for the vendor metadata APIs
// phpup consults before downloading anything.
//
// # Overview
//
// Each vendor has its own subpackage:
//
//   - [phpnet]: php.net release index (version resolution, source checksums)
//   - [pecl]: PECL REST API (latest stable extension releases)
//   - [composer]: getcomposer.org version list and sha256sum files
//
// # Client Pattern
//
// All vendor clients follow a consistent pattern:
//
//	client := phpnet.NewClient(backend, 6*time.Hour)   // cache backend and TTL
//	v, err := client.Latest(ctx, "8.2", false)         // false = use cache
//
// Clients handle:
//   - HTTP requests with retry on transient failures
//   - Response caching in a [cache.Cache] (file or redis backed)
//   - Vendor-specific parsing and normalization
//
// # Shared Infrastructure
//
// The [Client] type provides the shared HTTP functionality: namespaced
// response caching, [httputil.MetadataPolicy] around every fetch, and
// status mapping to [ErrNotFound] and [ErrNetwork] (retryable for 5xx and
// 429).
//
// [phpnet]: github.com/matzehuels/phpup/pkg/integrations/phpnet
// [pecl]: github.com/matzehuels/phpup/pkg/integrations/pecl
// [composer]: github.com/matzehuels/phpup/pkg/integrations/composer
// [cache.Cache]: github.com/matzehuels/phpup/pkg/cache.Cache
// [httputil.MetadataPolicy]: github.com/matzehuels/phpup/pkg/httputil.MetadataPolicy
package integrations
