// Package observability provides hooks for metrics, tracing, and logging.
//
// The engine stays free of any metrics backend: libraries emit events through
// the registered hooks and main decides what receives them. Every category
// defaults to a no-op implementation.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetBuildHooks(&stageTimer{})
//	    observability.SetDownloadHooks(&byteCounter{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Build().OnStageStart(ctx, "php@8.2.10", "configure")
//	// ... run ./configure ...
//	observability.Build().OnStageComplete(ctx, "php@8.2.10", "configure", elapsed, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Build Hooks
// =============================================================================

// BuildHooks receives events from the build pipeline.
type BuildHooks interface {
	OnStageStart(ctx context.Context, capability, stage string)
	OnStageComplete(ctx context.Context, capability, stage string, duration time.Duration, err error)

	// OnRollback reports the cleanup that followed a failed run.
	OnRollback(ctx context.Context, capability string, removedPrefix bool)
}

// =============================================================================
// Download Hooks
// =============================================================================

// DownloadHooks receives events from the acquirer.
type DownloadHooks interface {
	OnDownloadStart(ctx context.Context, url string, chunked bool)
	OnDownloadComplete(ctx context.Context, url string, bytes int64, duration time.Duration, err error)

	// OnMirrorFallback records that url failed and the next mirror is tried.
	OnMirrorFallback(ctx context.Context, url string, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int64)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from HTTP client operations.
type HTTPHooks interface {
	// OnRequest records an outgoing HTTP request.
	OnRequest(ctx context.Context, method, host, path string)

	// OnResponse records an HTTP response.
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)

	// OnError records an HTTP error (network failure, timeout).
	OnError(ctx context.Context, method, host, path string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopBuildHooks is a no-op implementation of BuildHooks.
type NoopBuildHooks struct{}

func (NoopBuildHooks) OnStageStart(context.Context, string, string)                          {}
func (NoopBuildHooks) OnStageComplete(context.Context, string, string, time.Duration, error) {}
func (NoopBuildHooks) OnRollback(context.Context, string, bool)                              {}

// NoopDownloadHooks is a no-op implementation of DownloadHooks.
type NoopDownloadHooks struct{}

func (NoopDownloadHooks) OnDownloadStart(context.Context, string, bool)                           {}
func (NoopDownloadHooks) OnDownloadComplete(context.Context, string, int64, time.Duration, error) {}
func (NoopDownloadHooks) OnMirrorFallback(context.Context, string, error)                         {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)        {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)       {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int64) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	buildHooks    BuildHooks    = NoopBuildHooks{}
	downloadHooks DownloadHooks = NoopDownloadHooks{}
	cacheHooks    CacheHooks    = NoopCacheHooks{}
	httpHooks     HTTPHooks     = NoopHTTPHooks{}
	hooksMu       sync.RWMutex
)

// SetBuildHooks registers custom build hooks. Nil is ignored.
func SetBuildHooks(h BuildHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		buildHooks = h
	}
}

// SetDownloadHooks registers custom download hooks. Nil is ignored.
func SetDownloadHooks(h DownloadHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		downloadHooks = h
	}
}

// SetCacheHooks registers custom cache hooks. Nil is ignored.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks. Nil is ignored.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Build returns the registered build hooks.
func Build() BuildHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return buildHooks
}

// Download returns the registered download hooks.
func Download() DownloadHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return downloadHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	buildHooks = NoopBuildHooks{}
	downloadHooks = NoopDownloadHooks{}
	cacheHooks = NoopCacheHooks{}
	httpHooks = NoopHTTPHooks{}
}
