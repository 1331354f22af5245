package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/phpup/pkg/cache"
	"github.com/matzehuels/phpup/pkg/checksum"
	perrors "github.com/matzehuels/phpup/pkg/errors"
	"github.com/matzehuels/phpup/pkg/mirror"
	"github.com/matzehuels/phpup/pkg/observability"
)

const (
	// DefaultThreads is the chunk worker count when none is configured.
	DefaultThreads = 4

	// MaxThreads caps the chunk worker count.
	MaxThreads = 16

	// DefaultMinChunkSize is the smallest part worth a separate request.
	// Files smaller than two parts are fetched with a single GET.
	DefaultMinChunkSize = 1 << 20
)

// Options configures an [Acquirer].
type Options struct {
	// Client performs every request. Nil means http.DefaultClient.
	Client *http.Client

	// Store is the artifact cache. Nil disables caching.
	Store *cache.Store

	// TTL is the lifetime of new cache entries. Zero never expires.
	TTL time.Duration

	// VerifyOnHit re-hashes cache hits against the expected checksums.
	VerifyOnHit bool

	// Chunked enables parallel range requests.
	Chunked bool

	// Threads is the chunk worker count, clamped to [1, MaxThreads].
	Threads int

	// MinChunkSize overrides DefaultMinChunkSize.
	MinChunkSize int64

	Logger   *log.Logger
	Progress ProgressFunc
}

// Acquirer fetches artifacts. It is safe for concurrent use.
type Acquirer struct {
	client    *http.Client
	store     *cache.Store
	ttl       time.Duration
	verifyHit bool
	chunked   bool
	threads   int
	minChunk  int64
	logger    *log.Logger
	progress  ProgressFunc
}

// New creates an Acquirer.
func New(opts Options) *Acquirer {
	a := &Acquirer{
		client:    opts.Client,
		store:     opts.Store,
		ttl:       opts.TTL,
		verifyHit: opts.VerifyOnHit,
		chunked:   opts.Chunked,
		threads:   opts.Threads,
		minChunk:  opts.MinChunkSize,
		logger:    opts.Logger,
		progress:  opts.Progress,
	}
	if a.client == nil {
		a.client = http.DefaultClient
	}
	switch {
	case a.threads <= 0:
		a.threads = DefaultThreads
	case a.threads > MaxThreads:
		a.threads = MaxThreads
	}
	if a.minChunk <= 0 {
		a.minChunk = DefaultMinChunkSize
	}
	if a.logger == nil {
		a.logger = log.Default()
	}
	if a.progress == nil {
		a.progress = func() Progress { return noProgress{} }
	}
	return a
}

// Request describes one artifact download.
type Request struct {
	// Key is the logical artifact identity used for the cache, e.g.
	// "php-source/8.2.10". An empty key bypasses the cache.
	Key string

	// URLs is the ordered mirror set.
	URLs []string

	// Destination is the final file path.
	Destination string

	// Expected checksums; empty skips verification.
	Expected checksum.Set

	// Refresh ignores an existing cache entry.
	Refresh bool
}

// Result describes a completed download.
type Result struct {
	Path         string
	BytesWritten int64
	FromCache    bool
	Duration     time.Duration

	// URL is the mirror that served the file; empty for cache hits.
	URL string

	// Checksums of the delivered file.
	Checksums checksum.Set
}

// Attempt records the failure of one URL.
type Attempt struct {
	URL string
	Err error
}

// ExhaustedError lists every failed attempt of a fetch. It is the cause of
// the MIRROR_EXHAUSTED error returned by [Acquirer.Fetch].
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	for i, a := range e.Attempts {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %v", a.URL, a.Err)
	}
	return b.String()
}

// Unwrap returns the last failure.
func (e *ExhaustedError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// Fetch downloads req.Destination from the cache or the first URL that
// succeeds.
func (a *Acquirer) Fetch(ctx context.Context, req Request) (*Result, error) {
	if len(req.URLs) == 0 {
		return nil, perrors.New(perrors.ErrCodeInvalidInput, "no URLs for %s", req.Key)
	}
	if req.Destination == "" {
		return nil, perrors.New(perrors.ErrCodeInvalidInput, "no destination for %s", req.Key)
	}
	if err := os.MkdirAll(filepath.Dir(req.Destination), 0o755); err != nil {
		return nil, err
	}
	start := time.Now()

	if res, ok := a.fromCache(ctx, req); ok {
		res.Duration = time.Since(start)
		return res, nil
	}

	hooks := observability.Download()
	var attempts []Attempt
	for i, u := range req.URLs {
		n, sums, err := a.fetchURL(ctx, u, req)
		if err == nil {
			a.logger.Info("fetched artifact", "key", req.Key, "url", u, "bytes", n)
			a.populate(ctx, req, u, sums)
			return &Result{
				Path:         req.Destination,
				BytesWritten: n,
				Duration:     time.Since(start),
				URL:          u,
				Checksums:    sums,
			}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		attempts = append(attempts, Attempt{URL: u, Err: err})
		if i < len(req.URLs)-1 {
			a.logger.Warn("mirror failed, trying next", "url", u, "error", err)
			hooks.OnMirrorFallback(ctx, u, err)
		} else {
			a.logger.Warn("mirror failed", "url", u, "error", err)
		}
	}

	return nil, perrors.Wrap(perrors.ErrCodeMirrorExhausted, &ExhaustedError{Attempts: attempts},
		"all %d mirrors failed for %s", len(req.URLs), displayKey(req)).AsRecoverable()
}

func displayKey(req Request) string {
	if req.Key != "" {
		return req.Key
	}
	return filepath.Base(req.Destination)
}

// fromCache serves req from the store. Entries whose recorded or
// recomputed checksums contradict req.Expected are evicted.
func (a *Acquirer) fromCache(ctx context.Context, req Request) (*Result, bool) {
	if a.store == nil || req.Key == "" || req.Refresh {
		return nil, false
	}
	entry, ok, err := a.store.Lookup(ctx, req.Key)
	if err != nil || !ok {
		return nil, false
	}
	if err := checksum.Compare(req.Key, common(req.Expected, entry.Checksums), entry.Checksums); err != nil {
		a.logger.Warn("cached artifact has unexpected checksum, evicting", "key", req.Key, "error", err)
		_ = a.store.Evict(ctx, req.Key)
		return nil, false
	}

	entry, err = a.store.CopyTo(ctx, req.Key, req.Destination)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			a.logger.Debug("cache copy failed", "key", req.Key, "error", err)
		}
		return nil, false
	}
	sums := entry.Checksums
	if a.verifyHit && len(req.Expected) > 0 {
		if err := checksum.VerifyFile(req.Destination, req.Expected); err != nil {
			a.logger.Warn("cached artifact failed verification, evicting", "key", req.Key, "error", err)
			_ = os.Remove(req.Destination)
			_ = a.store.Evict(ctx, req.Key)
			return nil, false
		}
		sums = sums.Merge(req.Expected)
	}
	a.logger.Debug("artifact served from cache", "key", req.Key, "path", entry.Path)
	return &Result{
		Path:         req.Destination,
		BytesWritten: entry.SizeBytes,
		FromCache:    true,
		Checksums:    sums,
	}, true
}

// common returns the entries of expected whose algorithm is also in got.
func common(expected, got checksum.Set) checksum.Set {
	out := checksum.Set{}
	for alg, v := range expected {
		if _, ok := got[alg]; ok {
			out[alg] = v
		}
	}
	return out
}

func (a *Acquirer) populate(ctx context.Context, req Request, url string, sums checksum.Set) {
	if a.store == nil || req.Key == "" {
		return
	}
	if _, err := a.store.Put(ctx, req.Key, req.Destination, cache.PutOptions{
		Checksums: sums,
		Source:    url,
		TTL:       a.ttl,
	}); err != nil {
		a.logger.Warn("caching artifact failed", "key", req.Key, "error", err)
	}
}

// fetchURL transfers one URL into a temporary sibling of the destination,
// verifies it and renames it into place.
func (a *Acquirer) fetchURL(ctx context.Context, url string, req Request) (n int64, sums checksum.Set, err error) {
	tmp, err := os.CreateTemp(filepath.Dir(req.Destination), "."+filepath.Base(req.Destination)+".part-*")
	if err != nil {
		return 0, nil, err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	hooks := observability.Download()
	start := time.Now()
	chunked := false
	if a.chunked {
		if size, ok := a.rangeSize(ctx, url); ok && size >= 2*a.minChunk {
			chunked = true
			hooks.OnDownloadStart(ctx, url, true)
			n, err = a.fetchChunked(ctx, url, tmp, size)
			if err != nil {
				if ctx.Err() != nil {
					return 0, nil, ctx.Err()
				}
				a.logger.Debug("chunked download failed, using single stream", "url", url, "error", err)
				if err = rewind(tmp); err != nil {
					return 0, nil, err
				}
				chunked = false
			}
		}
	}
	if !chunked {
		hooks.OnDownloadStart(ctx, url, false)
		n, err = a.fetchSingle(ctx, url, tmp)
	}
	hooks.OnDownloadComplete(ctx, url, n, time.Since(start), err)
	if err != nil {
		return 0, nil, err
	}

	if err = tmp.Sync(); err != nil {
		return 0, nil, err
	}
	if err = tmp.Close(); err != nil {
		return 0, nil, err
	}
	if n == 0 {
		return 0, nil, fmt.Errorf("empty response from %s", url)
	}

	sums, err = checksum.ComputeFile(tmpPath, algorithms(req.Expected)...)
	if err != nil {
		return 0, nil, err
	}
	if err = checksum.Compare(filepath.Base(req.Destination), req.Expected, sums); err != nil {
		return 0, nil, perrors.Wrap(perrors.ErrCodeIntegrityMismatch, err, "artifact from %s failed verification", url)
	}
	if err = os.Rename(tmpPath, req.Destination); err != nil {
		return 0, nil, err
	}
	return n, sums, nil
}

// algorithms returns the expected algorithms plus sha256, which is always
// recorded in the cache.
func algorithms(expected checksum.Set) []checksum.Algorithm {
	algs := expected.Algorithms()
	if _, ok := expected[checksum.SHA256]; !ok {
		algs = append(algs, checksum.SHA256)
	}
	return algs
}

func rewind(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := f.Seek(0, io.SeekStart)
	return err
}

// fetchSingle streams one GET response into w.
func (a *Acquirer) fetchSingle(ctx context.Context, url string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return 0, perrors.Wrap(perrors.ErrCodeNetwork, err, "GET %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &mirror.StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	p := a.progress()
	p.Start(url, resp.ContentLength)
	defer p.Finish()
	n, err := io.Copy(io.MultiWriter(w, progressWriter{p}), resp.Body)
	if err != nil {
		return n, perrors.Wrap(perrors.ErrCodeNetwork, err, "reading %s", url)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return n, fmt.Errorf("short body from %s: got %d of %d bytes", url, n, resp.ContentLength)
	}
	return n, nil
}
