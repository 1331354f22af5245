package integrations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/phpup/pkg/cache"
	"github.com/matzehuels/phpup/pkg/httputil"
)

type release struct {
	Version string `json:"version"`
	Date    string `json:"date"`
}

func newTestClient(t *testing.T, h http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	t.Cleanup(func() { fc.Close() })

	c := NewClient(fc, "test:", time.Hour)
	c.SetHTTPClient(srv.Client())
	return c, srv
}

func TestNewClientNilCache(t *testing.T) {
	c := NewClient(nil, "x:", time.Minute)
	if c.cache == nil || c.http == nil {
		t.Fatal("NewClient(nil) left fields unset")
	}
	c.SetHTTPClient(nil)
	if c.http == nil {
		t.Error("SetHTTPClient(nil) cleared the client")
	}
}

func TestClientGet(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		fmt.Fprint(w, `{"version":"8.3.4","date":"14 Mar 2024"}`)
	}))

	var r release
	if err := c.Get(context.Background(), srv.URL, &r); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Version != "8.3.4" || r.Date != "14 Mar 2024" {
		t.Errorf("Get = %+v", r)
	}
}

func TestClientGetBadJSON(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>`)
	}))
	var r release
	if err := c.Get(context.Background(), srv.URL, &r); err == nil {
		t.Fatal("Get accepted a non-JSON body")
	}
}

func TestClientGetText(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "6.0.2\n")
	}))
	got, err := c.GetText(context.Background(), srv.URL+"/rest/r/redis/stable.txt")
	if err != nil {
		t.Fatalf("GetText: %v", err)
	}
	if got != "6.0.2\n" {
		t.Errorf("GetText = %q", got)
	}
}

func TestClientGetBody(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<a><r><v>6.0.2</v></r></a>")
	}))
	body, err := c.GetBody(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("GetBody: %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if string(data) != "<a><r><v>6.0.2</v></r></a>" {
		t.Errorf("body = %q", data)
	}
}

func TestClientStatusMapping(t *testing.T) {
	tests := []struct {
		status    int
		wantErr   error
		retryable bool
	}{
		{http.StatusNotFound, ErrNotFound, false},
		{http.StatusGone, ErrNotFound, false},
		{http.StatusForbidden, ErrNetwork, false},
		{http.StatusTooManyRequests, ErrNetwork, true},
		{http.StatusBadGateway, ErrNetwork, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			_, err := c.GetText(context.Background(), srv.URL)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if httputil.IsRetryable(err) != tt.retryable {
				t.Errorf("retryable = %v, want %v", !tt.retryable, tt.retryable)
			}
		})
	}
}

func TestCheckStatusOK(t *testing.T) {
	if err := checkStatus(http.StatusOK); err != nil {
		t.Errorf("checkStatus(200) = %v", err)
	}
}

func TestClientCached(t *testing.T) {
	var hits atomic.Int32
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"version":"8.2.18"}`)
	}))
	ctx := context.Background()

	fetch := func(v *release) func() error {
		return func() error { return c.Get(ctx, srv.URL, v) }
	}

	var first release
	if err := c.Cached(ctx, "releases:8", false, &first, fetch(&first)); err != nil {
		t.Fatalf("Cached: %v", err)
	}
	var second release
	if err := c.Cached(ctx, "releases:8", false, &second, fetch(&second)); err != nil {
		t.Fatalf("Cached: %v", err)
	}
	if second.Version != "8.2.18" {
		t.Errorf("cached value = %+v", second)
	}
	if hits.Load() != 1 {
		t.Errorf("upstream hits = %d, want 1", hits.Load())
	}

	var fresh release
	if err := c.Cached(ctx, "releases:8", true, &fresh, fetch(&fresh)); err != nil {
		t.Fatalf("Cached(refresh): %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("refresh did not refetch: hits = %d", hits.Load())
	}
}

func TestClientCachedNamespaces(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer fc.Close()
	ctx := context.Background()

	php := NewClient(fc, "phpnet:", time.Hour)
	pecl := NewClient(fc, "pecl:", time.Hour)

	a := "8.3.4"
	if err := php.Cached(ctx, "latest", false, &a, func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	var b string
	called := false
	if err := pecl.Cached(ctx, "latest", false, &b, func() error { called = true; b = "6.0.2"; return nil }); err != nil {
		t.Fatal(err)
	}
	if !called || b != "6.0.2" {
		t.Errorf("namespaces collided: called=%v b=%q", called, b)
	}
}

func TestClientCachedFailureNotStored(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer fc.Close()
	c := NewClient(fc, "test:", time.Hour)
	ctx := context.Background()

	var v string
	wantErr := errors.New("permanent")
	if err := c.Cached(ctx, "k", false, &v, func() error { v = "partial"; return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("Cached err = %v", err)
	}
	if _, ok, _ := fc.Get(ctx, "test:k"); ok {
		t.Error("failed fetch was cached")
	}
}

func TestClientCachedRetriesTransient(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the retry backoff")
	}
	var hits atomic.Int32
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"version":"8.1.28"}`)
	}))
	ctx := context.Background()

	var r release
	if err := c.Cached(ctx, "releases:8.1", false, &r, func() error { return c.Get(ctx, srv.URL, &r) }); err != nil {
		t.Fatalf("Cached: %v", err)
	}
	if r.Version != "8.1.28" || hits.Load() != 2 {
		t.Errorf("version=%q hits=%d", r.Version, hits.Load())
	}
}

func TestClientCancelled(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "{}")
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.GetText(ctx, srv.URL); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
