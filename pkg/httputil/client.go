package httputil

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/matzehuels/phpup/pkg/buildinfo"
	"github.com/matzehuels/phpup/pkg/observability"
)

// DefaultTimeout bounds metadata requests when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// ClientOptions configures [NewClient].
type ClientOptions struct {
	// Timeout is the whole-request timeout. Zero means DefaultTimeout; a
	// negative value disables it (callers then bound requests by context).
	Timeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// UserAgent overrides [buildinfo.UserAgent].
	UserAgent string
}

// NewClient creates an HTTP client for artifact and metadata downloads.
func NewClient(opts ClientOptions) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureSkipVerify {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // user opted out via verify_ssl = false
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = buildinfo.UserAgent()
	}

	timeout := opts.Timeout
	switch {
	case timeout == 0:
		timeout = DefaultTimeout
	case timeout < 0:
		timeout = 0
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &hookTransport{next: base, userAgent: ua},
	}
}

// hookTransport sets the user agent and reports each round trip to the
// registered HTTP hooks.
type hookTransport struct {
	next      http.RoundTripper
	userAgent string
}

func (t *hookTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	ctx := req.Context()
	hooks := observability.HTTP()
	hooks.OnRequest(ctx, req.Method, req.URL.Host, req.URL.Path)

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, req.URL.Host, req.URL.Path, err)
		return nil, err
	}
	hooks.OnResponse(ctx, req.Method, req.URL.Host, req.URL.Path, resp.StatusCode, time.Since(start))
	return resp, nil
}
