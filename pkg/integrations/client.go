package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/matzehuels/phpup/pkg/cache"
	"github.com/matzehuels/phpup/pkg/httputil"
)

var (
	// ErrNotFound is returned when a release, channel or package is unknown upstream.
	ErrNotFound = errors.New("resource not found")

	// ErrNetwork is returned for transport failures and unexpected statuses.
	ErrNetwork = errors.New("network error")
)

// maxTextBody bounds GetText reads. stable.txt and sha256sum files are a
// single line.
const maxTextBody = 1 << 20

// Client is the transport shared by the vendor clients: status mapping,
// retries of transient failures and a namespaced cache of decoded results.
type Client struct {
	http  *http.Client
	cache cache.Cache
	ttl   time.Duration
}

// NewClient creates a Client whose cached results live under namespace in c
// for ttl. A nil c disables caching.
func NewClient(c cache.Cache, namespace string, ttl time.Duration) *Client {
	if c == nil {
		c = cache.NewNullCache()
	}
	return &Client{
		http:  httputil.NewClient(httputil.ClientOptions{}),
		cache: cache.Namespace(c, namespace),
		ttl:   ttl,
	}
}

// SetHTTPClient replaces the HTTP client, e.g. one honoring verify_ssl.
func (c *Client) SetHTTPClient(h *http.Client) {
	if h != nil {
		c.http = h
	}
}

// Cached decodes the value stored under key into v, or runs fetch (retrying
// transient failures) and stores what it left in v. refresh skips the read.
// A failed fetch stores nothing.
func (c *Client) Cached(ctx context.Context, key string, refresh bool, v any, fetch func() error) error {
	if !refresh {
		if data, ok, _ := c.cache.Get(ctx, key); ok && json.Unmarshal(data, v) == nil {
			return nil
		}
	}
	if err := httputil.MetadataPolicy.Do(ctx, fetch); err != nil {
		return err
	}
	if data, err := json.Marshal(v); err == nil {
		_ = c.cache.Set(ctx, key, data, c.ttl)
	}
	return nil
}

// Get fetches url and decodes the JSON body into v.
func (c *Client) Get(ctx context.Context, url string, v any) error {
	body, err := c.GetBody(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// GetText fetches a small plain-text document such as PECL's stable.txt.
func (c *Client) GetText(ctx context.Context, url string) (string, error) {
	body, err := c.GetBody(ctx, url)
	if err != nil {
		return "", err
	}
	defer body.Close()
	data, err := io.ReadAll(io.LimitReader(body, maxTextBody))
	return string(data), err
}

// GetBody fetches url and returns the open body of a 200 response. The
// caller closes it.
func (c *Client) GetBody(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, httputil.Retryable(fmt.Errorf("%w: %v", ErrNetwork, err))
	}
	if err := checkStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	return resp.Body, nil
}

// checkStatus maps a response status to ErrNotFound or ErrNetwork. 429 and
// 5xx are retryable.
func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return ErrNotFound
	case code == http.StatusTooManyRequests || code >= 500:
		return httputil.Retryable(fmt.Errorf("%w: status %d", ErrNetwork, code))
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}
