package phpnet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matzehuels/phpup/pkg/cache"
	"github.com/matzehuels/phpup/pkg/capability"
	"github.com/matzehuels/phpup/pkg/checksum"
	"github.com/matzehuels/phpup/pkg/integrations"
	"github.com/matzehuels/phpup/pkg/mirror"
)

// DefaultBaseURL is the php.net releases endpoint.
const DefaultBaseURL = "https://www.php.net/releases/"

// Source is one downloadable file of a release.
type Source struct {
	Filename string `json:"filename"`
	Name     string `json:"name"`
	SHA256   string `json:"sha256,omitempty"`
	MD5      string `json:"md5,omitempty"`
	Date     string `json:"date,omitempty"`
}

// Release is one PHP release.
type Release struct {
	Version string   `json:"version"`
	Date    string   `json:"date"`
	Source  []Source `json:"source"`
}

// Checksums returns the digests php.net publishes for filename.
func (r *Release) Checksums(filename string) checksum.Set {
	for _, s := range r.Source {
		if s.Filename != filename {
			continue
		}
		sums := checksum.Set{}
		if s.SHA256 != "" {
			sums[checksum.SHA256] = strings.ToLower(s.SHA256)
		}
		if s.MD5 != "" {
			sums[checksum.MD5] = strings.ToLower(s.MD5)
		}
		return sums
	}
	return nil
}

// Client provides access to the php.net release index.
//
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a php.net client caching responses in c for ttl.
func NewClient(c cache.Cache, ttl time.Duration) *Client {
	return &Client{
		Client:  integrations.NewClient(c, "phpnet:", ttl),
		baseURL: DefaultBaseURL,
	}
}

// WithBaseURL returns c pointed at another index, e.g. a mirror of php.net.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimRight(u, "/") + "/"
	return c
}

// Releases returns every release of major, keyed by version.
func (c *Client) Releases(ctx context.Context, major string, refresh bool) (map[string]Release, error) {
	var releases map[string]Release
	err := c.Cached(ctx, "releases:"+major, refresh, &releases, func() error {
		var raw map[string]Release
		url := fmt.Sprintf("%s?json&max=1000&version=%s", c.baseURL, major)
		if err := c.Get(ctx, url, &raw); err != nil {
			return err
		}
		releases = make(map[string]Release, len(raw))
		for v, r := range raw {
			if r.Version == "" {
				r.Version = v
			}
			releases[v] = r
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return releases, nil
}

// Versions returns the release versions of major, ascending.
func (c *Client) Versions(ctx context.Context, major string, refresh bool) ([]string, error) {
	releases, err := c.Releases(ctx, major, refresh)
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(releases))
	for v := range releases {
		versions = append(versions, v)
	}
	capability.Sort(versions)
	return versions, nil
}

// Latest expands a partial version: "8" or "8.2" to the newest matching
// release. A full version is returned unchanged once it is known to exist.
func (c *Client) Latest(ctx context.Context, version string, refresh bool) (string, error) {
	major, _, _ := strings.Cut(version, ".")
	versions, err := c.Versions(ctx, major, refresh)
	if err != nil {
		return "", err
	}
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		if v == version || strings.HasPrefix(v, version+".") {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: no php release matches %s", integrations.ErrNotFound, version)
}

// Release returns the release with exactly version.
func (c *Client) Release(ctx context.Context, version string, refresh bool) (*Release, error) {
	major, _, _ := strings.Cut(version, ".")
	releases, err := c.Releases(ctx, major, refresh)
	if err != nil {
		return nil, err
	}
	r, ok := releases[version]
	if !ok {
		return nil, fmt.Errorf("%w: php %s", integrations.ErrNotFound, version)
	}
	return &r, nil
}

// Checksums implements acquire.ChecksumSource for php-source artifacts.
// Other kinds and unknown versions yield an empty set.
func (c *Client) Checksums(ctx context.Context, ref mirror.ArtifactRef) (checksum.Set, error) {
	if ref.Kind != mirror.PHPSource {
		return nil, nil
	}
	r, err := c.Release(ctx, ref.Version, false)
	if errors.Is(err, integrations.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.Checksums(ref.FileName()), nil
}
