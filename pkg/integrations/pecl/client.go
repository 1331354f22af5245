package pecl

import (
	"context"
	"encoding/xml"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/matzehuels/phpup/pkg/cache"
	"github.com/matzehuels/phpup/pkg/capability"
	"github.com/matzehuels/phpup/pkg/checksum"
	perrors "github.com/matzehuels/phpup/pkg/errors"
	"github.com/matzehuels/phpup/pkg/integrations"
	"github.com/matzehuels/phpup/pkg/mirror"
)

// DefaultBaseURL is the PECL REST root.
const DefaultBaseURL = "https://pecl.php.net/rest/r"

// Release is one entry of allreleases.xml.
type Release struct {
	Version   string `xml:"v" json:"version"`
	Stability string `xml:"s" json:"stability"`
}

type allReleases struct {
	XMLName  xml.Name  `xml:"a"`
	Package  string    `xml:"p"`
	Releases []Release `xml:"r"`
}

// Client provides access to the PECL REST interface.
//
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a PECL client caching responses in c for ttl.
func NewClient(c cache.Cache, ttl time.Duration) *Client {
	return &Client{
		Client:  integrations.NewClient(c, "pecl:", ttl),
		baseURL: DefaultBaseURL,
	}
}

// WithBaseURL returns c pointed at another REST root.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

// Stable returns the latest stable release of ext.
func (c *Client) Stable(ctx context.Context, ext string, refresh bool) (string, error) {
	ext = strings.ToLower(ext)
	if err := perrors.ValidateExtensionName(ext); err != nil {
		return "", err
	}

	var version string
	err := c.Cached(ctx, "stable:"+ext, refresh, &version, func() error {
		text, err := c.GetText(ctx, fmt.Sprintf("%s/%s/stable.txt", c.baseURL, ext))
		if err != nil {
			return fmt.Errorf("pecl %s: %w", ext, err)
		}
		version = strings.TrimSpace(text)
		if version == "" {
			return fmt.Errorf("pecl %s: %w: empty stable.txt", ext, integrations.ErrNotFound)
		}
		return perrors.ValidateVersion(version)
	})
	return version, err
}

// Releases returns every published release of ext, oldest first.
func (c *Client) Releases(ctx context.Context, ext string, refresh bool) ([]Release, error) {
	ext = strings.ToLower(ext)
	if err := perrors.ValidateExtensionName(ext); err != nil {
		return nil, err
	}

	var releases []Release
	err := c.Cached(ctx, "releases:"+ext, refresh, &releases, func() error {
		body, err := c.GetBody(ctx, fmt.Sprintf("%s/%s/allreleases.xml", c.baseURL, ext))
		if err != nil {
			return fmt.Errorf("pecl %s: %w", ext, err)
		}
		defer body.Close()

		var doc allReleases
		if err := xml.NewDecoder(body).Decode(&doc); err != nil {
			return fmt.Errorf("pecl %s: decode allreleases.xml: %w", ext, err)
		}
		releases = doc.Releases
		slices.SortStableFunc(releases, func(a, b Release) int {
			return capability.Compare(a.Version, b.Version)
		})
		return nil
	})
	return releases, err
}

// Versions returns the stable release versions of ext, ascending.
func (c *Client) Versions(ctx context.Context, ext string, refresh bool) ([]string, error) {
	releases, err := c.Releases(ctx, ext, refresh)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range releases {
		if r.Stability == "" || r.Stability == "stable" {
			out = append(out, r.Version)
		}
	}
	return out, nil
}

// Checksums implements acquire.ChecksumSource. PECL publishes no digests.
func (c *Client) Checksums(context.Context, mirror.ArtifactRef) (checksum.Set, error) {
	return nil, nil
}
