package composer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/matzehuels/phpup/pkg/cache"
	"github.com/matzehuels/phpup/pkg/checksum"
	"github.com/matzehuels/phpup/pkg/integrations"
	"github.com/matzehuels/phpup/pkg/mirror"
)

// DefaultBaseURL is the getcomposer.org root.
const DefaultBaseURL = "https://getcomposer.org"

// Version is one channel entry of the /versions document.
type Version struct {
	Path    string `json:"path"`
	Version string `json:"version"`
	MinPHP  int    `json:"min-php"`
}

// MinPHPVersion renders MinPHP (PHP_VERSION_ID form, e.g. 70205) as "7.2.5".
func (v Version) MinPHPVersion() string {
	if v.MinPHP <= 0 {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d", v.MinPHP/10000, v.MinPHP/100%100, v.MinPHP%100)
}

// Client provides access to getcomposer.org.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a Composer client caching responses in c for ttl.
func NewClient(c cache.Cache, ttl time.Duration) *Client {
	return &Client{
		Client:  integrations.NewClient(c, "composer:", ttl),
		baseURL: DefaultBaseURL,
	}
}

// WithBaseURL returns c pointed at another host.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

// Channels returns the /versions document.
func (c *Client) Channels(ctx context.Context, refresh bool) (map[string][]Version, error) {
	var channels map[string][]Version
	err := c.Cached(ctx, "versions", refresh, &channels, func() error {
		return c.Get(ctx, c.baseURL+"/versions", &channels)
	})
	if err != nil {
		return nil, fmt.Errorf("composer versions: %w", err)
	}
	return channels, nil
}

// Resolve returns the version a channel currently points at. Channel
// names follow mirror.ComposerRef: "" and "latest" mean "stable".
func (c *Client) Resolve(ctx context.Context, channel string, refresh bool) (Version, error) {
	switch channel {
	case "", "latest":
		channel = "stable"
	}
	channels, err := c.Channels(ctx, refresh)
	if err != nil {
		return Version{}, err
	}
	versions := channels[channel]
	if len(versions) == 0 {
		return Version{}, fmt.Errorf("%w: composer channel %q", integrations.ErrNotFound, channel)
	}
	return versions[0], nil
}

// SHA256 returns the published digest of the phar in dir, where dir is a
// download directory such as "latest-stable" or "2.7.1".
func (c *Client) SHA256(ctx context.Context, dir string) (string, error) {
	var sum string
	// Moving channels are never served from cache.
	refresh := strings.HasPrefix(dir, "latest-")
	err := c.Cached(ctx, "sha256:"+dir, refresh, &sum, func() error {
		text, err := c.GetText(ctx, fmt.Sprintf("%s/download/%s/composer.phar.sha256sum", c.baseURL, dir))
		if err != nil {
			return err
		}
		sum, err = checksum.ParseSumFile(strings.NewReader(text), "composer.phar")
		return err
	})
	if err != nil {
		return "", fmt.Errorf("composer %s sha256: %w", dir, err)
	}
	return sum, nil
}

// Checksums implements acquire.ChecksumSource for composer-phar artifacts.
func (c *Client) Checksums(ctx context.Context, ref mirror.ArtifactRef) (checksum.Set, error) {
	if ref.Kind != mirror.ComposerPhar {
		return nil, nil
	}
	sum, err := c.SHA256(ctx, ref.ComposerChannel())
	if err != nil {
		return nil, err
	}
	return checksum.Set{checksum.SHA256: sum}, nil
}
