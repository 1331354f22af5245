// Package mirror turns a logical artifact into an ordered list of download
// URLs and optionally reorders the mirrors in that list by responsiveness.
//
// The order produced by [Catalog.URLsFor] is a correctness invariant: the
// acquirer tries URLs strictly in order and only moves on after a failure.
// The vendor's official URL is always last.
package mirror

import (
	"slices"
	"strings"
)

// Vendor endpoints.
const (
	PHPDistributions = "https://www.php.net/distributions"
	PECLDownloads    = "https://pecl.php.net/get"
	ComposerDownload = "https://getcomposer.org/download"
	GitHubBase       = "https://github.com"
	StaticPHPBase    = "https://dl.static-php.dev/static-php-cli/common"
)

// Config is the mirror part of the configuration store.
type Config struct {
	// Enabled turns on the self-hosted mirror at URL.
	Enabled bool
	URL     string

	// Fallback mirrors are tried after the self-hosted mirror. They are only
	// used when AutoFallbackToOfficial is set; the official URL itself is
	// always appended.
	Fallback               []string
	AutoFallbackToOfficial bool
}

// Catalog maps artifacts to mirror sets. It never touches the network.
type Catalog struct {
	cfg Config
}

// NewCatalog returns a catalog for cfg.
func NewCatalog(cfg Config) *Catalog {
	return &Catalog{cfg: cfg}
}

// URLsFor returns the ordered, duplicate-free mirror set for ref:
// self-hosted mirror, then fallback mirrors, then the official URL.
func (c *Catalog) URLsFor(ref ArtifactRef) ([]string, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	var urls []string
	add := func(u string) {
		if u != "" && !slices.Contains(urls, u) {
			urls = append(urls, u)
		}
	}

	if c.cfg.Enabled && c.cfg.URL != "" {
		add(MirrorURL(c.cfg.URL, ref))
	}
	if c.cfg.AutoFallbackToOfficial {
		for _, base := range c.cfg.Fallback {
			add(MirrorURL(base, ref))
		}
	}

	official := OfficialURL(ref)
	urls = slices.DeleteFunc(urls, func(u string) bool { return u == official })
	return append(urls, official), nil
}

// OfficialURL returns the vendor download URL for ref.
func OfficialURL(ref ArtifactRef) string {
	switch ref.Kind {
	case PHPSource:
		return PHPDistributions + "/" + ref.FileName()
	case PECLPackage:
		return PECLDownloads + "/" + ref.FileName()
	case ComposerPhar:
		return ComposerDownload + "/" + ref.ComposerChannel() + "/composer.phar"
	case GitHubTagArchive:
		return GitHubBase + "/" + ref.Owner + "/" + ref.Repo + "/archive/refs/tags/" + ref.FileName()
	case PHPBinary:
		return StaticPHPBase + "/" + ref.FileName()
	}
	return ""
}

// MirrorURL lays ref out under a mirror base URL:
//
//	{base}/php/php-8.2.10.tar.gz
//	{base}/pecl/redis-6.0.2.tgz
//	{base}/composer/2.7.1/composer.phar
//	{base}/github/{owner}/{repo}/{tag}.tar.gz
//	{base}/binary/php-8.2.10-cli-linux-x86_64.tar.gz
func MirrorURL(base string, ref ArtifactRef) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return ""
	}
	switch ref.Kind {
	case PHPSource:
		return base + "/php/" + ref.FileName()
	case PECLPackage:
		return base + "/pecl/" + ref.FileName()
	case ComposerPhar:
		return base + "/composer/" + ref.ComposerChannel() + "/composer.phar"
	case GitHubTagArchive:
		return base + "/github/" + ref.Owner + "/" + ref.Repo + "/" + ref.FileName()
	case PHPBinary:
		return base + "/binary/" + ref.FileName()
	}
	return ""
}
