package mirror

import (
	"slices"
	"testing"

	"github.com/matzehuels/phpup/pkg/errors"
)

func TestURLsForMirrorDisabled(t *testing.T) {
	c := NewCatalog(Config{})
	got, err := c.URLsFor(PHPSourceRef("8.2.10"))
	if err != nil {
		t.Fatalf("URLsFor: %v", err)
	}
	want := []string{"https://www.php.net/distributions/php-8.2.10.tar.gz"}
	if !slices.Equal(got, want) {
		t.Errorf("URLsFor = %v, want %v", got, want)
	}
}

func TestURLsForOrder(t *testing.T) {
	cfg := Config{
		Enabled:                true,
		URL:                    "https://mirror.internal/",
		Fallback:               []string{"https://backup.example", "https://mirror.internal"},
		AutoFallbackToOfficial: true,
	}
	got, err := NewCatalog(cfg).URLsFor(PHPSourceRef("8.3.1"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"https://mirror.internal/php/php-8.3.1.tar.gz",
		"https://backup.example/php/php-8.3.1.tar.gz",
		"https://www.php.net/distributions/php-8.3.1.tar.gz",
	}
	if !slices.Equal(got, want) {
		t.Errorf("URLsFor = %v, want %v", got, want)
	}
}

func TestURLsForFallbackNeedsAutoFallback(t *testing.T) {
	cfg := Config{Fallback: []string{"https://backup.example"}}
	got, err := NewCatalog(cfg).URLsFor(PECLRef("redis", "6.0.2"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"https://pecl.php.net/get/redis-6.0.2.tgz"}
	if !slices.Equal(got, want) {
		t.Errorf("URLsFor = %v, want %v", got, want)
	}
}

func TestURLsForDeduplicates(t *testing.T) {
	// The same base listed as mirror and fallback appears once.
	c := NewCatalog(Config{
		Enabled:                true,
		URL:                    "https://pecl.php.net",
		AutoFallbackToOfficial: true,
		Fallback:               []string{"https://pecl.php.net"},
	})
	got, err := c.URLsFor(PECLRef("apcu", "5.1.23"))
	if err != nil {
		t.Fatal(err)
	}
	if got[len(got)-1] != "https://pecl.php.net/get/apcu-5.1.23.tgz" {
		t.Errorf("last URL = %q, want official", got[len(got)-1])
	}
	seen := map[string]bool{}
	for _, u := range got {
		if seen[u] {
			t.Errorf("duplicate URL %q in %v", u, got)
		}
		seen[u] = true
	}
}

func TestOfficialURL(t *testing.T) {
	tests := []struct {
		ref  ArtifactRef
		want string
	}{
		{PHPSourceRef("7.4.33"), "https://www.php.net/distributions/php-7.4.33.tar.gz"},
		{PECLRef("Xdebug", "3.3.1"), "https://pecl.php.net/get/xdebug-3.3.1.tgz"},
		{ComposerRef(""), "https://getcomposer.org/download/latest-stable/composer.phar"},
		{ComposerRef("2"), "https://getcomposer.org/download/latest-2.x/composer.phar"},
		{ComposerRef("2.7.1"), "https://getcomposer.org/download/2.7.1/composer.phar"},
		{GitHubRef("phpredis", "phpredis", "6.0.2"), "https://github.com/phpredis/phpredis/archive/refs/tags/6.0.2.tar.gz"},
		{BinaryRef("8.3.4", "x86_64"), "https://dl.static-php.dev/static-php-cli/common/php-8.3.4-cli-linux-x86_64.tar.gz"},
	}
	for _, tt := range tests {
		t.Run(tt.ref.Key(), func(t *testing.T) {
			if got := OfficialURL(tt.ref); got != tt.want {
				t.Errorf("OfficialURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMirrorURL(t *testing.T) {
	base := "https://m.example/root/"
	tests := []struct {
		ref  ArtifactRef
		want string
	}{
		{PHPSourceRef("8.2.10"), "https://m.example/root/php/php-8.2.10.tar.gz"},
		{PECLRef("redis", "6.0.2"), "https://m.example/root/pecl/redis-6.0.2.tgz"},
		{ComposerRef("2.7.1"), "https://m.example/root/composer/2.7.1/composer.phar"},
		{GitHubRef("o", "r", "v1"), "https://m.example/root/github/o/r/v1.tar.gz"},
		{BinaryRef("8.3.4", "aarch64"), "https://m.example/root/binary/php-8.3.4-cli-linux-aarch64.tar.gz"},
	}
	for _, tt := range tests {
		if got := MirrorURL(base, tt.ref); got != tt.want {
			t.Errorf("MirrorURL(%s) = %q, want %q", tt.ref, got, tt.want)
		}
	}
	if got := MirrorURL("  ", PHPSourceRef("8.2.10")); got != "" {
		t.Errorf("MirrorURL(blank) = %q, want empty", got)
	}
}

func TestArtifactKey(t *testing.T) {
	tests := []struct {
		ref  ArtifactRef
		want string
	}{
		{PHPSourceRef("8.2.10"), "php-source/8.2.10"},
		{PECLRef("redis", "6.0.2"), "pecl-package/redis/6.0.2"},
		{ComposerRef(""), "composer-phar/latest-stable"},
		{GitHubRef("o", "r", "v1"), "github-tag-archive/o/r/v1"},
		{BinaryRef("8.3.4", "x86_64"), "php-binary/8.3.4/x86_64"},
	}
	for _, tt := range tests {
		if got := tt.ref.Key(); got != tt.want {
			t.Errorf("Key() = %q, want %q", got, tt.want)
		}
	}
}

func TestURLsForRejectsInvalidRef(t *testing.T) {
	tests := []ArtifactRef{
		{Kind: PHPSource},
		{Kind: PECLPackage, Version: "1.0"},
		{Kind: PHPSource, Version: "../8.2"},
		{Kind: GitHubTagArchive, Owner: "o", Version: "v1"},
		{Kind: "svn-checkout", Version: "1"},
	}
	c := NewCatalog(Config{})
	for _, ref := range tests {
		if _, err := c.URLsFor(ref); !errors.Is(err, errors.ErrCodeInvalidInput) {
			t.Errorf("URLsFor(%+v) error = %v, want INVALID_INPUT", ref, err)
		}
	}
}
