// Package config loads the on-disk configuration store.
//
// Configuration lives in three TOML files under <root>/config:
//
//	mirrors.toml  mirror URL, fallback mirrors, ranking, TLS and timeouts
//	cache.toml    artifact cache policy and metadata cache backend
//	build.toml    job count, download threads, sudo, retries
//
// A missing file means defaults for that section. Durations are written as
// Go duration strings ("30s", "24h").
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/phpup/pkg/errors"
)

// File names inside the config directory.
const (
	MirrorsFile = "mirrors.toml"
	CacheFile   = "cache.toml"
	BuildFile   = "build.toml"
)

// Metadata cache backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendNone  = "none"
)

// Upper bound on download threads.
const MaxThreads = 16

// Duration is a time.Duration that decodes from a TOML string.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Mirrors configures where artifacts are downloaded from.
type Mirrors struct {
	Enabled                bool     `toml:"enabled"`
	URL                    string   `toml:"url"`
	Fallback               []string `toml:"fallback"`
	AutoFallbackToOfficial bool     `toml:"auto_fallback_to_official"`
	VerifySSL              bool     `toml:"verify_ssl"`
	Timeout                Duration `toml:"timeout"`

	Rank         bool     `toml:"rank"`
	ProbeTimeout Duration `toml:"probe_timeout"`
	RankTTL      Duration `toml:"rank_ttl"`
}

// Cache configures the artifact cache and the metadata cache.
type Cache struct {
	Enabled     bool     `toml:"enabled"`
	TTL         Duration `toml:"ttl"`
	VerifyOnHit bool     `toml:"verify_on_hit"`

	MetadataTTL     Duration `toml:"metadata_ttl"`
	MetadataBackend string   `toml:"metadata_backend"`
	RedisURL        string   `toml:"redis_url"`
}

// Build configures the build pipeline and downloads.
type Build struct {
	Jobs         int  `toml:"jobs"`
	Threads      int  `toml:"threads"`
	Chunked      bool `toml:"chunked"`
	UseSudo      bool `toml:"use_sudo"`
	SkipDeps     bool `toml:"skip_deps"`
	PreferBinary bool `toml:"prefer_binary"`
	Retries      int  `toml:"retries"`
}

// Config is the merged configuration.
type Config struct {
	Mirrors Mirrors `toml:"mirrors"`
	Cache   Cache   `toml:"cache"`
	Build   Build   `toml:"build"`
}

// Default returns the configuration used when no files exist.
func Default() *Config {
	return &Config{
		Mirrors: Mirrors{
			AutoFallbackToOfficial: true,
			VerifySSL:              true,
			Timeout:                Duration{5 * time.Minute},
			ProbeTimeout:           Duration{3 * time.Second},
			RankTTL:                Duration{24 * time.Hour},
		},
		Cache: Cache{
			Enabled:         true,
			TTL:             Duration{30 * 24 * time.Hour},
			MetadataTTL:     Duration{6 * time.Hour},
			MetadataBackend: BackendFile,
		},
		Build: Build{
			Threads: 4,
			Chunked: true,
			Retries: 1,
		},
	}
}

// Load reads every config file in dir on top of the defaults.
func Load(dir string) (*Config, error) {
	cfg := Default()
	sections := []struct {
		name string
		v    any
	}{
		{MirrorsFile, &cfg.Mirrors},
		{CacheFile, &cfg.Cache},
		{BuildFile, &cfg.Build},
	}
	for _, s := range sections {
		if err := decodeFile(filepath.Join(dir, s.name), s.v); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "read %s", filepath.Base(path))
	}
	md, err := toml.Decode(string(data), v)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", filepath.Base(path))
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "%s: unknown key %q", filepath.Base(path), undecoded[0].String())
	}
	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Mirrors.Enabled {
		if err := errors.ValidateURL(c.Mirrors.URL); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "mirrors.url")
		}
	}
	for i, u := range c.Mirrors.Fallback {
		if err := errors.ValidateURL(u); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "mirrors.fallback[%d]", i)
		}
	}
	switch c.Cache.MetadataBackend {
	case "", BackendFile, BackendNone:
	case BackendRedis:
		if c.Cache.RedisURL == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "cache.redis_url is required for the redis backend")
		}
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown cache.metadata_backend %q", c.Cache.MetadataBackend)
	}
	if c.Build.Jobs < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "build.jobs must not be negative")
	}
	if c.Build.Threads < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "build.threads must not be negative")
	}
	if c.Build.Retries < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "build.retries must not be negative")
	}
	return nil
}

// DownloadThreads returns the chunk worker count clamped to [1, MaxThreads].
func (b Build) DownloadThreads() int {
	switch {
	case b.Threads <= 0:
		return 4
	case b.Threads > MaxThreads:
		return MaxThreads
	default:
		return b.Threads
	}
}

// String renders the merged configuration as TOML.
func (c *Config) String() string {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(c); err != nil {
		return err.Error()
	}
	return sb.String()
}
