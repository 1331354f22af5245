package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/phpup/pkg/acquire"
	"github.com/matzehuels/phpup/pkg/build"
	"github.com/matzehuels/phpup/pkg/cache"
	"github.com/matzehuels/phpup/pkg/config"
	"github.com/matzehuels/phpup/pkg/driver"
	"github.com/matzehuels/phpup/pkg/drivers"
	"github.com/matzehuels/phpup/pkg/httputil"
	"github.com/matzehuels/phpup/pkg/integrations/composer"
	"github.com/matzehuels/phpup/pkg/integrations/pecl"
	"github.com/matzehuels/phpup/pkg/integrations/phpnet"
	"github.com/matzehuels/phpup/pkg/mirror"
	"github.com/matzehuels/phpup/pkg/paths"
	"github.com/matzehuels/phpup/pkg/pkgmgr"
	"github.com/matzehuels/phpup/pkg/platform"
	"github.com/matzehuels/phpup/pkg/provision"
	"github.com/matzehuels/phpup/pkg/shell"
)

// env is everything a command needs, wired from the configuration store.
type env struct {
	paths    paths.Paths
	cfg      *config.Config
	platform platform.Tags

	meta     cache.Cache
	store    *cache.Store
	catalog  *mirror.Catalog
	ranker   *mirror.Ranker
	fetcher  *acquire.Fetcher
	resolver *driver.Resolver

	php      *phpnet.Client
	pecl     *pecl.Client
	composer *composer.Client

	orch *provision.Orchestrator
}

// loadPaths resolves the root and reads the configuration.
func (c *CLI) loadPaths() (paths.Paths, *config.Config, error) {
	p, err := paths.Resolve(c.root)
	if err != nil {
		return paths.Paths{}, nil, err
	}
	cfg, err := config.Load(p.Config())
	if err != nil {
		return paths.Paths{}, nil, err
	}
	return p, cfg, nil
}

// newEnv wires the full provisioning stack. Close the returned env when done.
func (c *CLI) newEnv(ctx context.Context) (*env, error) {
	p, cfg, err := c.loadPaths()
	if err != nil {
		return nil, err
	}
	if err := p.Ensure(); err != nil {
		return nil, err
	}

	meta, err := newMetadataCache(ctx, p, cfg.Cache, c.Logger)
	if err != nil {
		return nil, err
	}
	e := &env{paths: p, cfg: cfg, meta: meta}

	if cfg.Cache.Enabled {
		if e.store, err = cache.NewStore(p.Artifacts()); err != nil {
			meta.Close()
			return nil, err
		}
	}

	plat, err := platform.Detect()
	if err != nil {
		c.Logger.Warn("platform detection failed, using generic drivers", "error", err)
	}
	e.platform = plat

	insecure := !cfg.Mirrors.VerifySSL
	if insecure {
		c.Logger.Warn("TLS verification is disabled for downloads")
	}
	metaClient := httputil.NewClient(httputil.ClientOptions{InsecureSkipVerify: insecure})
	downloadClient := httputil.NewClient(httputil.ClientOptions{
		Timeout:            cfg.Mirrors.Timeout.Duration,
		InsecureSkipVerify: insecure,
	})

	ttl := cfg.Cache.MetadataTTL.Duration
	e.php = phpnet.NewClient(meta, ttl)
	e.pecl = pecl.NewClient(meta, ttl)
	e.composer = composer.NewClient(meta, ttl)
	for _, ic := range []interface{ SetHTTPClient(*http.Client) }{e.php, e.pecl, e.composer} {
		ic.SetHTTPClient(metaClient)
	}

	e.catalog = mirror.NewCatalog(mirrorConfig(cfg.Mirrors))
	if cfg.Mirrors.Rank {
		e.ranker = mirror.NewRanker(metaClient, meta, mirror.RankerOptions{
			TTL:          cfg.Mirrors.RankTTL.Duration,
			ProbeTimeout: cfg.Mirrors.ProbeTimeout.Duration,
			Logger:       c.Logger,
		})
	}

	acq := acquire.New(acquire.Options{
		Client:      downloadClient,
		Store:       e.store,
		TTL:         cfg.Cache.TTL.Duration,
		VerifyOnHit: cfg.Cache.VerifyOnHit,
		Chunked:     cfg.Build.Chunked,
		Threads:     cfg.Build.DownloadThreads(),
		Logger:      c.Logger,
		Progress:    c.progressFunc(),
	})
	e.fetcher = &acquire.Fetcher{
		Catalog:  e.catalog,
		Ranker:   e.ranker,
		Acquirer: acq,
		Sums:     acquire.ChecksumSources{e.php, e.composer, e.pecl},
		Logger:   c.Logger,
	}

	reg := driver.NewRegistry()
	drivers.Register(reg)
	e.resolver = driver.NewResolver(reg)

	runner := shell.NewExec(c.Logger)
	pipeline := build.NewPipeline(c.packageInstaller(plat, runner, cfg.Build), e.fetcher, runner, c.Logger)
	pipeline.TempRoot = p.Tmp()

	e.orch = provision.New(p, e.resolver, pipeline, e.fetcher, c.Logger)
	e.orch.Versions = e.php
	e.orch.Extensions = e.pecl
	return e, nil
}

// packageInstaller returns nil when dependencies are skipped or the host
// package manager is unknown; the pipeline then skips the dependency stage.
func (c *CLI) packageInstaller(plat platform.Tags, runner shell.Runner, b config.Build) *pkgmgr.Installer {
	if b.SkipDeps {
		return nil
	}
	m, err := pkgmgr.ForPlatform(plat)
	if err != nil {
		c.Logger.Warn("OS dependencies will not be installed", "error", err)
		return nil
	}
	return pkgmgr.NewInstaller(m, runner, b.UseSudo && os.Geteuid() != 0, c.Logger)
}

// Close releases the metadata cache.
func (e *env) Close() error {
	return e.meta.Close()
}

// mirrorConfig maps the mirrors.toml section onto the catalog configuration.
func mirrorConfig(m config.Mirrors) mirror.Config {
	return mirror.Config{
		Enabled:                m.Enabled,
		URL:                    m.URL,
		Fallback:               m.Fallback,
		AutoFallbackToOfficial: m.AutoFallbackToOfficial,
	}
}

// newMetadataCache opens the metadata cache backend selected in cache.toml.
// An unreachable Redis server degrades to the file backend, and an unusable
// metadata directory to no caching. Both are logged as warnings.
func newMetadataCache(ctx context.Context, p paths.Paths, cc config.Cache, logger *log.Logger) (cache.Cache, error) {
	switch cc.MetadataBackend {
	case config.BackendNone:
		return cache.NewNullCache(), nil
	case config.BackendRedis:
		rc, err := cache.NewRedisCache(cc.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("metadata cache: %w", err)
		}
		err = rc.Ping(ctx)
		if err == nil {
			return rc, nil
		}
		rc.Close()
		logger.Warn("redis unreachable, using file cache", "url", cc.RedisURL, "error", err)
	}
	fc, err := cache.NewFileCache(p.Metadata())
	if err != nil {
		logger.Warn("metadata cache disabled", "dir", p.Metadata(), "error", err)
		return cache.NewNullCache(), nil
	}
	return fc, nil
}
