package provision

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/phpup/pkg/acquire"
	"github.com/matzehuels/phpup/pkg/archive"
	"github.com/matzehuels/phpup/pkg/build"
	"github.com/matzehuels/phpup/pkg/capability"
	"github.com/matzehuels/phpup/pkg/driver"
	perrors "github.com/matzehuels/phpup/pkg/errors"
	"github.com/matzehuels/phpup/pkg/httputil"
	"github.com/matzehuels/phpup/pkg/mirror"
	"github.com/matzehuels/phpup/pkg/paths"
	"github.com/matzehuels/phpup/pkg/platform"
)

// DefaultRetryDelay is the wait before the first retry of a recoverable failure.
const DefaultRetryDelay = 2 * time.Second

// VersionIndex expands partial PHP versions. *phpnet.Client implements it.
type VersionIndex interface {
	Latest(ctx context.Context, version string, refresh bool) (string, error)
}

// ExtensionIndex reports the latest stable release of an extension.
// *pecl.Client implements it.
type ExtensionIndex interface {
	Stable(ctx context.Context, ext string, refresh bool) (string, error)
}

// Options control one Install call.
type Options struct {
	// PreferBinary tries a prebuilt static binary before building a runtime.
	PreferBinary bool

	// Retries is the number of extra source-build attempts after a
	// recoverable failure.
	Retries    int
	RetryDelay time.Duration

	// ConfigureOptions are appended to the driver's configure options.
	ConfigureOptions []string
	Jobs             int

	// Refresh bypasses cached release metadata.
	Refresh bool
}

// Result describes a finished installation.
type Result struct {
	Capability  capability.Capability
	Version     string
	InstallPath string
	Duration    time.Duration
	UsedBinary  bool
	Driver      string
	Attempts    int

	// Report is the last pipeline report; nil for binary installs.
	Report *build.Report
}

// Orchestrator installs and removes capabilities under one phpup root.
type Orchestrator struct {
	Paths     paths.Paths
	Resolver  *driver.Resolver
	Pipeline  *build.Pipeline
	Artifacts build.ArtifactSource
	Extractor archive.Extractor

	// Versions and Extensions are optional. Without them partial runtime
	// versions and unversioned extensions are rejected.
	Versions   VersionIndex
	Extensions ExtensionIndex

	Logger *log.Logger
}

// New wires an orchestrator.
func New(p paths.Paths, resolver *driver.Resolver, pipeline *build.Pipeline, artifacts build.ArtifactSource, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		Paths:     p,
		Resolver:  resolver,
		Pipeline:  pipeline,
		Artifacts: artifacts,
		Extractor: archive.NewExtractor(),
		Logger:    logger,
	}
}

// Install provisions c on plat.
func (o *Orchestrator) Install(ctx context.Context, c capability.Capability, plat platform.Tags, opts Options) (*Result, error) {
	start := time.Now()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	c, err := o.resolveTarget(ctx, c, opts.Refresh)
	if err != nil {
		return nil, err
	}
	if o.IsInstalled(c) {
		if c.Kind == capability.Extension {
			return nil, perrors.New(perrors.ErrCodeAlreadyInstalled,
				"%s is already enabled for php %s; remove it first", c.Name, c.Runtime)
		}
		return nil, perrors.New(perrors.ErrCodeAlreadyInstalled,
			"php %s is already installed at %s; remove it first", c.Version, o.prefix(c))
	}

	d, err := o.Resolver.Resolve(c, plat)
	if err != nil {
		return nil, err
	}
	if c.Kind == capability.Extension && c.Version == "" {
		if c.Version, err = o.extensionVersion(ctx, d, c, opts.Refresh); err != nil {
			return nil, err
		}
	}

	logger := o.logger().With("capability", c.String())
	res := &Result{
		Capability:  c,
		Version:     c.Version,
		InstallPath: o.prefix(c),
		Driver:      d.Name(),
	}

	if opts.PreferBinary && c.Kind == capability.Runtime {
		err := o.installBinary(ctx, d, c, plat)
		if err == nil {
			res.UsedBinary = true
			res.Attempts = 1
			res.Duration = time.Since(start)
			logger.Info("installed prebuilt binary", "prefix", res.InstallPath, "duration", res.Duration.Round(time.Millisecond))
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("prebuilt binary unavailable, building from source", "error", perrors.UserMessage(err))
	}

	delay := opts.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	retry := httputil.Policy{Attempts: opts.Retries + 1, Delay: delay, Retry: perrors.IsRecoverable}
	err = retry.Do(ctx, func() error {
		res.Attempts++
		rep, err := o.Pipeline.Run(ctx, d, o.buildContext(c, plat, opts))
		res.Report = rep
		if err != nil && perrors.IsRecoverable(err) && res.Attempts <= opts.Retries {
			logger.Warn("build failed, retrying", "attempt", res.Attempts, "stage", perrors.GetStage(err), "error", perrors.UserMessage(err))
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	return res, nil
}

func (o *Orchestrator) buildContext(c capability.Capability, plat platform.Tags, opts Options) *driver.BuildContext {
	return &driver.BuildContext{
		ID:               uuid.NewString(),
		Capability:       c,
		Platform:         plat,
		InstallPrefix:    o.prefix(c),
		RuntimePrefix:    o.Paths.Version(c.PHPVersion()),
		ConfigureOptions: append([]string(nil), opts.ConfigureOptions...),
		Jobs:             opts.Jobs,
	}
}

// resolveTarget expands partial versions. For extensions the runtime must
// already be installed.
func (o *Orchestrator) resolveTarget(ctx context.Context, c capability.Capability, refresh bool) (capability.Capability, error) {
	if c.Kind == capability.Extension {
		runtime, err := o.installedRuntime(c.Runtime)
		if err != nil {
			return c, err
		}
		c.Runtime = runtime
		return c, nil
	}
	if !capability.IsPartial(c.Version) {
		return c, nil
	}
	if o.Versions == nil {
		return c, perrors.New(perrors.ErrCodeInvalidVersion, "%s is not a full version and no release index is configured", c.Version)
	}
	v, err := o.Versions.Latest(ctx, c.Version, refresh)
	if err != nil {
		return c, perrors.Wrap(perrors.ErrCodeNotFound, err, "resolve php %s", c.Version)
	}
	if err := perrors.ValidateVersion(v); err != nil {
		return c, err
	}
	o.logger().Debug("resolved version", "requested", c.Version, "version", v)
	return c.WithVersion(v), nil
}

// installedRuntime maps version, possibly partial, to an installed runtime.
func (o *Orchestrator) installedRuntime(version string) (string, error) {
	if !capability.IsPartial(version) {
		if !o.IsInstalled(capability.NewRuntime(version)) {
			return "", perrors.New(perrors.ErrCodeNotInstalled, "php %s is not installed", version)
		}
		return version, nil
	}
	installed, err := o.Installed()
	if err != nil {
		return "", err
	}
	for i := len(installed) - 1; i >= 0; i-- {
		v := installed[i].Version
		if strings.HasPrefix(v, version+".") {
			return v, nil
		}
	}
	return "", perrors.New(perrors.ErrCodeNotInstalled, "no installed php matches %s", version)
}

func (o *Orchestrator) extensionVersion(ctx context.Context, d driver.Driver, c capability.Capability, refresh bool) (string, error) {
	if p, ok := d.(driver.VersionPinner); ok {
		if v := p.PinnedVersion(c.Runtime); v != "" {
			o.logger().Debug("using pinned extension version", "extension", c.Name, "php", c.Runtime, "version", v)
			return v, nil
		}
	}
	if o.Extensions == nil {
		return "", perrors.New(perrors.ErrCodeInvalidVersion, "no version given for %s and no extension index is configured", c.Name)
	}
	v, err := o.Extensions.Stable(ctx, c.Name, refresh)
	if err != nil {
		return "", perrors.Wrap(perrors.ErrCodeNotFound, err, "latest %s release", c.Name)
	}
	return v, nil
}

// Remove uninstalls c with its driver.
func (o *Orchestrator) Remove(ctx context.Context, c capability.Capability, plat platform.Tags) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Kind == capability.Runtime && capability.IsPartial(c.Version) {
		return perrors.New(perrors.ErrCodeInvalidVersion, "remove needs a full version, got %s", c.Version)
	}
	if c.Kind == capability.Extension {
		runtime, err := o.installedRuntime(c.Runtime)
		if err != nil {
			return err
		}
		c.Runtime = runtime
	}
	if !o.IsInstalled(c) {
		return perrors.New(perrors.ErrCodeNotInstalled, "%s is not installed", c)
	}

	d, err := o.Resolver.Resolve(c, plat)
	if err != nil {
		return err
	}
	bc := o.buildContext(c, plat, Options{})
	unlock, err := build.Lock(bc.InstallPrefix)
	if err != nil {
		return err
	}
	defer unlock()

	if err := d.Remove(ctx, bc); err != nil {
		return perrors.Wrap(perrors.ErrCodeInternal, err, "remove %s", c)
	}
	o.logger().Info("removed", "capability", c.String(), "driver", d.Name())
	return nil
}

// FetchComposer downloads composer.phar for version ("" is latest stable)
// to dest and makes it executable.
func (o *Orchestrator) FetchComposer(ctx context.Context, version, dest string) (*acquire.Result, error) {
	ref := mirror.ComposerRef(version)
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeInternal, err, "create %s", filepath.Dir(dest))
	}
	res, err := o.Artifacts.FetchArtifact(ctx, ref, dest)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(dest, 0o755); err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeInternal, err, "chmod %s", dest)
	}
	return res, nil
}

func (o *Orchestrator) prefix(c capability.Capability) string {
	return o.Paths.Version(c.PHPVersion())
}

func (o *Orchestrator) extractor() archive.Extractor {
	if o.Extractor != nil {
		return o.Extractor
	}
	return archive.NewExtractor()
}

func (o *Orchestrator) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.Default()
}
