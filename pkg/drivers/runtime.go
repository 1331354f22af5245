package drivers

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/matzehuels/phpup/pkg/capability"
	"github.com/matzehuels/phpup/pkg/driver"
	"github.com/matzehuels/phpup/pkg/errors"
	"github.com/matzehuels/phpup/pkg/mirror"
	"github.com/matzehuels/phpup/pkg/pkgmgr"
	"github.com/matzehuels/phpup/pkg/shell"
)

// MinRuntimeVersion is the oldest PHP release phpup builds.
const MinRuntimeVersion = "5.6"

// RuntimeDependencies are the build dependencies of the PHP interpreter.
var RuntimeDependencies = pkgmgr.DependencySet{
	pkgmgr.Apt: {
		"build-essential", "autoconf", "bison", "re2c", "pkg-config",
		"libxml2-dev", "libssl-dev", "libsqlite3-dev", "zlib1g-dev",
		"libcurl4-openssl-dev", "libonig-dev", "libzip-dev", "libreadline-dev",
		"libsodium-dev",
	},
	pkgmgr.DNF: {
		"gcc", "gcc-c++", "make", "autoconf", "bison", "re2c", "pkgconfig",
		"libxml2-devel", "openssl-devel", "sqlite-devel", "zlib-devel",
		"libcurl-devel", "oniguruma-devel", "libzip-devel", "readline-devel",
		"libsodium-devel",
	},
	pkgmgr.Apk: {
		"build-base", "autoconf", "bison", "re2c", "pkgconf",
		"libxml2-dev", "openssl-dev", "sqlite-dev", "zlib-dev",
		"curl-dev", "oniguruma-dev", "libzip-dev", "readline-dev",
		"libsodium-dev",
	},
}

// DefaultIni is written to conf.d by the runtime's post-configure stage.
const DefaultIni = `; Written by phpup. Files in this directory are loaded in name order.
date.timezone = UTC
memory_limit = 256M
`

// Runtime builds the PHP interpreter from a php-<version>.tar.gz source
// release.
type Runtime struct {
	name       string
	tags       []string
	deps       pkgmgr.DependencySet
	strategies []OptionStrategy
	env        func(bc *driver.BuildContext) []string
}

// RuntimeOption customizes [NewRuntime].
type RuntimeOption func(*Runtime)

// WithRuntimeTags records the tags the variant targets.
func WithRuntimeTags(tags ...string) RuntimeOption {
	return func(r *Runtime) { r.tags = append(r.tags, tags...) }
}

// WithRuntimeDependencies adds OS packages.
func WithRuntimeDependencies(deps pkgmgr.DependencySet) RuntimeOption {
	return func(r *Runtime) { r.deps = r.deps.Merge(deps) }
}

// WithOptions appends option strategies after the common ones.
func WithOptions(strategies ...OptionStrategy) RuntimeOption {
	return func(r *Runtime) { r.strategies = append(r.strategies, strategies...) }
}

// WithConfigureEnv sets extra environment for ./configure.
func WithConfigureEnv(env func(bc *driver.BuildContext) []string) RuntimeOption {
	return func(r *Runtime) { r.env = env }
}

// NewRuntime returns a runtime driver with the common dependency set and
// option strategies, customized by opts.
func NewRuntime(name string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		name:       name,
		deps:       RuntimeDependencies.Merge(),
		strategies: append([]OptionStrategy(nil), RuntimeStrategies...),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runtime) Name() string   { return r.name }
func (r *Runtime) Tags() []string { return r.tags }

// Supports reports whether version is at least [MinRuntimeVersion].
func (r *Runtime) Supports(version string) bool {
	return capability.AtLeast(version, MinRuntimeVersion)
}

func (r *Runtime) Dependencies(*driver.BuildContext) pkgmgr.DependencySet { return r.deps }

func (r *Runtime) Source(bc *driver.BuildContext) mirror.ArtifactRef {
	return mirror.PHPSourceRef(bc.Capability.Version)
}

func (r *Runtime) SourceMarkers() []string { return []string{"configure", "buildconf"} }

func (r *Runtime) ConfigureOptions(bc *driver.BuildContext) []string {
	return collect(bc, r.strategies)
}

// Configure runs ./buildconf when the tree has no generated configure
// script (git snapshots), then ./configure.
func (r *Runtime) Configure(bc *driver.BuildContext) []shell.Command {
	var env []string
	if r.env != nil {
		env = r.env(bc)
	}
	var cmds []shell.Command
	if _, err := os.Stat(filepath.Join(bc.SourceDir, "configure")); err != nil {
		cmds = append(cmds, shell.Command{Name: "./buildconf", Args: []string{"--force"}, Dir: bc.SourceDir})
	}
	return append(cmds, shell.Command{
		Name: "./configure",
		Args: bc.ConfigureOptions,
		Dir:  bc.SourceDir,
		Env:  env,
	})
}

func (r *Runtime) Compile(bc *driver.BuildContext) []shell.Command {
	return makeCommands(bc)
}

func (r *Runtime) Install(bc *driver.BuildContext) []shell.Command {
	return []shell.Command{{Name: "make", Args: []string{"install"}, Dir: bc.SourceDir}}
}

// PostConfigure creates etc/conf.d, installs php.ini from the source tree's
// php.ini-development unless one exists, and writes the default ini.
func (r *Runtime) PostConfigure(_ context.Context, bc *driver.BuildContext) error {
	confD := confDDir(bc.InstallPrefix)
	if err := os.MkdirAll(confD, 0o755); err != nil {
		return err
	}
	ini := filepath.Join(etcDir(bc.InstallPrefix), "php.ini")
	if _, err := os.Stat(ini); os.IsNotExist(err) {
		for _, name := range []string{"php.ini-development", "php.ini-dist"} {
			data, err := os.ReadFile(filepath.Join(bc.SourceDir, name))
			if err != nil {
				continue
			}
			if err := os.WriteFile(ini, data, 0o644); err != nil {
				return err
			}
			break
		}
	}
	return os.WriteFile(filepath.Join(confD, "00-phpup.ini"), []byte(DefaultIni), 0o644)
}

// Remove deletes the install prefix.
func (r *Runtime) Remove(_ context.Context, bc *driver.BuildContext) error {
	if err := safePrefix(bc.InstallPrefix); err != nil {
		return err
	}
	return os.RemoveAll(bc.InstallPrefix)
}

func makeCommands(bc *driver.BuildContext) []shell.Command {
	jobs := bc.Jobs
	if jobs <= 0 {
		jobs = driver.DefaultJobs()
	}
	return []shell.Command{{Name: "make", Args: []string{"-j" + strconv.Itoa(jobs)}, Dir: bc.SourceDir}}
}

// safePrefix refuses to remove paths that cannot be an install prefix.
func safePrefix(prefix string) error {
	clean := filepath.Clean(prefix)
	if prefix == "" || !filepath.IsAbs(clean) || clean == filepath.Dir(clean) {
		return errors.New(errors.ErrCodeInvalidInput, "refusing to remove install prefix %q", prefix)
	}
	if home, err := os.UserHomeDir(); err == nil && clean == filepath.Clean(home) {
		return errors.New(errors.ErrCodeInvalidInput, "refusing to remove home directory")
	}
	return nil
}

var _ driver.Driver = (*Runtime)(nil)
