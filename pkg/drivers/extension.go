package drivers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/phpup/pkg/capability"
	"github.com/matzehuels/phpup/pkg/driver"
	"github.com/matzehuels/phpup/pkg/mirror"
	"github.com/matzehuels/phpup/pkg/pkgmgr"
	"github.com/matzehuels/phpup/pkg/shell"
)

// ExtensionDependencies are needed by phpize for every extension.
var ExtensionDependencies = pkgmgr.DependencySet{
	pkgmgr.Apt: {"autoconf", "make", "gcc", "pkg-config"},
	pkgmgr.DNF: {"autoconf", "make", "gcc", "pkgconfig"},
	pkgmgr.Apk: {"autoconf", "make", "gcc", "musl-dev", "pkgconf"},
}

// Pin maps a PHP version range to the newest extension release that still
// builds against it.
type Pin struct {
	Below   string // PHP versions lower than this use Version
	Version string
}

// Extension builds a PECL extension against an installed runtime with
// phpize.
//
// The zero value plus a name is the generic driver; the With* options add
// what a particular extension needs.
type Extension struct {
	name       string
	tags       []string
	deps       pkgmgr.DependencySet
	strategies []OptionStrategy
	minPHP     string
	zend       bool
	object     string
	pins       []Pin
	source     func(bc *driver.BuildContext) mirror.ArtifactRef
}

// ExtensionOption customizes [NewExtension].
type ExtensionOption func(*Extension)

// WithTags records the tags the variant targets.
func WithTags(tags ...string) ExtensionOption {
	return func(e *Extension) { e.tags = append(e.tags, tags...) }
}

// WithDependencies adds OS packages.
func WithDependencies(deps pkgmgr.DependencySet) ExtensionOption {
	return func(e *Extension) { e.deps = e.deps.Merge(deps) }
}

// WithConfigure appends option strategies.
func WithConfigure(strategies ...OptionStrategy) ExtensionOption {
	return func(e *Extension) { e.strategies = append(e.strategies, strategies...) }
}

// Flags is an [OptionStrategy] returning fixed options.
func Flags(opts ...string) OptionStrategy {
	return func(*driver.BuildContext) []string { return opts }
}

// WithMinPHP rejects PHP versions lower than v.
func WithMinPHP(v string) ExtensionOption {
	return func(e *Extension) { e.minPHP = v }
}

// AsZendExtension loads the module with zend_extension= instead of extension=.
func AsZendExtension() ExtensionOption {
	return func(e *Extension) { e.zend = true }
}

// WithSharedObject sets the module file name when it differs from the
// extension name.
func WithSharedObject(name string) ExtensionOption {
	return func(e *Extension) { e.object = name }
}

// WithPins records compatibility pins, ordered by ascending Below.
func WithPins(pins ...Pin) ExtensionOption {
	return func(e *Extension) { e.pins = append(e.pins, pins...) }
}

// FromGitHub fetches tag archives instead of PECL packages. The tag is the
// extension version with tagPrefix prepended.
func FromGitHub(owner, repo, tagPrefix string) ExtensionOption {
	return func(e *Extension) {
		e.source = func(bc *driver.BuildContext) mirror.ArtifactRef {
			return mirror.GitHubRef(owner, repo, tagPrefix+bc.Capability.Version)
		}
	}
}

// NewExtension returns an extension driver. An empty name makes the driver
// take the extension name from each build's capability.
func NewExtension(name string, opts ...ExtensionOption) *Extension {
	e := &Extension{name: name, deps: ExtensionDependencies.Merge()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extension) Name() string {
	if e.name == "" {
		return "pecl"
	}
	return e.name
}

func (e *Extension) Tags() []string { return e.tags }

func (e *Extension) Supports(phpVersion string) bool {
	if !capability.AtLeast(phpVersion, "7.0") {
		return false
	}
	return e.minPHP == "" || capability.AtLeast(phpVersion, e.minPHP)
}

// PinnedVersion implements [driver.VersionPinner].
func (e *Extension) PinnedVersion(phpVersion string) string {
	for _, p := range e.pins {
		if capability.Compare(phpVersion, p.Below) < 0 {
			return p.Version
		}
	}
	return ""
}

func (e *Extension) Dependencies(*driver.BuildContext) pkgmgr.DependencySet { return e.deps }

func (e *Extension) Source(bc *driver.BuildContext) mirror.ArtifactRef {
	if e.source != nil {
		return e.source(bc)
	}
	return mirror.PECLRef(bc.Capability.Name, bc.Capability.Version)
}

func (e *Extension) SourceMarkers() []string { return []string{"config.m4", "config0.m4"} }

func (e *Extension) ConfigureOptions(bc *driver.BuildContext) []string {
	base := []OptionStrategy{func(bc *driver.BuildContext) []string {
		return []string{"--with-php-config=" + phpConfig(bc)}
	}}
	return collect(bc, append(base, e.strategies...))
}

// Configure runs phpize from the target runtime, then ./configure.
func (e *Extension) Configure(bc *driver.BuildContext) []shell.Command {
	return []shell.Command{
		{Name: filepath.Join(bc.RuntimePrefix, "bin", "phpize"), Dir: bc.SourceDir},
		{Name: "./configure", Args: bc.ConfigureOptions, Dir: bc.SourceDir},
	}
}

func (e *Extension) Compile(bc *driver.BuildContext) []shell.Command {
	return makeCommands(bc)
}

// Install runs make install, which copies the module into the runtime's
// extension_dir as reported by php-config.
func (e *Extension) Install(bc *driver.BuildContext) []shell.Command {
	return []shell.Command{{Name: "make", Args: []string{"install"}, Dir: bc.SourceDir}}
}

// PostConfigure enables the module with an ini file in conf.d.
func (e *Extension) PostConfigure(_ context.Context, bc *driver.BuildContext) error {
	confD := confDDir(bc.RuntimePrefix)
	if err := os.MkdirAll(confD, 0o755); err != nil {
		return err
	}
	return os.WriteFile(IniPath(bc.RuntimePrefix, bc.Capability.Name), []byte(e.ini(bc)), 0o644)
}

// Remove deletes the ini file and the module from every extension dir of
// the runtime.
func (e *Extension) Remove(_ context.Context, bc *driver.BuildContext) error {
	if err := os.Remove(IniPath(bc.RuntimePrefix, bc.Capability.Name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	matches, err := filepath.Glob(filepath.Join(bc.RuntimePrefix, "lib", "php", "extensions", "*", e.sharedObject(bc)))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// IniPath is the conf.d file that enables extension name.
func IniPath(runtimePrefix, name string) string {
	return filepath.Join(confDDir(runtimePrefix), strings.ToLower(name)+".ini")
}

func (e *Extension) ini(bc *driver.BuildContext) string {
	directive := "extension"
	if e.zend {
		directive = "zend_extension"
	}
	return fmt.Sprintf("; %s %s, written by phpup\n%s=%s\n",
		bc.Capability.Name, bc.Capability.Version, directive, e.sharedObject(bc))
}

func (e *Extension) sharedObject(bc *driver.BuildContext) string {
	if e.object != "" {
		return e.object
	}
	return strings.ToLower(bc.Capability.Name) + ".so"
}

func phpConfig(bc *driver.BuildContext) string {
	return filepath.Join(bc.RuntimePrefix, "bin", "php-config")
}

var (
	_ driver.Driver        = (*Extension)(nil)
	_ driver.VersionPinner = (*Extension)(nil)
)
