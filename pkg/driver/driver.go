package driver

import (
	"context"
	"runtime"

	"github.com/matzehuels/phpup/pkg/capability"
	"github.com/matzehuels/phpup/pkg/mirror"
	"github.com/matzehuels/phpup/pkg/pkgmgr"
	"github.com/matzehuels/phpup/pkg/platform"
	"github.com/matzehuels/phpup/pkg/shell"
)

// MaxJobs caps the default parallel compile job count.
const MaxJobs = 8

// DefaultJobs returns min(NumCPU, MaxJobs).
func DefaultJobs() int {
	return min(runtime.NumCPU(), MaxJobs)
}

// BuildContext is the per-attempt state handed to a driver. The pipeline
// creates it, owns TempDir and removes TempDir when the attempt ends.
type BuildContext struct {
	// ID identifies this attempt in logs and temp directory names.
	ID string

	Capability capability.Capability
	Platform   platform.Tags

	// InstallPrefix is where the capability is installed. For extensions
	// this is the runtime's prefix.
	InstallPrefix string

	// RuntimePrefix is the prefix of the PHP runtime an extension is built
	// against. Equal to InstallPrefix for runtimes.
	RuntimePrefix string

	// TempDir holds the downloaded artifact and the extracted tree.
	TempDir string

	// SourceDir is the located source root inside TempDir. Set by the
	// pipeline once the source is acquired.
	SourceDir string

	// ConfigureOptions are passed to ./configure. The pipeline fills them
	// from the driver before the configure stage; callers may append to them.
	ConfigureOptions []string

	// Jobs is the parallel compile job count.
	Jobs int
}

// Driver knows how to provision one capability.
//
// Stage methods that only describe work (Dependencies, Source, Configure,
// Compile, Install) return data and commands; the pipeline runs them. Only
// PostConfigure and Remove touch the filesystem themselves.
type Driver interface {
	// Name identifies the driver in logs and resolver output.
	Name() string

	// Tags lists the tags this driver was specialized for.
	Tags() []string

	// Supports reports whether the driver can build against the PHP
	// version. For runtimes that is the version being built.
	Supports(version string) bool

	// Dependencies lists OS packages per package-manager family.
	Dependencies(bc *BuildContext) pkgmgr.DependencySet

	// Source returns the artifact holding the source tree.
	Source(bc *BuildContext) mirror.ArtifactRef

	// SourceMarkers are file names whose presence identifies the source root.
	SourceMarkers() []string

	// ConfigureOptions returns the version- and platform-conditional
	// options for ./configure.
	ConfigureOptions(bc *BuildContext) []string

	// Configure returns the commands run in SourceDir for the configure stage.
	Configure(bc *BuildContext) []shell.Command

	// Compile returns the commands of the compile stage.
	Compile(bc *BuildContext) []shell.Command

	// Install returns the commands that copy build output to InstallPrefix.
	Install(bc *BuildContext) []shell.Command

	// PostConfigure writes prefix-local configuration. It runs no processes.
	PostConfigure(ctx context.Context, bc *BuildContext) error

	// Remove deletes what this driver installed.
	Remove(ctx context.Context, bc *BuildContext) error
}

// Descriptor registers a driver factory together with its tag sets.
type Descriptor struct {
	// Name identifies the descriptor in explain output, e.g. "php-legacy".
	Name string

	RequiredTags []string
	OptionalTags []string

	// Factory builds the driver. It is called at most once per Resolver for
	// each descriptor.
	Factory func() Driver
}

// VersionPinner is implemented by extension drivers that know the newest
// release still compatible with an older PHP version. An empty result means
// no pin applies.
type VersionPinner interface {
	PinnedVersion(phpVersion string) string
}
