// Package capability defines what is being provisioned: a PHP runtime
// version or an extension built against one.
//
// A [Capability] is an immutable value created once per request and passed
// by value through the resolver, the build pipeline and the orchestrator.
package capability

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/matzehuels/phpup/pkg/errors"
)

// Kind distinguishes runtimes from extensions.
type Kind int

const (
	// Runtime is a PHP interpreter build.
	Runtime Kind = iota
	// Extension is a PECL extension compiled against an installed runtime.
	Extension
)

// RuntimeName is the registry name every runtime capability resolves under.
const RuntimeName = "php"

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case Runtime:
		return "runtime"
	case Extension:
		return "extension"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Capability identifies what is being provisioned.
//
// For runtimes Version is the PHP version and Runtime is empty. For
// extensions Version is the extension version (empty means latest stable)
// and Runtime is the PHP version the extension is built against.
type Capability struct {
	Kind    Kind
	Name    string
	Version string
	Runtime string
}

// NewRuntime returns a runtime capability for the given PHP version.
func NewRuntime(version string) Capability {
	return Capability{Kind: Runtime, Name: RuntimeName, Version: version}
}

// NewExtension returns an extension capability built against runtime.
func NewExtension(name, version, runtime string) Capability {
	return Capability{Kind: Extension, Name: strings.ToLower(name), Version: version, Runtime: runtime}
}

// RegistryName returns the name used for driver lookup. Runtime
// capabilities with an empty name map to [RuntimeName].
func (c Capability) RegistryName() string {
	if c.Kind == Runtime && c.Name == "" {
		return RuntimeName
	}
	return strings.ToLower(c.Name)
}

// PHPVersion returns the PHP version that determines driver specialization.
func (c Capability) PHPVersion() string {
	if c.Kind == Extension {
		return c.Runtime
	}
	return c.Version
}

// MajorMinor returns "8.2" for the PHP version "8.2.10".
func (c Capability) MajorMinor() string {
	return MajorMinor(c.PHPVersion())
}

// VersionTag returns the driver tag for the PHP major-minor version, e.g. "php82".
func (c Capability) VersionTag() string {
	mm := c.MajorMinor()
	if mm == "" {
		return ""
	}
	return RuntimeName + strings.ReplaceAll(mm, ".", "")
}

// Validate checks the capability fields for safety before any path is derived from them.
func (c Capability) Validate() error {
	switch c.Kind {
	case Runtime:
		return errors.ValidateVersion(c.Version)
	case Extension:
		if err := errors.ValidateExtensionName(c.Name); err != nil {
			return err
		}
		if c.Version != "" {
			if err := errors.ValidateVersion(c.Version); err != nil {
				return err
			}
		}
		if err := errors.ValidateVersion(c.Runtime); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidVersion, err, "extension %s needs a runtime version", c.Name)
		}
		return nil
	default:
		return errors.New(errors.ErrCodeInvalidInput, "unknown capability kind %d", int(c.Kind))
	}
}

// String renders "php@8.2.10" or "redis@6.0.2 (php 8.2.10)".
func (c Capability) String() string {
	v := c.Version
	if v == "" {
		v = "latest"
	}
	if c.Kind == Extension {
		return fmt.Sprintf("%s@%s (php %s)", c.RegistryName(), v, c.Runtime)
	}
	return fmt.Sprintf("%s@%s", c.RegistryName(), v)
}

// WithVersion returns a copy of c with Version replaced.
func (c Capability) WithVersion(version string) Capability {
	c.Version = version
	return c
}

// MajorMinor returns the "major.minor" prefix of version, or "" if version
// has no minor component.
func MajorMinor(version string) string {
	parts := strings.SplitN(stripSuffix(version), ".", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// Compare compares two PHP versions, returning -1, 0 or +1. Pre-release
// suffixes ("8.4.0RC1") sort before the final release.
func Compare(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}

// AtLeast reports whether version is greater than or equal to floor.
func AtLeast(version, floor string) bool {
	return Compare(version, floor) >= 0
}

// Sort orders versions ascending in place.
func Sort(versions []string) {
	slices.SortStableFunc(versions, Compare)
}

// IsPartial reports whether version omits the patch component ("8.2").
func IsPartial(version string) bool {
	return strings.Count(stripSuffix(version), ".") < 2
}

// canonical converts a PHP version into the "vMAJOR.MINOR.PATCH[-pre]" form
// understood by semver.
func canonical(version string) string {
	base := stripSuffix(version)
	pre := strings.TrimPrefix(version, base)
	v := "v" + base
	if pre != "" {
		v += "-" + strings.ToLower(pre)
	}
	return v
}

// stripSuffix removes a trailing pre-release marker such as "RC1".
func stripSuffix(version string) string {
	for i, r := range version {
		if (r < '0' || r > '9') && r != '.' {
			return version[:i]
		}
	}
	return version
}
