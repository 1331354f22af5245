package mirror

import (
	"path"
	"strings"

	"github.com/matzehuels/phpup/pkg/errors"
)

// Kind names a logical artifact family.
type Kind string

const (
	PHPSource        Kind = "php-source"
	PECLPackage      Kind = "pecl-package"
	ComposerPhar     Kind = "composer-phar"
	GitHubTagArchive Kind = "github-tag-archive"
	PHPBinary        Kind = "php-binary"
)

// ArtifactRef identifies a downloadable unit independently of where it is
// downloaded from. Which fields are used depends on Kind.
type ArtifactRef struct {
	Kind    Kind
	Version string
	Name    string // PECL package name
	Owner   string // GitHub owner
	Repo    string // GitHub repository
	Arch    string // binary architecture
}

// PHPSourceRef refers to the php-<version>.tar.gz source release.
func PHPSourceRef(version string) ArtifactRef {
	return ArtifactRef{Kind: PHPSource, Version: version}
}

// PECLRef refers to a PECL package release.
func PECLRef(name, version string) ArtifactRef {
	return ArtifactRef{Kind: PECLPackage, Name: strings.ToLower(name), Version: version}
}

// ComposerRef refers to a composer.phar release. An empty version means the
// latest stable release; "1" and "2" mean the latest of that major line.
func ComposerRef(version string) ArtifactRef {
	return ArtifactRef{Kind: ComposerPhar, Version: version}
}

// GitHubRef refers to the source archive of a tag.
func GitHubRef(owner, repo, tag string) ArtifactRef {
	return ArtifactRef{Kind: GitHubTagArchive, Owner: owner, Repo: repo, Version: tag}
}

// BinaryRef refers to a precompiled static PHP CLI build.
func BinaryRef(version, arch string) ArtifactRef {
	return ArtifactRef{Kind: PHPBinary, Version: version, Arch: arch}
}

// Validate checks that the fields Kind needs are present and path-safe.
func (r ArtifactRef) Validate() error {
	need := func(field, v string) error {
		if v == "" {
			return errors.New(errors.ErrCodeInvalidInput, "%s artifact needs %s", r.Kind, field)
		}
		if strings.ContainsAny(v, "/\\") || strings.Contains(v, "..") {
			return errors.New(errors.ErrCodeInvalidInput, "invalid %s %q", field, v)
		}
		return nil
	}
	switch r.Kind {
	case PHPSource:
		return need("version", r.Version)
	case PECLPackage:
		if err := need("name", r.Name); err != nil {
			return err
		}
		return need("version", r.Version)
	case ComposerPhar:
		if r.Version == "" {
			return nil
		}
		return need("version", r.Version)
	case GitHubTagArchive:
		for _, f := range [][2]string{{"owner", r.Owner}, {"repo", r.Repo}, {"tag", r.Version}} {
			if err := need(f[0], f[1]); err != nil {
				return err
			}
		}
		return nil
	case PHPBinary:
		if err := need("version", r.Version); err != nil {
			return err
		}
		return need("arch", r.Arch)
	default:
		return errors.New(errors.ErrCodeInvalidInput, "unknown artifact kind %q", r.Kind)
	}
}

// Key is the logical cache identity, e.g. "php-source/8.2.10". It never
// depends on the mirror the artifact came from.
func (r ArtifactRef) Key() string {
	switch r.Kind {
	case PECLPackage:
		return path.Join(string(r.Kind), r.Name, r.Version)
	case GitHubTagArchive:
		return path.Join(string(r.Kind), r.Owner, r.Repo, r.Version)
	case PHPBinary:
		return path.Join(string(r.Kind), r.Version, r.Arch)
	case ComposerPhar:
		return path.Join(string(r.Kind), r.ComposerChannel())
	default:
		return path.Join(string(r.Kind), r.Version)
	}
}

// FileName is the artifact's file name on vendor servers.
func (r ArtifactRef) FileName() string {
	switch r.Kind {
	case PHPSource:
		return "php-" + r.Version + ".tar.gz"
	case PECLPackage:
		return r.Name + "-" + r.Version + ".tgz"
	case ComposerPhar:
		return "composer.phar"
	case GitHubTagArchive:
		return r.Version + ".tar.gz"
	case PHPBinary:
		return "php-" + r.Version + "-cli-linux-" + r.Arch + ".tar.gz"
	}
	return ""
}

// String renders the logical key.
func (r ArtifactRef) String() string { return r.Key() }

// ComposerChannel maps the requested version onto getcomposer.org's
// download directory names.
func (r ArtifactRef) ComposerChannel() string {
	switch r.Version {
	case "", "latest", "stable":
		return "latest-stable"
	case "1", "2":
		return "latest-" + r.Version + ".x"
	case "preview", "snapshot":
		return "latest-" + r.Version
	}
	return r.Version
}
