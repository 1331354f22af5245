// Package paths resolves the on-disk layout once at startup.
//
// The layout is shared with external tooling and must stay stable:
//
//	<root>/versions/<version>/{bin,etc,etc/conf.d,lib/php/extensions}/...
//	<root>/cache/...
//	<root>/config/*.toml
//
// Every component that touches the filesystem receives a [Paths] value
// instead of looking up the home directory or environment on its own.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvRoot overrides the default root directory.
const EnvRoot = "PHPUP_ROOT"

// appName is used for the default root directory (~/.phpup).
const appName = "phpup"

// Paths is the resolved directory layout.
type Paths struct {
	Root string
}

// New returns Paths rooted at root.
func New(root string) Paths {
	return Paths{Root: filepath.Clean(root)}
}

// Resolve picks the root from flag, then $PHPUP_ROOT, then ~/.phpup.
func Resolve(flag string) (Paths, error) {
	root := flag
	if root == "" {
		root = os.Getenv(EnvRoot)
	}
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, fmt.Errorf("resolve home directory: %w", err)
		}
		root = filepath.Join(home, "."+appName)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return Paths{}, fmt.Errorf("resolve root %s: %w", root, err)
	}
	return New(abs), nil
}

// Versions returns <root>/versions.
func (p Paths) Versions() string { return filepath.Join(p.Root, "versions") }

// Version returns the install prefix <root>/versions/<version>.
func (p Paths) Version(version string) string { return filepath.Join(p.Versions(), version) }

// Bin returns the bin directory of an install prefix.
func (p Paths) Bin(version string) string { return filepath.Join(p.Version(version), "bin") }

// PHPBinary returns the interpreter path of an install prefix.
func (p Paths) PHPBinary(version string) string { return filepath.Join(p.Bin(version), "php") }

// Etc returns the etc directory of an install prefix.
func (p Paths) Etc(version string) string { return filepath.Join(p.Version(version), "etc") }

// ConfD returns the ini scan directory of an install prefix.
func (p Paths) ConfD(version string) string { return filepath.Join(p.Etc(version), "conf.d") }

// Extensions returns the extension directory of an install prefix.
func (p Paths) Extensions(version string) string {
	return filepath.Join(p.Version(version), "lib", "php", "extensions")
}

// Cache returns <root>/cache.
func (p Paths) Cache() string { return filepath.Join(p.Root, "cache") }

// Artifacts returns the content cache directory for downloaded artifacts.
func (p Paths) Artifacts() string { return filepath.Join(p.Cache(), "artifacts") }

// Metadata returns the cache directory for small JSON values (rankings, vendor metadata).
func (p Paths) Metadata() string { return filepath.Join(p.Cache(), "metadata") }

// Config returns <root>/config.
func (p Paths) Config() string { return filepath.Join(p.Root, "config") }

// Tmp returns the scratch directory that holds build TempDirs.
func (p Paths) Tmp() string { return filepath.Join(p.Root, "tmp") }

// Ensure creates the top-level directories.
func (p Paths) Ensure() error {
	for _, dir := range []string{p.Versions(), p.Artifacts(), p.Metadata(), p.Config(), p.Tmp()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
