// Package platform describes the host a capability is provisioned on.
//
// [Tags] is derived once at startup by [Detect] and passed by value into
// every component; nothing in the core reads host state on its own.
package platform

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// OsReleaseFile is the path parsed by [Detect].
var OsReleaseFile = "/etc/os-release"

// Tags describes the host: distribution ID, its version and the CPU architecture.
type Tags struct {
	Distro        string // os-release ID, lowercase (e.g. "ubuntu", "alpine")
	DistroVersion string // os-release VERSION_ID (e.g. "22.04")
	Arch          string // normalized architecture (e.g. "x86_64", "aarch64")

	// Like holds the os-release ID_LIKE entries, used to pick a package
	// manager family for derivative distributions.
	Like []string
}

// New returns Tags with the distro lowercased and the architecture normalized.
func New(distro, version, arch string) Tags {
	return Tags{
		Distro:        strings.ToLower(strings.TrimSpace(distro)),
		DistroVersion: strings.TrimSpace(version),
		Arch:          NormalizeArch(arch),
	}
}

// DistroWithVersion returns "ubuntu-22.04", or "" when either part is missing.
func (t Tags) DistroWithVersion() string {
	if t.Distro == "" || t.DistroVersion == "" {
		return ""
	}
	return t.Distro + "-" + t.DistroVersion
}

// Family returns the distro followed by its ID_LIKE entries.
func (t Tags) Family() []string {
	out := make([]string, 0, len(t.Like)+1)
	if t.Distro != "" {
		out = append(out, t.Distro)
	}
	return append(out, t.Like...)
}

// String renders "ubuntu 22.04 x86_64".
func (t Tags) String() string {
	return strings.TrimSpace(fmt.Sprintf("%s %s %s", t.Distro, t.DistroVersion, t.Arch))
}

// NormalizeArch maps Go and uname spellings onto one canonical name.
func NormalizeArch(arch string) string {
	switch a := strings.ToLower(strings.TrimSpace(arch)); a {
	case "amd64", "x86-64", "x64":
		return "x86_64"
	case "arm64", "armv8", "aarch64_be":
		return "aarch64"
	case "386", "i686", "i586":
		return "i386"
	case "arm", "armv7", "armv7l", "armhf":
		return "armv7l"
	default:
		return a
	}
}

// Detect reads [OsReleaseFile] and combines it with the running architecture.
func Detect() (Tags, error) {
	f, err := os.Open(OsReleaseFile)
	if err != nil {
		return Tags{Arch: NormalizeArch(runtime.GOARCH)}, fmt.Errorf("open %s: %w", OsReleaseFile, err)
	}
	defer f.Close()

	tags, err := ParseOsRelease(f)
	if err != nil {
		return tags, fmt.Errorf("parse %s: %w", OsReleaseFile, err)
	}
	tags.Arch = NormalizeArch(runtime.GOARCH)
	return tags, nil
}

// ParseOsRelease parses the key=value format of /etc/os-release.
// Arch is left empty.
func ParseOsRelease(r io.Reader) (Tags, error) {
	var tags Tags
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		switch strings.TrimSpace(key) {
		case "ID":
			tags.Distro = strings.ToLower(value)
		case "VERSION_ID":
			tags.DistroVersion = value
		case "ID_LIKE":
			tags.Like = strings.Fields(strings.ToLower(value))
		}
	}
	if err := scanner.Err(); err != nil {
		return tags, err
	}
	if tags.Distro == "" {
		return tags, fmt.Errorf("no ID field")
	}
	return tags, nil
}
