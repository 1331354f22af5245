package provision

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/phpup/pkg/capability"
	"github.com/matzehuels/phpup/pkg/drivers"
	perrors "github.com/matzehuels/phpup/pkg/errors"
)

// Installation is one installed runtime.
type Installation struct {
	Version    string
	Path       string
	Extensions []ExtensionInfo
}

// ExtensionInfo is an extension enabled through conf.d. Version is empty
// for ini files phpup did not write.
type ExtensionInfo struct {
	Name    string
	Version string
}

// IsInstalled reports whether c is present. A runtime counts as installed
// only when its php binary exists and is executable; an extension when its
// runtime is installed and its conf.d ini exists.
func (o *Orchestrator) IsInstalled(c capability.Capability) bool {
	runtime := c.PHPVersion()
	if runtime == "" || capability.IsPartial(runtime) {
		return false
	}
	info, err := os.Stat(o.Paths.PHPBinary(runtime))
	if err != nil || !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
		return false
	}
	if c.Kind == capability.Runtime {
		return true
	}
	_, err = os.Stat(drivers.IniPath(o.Paths.Version(runtime), c.Name))
	return err == nil
}

// Installed lists installed runtimes by ascending version. Directories
// without an executable php binary are skipped.
func (o *Orchestrator) Installed() ([]Installation, error) {
	entries, err := os.ReadDir(o.Paths.Versions())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeInternal, err, "read %s", o.Paths.Versions())
	}

	var versions []string
	for _, e := range entries {
		if !e.IsDir() || perrors.ValidateVersion(e.Name()) != nil {
			continue
		}
		if o.IsInstalled(capability.NewRuntime(e.Name())) {
			versions = append(versions, e.Name())
		}
	}
	capability.Sort(versions)

	out := make([]Installation, 0, len(versions))
	for _, v := range versions {
		out = append(out, Installation{
			Version:    v,
			Path:       o.Paths.Version(v),
			Extensions: readExtensions(o.Paths.ConfD(v)),
		})
	}
	return out, nil
}

func readExtensions(confD string) []ExtensionInfo {
	matches, _ := filepath.Glob(filepath.Join(confD, "*.ini"))
	var out []ExtensionInfo
	for _, m := range matches {
		name := strings.TrimSuffix(filepath.Base(m), ".ini")
		if strings.HasPrefix(name, "00-") {
			continue
		}
		out = append(out, ExtensionInfo{Name: name, Version: iniVersion(m)})
	}
	return out
}

// iniVersion reads the version from the "; name version, written by phpup"
// header line.
func iniVersion(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return ""
	}
	line := sc.Text()
	if !strings.HasSuffix(line, ", written by phpup") {
		return ""
	}
	fields := strings.Fields(strings.TrimSuffix(strings.TrimPrefix(line, ";"), ", written by phpup"))
	if len(fields) != 2 {
		return ""
	}
	return fields[1]
}
