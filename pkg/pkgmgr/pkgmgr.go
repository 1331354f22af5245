// Package pkgmgr installs OS packages through the host package manager.
package pkgmgr

import (
	"context"
	"errors"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	perrors "github.com/matzehuels/phpup/pkg/errors"
	"github.com/matzehuels/phpup/pkg/platform"
	"github.com/matzehuels/phpup/pkg/shell"
)

// Family groups distributions that share a package manager and package names.
type Family string

const (
	Apt Family = "apt"
	DNF Family = "dnf"
	Yum Family = "yum"
	Apk Family = "apk"
)

// Manager knows the commands of one package manager.
type Manager struct {
	Family Family
}

// Commands returns the refresh and install commands for pkgs.
func (m Manager) Commands(pkgs []string) []shell.Command {
	if len(pkgs) == 0 {
		return nil
	}
	switch m.Family {
	case Apt:
		env := []string{"DEBIAN_FRONTEND=noninteractive"}
		return []shell.Command{
			{Name: "apt-get", Args: []string{"update"}, Env: env},
			{Name: "apt-get", Args: append([]string{"install", "-y", "--no-install-recommends"}, pkgs...), Env: env},
		}
	case DNF:
		return []shell.Command{{Name: "dnf", Args: append([]string{"install", "-y"}, pkgs...)}}
	case Yum:
		return []shell.Command{{Name: "yum", Args: append([]string{"install", "-y"}, pkgs...)}}
	case Apk:
		return []shell.Command{
			{Name: "apk", Args: []string{"update"}},
			{Name: "apk", Args: append([]string{"add", "--no-cache"}, pkgs...)},
		}
	}
	return nil
}

// QueryCommand returns a command that exits zero when pkg is installed.
func (m Manager) QueryCommand(pkg string) shell.Command {
	switch m.Family {
	case Apt:
		return shell.Command{Name: "dpkg-query", Args: []string{"-W", "-f=${Status}", pkg}}
	case Apk:
		return shell.Command{Name: "apk", Args: []string{"info", "-e", pkg}}
	default:
		return shell.Command{Name: "rpm", Args: []string{"-q", pkg}}
	}
}

var distroFamilies = map[string]Family{
	"ubuntu":    Apt,
	"debian":    Apt,
	"linuxmint": Apt,
	"pop":       Apt,
	"raspbian":  Apt,
	"fedora":    DNF,
	"rocky":     DNF,
	"almalinux": DNF,
	"rhel":      DNF,
	"centos":    DNF,
	"ol":        DNF,
	"amzn":      DNF,
	"alpine":    Apk,
}

// ForPlatform picks the package manager for the host, consulting ID_LIKE for
// derivatives. CentOS/RHEL 7 and Amazon Linux 2 still use yum.
func ForPlatform(t platform.Tags) (Manager, error) {
	for _, id := range t.Family() {
		f, ok := distroFamilies[id]
		if !ok {
			continue
		}
		if f == DNF && usesYum(id, t.DistroVersion) {
			f = Yum
		}
		return Manager{Family: f}, nil
	}
	return Manager{}, perrors.New(perrors.ErrCodeUnsupported, "no known package manager for %s", t)
}

func usesYum(distro, version string) bool {
	major, _, _ := strings.Cut(version, ".")
	switch distro {
	case "centos", "rhel", "ol":
		return major == "6" || major == "7"
	case "amzn":
		return major == "2"
	}
	return false
}

// DependencySet lists OS packages per family.
type DependencySet map[Family][]string

// For returns the packages for f. The dnf and yum families share package
// names, so either list serves the other.
func (d DependencySet) For(f Family) []string {
	if pkgs, ok := d[f]; ok {
		return pkgs
	}
	switch f {
	case Yum:
		return d[DNF]
	case DNF:
		return d[Yum]
	}
	return nil
}

// Merge returns the union of d and others, keeping first-seen order.
func (d DependencySet) Merge(others ...DependencySet) DependencySet {
	out := DependencySet{}
	for _, set := range append([]DependencySet{d}, others...) {
		for f, pkgs := range set {
			for _, p := range pkgs {
				if !slices.Contains(out[f], p) {
					out[f] = append(out[f], p)
				}
			}
		}
	}
	return out
}

// Installer runs package-manager commands.
type Installer struct {
	Manager Manager
	Runner  shell.Runner
	UseSudo bool
	Logger  *log.Logger
}

// NewInstaller wires an installer for m.
func NewInstaller(m Manager, runner shell.Runner, useSudo bool, logger *log.Logger) *Installer {
	if logger == nil {
		logger = log.Default()
	}
	return &Installer{Manager: m, Runner: runner, UseSudo: useSudo, Logger: logger}
}

// Missing returns the packages in pkgs that are not installed.
func (i *Installer) Missing(ctx context.Context, pkgs []string) []string {
	var missing []string
	for _, p := range pkgs {
		res, err := i.Runner.Run(ctx, i.Manager.QueryCommand(p))
		if err != nil || (i.Manager.Family == Apt && !strings.Contains(res.Stdout, "install ok installed")) {
			missing = append(missing, p)
		}
	}
	return missing
}

// Install installs the packages that are missing. A non-zero exit of the
// package manager is DEPENDENCY_INSTALL_FAILED with the captured output.
func (i *Installer) Install(ctx context.Context, pkgs []string) error {
	missing := i.Missing(ctx, pkgs)
	if len(missing) == 0 {
		i.Logger.Debug("system dependencies present", "packages", len(pkgs))
		return nil
	}
	i.Logger.Info("installing system dependencies", "manager", i.Manager.Family, "packages", strings.Join(missing, " "))
	for _, cmd := range i.Manager.Commands(missing) {
		if i.UseSudo && os.Geteuid() != 0 {
			cmd = withSudo(cmd)
		}
		res, err := i.Runner.Run(ctx, cmd)
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		e := perrors.Wrap(perrors.ErrCodeDependencyInstallFailed, err, "%s", cmd.Name).AtStage("dependencies")
		var exitErr *shell.ExitError
		if errors.As(err, &exitErr) {
			e = e.WithOutput(res.Output())
		}
		return e
	}
	return nil
}

func withSudo(cmd shell.Command) shell.Command {
	args := []string{}
	if len(cmd.Env) > 0 {
		args = append(args, "env")
		args = append(args, cmd.Env...)
	}
	args = append(args, cmd.Name)
	args = append(args, cmd.Args...)
	return shell.Command{Name: "sudo", Args: args, Dir: cmd.Dir, Timeout: cmd.Timeout}
}
