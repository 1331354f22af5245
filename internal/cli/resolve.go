package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/phpup/pkg/capability"
	"github.com/matzehuels/phpup/pkg/driver"
	"github.com/matzehuels/phpup/pkg/drivers"
	"github.com/matzehuels/phpup/pkg/platform"
)

// resolveOpts holds the command-line flags for the resolve command.
type resolveOpts struct {
	php     string
	distro  string // overrides the detected distro
	version string // overrides the detected distro version
	arch    string // overrides the detected architecture
}

// resolveCommand creates the resolve command that explains driver selection.
func (c *CLI) resolveCommand() *cobra.Command {
	var opts resolveOpts

	cmd := &cobra.Command{
		Use:   "resolve <version | extension[@version]>",
		Short: "Explain which build driver would be selected",
		Long: `Explain which build driver would be selected for a target.

Every registered driver is scored against the tags derived from the target
and the platform. The highest eligible score wins; ties go to the driver
registered first. Platform detection can be overridden to explain the
choice for another host.

Examples:
  phpup resolve 8.1.27
  phpup resolve 7.4.33 --distro ubuntu --distro-version 22.04
  phpup resolve redis --php 8.2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runResolve(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.php, "php", "", "PHP version an extension is built against")
	cmd.Flags().StringVar(&opts.distro, "distro", "", "distribution ID (default: detected)")
	cmd.Flags().StringVar(&opts.version, "distro-version", "", "distribution version (default: detected)")
	cmd.Flags().StringVar(&opts.arch, "arch", "", "architecture (default: detected)")

	return cmd
}

func (c *CLI) runResolve(ctx context.Context, arg string, opts resolveOpts) error {
	target, err := parseTarget(arg, opts.php)
	if err != nil {
		return err
	}
	if target.Kind == capability.Runtime && target.Version == "" {
		return fmt.Errorf("resolve needs a PHP version")
	}
	plat := overridePlatform(ctx, opts)

	reg := driver.NewRegistry()
	drivers.Register(reg)
	resolver := driver.NewResolver(reg)

	printInfo("%s on %s", StyleHighlight.Render(target.String()), StyleValue.Render(plat.String()))
	var tags []string
	for _, tag := range driver.DeriveTags(target, plat) {
		tags = append(tags, fmt.Sprintf("%s(+%d)", tag.Value, tag.Weight))
	}
	printDetail("tags: %s", strings.Join(tags, " "))
	printNewline()

	t := newTable("", "Driver", "Score", "Matched", "Missing", "Supports")
	for _, cand := range resolver.Explain(target, plat) {
		t.Row(candidateRow(cand)...)
	}
	fmt.Println(t.Render())

	d, err := resolver.Resolve(target, plat)
	if err != nil {
		printError("%s", err)
		return err
	}
	printSuccess("Selected %s", StyleHighlight.Render(d.Name()))
	if target.Kind == capability.Extension && len(reg.Descriptors(target.Kind, target.Name)) == 0 {
		printDetail("No dedicated driver for %s; extensions with one: %s",
			target.Name, strings.Join(reg.Names(capability.Extension), ", "))
	}
	return nil
}

// candidateRow renders one resolver candidate as table cells.
func candidateRow(cand driver.Candidate) []string {
	marker := ""
	if cand.Selected {
		marker = iconArrow
	}
	name := cand.Descriptor
	if cand.Generic {
		name += " (generic)"
	}
	supports := iconSuccess
	if !cand.Supported {
		supports = iconError
	}
	return []string{
		marker,
		name,
		fmt.Sprintf("%d", cand.Score),
		orDash(strings.Join(cand.Matched, " ")),
		orDash(strings.Join(cand.Missing, " ")),
		supports,
	}
}

// overridePlatform detects the host and applies flag overrides.
func overridePlatform(ctx context.Context, opts resolveOpts) platform.Tags {
	plat, err := platform.Detect()
	if err != nil && opts.distro == "" {
		loggerFromContext(ctx).Warn("platform detection failed", "error", err)
	}
	if opts.distro != "" {
		plat.Distro = strings.ToLower(opts.distro)
		plat.Like = nil
	}
	if opts.version != "" {
		plat.DistroVersion = opts.version
	}
	if opts.arch != "" {
		plat.Arch = platform.NormalizeArch(opts.arch)
	}
	return plat
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}
