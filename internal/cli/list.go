package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/phpup/pkg/provision"
)

// listCommand creates the list command for installed runtimes.
func (c *CLI) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed PHP runtimes and their extensions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, err := c.loadPaths()
			if err != nil {
				return err
			}
			o := provision.New(p, nil, nil, nil, c.Logger)
			installed, err := o.Installed()
			if err != nil {
				return err
			}
			if len(installed) == 0 {
				printInfo("No PHP runtimes installed under %s", p.Root)
				printNextStep("Install one", "phpup install 8.3")
				return nil
			}

			t := newTable("Version", "Extensions", "Path")
			for _, inst := range installed {
				t.Row(inst.Version, formatExtensions(inst.Extensions), inst.Path)
			}
			fmt.Println(t.Render())
			return nil
		},
	}
}

// formatExtensions renders "redis 6.0.2, opcache".
func formatExtensions(exts []provision.ExtensionInfo) string {
	if len(exts) == 0 {
		return "—"
	}
	parts := make([]string, len(exts))
	for i, ext := range exts {
		parts[i] = strings.TrimSpace(ext.Name + " " + ext.Version)
	}
	return strings.Join(parts, ", ")
}
