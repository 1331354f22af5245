package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// configCommand creates the config command that prints the merged configuration.
func (c *CLI) configCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the merged configuration",
		Long: `Print the merged configuration.

Values come from mirrors.toml, cache.toml and build.toml in <root>/config,
with defaults for anything missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cfg, err := c.loadPaths()
			if err != nil {
				return err
			}
			printKeyValue("Root", p.Root)
			printKeyValue("Config", p.Config())
			printNewline()
			fmt.Print(cfg.String())
			return nil
		},
	}
}
