package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// removeCommand creates the remove command.
func (c *CLI) removeCommand() *cobra.Command {
	var php string

	cmd := &cobra.Command{
		Use:     "remove <version | extension>",
		Aliases: []string{"uninstall", "rm"},
		Short:   "Remove a PHP runtime or disable an extension",
		Long: `Remove a PHP runtime or disable an extension.

Removing a runtime deletes its whole install prefix, including every
extension built against it. Removing an extension deletes its shared object
and conf.d entry.

Examples:
  phpup remove 8.2.10
  phpup remove redis --php 8.2`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeRemoveTarget,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runRemove(cmd.Context(), args[0], php)
		},
	}

	cmd.Flags().StringVar(&php, "php", "", "PHP version the extension belongs to")
	_ = cmd.RegisterFlagCompletionFunc("php", c.completeInstalledRuntimes)

	return cmd
}

func (c *CLI) runRemove(ctx context.Context, arg, php string) error {
	target, err := parseTarget(arg, php)
	if err != nil {
		return err
	}

	e, err := c.newEnv(ctx)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer e.Close()

	if err := e.orch.Remove(ctx, target, e.platform); err != nil {
		return err
	}
	printSuccess("Removed %s", StyleHighlight.Render(target.String()))
	return nil
}
