package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

// composerCommand creates the composer command that downloads composer.phar.
func (c *CLI) composerCommand() *cobra.Command {
	var (
		version string
		output  string
		php     string
	)

	cmd := &cobra.Command{
		Use:   "composer",
		Short: "Download composer.phar",
		Long: `Download composer.phar through the configured mirrors.

The published SHA-256 digest is verified. By default the phar is installed
next to a runtime's php binary when --php is given, or into the current
directory otherwise.

Examples:
  phpup composer --php 8.3.4        # ~/.phpup/versions/8.3.4/bin/composer
  phpup composer --version 2.7.1 -o ./composer.phar
  phpup composer --version 1        # latest 1.x`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := c.newEnv(ctx)
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			defer e.Close()

			dest := output
			switch {
			case dest != "":
			case php != "":
				dest = filepath.Join(e.paths.Bin(php), "composer")
			default:
				dest = "composer.phar"
			}

			res, err := e.orch.FetchComposer(ctx, version, dest)
			if err != nil {
				return err
			}
			label := version
			if label == "" {
				label = defaultComposerChannel
			}
			printSuccess("Downloaded composer %s", StyleHighlight.Render(label))
			printFile(res.Path)
			if res.FromCache {
				printDetail("served from cache")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "composer version or major line (default: latest stable)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file")
	cmd.Flags().StringVar(&php, "php", "", "install into this runtime's bin directory")

	return cmd
}
