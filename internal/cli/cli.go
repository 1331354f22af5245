package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/phpup/pkg/buildinfo"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for display.
	appName = "phpup"

	// defaultComposerChannel is fetched when no composer version is given.
	defaultComposerChannel = "stable"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	root       string // --root override of the phpup root
	noProgress bool   // --no-progress disables download progress bars
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "phpup installs PHP runtimes and extensions from source",
		Long: `phpup provisions PHP interpreters and PECL extensions on Linux hosts.

It picks the most specific build driver for your distribution, downloads
sources through configurable mirrors with checksum verification, and builds
them with automatic rollback when a stage fails.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.root, "root", "", "phpup root directory (default $PHPUP_ROOT or ~/.phpup)")
	root.PersistentFlags().BoolVar(&c.noProgress, "no-progress", false, "disable download progress bars")

	// Register all subcommands
	root.AddCommand(c.installCommand())
	root.AddCommand(c.removeCommand())
	root.AddCommand(c.listCommand())
	root.AddCommand(c.resolveCommand())
	root.AddCommand(c.mirrorsCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.composerCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.completionCommand())

	return root
}
