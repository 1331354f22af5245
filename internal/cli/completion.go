package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/phpup/pkg/paths"
	"github.com/matzehuels/phpup/pkg/provision"
)

// completionCommand creates the completion command.
func (c *CLI) completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for phpup.

Installed runtimes and extensions complete for "remove" and for --php.

  $ source <(phpup completion bash)
  $ phpup completion zsh > "${fpath[1]}/_phpup"
  $ phpup completion fish > ~/.config/fish/completions/phpup.fish
  PS> phpup completion powershell | Out-String | Invoke-Expression`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(os.Stdout, true)
			case "zsh":
				return root.GenZshCompletion(os.Stdout)
			case "fish":
				return root.GenFishCompletion(os.Stdout, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return fmt.Errorf("unsupported shell %q", args[0])
		},
	}
}

// installations lists installed runtimes for completion. Errors yield nothing.
func (c *CLI) installations() []provision.Installation {
	p, err := paths.Resolve(c.root)
	if err != nil {
		return nil
	}
	list, err := provision.New(p, nil, nil, nil, c.Logger).Installed()
	if err != nil {
		return nil
	}
	return list
}

// completeInstalledRuntimes completes --php with installed versions.
func (c *CLI) completeInstalledRuntimes(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var out []string
	for _, inst := range c.installations() {
		if strings.HasPrefix(inst.Version, toComplete) {
			out = append(out, inst.Version)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// completeRemoveTarget completes runtimes, or the extensions of the runtime
// named by --php.
func (c *CLI) completeRemoveTarget(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	php, _ := cmd.Flags().GetString("php")
	if php == "" {
		return c.completeInstalledRuntimes(cmd, args, toComplete)
	}

	var out []string
	for _, inst := range c.installations() {
		if inst.Version != php {
			continue
		}
		for _, ext := range inst.Extensions {
			if strings.HasPrefix(ext.Name, toComplete) {
				out = append(out, ext.Name)
			}
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
