package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/phpup/pkg/cache"
	"github.com/matzehuels/phpup/pkg/paths"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the artifact and metadata caches",
	}

	cmd.AddCommand(c.cacheListCommand())
	cmd.AddCommand(c.cachePruneCommand())
	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// openStore resolves the root and opens the artifact store.
func (c *CLI) openStore() (paths.Paths, *cache.Store, error) {
	p, err := paths.Resolve(c.root)
	if err != nil {
		return paths.Paths{}, nil, err
	}
	s, err := cache.NewStore(p.Artifacts())
	if err != nil {
		return paths.Paths{}, nil, fmt.Errorf("open artifact cache: %w", err)
	}
	return p, s, nil
}

// cacheListCommand creates the "cache list" subcommand.
func (c *CLI) cacheListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := c.openStore()
			if err != nil {
				return err
			}
			entries, err := s.Entries()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				printInfo("Cache is empty")
				return nil
			}

			now := time.Now()
			var total int64
			t := newTable("Artifact", "Size", "Cached", "Expires")
			for _, e := range entries {
				total += e.SizeBytes
				expires := "never"
				switch {
				case e.Expired(now):
					expires = StyleWarning.Render("expired")
				case !e.ExpiresAt.IsZero():
					expires = e.ExpiresAt.Format("Jan 2, 2006")
				}
				t.Row(e.Key, formatBytes(e.SizeBytes), e.CreatedAt.Format("Jan 2, 2006"), expires)
			}
			fmt.Println(t.Render())
			printDetail("%d entries, %s", len(entries), formatBytes(total))
			return nil
		},
	}
}

// cachePruneCommand creates the "cache prune" subcommand.
func (c *CLI) cachePruneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove expired artifact entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := c.openStore()
			if err != nil {
				return err
			}
			n, err := s.Prune(cmd.Context())
			if err != nil {
				return err
			}
			printSuccess("Pruned %d cached artifacts", n)
			return nil
		},
	}
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	var metadataOnly bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cached artifacts and release metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, s, err := c.openStore()
			if err != nil {
				return err
			}
			if !metadataOnly {
				size, _ := s.Size()
				if err := s.Clear(); err != nil {
					return err
				}
				printSuccess("Cleared artifact cache (%s)", formatBytes(size))
			}

			count, err := clearDir(cmd.Context(), p.Metadata())
			if err != nil {
				return err
			}
			printSuccess("Cleared %d cached metadata entries", count)
			printDetail("Directory: %s", p.Cache())
			return nil
		},
	}

	cmd.Flags().BoolVar(&metadataOnly, "metadata", false, "only clear release metadata and mirror rankings")

	return cmd
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := paths.Resolve(c.root)
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			fmt.Println(p.Cache())
			return nil
		},
	}
}

// clearDir removes every file below dir and then the emptied subdirectories.
func clearDir(ctx context.Context, dir string) (int, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0, nil
	}

	count := 0
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil || path == dir {
			return nil // Skip errors, continue walking
		}
		if !info.IsDir() {
			if err := os.Remove(path); err == nil {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return count, err
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if e.IsDir() {
			os.RemoveAll(filepath.Join(dir, e.Name()))
		}
	}
	return count, nil
}

// formatBytes renders a size as "12.3 MiB".
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
