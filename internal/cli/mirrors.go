package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/phpup/pkg/errors"
	"github.com/matzehuels/phpup/pkg/httputil"
	"github.com/matzehuels/phpup/pkg/mirror"
	"github.com/matzehuels/phpup/pkg/platform"
)

// mirrorsCommand creates the mirrors command.
func (c *CLI) mirrorsCommand() *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "mirrors <artifact>",
		Short: "Show the mirror set for an artifact",
		Long: `Show the ordered mirror set for an artifact.

Downloads try these URLs strictly in order; the vendor's official URL is
always last. With --probe every mirror is probed and the ranked order is
shown next to the measured latency.

Artifacts:
  8.2.10                      PHP source release
  pecl:redis@6.0.2            PECL package
  composer[@2.7.1]            composer.phar (default: latest stable)
  github:owner/repo@tag       GitHub tag archive
  binary:8.3.4                prebuilt static binary for this host`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runMirrors(cmd.Context(), args[0], probe)
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "probe and rank the mirrors")

	return cmd
}

func (c *CLI) runMirrors(ctx context.Context, arg string, probe bool) error {
	ref, err := parseArtifact(arg, hostArch())
	if err != nil {
		return err
	}
	p, cfg, err := c.loadPaths()
	if err != nil {
		return err
	}
	urls, err := mirror.NewCatalog(mirrorConfig(cfg.Mirrors)).URLsFor(ref)
	if err != nil {
		return err
	}

	printInfo("%s", StyleHighlight.Render(ref.Key()))
	if !probe {
		t := newTable("#", "URL")
		for i, u := range urls {
			t.Row(fmt.Sprintf("%d", i+1), u)
		}
		fmt.Println(t.Render())
		return nil
	}

	if err := p.Ensure(); err != nil {
		return err
	}
	meta, err := newMetadataCache(ctx, p, cfg.Cache, c.Logger)
	if err != nil {
		return err
	}
	defer meta.Close()

	client := httputil.NewClient(httputil.ClientOptions{InsecureSkipVerify: !cfg.Mirrors.VerifySSL})
	ranker := mirror.NewRanker(client, meta, mirror.RankerOptions{
		TTL:          cfg.Mirrors.RankTTL.Duration,
		ProbeTimeout: cfg.Mirrors.ProbeTimeout.Duration,
		Logger:       c.Logger,
	})

	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Probing %d mirrors...", len(urls)))
	spinner.Start()
	probes := ranker.ProbeAll(ctx, urls)
	ranked := ranker.Rank(ctx, urls)
	spinner.Stop()
	if ctx.Err() != nil {
		return ctx.Err()
	}

	latency := make(map[string]string, len(probes))
	for _, pr := range probes {
		if pr.Err != nil {
			latency[pr.URL] = StyleError.Render(iconError + " " + pr.Err.Error())
			continue
		}
		latency[pr.URL] = StyleSuccess.Render(pr.Latency.Round(time.Millisecond).String())
	}

	t := newTable("#", "URL", "Latency")
	for i, u := range ranked {
		t.Row(fmt.Sprintf("%d", i+1), u, latency[u])
	}
	fmt.Println(t.Render())
	printDetail("The official URL stays last regardless of latency")
	return nil
}

// parseArtifact turns a mirrors argument into an artifact reference.
func parseArtifact(arg, arch string) (mirror.ArtifactRef, error) {
	kind, rest, found := strings.Cut(arg, ":")
	if !found {
		if name, version, _ := strings.Cut(arg, "@"); name == "composer" {
			return mirror.ComposerRef(version), nil
		}
		return mirror.PHPSourceRef(arg), nil
	}

	var ref mirror.ArtifactRef
	switch kind {
	case "php":
		ref = mirror.PHPSourceRef(rest)
	case "pecl":
		name, version, _ := strings.Cut(rest, "@")
		ref = mirror.PECLRef(name, version)
	case "composer":
		ref = mirror.ComposerRef(rest)
	case "github":
		repo, tag, _ := strings.Cut(rest, "@")
		owner, name, _ := strings.Cut(repo, "/")
		ref = mirror.GitHubRef(owner, name, tag)
	case "binary":
		ref = mirror.BinaryRef(rest, arch)
	default:
		return mirror.ArtifactRef{}, errors.New(errors.ErrCodeInvalidInput, "unknown artifact kind %q", kind)
	}
	return ref, ref.Validate()
}

// hostArch returns the normalized architecture of this host.
func hostArch() string {
	plat, _ := platform.Detect()
	return plat.Arch
}
