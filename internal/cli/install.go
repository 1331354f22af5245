package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/phpup/pkg/build"
	"github.com/matzehuels/phpup/pkg/capability"
	perrors "github.com/matzehuels/phpup/pkg/errors"
	"github.com/matzehuels/phpup/pkg/observability"
	"github.com/matzehuels/phpup/pkg/provision"
)

// pickerMajors are the release lines offered by the interactive picker.
var pickerMajors = []string{"8", "7"}

// outputTailLines is how much captured build output is shown on failure.
const outputTailLines = 20

// installOpts holds the command-line flags for the install command.
type installOpts struct {
	php      string   // runtime an extension is built against
	binary   bool     // prefer a prebuilt static binary
	retries  int      // extra attempts after a recoverable failure (-1: config)
	jobs     int      // parallel compile jobs (0: auto)
	options  []string // extra ./configure options
	refresh  bool     // bypass cached release metadata
	noBinary bool     // force a source build even if config prefers binaries
}

// installCommand creates the install command.
func (c *CLI) installCommand() *cobra.Command {
	opts := installOpts{retries: -1}

	cmd := &cobra.Command{
		Use:   "install [version | extension[@version]]",
		Short: "Install a PHP runtime or extension",
		Long: `Install a PHP runtime or extension.

Runtimes are given as a version. Partial versions resolve to the newest
release. Without an argument an interactive release picker is shown.

Extensions need the runtime they are built against. Without a version the
newest stable release compatible with that runtime is installed.

Examples:
  phpup install 8.2              # newest 8.2.x
  phpup install 8.2.10 --binary  # prebuilt static binary if available
  phpup install redis --php 8.2  # latest compatible redis for php 8.2
  phpup install xdebug@3.3.1 --php 8.3.4`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arg := "php"
			if len(args) == 1 {
				arg = args[0]
			}
			return c.runInstall(cmd.Context(), arg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.php, "php", "", "PHP version an extension is built against")
	cmd.Flags().BoolVar(&opts.binary, "binary", false, "try a prebuilt static binary before building")
	cmd.Flags().BoolVar(&opts.noBinary, "no-binary", false, "always build from source")
	cmd.Flags().IntVar(&opts.retries, "retries", opts.retries, "retries after a recoverable failure (default from build.toml)")
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", 0, "parallel compile jobs (default from build.toml or CPU count)")
	cmd.Flags().StringArrayVar(&opts.options, "configure-option", nil, "extra ./configure option (repeatable)")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "bypass cached release metadata")
	cmd.MarkFlagsMutuallyExclusive("binary", "no-binary")
	_ = cmd.RegisterFlagCompletionFunc("php", c.completeInstalledRuntimes)

	return cmd
}

// runInstall resolves the target, installs it, and prints a summary.
func (c *CLI) runInstall(ctx context.Context, arg string, opts installOpts) error {
	target, err := parseTarget(arg, opts.php)
	if err != nil {
		return err
	}

	e, err := c.newEnv(ctx)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer e.Close()

	if target.Kind == capability.Runtime && target.Version == "" {
		v, err := c.pickVersion(ctx, e, opts.refresh)
		if err != nil {
			return err
		}
		if v == "" {
			printDetail("No selection made")
			return nil
		}
		target.Version = v
	}

	logger := loggerFromContext(ctx)
	restore := reportStages(ctx, logger)
	defer restore()

	prog := newProgress(logger)
	res, err := e.orch.Install(ctx, target, e.platform, e.installOptions(opts))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		printFailure(err)
		return err
	}
	prog.done("Installed " + res.Capability.String())

	printNewline()
	printSuccess("Installed %s", StyleHighlight.Render(res.Capability.String()))
	printFile(res.InstallPath)
	printBuildStats(res.Driver, res.Attempts, res.Duration, res.UsedBinary)
	printNewline()
	if res.Capability.Kind == capability.Runtime {
		printNextStep("Try it", e.paths.PHPBinary(res.Version)+" -v")
	} else {
		printNextStep("Check", e.paths.PHPBinary(res.Capability.Runtime)+" -m")
	}
	return nil
}

// installOptions merges flags over build.toml.
func (e *env) installOptions(opts installOpts) provision.Options {
	b := e.cfg.Build
	o := provision.Options{
		PreferBinary:     b.PreferBinary,
		Retries:          b.Retries,
		Jobs:             b.Jobs,
		ConfigureOptions: opts.options,
		Refresh:          opts.refresh,
	}
	switch {
	case opts.binary:
		o.PreferBinary = true
	case opts.noBinary:
		o.PreferBinary = false
	}
	if opts.retries >= 0 {
		o.Retries = opts.retries
	}
	if opts.jobs > 0 {
		o.Jobs = opts.jobs
	}
	return o
}

// pickVersion shows the interactive release picker. An empty result means
// the user quit without choosing.
func (c *CLI) pickVersion(ctx context.Context, e *env, refresh bool) (string, error) {
	spinner := newSpinnerWithContext(ctx, "Fetching PHP releases...")
	spinner.Start()

	rows, err := releaseRows(ctx, e, refresh)
	if err != nil {
		spinner.StopWithError("Could not fetch releases")
		return "", err
	}
	spinner.Stop()
	if len(rows) == 0 {
		return "", perrors.New(perrors.ErrCodeNotFound, "no php releases found")
	}

	p := tea.NewProgram(NewVersionListModel(rows), tea.WithContext(ctx))
	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}
	fm, ok := finalModel.(VersionListModel)
	if !ok {
		return "", nil
	}
	return fm.Selected, nil
}

// releaseRows lists releases of every picker major, newest first.
func releaseRows(ctx context.Context, e *env, refresh bool) ([]VersionRow, error) {
	installed := map[string]bool{}
	if list, err := e.orch.Installed(); err == nil {
		for _, inst := range list {
			installed[inst.Version] = true
		}
	}

	var rows []VersionRow
	for _, major := range pickerMajors {
		releases, err := e.php.Releases(ctx, major, refresh)
		if err != nil {
			return nil, err
		}
		for v, r := range releases {
			rows = append(rows, VersionRow{Version: v, Date: r.Date, Installed: installed[v]})
		}
	}
	slices.SortFunc(rows, func(a, b VersionRow) int {
		return capability.Compare(b.Version, a.Version)
	})
	return rows, nil
}

// printFailure prints the failed stage and the tail of the captured output.
func printFailure(err error) {
	printNewline()
	msg := perrors.UserMessage(err)
	if stage := perrors.GetStage(err); stage != "" {
		printError("%s failed: %s", stage, msg)
	} else {
		printError("%s", msg)
	}

	var pe *perrors.Error
	for cur := error(err); errors.As(cur, &pe); cur = pe.Cause {
		if pe.Output == "" {
			continue
		}
		lines := strings.Split(strings.TrimRight(pe.Output, "\n"), "\n")
		if len(lines) > outputTailLines {
			lines = lines[len(lines)-outputTailLines:]
		}
		for _, l := range lines {
			printDetail("%s", l)
		}
		break
	}

	switch perrors.GetCode(err) {
	case perrors.ErrCodeAlreadyInstalled:
		printNextStep("Reinstall", "phpup remove <target> && phpup install <target>")
	case perrors.ErrCodeLocked:
		printDetail("Wait for the other phpup process to finish")
	case perrors.ErrCodeMirrorExhausted:
		printDetail("Check mirrors.toml or run 'phpup mirrors' to probe the mirror set")
	}
}

// animatedStages run without terminal interaction of their own. The
// dependency stage may prompt for a sudo password and the source stage draws
// progress bars, so both only get a status line.
var animatedStages = map[string]bool{
	build.Configured.Stage():     true,
	build.Compiled.Stage():       true,
	build.Installed.Stage():      true,
	build.PostConfigured.Stage(): true,
}

// stageReporter prints one status line per build stage, animates
// long-running stages with a spinner and reports mirror fallbacks.
type stageReporter struct {
	ctx     context.Context
	animate bool

	mu      sync.Mutex
	spinner *Spinner
}

func (r *stageReporter) OnStageStart(_ context.Context, _ string, stage string) {
	if !r.animate || !animatedStages[stage] {
		printInfo("%s", stage)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spinner = newSpinnerWithContext(r.ctx, stage+"...")
	r.spinner.Start()
}

func (r *stageReporter) OnStageComplete(_ context.Context, _ string, stage string, d time.Duration, err error) {
	r.mu.Lock()
	if r.spinner != nil {
		r.spinner.Stop()
		r.spinner = nil
	}
	r.mu.Unlock()

	if err != nil {
		printError("%s", stage)
		return
	}
	printSuccess("%s %s", stage, StyleDim.Render(d.Round(time.Millisecond).String()))
}

func (r *stageReporter) OnRollback(_ context.Context, name string, removedPrefix bool) {
	if removedPrefix {
		printWarning("Rolled back %s and removed the partial install", name)
		return
	}
	printWarning("Rolled back %s; the existing install was left in place", name)
}

func (r *stageReporter) OnDownloadStart(context.Context, string, bool) {}

func (r *stageReporter) OnDownloadComplete(context.Context, string, int64, time.Duration, error) {}

func (r *stageReporter) OnMirrorFallback(_ context.Context, rawURL string, err error) {
	host := rawURL
	if u, perr := url.Parse(rawURL); perr == nil && u.Host != "" {
		host = u.Host
	}
	printWarning("%s failed (%s), trying the next mirror", host, perrors.UserMessage(err))
}

// reportStages registers a stageReporter for build and download events and
// returns a function restoring the previous hooks. Spinners are disabled at
// debug level, where build output is streamed to the log.
func reportStages(ctx context.Context, logger *log.Logger) func() {
	prevBuild, prevDownload := observability.Build(), observability.Download()
	r := &stageReporter{ctx: ctx, animate: logger.GetLevel() > log.DebugLevel}
	observability.SetBuildHooks(r)
	observability.SetDownloadHooks(r)
	return func() {
		observability.SetBuildHooks(prevBuild)
		observability.SetDownloadHooks(prevDownload)
	}
}
