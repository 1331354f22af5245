package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/phpup/pkg/acquire"
	"github.com/matzehuels/phpup/pkg/archive"
	"github.com/matzehuels/phpup/pkg/driver"
	perrors "github.com/matzehuels/phpup/pkg/errors"
	"github.com/matzehuels/phpup/pkg/mirror"
	"github.com/matzehuels/phpup/pkg/observability"
	"github.com/matzehuels/phpup/pkg/pkgmgr"
	"github.com/matzehuels/phpup/pkg/shell"
)

// ArtifactSource downloads an artifact to dest. *acquire.Fetcher implements it.
type ArtifactSource interface {
	FetchArtifact(ctx context.Context, ref mirror.ArtifactRef, dest string) (*acquire.Result, error)
}

// StageTiming records how long one completed stage took.
type StageTiming struct {
	Stage    string
	Duration time.Duration
}

// Report describes a run. It is returned for failed runs too.
type Report struct {
	ID       string
	Driver   string
	State    State
	Stages   []StageTiming
	Artifact *acquire.Result
	Duration time.Duration

	// FailedAt is the last state reached by a failed run.
	FailedAt State

	// RolledBack reports whether the failed run removed InstallPrefix.
	RolledBack bool
}

// Pipeline runs source builds. Its fields are read-only during Run, so one
// Pipeline may serve concurrent runs against different prefixes.
type Pipeline struct {
	// Packages installs OS dependencies. Nil skips the dependency stage.
	Packages *pkgmgr.Installer

	Source    ArtifactSource
	Extractor archive.Extractor
	Runner    shell.Runner

	// TempRoot is the parent of per-run temp directories. Empty means os.TempDir.
	TempRoot string

	Logger *log.Logger
}

// NewPipeline wires a pipeline. Nil extractor and logger get defaults.
func NewPipeline(packages *pkgmgr.Installer, src ArtifactSource, runner shell.Runner, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{
		Packages:  packages,
		Source:    src,
		Extractor: archive.NewExtractor(),
		Runner:    runner,
		Logger:    logger,
	}
}

// Run builds and installs bc.Capability with d. Missing ID, Jobs, TempDir and
// RuntimePrefix in bc are filled in. On failure the returned error carries
// the failed stage (see perrors.GetStage) and the Report the state reached.
func (p *Pipeline) Run(ctx context.Context, d driver.Driver, bc *driver.BuildContext) (rep *Report, err error) {
	if err := p.prepare(bc); err != nil {
		return nil, err
	}
	logger := p.logger().With("build", bc.ID[:8], "capability", bc.Capability.String())

	unlock, err := Lock(bc.InstallPrefix)
	if err != nil {
		return nil, err
	}
	defer unlock()

	_, statErr := os.Stat(bc.InstallPrefix)
	preexisting := statErr == nil

	if bc.TempDir == "" {
		if p.TempRoot != "" {
			if err := os.MkdirAll(p.TempRoot, 0o755); err != nil {
				return nil, perrors.Wrap(perrors.ErrCodeInternal, err, "create %s", p.TempRoot)
			}
		}
		bc.TempDir, err = os.MkdirTemp(p.TempRoot, "phpup-"+bc.ID[:8]+"-")
	} else {
		err = os.MkdirAll(bc.TempDir, 0o755)
	}
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeInternal, err, "create build directory")
	}

	m := NewMachine()
	rep = &Report{ID: bc.ID, Driver: d.Name()}
	start := time.Now()

	defer func() {
		r := recover()
		if r != nil {
			m.Fail(fmt.Errorf("driver panic: %v", r))
		}
		rep.State = m.State()
		rep.FailedAt, _, _ = m.Failure()
		rep.Duration = time.Since(start)
		rep.RolledBack = p.cleanup(ctx, logger, bc, m, preexisting)
		if r != nil {
			panic(r)
		}
	}()

	logger.Info("starting build", "driver", d.Name(), "prefix", bc.InstallPrefix, "jobs", bc.Jobs)
	stages := []struct {
		to  State
		run func(context.Context, driver.Driver, *driver.BuildContext, *Report) error
	}{
		{DepsInstalled, p.installDeps},
		{SourceAcquired, p.acquireSource},
		{Configured, p.configure},
		{Compiled, p.compile},
		{Installed, p.install},
		{PostConfigured, p.postConfigure},
	}
	for _, s := range stages {
		if err := p.step(ctx, logger, m, bc, rep, s.to, func() error { return s.run(ctx, d, bc, rep) }); err != nil {
			return rep, err
		}
	}
	if err := m.Advance(Done); err != nil {
		return rep, perrors.Wrap(perrors.ErrCodeInternal, err, "finish build")
	}
	logger.Info("build complete", "duration", time.Since(start).Round(time.Millisecond))
	return rep, nil
}

func (p *Pipeline) prepare(bc *driver.BuildContext) error {
	if bc == nil {
		return perrors.New(perrors.ErrCodeInvalidInput, "build context is nil")
	}
	if err := bc.Capability.Validate(); err != nil {
		return err
	}
	if bc.InstallPrefix == "" || !filepath.IsAbs(bc.InstallPrefix) {
		return perrors.New(perrors.ErrCodeInvalidInput, "install prefix must be an absolute path: %q", bc.InstallPrefix)
	}
	if p.Source == nil || p.Runner == nil {
		return perrors.New(perrors.ErrCodeInvalidConfig, "pipeline needs an artifact source and a command runner")
	}
	if len(bc.ID) < 8 {
		bc.ID = uuid.NewString()
	}
	if bc.Jobs <= 0 {
		bc.Jobs = driver.DefaultJobs()
	}
	if bc.RuntimePrefix == "" {
		bc.RuntimePrefix = bc.InstallPrefix
	}
	return nil
}

// step runs one stage and advances m, or fails m with the stage's error.
func (p *Pipeline) step(ctx context.Context, logger *log.Logger, m *Machine, bc *driver.BuildContext, rep *Report, to State, fn func() error) error {
	stage := to.Stage()
	capName := bc.Capability.String()
	hooks := observability.Build()

	hooks.OnStageStart(ctx, capName, stage)
	logger.Debug("stage start", "stage", stage)
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	hooks.OnStageComplete(ctx, capName, stage, elapsed, err)

	if err != nil {
		err = atStage(err, stage)
		m.Fail(err)
		logger.Error("stage failed", "stage", stage, "error", perrors.UserMessage(err))
		return err
	}
	rep.Stages = append(rep.Stages, StageTiming{Stage: stage, Duration: elapsed})
	logger.Debug("stage done", "stage", stage, "duration", elapsed.Round(time.Millisecond))
	return m.Advance(to)
}

func (p *Pipeline) installDeps(ctx context.Context, d driver.Driver, bc *driver.BuildContext, _ *Report) error {
	if p.Packages == nil {
		return nil
	}
	pkgs := d.Dependencies(bc).For(p.Packages.Manager.Family)
	if len(pkgs) == 0 {
		return nil
	}
	return p.Packages.Install(ctx, pkgs)
}

func (p *Pipeline) acquireSource(ctx context.Context, d driver.Driver, bc *driver.BuildContext, rep *Report) error {
	ref := d.Source(bc)
	if err := ref.Validate(); err != nil {
		return err
	}
	archivePath := filepath.Join(bc.TempDir, ref.FileName())
	res, err := p.Source.FetchArtifact(ctx, ref, archivePath)
	if err != nil {
		return err
	}
	rep.Artifact = res

	srcRoot := filepath.Join(bc.TempDir, "src")
	if err := os.MkdirAll(srcRoot, 0o755); err != nil {
		return perrors.Wrap(perrors.ErrCodeInternal, err, "create %s", srcRoot)
	}
	extractor := p.Extractor
	if extractor == nil {
		extractor = archive.NewExtractor()
	}
	if err := extractor.Extract(ctx, archivePath, srcRoot); err != nil {
		return perrors.Wrap(perrors.ErrCodeBuildStageFailed, err, "extract %s", filepath.Base(archivePath))
	}
	dir, err := archive.LocateSourceRoot(srcRoot, d.SourceMarkers())
	if err != nil {
		return err
	}
	bc.SourceDir = dir
	return nil
}

func (p *Pipeline) configure(ctx context.Context, d driver.Driver, bc *driver.BuildContext, _ *Report) error {
	bc.ConfigureOptions = append(d.ConfigureOptions(bc), bc.ConfigureOptions...)
	return p.run(ctx, bc, d.Configure(bc))
}

func (p *Pipeline) compile(ctx context.Context, d driver.Driver, bc *driver.BuildContext, _ *Report) error {
	return p.run(ctx, bc, d.Compile(bc))
}

func (p *Pipeline) install(ctx context.Context, d driver.Driver, bc *driver.BuildContext, _ *Report) error {
	return p.run(ctx, bc, d.Install(bc))
}

func (p *Pipeline) postConfigure(ctx context.Context, d driver.Driver, bc *driver.BuildContext, _ *Report) error {
	if err := d.PostConfigure(ctx, bc); err != nil {
		return perrors.Wrap(perrors.ErrCodeBuildStageFailed, err, "post-configure")
	}
	return nil
}

// run executes cmds in order in SourceDir unless a command names its own Dir.
func (p *Pipeline) run(ctx context.Context, bc *driver.BuildContext, cmds []shell.Command) error {
	for _, cmd := range cmds {
		if cmd.Dir == "" {
			cmd.Dir = bc.SourceDir
		}
		res, err := p.Runner.Run(ctx, cmd)
		if err == nil {
			continue
		}
		e := perrors.Wrap(perrors.ErrCodeBuildStageFailed, err, "%s", cmd.String())
		if res != nil {
			e = e.WithOutput(res.Output())
		}
		return e
	}
	return nil
}

// cleanup removes TempDir and, for a failed run that created it,
// InstallPrefix. It reports whether the prefix was removed.
func (p *Pipeline) cleanup(ctx context.Context, logger *log.Logger, bc *driver.BuildContext, m *Machine, preexisting bool) bool {
	if err := os.RemoveAll(bc.TempDir); err != nil {
		logger.Warn("could not remove build directory", "dir", bc.TempDir, "error", err)
	}
	at, cause, failed := m.Failure()
	if !failed {
		return false
	}

	removed := false
	if !preexisting {
		if err := os.RemoveAll(bc.InstallPrefix); err != nil {
			logger.Warn("could not remove partial install", "prefix", bc.InstallPrefix, "error", err)
		} else {
			removed = true
		}
	}
	logger.Warn("rolled back build", "state", at, "removed_prefix", removed, "cause", perrors.UserMessage(cause))
	observability.Build().OnRollback(context.WithoutCancel(ctx), bc.Capability.String(), removed)
	return removed
}

func (p *Pipeline) logger() *log.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return log.Default()
}

// atStage records stage on err's outermost *perrors.Error, wrapping plain
// errors as BUILD_STAGE_FAILED.
func atStage(err error, stage string) error {
	var e *perrors.Error
	if errors.As(err, &e) {
		if e.Stage == "" {
			e.Stage = stage
		}
		return err
	}
	return perrors.Wrap(perrors.ErrCodeBuildStageFailed, err, "%s", stage).AtStage(stage)
}
