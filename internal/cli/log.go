// Package cli implements the phpup command-line interface.
//
// This package provides commands for installing and removing PHP runtimes
// and extensions, inspecting driver resolution and mirror sets, and
// managing the artifact cache. The CLI is built using cobra and logs through
// charmbracelet/log.
//
// # Commands
//
// The main commands are:
//   - install: Build a PHP runtime or an extension
//   - remove: Uninstall a runtime or disable an extension
//   - list: Show installed runtimes and their extensions
//   - resolve: Explain which driver would be selected and why
//   - mirrors: Show and probe the mirror set for an artifact
//   - cache: Manage the artifact cache
//   - composer: Download composer.phar
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging, which also
// streams build output. Loggers are passed through context.Context so that
// helpers running under a command log with the command's settings.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// logTimeFormat renders "14:32:01.45".
const logTimeFormat = "15:04:05.00"

func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      logTimeFormat,
		Level:           level,
	})
}

// progress logs a completion message with the time since it was created.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs e.g. "Installed php@8.2.10 (4m12.301s)".
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

type loggerKey struct{}

// withLogger attaches l to ctx. Commands install the CLI logger in
// PersistentPreRunE so helpers below them log with the chosen level.
func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// loggerFromContext returns the attached logger or log.Default().
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
