// Package shell runs the external tools the build shells out to:
// package managers, phpize, ./configure, make and make install.
package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultTailBytes bounds the output kept for error reports.
const DefaultTailBytes = 16 * 1024

// Command describes one child process.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env entries ("KEY=value") are appended to the parent environment.
	Env []string
	// Timeout of zero means no timeout; the command still ends with ctx.
	Timeout time.Duration
}

// String renders the command line for logs.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result holds the captured output of a finished command. Stdout and Stderr
// keep only the last DefaultTailBytes of each stream.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Output returns stderr when present, else stdout.
func (r *Result) Output() string {
	if r == nil {
		return ""
	}
	if strings.TrimSpace(r.Stderr) != "" {
		return r.Stderr
	}
	return r.Stdout
}

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Command  string
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
}

// Runner runs commands. Implementations return a non-nil Result whenever the
// process started, together with an *ExitError for a non-zero exit.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// Exec runs commands as child processes.
//
// Each child gets its own process group; cancelling ctx kills the whole
// group so that make's sub-processes do not outlive the build.
type Exec struct {
	Logger    *log.Logger
	TailBytes int
}

// NewExec returns an Exec that streams output to logger at debug level.
func NewExec(logger *log.Logger) *Exec {
	if logger == nil {
		logger = log.Default()
	}
	return &Exec{Logger: logger, TailBytes: DefaultTailBytes}
}

// Run executes c and waits for it.
func (e *Exec) Run(ctx context.Context, c Command) (*Result, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	logger := e.Logger
	if logger == nil {
		logger = log.Default()
	}
	tail := e.TailBytes
	if tail <= 0 {
		tail = DefaultTailBytes
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	configureProcessGroup(cmd)

	stdout := newTailBuffer(tail)
	stderr := newTailBuffer(tail)
	outLog := newLineLogger(logger, c.Name, "stdout")
	errLog := newLineLogger(logger, c.Name, "stderr")
	cmd.Stdout = multi(stdout, outLog)
	cmd.Stderr = multi(stderr, errLog)

	logger.Debug("exec", "cmd", c.String(), "dir", c.Dir)
	start := time.Now()
	err := cmd.Run()
	outLog.Flush()
	errLog.Flush()

	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("%s: %w", c.Name, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, &ExitError{Command: c.String(), ExitCode: res.ExitCode}
	}
	return nil, fmt.Errorf("start %s: %w", c.Name, err)
}

// LookPath reports whether name is on PATH.
func LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
