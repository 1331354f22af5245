// Package shelltest provides a scripted shell.Runner for tests.
package shelltest

import (
	"context"
	"strings"
	"sync"

	"github.com/matzehuels/phpup/pkg/shell"
)

// Handler decides the outcome of one command.
type Handler func(cmd shell.Command) (*shell.Result, error)

// Runner records every command and answers with Handler.
// A nil Handler makes every command succeed.
type Runner struct {
	Handler Handler

	mu       sync.Mutex
	commands []shell.Command
}

// Run implements shell.Runner.
func (r *Runner) Run(ctx context.Context, cmd shell.Command) (*shell.Result, error) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Handler == nil {
		return &shell.Result{}, nil
	}
	return r.Handler(cmd)
}

// Commands returns the recorded commands in order.
func (r *Runner) Commands() []shell.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shell.Command(nil), r.commands...)
}

// Lines returns the recorded commands rendered with Command.String.
func (r *Runner) Lines() []string {
	var out []string
	for _, c := range r.Commands() {
		out = append(out, c.String())
	}
	return out
}

// Ran reports whether any recorded command line contains substr.
func (r *Runner) Ran(substr string) bool {
	for _, l := range r.Lines() {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

// Fail returns a Handler that exits with code for commands whose line
// contains substr and succeeds otherwise.
func Fail(substr string, code int, stderr string) Handler {
	return func(cmd shell.Command) (*shell.Result, error) {
		if strings.Contains(cmd.String(), substr) {
			res := &shell.Result{ExitCode: code, Stderr: stderr}
			return res, &shell.ExitError{Command: cmd.String(), ExitCode: code}
		}
		return &shell.Result{}, nil
	}
}
