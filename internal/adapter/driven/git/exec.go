package git

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// CommandRunner executes an external command in a working directory. It
// exists so tests can observe CLI delegation without a git binary.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) error
}

// ExecRunner runs commands with os/exec, capturing combined output for
// error reporting.
type ExecRunner struct{}

// Run executes the command and returns its combined output on failure.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	slog.Debug("executing command", "dir", dir, "command", name+" "+strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return nil
}
