package builder

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/courseforge/courseforge/internal/config"
	"github.com/courseforge/courseforge/internal/errors"
)

// Compiler invokes the external static-site compiler as a single blocking
// subprocess. There is no internal retry and no timeout; cancellation and
// deadlines are the caller's concern via ctx.
type Compiler struct {
	cfg config.CompilerConfig
}

// NewCompiler wraps the configured compiler command.
func NewCompiler(cfg config.CompilerConfig) *Compiler {
	return &Compiler{cfg: cfg}
}

// Run executes the compiler inside dir. A nonzero exit is fatal; the captured
// combined output travels on the returned error.
func (c *Compiler) Run(ctx context.Context, dir string) error {
	cmd := exec.CommandContext(ctx, c.cfg.Command, c.cfg.Args...)
	cmd.Dir = dir
	slog.Info("Running external compiler", "command", c.cfg.Command, "args", c.cfg.Args, "dir", dir)

	out, err := cmd.CombinedOutput()
	if err != nil {
		exitCode := -1
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		return errors.ExternalToolError(
			strings.TrimSpace(c.cfg.Command+" "+strings.Join(c.cfg.Args, " ")),
			exitCode, string(out), err)
	}
	slog.Debug("External compiler finished", "output_bytes", len(out))
	return nil
}
