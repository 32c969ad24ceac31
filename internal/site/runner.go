// Package site invokes the external static-site generator. The generator is
// off-the-shelf tooling (mkdocs, hugo, sphinx); docsmith only execs it and
// reports the exit status.
package site

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"git.home.luguber.info/inful/docsmith/internal/config"
)

// Build runs the configured generator command. A missing command is a no-op:
// the pipeline's own artifacts are useful without a rendered site.
func Build(ctx context.Context, cfg config.SiteConfig) error {
	if cfg.Command == "" {
		slog.Debug("no site generator configured, skipping site build")
		return nil
	}
	if _, err := exec.LookPath(cfg.Command); err != nil {
		return fmt.Errorf("site generator %q not found in PATH: %w", cfg.Command, err)
	}

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	slog.Info("running site generator", "command", cfg.Command, "args", cfg.Args)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("site generator failed: %w", err)
	}
	return nil
}
