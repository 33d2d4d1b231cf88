package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fentz26/smartterm/internal/audit"
	"github.com/fentz26/smartterm/internal/config"
	"github.com/fentz26/smartterm/internal/connectors/localexec"
	"github.com/fentz26/smartterm/internal/connectors/shellexec"
	"github.com/fentz26/smartterm/internal/features"
	"github.com/fentz26/smartterm/internal/handlers"
	"github.com/fentz26/smartterm/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive terminal",
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	gate := features.NewGate(cfg.Features)
	defer gate.Close()

	reg, err := handlers.New(cfg.Handlers, handlers.Options{
		Connector: localexec.New(cfg.Allowlist),
		Runs:      s,
		Timeout:   cfg.HandlerTimeout,
		Logger:    logger.Named("handlers"),
	})
	if err != nil {
		return err
	}
	defer reg.Wait()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if w := watchConfig(ctx, gate, reg); w != nil {
		defer w.Stop()
	}

	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	app, err := tui.New(tui.Options{
		Config:   cfg,
		Store:    s,
		Gate:     gate,
		Registry: reg,
		Usage:    audit.NewRecorder(s),
		Shell:    shellexec.New(cfg.Shell),
		Dir:      wd,
		Project:  cfg.ProjectDir(),
		Logger:   logger.Named("tui"),
	})
	if err != nil {
		return err
	}
	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// watchConfig reloads feature switches and handler rules when the config file
// changes. It returns nil when the file cannot be watched.
func watchConfig(ctx context.Context, gate *features.Gate, reg *handlers.Registry) *features.Watcher {
	if err := os.MkdirAll(config.Dir(), 0o700); err != nil {
		logger.Warn("config dir unavailable, hot reload disabled", zap.Error(err))
		return nil
	}
	w, err := features.NewWatcher(cfgPath, gate, 0, logger.Named("features"))
	if err != nil {
		logger.Warn("config watcher unavailable", zap.Error(err))
		return nil
	}
	w.OnReload(func(c *config.Config) {
		if err := reg.Replace(c.Handlers); err != nil {
			logger.Warn("keeping previous handlers", zap.Error(err))
		}
	})
	if err := w.Start(ctx); err != nil {
		logger.Warn("config watcher failed to start", zap.Error(err))
		return nil
	}
	return w
}
