package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fentz26/smartterm/internal/config"
	"github.com/fentz26/smartterm/internal/logging"
	"github.com/fentz26/smartterm/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "smartterm",
	Short: "smartterm - terminal with smart command handlers",
	Long: `smartterm is a terminal front-end that recognises commands with a registered
smart handler while you type, highlights them and runs the handler instead of
the shell when you submit with the smart shortcut.`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runTUI,
}

var (
	cfgPath string
	dbPath  string
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
)

func init() {
	rootCmd.PersistentPreRunE = setup
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "Config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database (overrides db_path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(handlersCmd)
	rootCmd.AddCommand(ackCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads the config and builds the logger. The TUI owns the terminal,
// so it logs to the configured file; everything else logs to stderr.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		loaded.DBPath = dbPath
	}
	if verbose {
		loaded.Log.Level = "debug"
	}
	cfg = loaded

	logCfg := cfg.Log
	if cmd != tuiCmd && cmd != rootCmd {
		logCfg.File = ""
		if !verbose {
			logCfg.Level = "warn"
		}
	}
	l, _, err := logging.New(logCfg)
	if err != nil {
		return err
	}
	logger = l
	return nil
}

func openStore() (*store.Store, error) {
	s, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.DBPath, err)
	}
	return s, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
