package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/smartterm/internal/connectors/localexec"
	"github.com/fentz26/smartterm/internal/handlers"
	"github.com/fentz26/smartterm/internal/models"
)

var handlersCmd = &cobra.Command{
	Use:   "handlers",
	Short: "Inspect smart command handlers",
}

var handlersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured handlers and whether their programs are installed",
	RunE:  runHandlersList,
}

var handlersCheckCmd = &cobra.Command{
	Use:   "check [flags] <command...>",
	Short: "Show which handler would take a command",
	Long: `Show which handler would take a command. Flags for check go before the
command; everything from the first argument on is the command itself.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runHandlersCheck,
}

var (
	checkDir    string
	checkRemote bool
)

func init() {
	handlersCmd.AddCommand(handlersListCmd, handlersCheckCmd)

	// The checked command keeps its own flags, e.g. "git status -s".
	handlersCheckCmd.Flags().SetInterspersed(false)
	handlersCheckCmd.Flags().StringVar(&checkDir, "dir", "", "Working directory to check from (default: current)")
	handlersCheckCmd.Flags().BoolVar(&checkRemote, "remote", false, "Treat the session as non-local")
}

func newRegistry() (*handlers.Registry, error) {
	return handlers.New(cfg.Handlers, handlers.Options{
		Connector: localexec.New(cfg.Allowlist),
		Timeout:   cfg.HandlerTimeout,
		Logger:    logger.Named("handlers"),
	})
}

func runHandlersList(cmd *cobra.Command, args []string) error {
	reg, err := newRegistry()
	if err != nil {
		return err
	}
	tools := make(map[string]handlers.Tool)
	for _, t := range handlers.NewDetector().Scan(cmd.Context(), reg.Handlers()) {
		tools[t.Handler] = t
	}

	out := cmd.OutOrStdout()
	if len(reg.Handlers()) == 0 {
		fmt.Fprintln(out, "No handlers configured")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMATCH\tRUNS\tSCOPE\tPROGRAM")
	for _, h := range reg.Handlers() {
		match := h.Command
		if match == "" {
			match = "/" + h.Pattern + "/"
		}
		run := strings.Join(h.Run, " ")
		if run == "" {
			run = "(typed command)"
		}
		program := "-"
		if t, ok := tools[h.Name]; ok {
			program = t.Status
			if t.Version != "" {
				program += " (" + t.Version + ")"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", h.Name, match, run, scope(h), program)
	}
	return w.Flush()
}

func scope(h models.Handler) string {
	var parts []string
	if h.LocalOnly {
		parts = append(parts, "local")
	}
	if h.ProjectOnly {
		parts = append(parts, "project")
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, ",")
}

func runHandlersCheck(cmd *cobra.Command, args []string) error {
	reg, err := newRegistry()
	if err != nil {
		return err
	}
	dir := checkDir
	if dir == "" {
		if dir, err = os.Getwd(); err != nil {
			return err
		}
	}

	command := strings.Join(args, " ")
	q := models.Query{
		Project:          cfg.ProjectDir(),
		WorkingDirectory: dir,
		LocalSession:     !checkRemote,
		Command:          command,
	}
	out := cmd.OutOrStdout()
	h, ok := reg.Find(q)
	if !ok {
		fmt.Fprintf(out, "No handler for %q (it runs in the shell)\n", command)
		return nil
	}
	fmt.Fprintf(out, "Handler: %s\n", h.Name)
	if h.Description != "" {
		fmt.Fprintf(out, "  %s\n", h.Description)
	}
	fmt.Fprintf(out, "Runs:    %s\n", strings.Join(handlers.Argv(h, command), " "))
	return nil
}
