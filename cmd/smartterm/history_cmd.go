package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/smartterm/internal/audit"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show smart handler runs",
	RunE:  runHistory,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.ListRuns(historyLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs yet")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tHANDLER\tCOMMAND\tEXIT\tDIR")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Handler,
			truncate(strings.TrimSpace(r.Command+" "+strings.Join(r.Args, " ")), 40),
			r.ExitCode,
			r.Dir,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	n, err := s.CountUsageEvents(audit.ActionSmartCommandExecuted)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d smart commands executed\n", n)
	return nil
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
