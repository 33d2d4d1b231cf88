package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fentz26/smartterm/internal/smartcmd"
)

var ackCmd = &cobra.Command{
	Use:   "ack",
	Short: "Manage the one-time smart command hint",
}

var ackStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the hint has been dismissed",
	RunE:  runAckStatus,
}

var ackDismissCmd = &cobra.Command{
	Use:   "dismiss",
	Short: "Dismiss the hint without seeing it",
	RunE:  runAckDismiss,
}

func init() {
	ackCmd.AddCommand(ackStatusCmd, ackDismissCmd)
}

func runAckStatus(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ok, err := s.IsAcknowledged(smartcmd.GotItKey)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintln(cmd.OutOrStdout(), "Hint dismissed")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Hint pending")
	}
	return nil
}

func runAckDismiss(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Acknowledge(smartcmd.GotItKey); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Hint dismissed")
	return nil
}
