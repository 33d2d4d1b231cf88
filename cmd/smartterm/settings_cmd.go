package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fentz26/smartterm/internal/smartcmd"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Toggle smart command execution for a project",
}

var settingsEnableCmd = &cobra.Command{
	Use:   "enable [project-dir]",
	Short: "Enable smart command execution",
	Args:  cobra.MaximumNArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setProjectEnabled(cmd, args, true) },
}

var settingsDisableCmd = &cobra.Command{
	Use:   "disable [project-dir]",
	Short: "Disable smart command execution",
	Args:  cobra.MaximumNArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setProjectEnabled(cmd, args, false) },
}

var settingsShowCmd = &cobra.Command{
	Use:   "show [project-dir]",
	Short: "Show feature switches and the project setting",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSettingsShow,
}

func init() {
	settingsCmd.AddCommand(settingsEnableCmd, settingsDisableCmd, settingsShowCmd)
}

func projectArg(args []string) (string, error) {
	if len(args) == 0 {
		return cfg.ProjectDir(), nil
	}
	return filepath.Abs(args[0])
}

func setProjectEnabled(cmd *cobra.Command, args []string, enabled bool) error {
	project, err := projectArg(args)
	if err != nil {
		return err
	}
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.SetBool(smartcmd.ProjectSetting(project), enabled); err != nil {
		return err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Smart commands %s for %s\n", state, project)
	return nil
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	project, err := projectArg(args)
	if err != nil {
		return err
	}
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	enabled, err := s.GetBool(smartcmd.ProjectSetting(project), true)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Feature %s: %v\n", smartcmd.FeatureID, cfg.FeatureEnabled(smartcmd.FeatureID))
	fmt.Fprintf(out, "Project %s: %v\n", project, enabled)
	fmt.Fprintf(out, "Shortcut: %s\n", cfg.Shortcut)
	fmt.Fprintf(out, "Quiet period: %s\n", cfg.Debounce.QuietPeriod)
	return nil
}
