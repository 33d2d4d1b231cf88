// Package connectors defines how smartterm runs processes.
package connectors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrNotAllowed is returned when a connector refuses a command.
var ErrNotAllowed = errors.New("command not allowed")

// Request describes one process to run.
type Request struct {
	Dir     string   `json:"dir,omitempty"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// String renders the request as a shell-like line.
func (r Request) String() string {
	return strings.TrimSpace(r.Command + " " + strings.Join(r.Args, " "))
}

// ExecResult holds the result of a command execution.
type ExecResult struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exit_code"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// Connector defines the interface for executing commands.
type Connector interface {
	// Name returns the connector identifier.
	Name() string

	// Execute runs a command and returns the result. A non-zero exit code is
	// reported in the result, not as an error.
	Execute(ctx context.Context, req Request) (*ExecResult, error)

	// IsAllowed checks if a command is allowed to execute.
	IsAllowed(cmd string, args []string) bool
}

// Run executes req and collects its output.
func Run(ctx context.Context, req Request) (*ExecResult, error) {
	execCmd := exec.CommandContext(ctx, req.Command, req.Args...)
	if req.Dir != "" {
		execCmd.Dir = req.Dir
	}

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	err := execCmd.Run()

	exitCode := 0
	if err != nil {
		var exitError *exec.ExitError
		if !errors.As(err, &exitError) {
			return nil, fmt.Errorf("exec error: %w", err)
		}
		exitCode = exitError.ExitCode()
	}

	return &ExecResult{
		Command:  req.Command,
		Args:     req.Args,
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}
