// Package shellexec runs command lines through the user's shell.
package shellexec

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fentz26/smartterm/internal/connectors"
)

// ShellExec passes a whole command line to "<shell> -c".
type ShellExec struct {
	shell string
}

// New creates a shell connector. An empty shell uses $SHELL, then /bin/sh.
func New(shell string) *ShellExec {
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}
	return &ShellExec{shell: shell}
}

// Name returns the connector identifier.
func (s *ShellExec) Name() string {
	return "shellexec"
}

// Shell returns the shell binary in use.
func (s *ShellExec) Shell() string {
	return s.shell
}

// IsAllowed accepts any non-blank command line.
func (s *ShellExec) IsAllowed(cmd string, args []string) bool {
	return strings.TrimSpace(cmd+" "+strings.Join(args, " ")) != ""
}

// Execute runs req as a single command line.
func (s *ShellExec) Execute(ctx context.Context, req connectors.Request) (*connectors.ExecResult, error) {
	if !s.IsAllowed(req.Command, req.Args) {
		return nil, fmt.Errorf("%w: empty command line", connectors.ErrNotAllowed)
	}
	line := req.String()
	res, err := connectors.Run(ctx, connectors.Request{
		Dir:     req.Dir,
		Command: s.shell,
		Args:    []string{"-c", line},
	})
	if err != nil {
		return nil, err
	}
	res.Command = line
	res.Args = nil
	return res, nil
}
