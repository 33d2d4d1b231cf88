// Package localexec provides a local command executor with an allowlist.
package localexec

import (
	"context"
	"fmt"
	"strings"

	"github.com/fentz26/smartterm/internal/connectors"
)

// DefaultAllowlist is used when no allowlist is configured.
var DefaultAllowlist = map[string][]string{
	"go":  {"build", "test", "vet"},
	"git": {"diff", "log", "status"},
}

// LocalExec runs smart command handlers. Only allowlisted subcommands run.
type LocalExec struct {
	allowed map[string][]string
}

// New creates a new LocalExec connector. A nil allowlist uses DefaultAllowlist.
func New(allowed map[string][]string) *LocalExec {
	if allowed == nil {
		allowed = DefaultAllowlist
	}
	return &LocalExec{allowed: allowed}
}

// Name returns the connector identifier.
func (l *LocalExec) Name() string {
	return "localexec"
}

// IsAllowed checks if a command is in the allowlist.
func (l *LocalExec) IsAllowed(cmd string, args []string) bool {
	allowedSubcmds, ok := l.allowed[cmd]
	if !ok {
		return false
	}

	if len(args) == 0 {
		return false
	}

	// Check if the first arg (subcommand) is allowed
	subcmd := args[0]
	for _, allowed := range allowedSubcmds {
		if subcmd == allowed {
			return true
		}
	}
	return false
}

// Execute runs a command if it's in the allowlist.
func (l *LocalExec) Execute(ctx context.Context, req connectors.Request) (*connectors.ExecResult, error) {
	if !l.IsAllowed(req.Command, req.Args) {
		return nil, fmt.Errorf("%w: %s %s", connectors.ErrNotAllowed, req.Command, strings.Join(req.Args, " "))
	}
	return connectors.Run(ctx, req)
}
