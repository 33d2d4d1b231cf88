package localexec

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fentz26/smartterm/internal/connectors"
)

func TestIsAllowed(t *testing.T) {
	exec := New(nil)

	tests := []struct {
		cmd     string
		args    []string
		allowed bool
	}{
		{"go", []string{"test", "./..."}, true},
		{"go", []string{"vet", "./..."}, true},
		{"git", []string{"status"}, true},
		{"git", []string{"diff"}, true},
		{"git", []string{"push"}, false},    // not in allowlist
		{"rm", []string{"-rf", "/"}, false}, // not in allowlist
		{"go", []string{"run", "."}, false}, // subcommand not allowed
		{"go", []string{}, false},           // no subcommand
		{"unknown", []string{"cmd"}, false}, // unknown command
	}

	for _, tt := range tests {
		t.Run(tt.cmd+" "+strings.Join(tt.args, " "), func(t *testing.T) {
			got := exec.IsAllowed(tt.cmd, tt.args)
			if got != tt.allowed {
				t.Errorf("IsAllowed(%s, %v) = %v, want %v", tt.cmd, tt.args, got, tt.allowed)
			}
		})
	}
}

func TestIsAllowed_CustomAllowlist(t *testing.T) {
	exec := New(map[string][]string{"make": {"lint"}})

	if !exec.IsAllowed("make", []string{"lint"}) {
		t.Error("expected make lint to be allowed")
	}
	if exec.IsAllowed("git", []string{"status"}) {
		t.Error("expected git status to be refused by a custom allowlist")
	}
}

func TestExecute_Allowed(t *testing.T) {
	exec := New(nil)

	ctx := context.Background()
	result, err := exec.Execute(ctx, connectors.Request{Dir: t.TempDir(), Command: "git", Args: []string{"status"}})

	// git exits non-zero outside a repository; only a missing binary is an error
	if err != nil {
		if errors.Is(err, connectors.ErrNotAllowed) {
			t.Fatalf("git status refused: %v", err)
		}
		t.Logf("Execute failed (git not installed?): %v", err)
		return
	}
	if result.Command != "git" {
		t.Errorf("Expected command 'git', got %s", result.Command)
	}
}

func TestExecute_NotAllowed(t *testing.T) {
	exec := New(nil)

	ctx := context.Background()
	_, err := exec.Execute(ctx, connectors.Request{Command: "rm", Args: []string{"-rf", "/"}})

	if !errors.Is(err, connectors.ErrNotAllowed) {
		t.Errorf("Expected ErrNotAllowed, got %v", err)
	}
}

func TestName(t *testing.T) {
	exec := New(nil)
	if exec.Name() != "localexec" {
		t.Errorf("Expected name 'localexec', got %s", exec.Name())
	}
}
