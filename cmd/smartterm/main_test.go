package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	dir := t.TempDir()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{
		"--config", filepath.Join(dir, "config.yaml"),
		"--db", filepath.Join(dir, "smartterm.db"),
	}, args...))
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestHandlersCheck(t *testing.T) {
	t.Cleanup(func() {
		checkDir = ""
		checkRemote = false
	})

	out := run(t, "handlers", "check", "git", "status", "-s")
	assert.Contains(t, out, "Handler: git-status")
	assert.Contains(t, out, "Runs:    git status -s")

	out = run(t, "handlers", "check", "ls", "-la")
	assert.Contains(t, out, `No handler for "ls -la"`)

	out = run(t, "handlers", "check", "--remote", "git", "status")
	assert.Contains(t, out, "No handler")
	checkRemote = false

	out = run(t, "handlers", "check", "git", "log", "--oneline", "-n", "3")
	assert.Contains(t, out, `No handler for "git log --oneline -n 3"`)

	out = run(t, "handlers", "check", "--dir", t.TempDir(), "go", "test", "-run", "X", "./...")
	assert.Contains(t, out, `No handler for "go test -run X ./..."`)
	checkDir = ""

	out = run(t, "handlers", "check", "go", "test", "-count=1", "./...")
	assert.Contains(t, out, "Handler: go-test")
}

func TestHandlersList(t *testing.T) {
	out := run(t, "handlers", "list")
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "git-status")
	assert.Contains(t, out, "go-test")
}

func TestAckDismiss(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "smartterm.db")
	cfgFile := filepath.Join(dir, "config.yaml")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	rootCmd.SetArgs([]string{"--config", cfgFile, "--db", db, "ack", "status"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Hint pending")

	rootCmd.SetArgs([]string{"--config", cfgFile, "--db", db, "ack", "dismiss"})
	require.NoError(t, rootCmd.Execute())

	out.Reset()
	rootCmd.SetArgs([]string{"--config", cfgFile, "--db", db, "ack", "status"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Hint dismissed")
}

func TestSettingsToggle(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "smartterm.db")
	cfgFile := filepath.Join(dir, "config.yaml")
	project := filepath.Join(dir, "proj")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	rootCmd.SetArgs([]string{"--config", cfgFile, "--db", db, "settings", "show", project})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Project "+project+": true")

	rootCmd.SetArgs([]string{"--config", cfgFile, "--db", db, "settings", "disable", project})
	require.NoError(t, rootCmd.Execute())

	out.Reset()
	rootCmd.SetArgs([]string{"--config", cfgFile, "--db", db, "settings", "show", project})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Project "+project+": false")
}

func TestHistoryEmpty(t *testing.T) {
	out := run(t, "history")
	assert.Contains(t, out, "No runs yet")
}

func TestVersion(t *testing.T) {
	out := run(t, "version")
	assert.Contains(t, out, "smartterm version "+Version)
}
