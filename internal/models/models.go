// Package models defines the core domain types for smartterm.
package models

import "time"

// Trigger is a single input event observed by the smart command pipeline.
type Trigger struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"` // typed text so far
}

// Span is a highlighted range on one screen row. End is exclusive.
type Span struct {
	Row   int `json:"row"`
	Start int `json:"start"`
	End   int `json:"end"`
}

// LookupResult is the outcome of scanning the buffer for a typed command.
type LookupResult struct {
	Pattern string `json:"pattern"`
	Spans   []Span `json:"spans,omitempty"`
}

// Found reports whether the scan matched anything.
func (r LookupResult) Found() bool {
	return len(r.Spans) > 0
}

// Query carries everything a matcher needs to decide whether a handler
// exists for a typed command.
type Query struct {
	Session          string `json:"session"`
	Project          string `json:"project"`
	WorkingDirectory string `json:"working_directory,omitempty"` // empty when unknown
	LocalSession     bool   `json:"local_session"`               // no subprocess is running
	Command          string `json:"command"`
}

// Handler describes a smart command handler: a typed command that is executed
// by smartterm itself instead of being sent to the shell.
type Handler struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Command     string   `json:"command,omitempty" yaml:"command,omitempty"` // prefix match
	Pattern     string   `json:"pattern,omitempty" yaml:"pattern,omitempty"` // optional regex
	LocalOnly   bool     `json:"local_only" yaml:"local_only"`
	ProjectOnly bool     `json:"project_only" yaml:"project_only"`
	Run         []string `json:"run" yaml:"run"` // argv executed through the connector
}

// Run represents one execution of a smart command handler.
type Run struct {
	ID        string    `json:"id"`
	Handler   string    `json:"handler"`
	Command   string    `json:"command"`
	Args      []string  `json:"args"`
	Dir       string    `json:"dir,omitempty"`
	ExitCode  int       `json:"exit_code"`
	Stdout    string    `json:"stdout"`
	Stderr    string    `json:"stderr"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// UsageEvent is an audit record of a smart command interaction.
type UsageEvent struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Project    string    `json:"project,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
