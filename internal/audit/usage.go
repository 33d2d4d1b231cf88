// Package audit records smart command usage events for smartterm.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/fentz26/smartterm/internal/models"
	"github.com/fentz26/smartterm/internal/store"
)

// ActionSmartCommandExecuted is recorded each time a handler replaces a shell command.
const ActionSmartCommandExecuted = "smart_command.executed"

// Recorder writes usage events for audit trails.
type Recorder struct {
	store *store.Store
}

// NewRecorder creates a new usage recorder.
func NewRecorder(s *store.Store) *Recorder {
	return &Recorder{store: s}
}

// Record writes a usage event for an action.
func (r *Recorder) Record(action string, inputs interface{}, project, details string) (*models.UsageEvent, error) {
	return r.store.WriteUsageEvent(action, hashInputs(inputs), project, details)
}

// RecordSmartCommand records that command was handled by a smart handler in project.
func (r *Recorder) RecordSmartCommand(project, command string) error {
	_, err := r.Record(ActionSmartCommandExecuted, map[string]string{
		"project": project,
		"command": command,
	}, project, command)
	return err
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
