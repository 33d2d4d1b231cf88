package audit

import (
	"path/filepath"
	"testing"

	"github.com/fentz26/smartterm/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSmartCommand(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer s.Close()

	r := NewRecorder(s)
	require.NoError(t, r.RecordSmartCommand("/tmp/demo", "git status"))
	require.NoError(t, r.RecordSmartCommand("/tmp/demo", "go test ./..."))

	count, err := s.CountUsageEvents(ActionSmartCommandExecuted)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestHashInputs_Stable(t *testing.T) {
	a := hashInputs(map[string]string{"command": "git status"})
	b := hashInputs(map[string]string{"command": "git status"})
	c := hashInputs(map[string]string{"command": "git diff"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
	assert.Equal(t, "hash_error", hashInputs(make(chan int)))
}
