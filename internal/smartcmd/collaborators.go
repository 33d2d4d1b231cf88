package smartcmd

import (
	"context"
	"strings"

	"github.com/fentz26/smartterm/internal/models"
)

// FeatureGate reports whether an experimental feature is switched on.
type FeatureGate interface {
	Enabled(featureID string) (bool, error)
}

// Settings is the read side of the persistent flag store.
type Settings interface {
	GetBool(key string, def bool) (bool, error)
}

// Acknowledgements stores one-way "user has dismissed this" flags. There is
// no way to clear one.
type Acknowledgements interface {
	IsAcknowledged(key string) (bool, error)
	Acknowledge(key string) error
}

// ContextProvider exposes facts about a terminal session.
type ContextProvider interface {
	// WorkingDirectory returns "" when the directory is unknown.
	WorkingDirectory(session string) (string, error)
	HasActiveSubprocess(session string) (bool, error)
}

// Matcher decides whether a smart handler exists for a command and runs it.
type Matcher interface {
	Matches(ctx context.Context, q models.Query) (bool, error)
	Execute(ctx context.Context, q models.Query) error
}

// BufferSearcher scans the line at the cursor of a session's screen.
type BufferSearcher interface {
	Scan(session, pattern string, ignoreCase bool) (models.LookupResult, error)
}

// InputSink accepts raw bytes destined for the session's input stream.
type InputSink interface {
	WriteControlBytes(p []byte) error
}

// Notification is a dismissible one-time hint.
type Notification struct {
	Title        string
	Body         string
	DismissLabel string
	Dismiss      func()
}

// Notifier shows notifications. A second NotifyOnce replaces the first.
type Notifier interface {
	NotifyOnce(n Notification)
}

// Highlighter receives the highlight for the cursor line. nil clears it.
type Highlighter interface {
	SetFindResult(r *models.LookupResult)
}

// Dispatcher runs functions on the single goroutine that owns UI state.
type Dispatcher interface {
	Dispatch(fn func())
}

// UsageRecorder records executed smart commands.
type UsageRecorder interface {
	RecordSmartCommand(project, command string) error
}

// ShortcutMatcher reports whether a key event is the smart execution shortcut.
type ShortcutMatcher func(key string) bool

// MatchShortcut builds a ShortcutMatcher for a comma-separated list of keys
// such as "alt+enter,ctrl+j". Comparison ignores case and surrounding spaces.
func MatchShortcut(spec string) ShortcutMatcher {
	var keys []string
	for _, k := range strings.Split(spec, ",") {
		if k = normalizeKey(k); k != "" {
			keys = append(keys, k)
		}
	}
	return func(key string) bool {
		key = normalizeKey(key)
		for _, k := range keys {
			if k == key {
				return true
			}
		}
		return false
	}
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}
