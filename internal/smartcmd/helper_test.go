package smartcmd

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fentz26/smartterm/internal/dispatch"
	"github.com/fentz26/smartterm/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- fakes ---

type fakeGate struct {
	enabled bool
	err     error
	panics  bool
}

func (g *fakeGate) Enabled(string) (bool, error) {
	if g.panics {
		panic("gate exploded")
	}
	return g.enabled, g.err
}

type fakeSettings struct {
	mu     sync.Mutex
	values map[string]bool
}

func (s *fakeSettings) GetBool(key string, def bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	return def, nil
}

type fakeAcks struct {
	mu  sync.Mutex
	set map[string]bool
}

func (a *fakeAcks) IsAcknowledged(key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.set[key], nil
}

func (a *fakeAcks) Acknowledge(key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set[key] = true
	return nil
}

type fakeContext struct {
	mu       sync.Mutex
	dir      string
	busy     bool
	dirCalls int
	runCalls int
}

func (c *fakeContext) WorkingDirectory(string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirCalls++
	return c.dir, nil
}

func (c *fakeContext) HasActiveSubprocess(string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runCalls++
	return c.busy, nil
}

func (c *fakeContext) calls() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirCalls, c.runCalls
}

type fakeMatcher struct {
	mu       sync.Mutex
	match    func(q models.Query) (bool, error)
	queries  []models.Query
	executed []models.Query
}

func (m *fakeMatcher) Matches(_ context.Context, q models.Query) (bool, error) {
	m.mu.Lock()
	m.queries = append(m.queries, q)
	match := m.match
	m.mu.Unlock()
	if match == nil {
		return true, nil
	}
	return match(q)
}

func (m *fakeMatcher) Execute(_ context.Context, q models.Query) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executed = append(m.executed, q)
	return nil
}

func (m *fakeMatcher) snapshot() ([]models.Query, []models.Query) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Query(nil), m.queries...), append([]models.Query(nil), m.executed...)
}

type fakeSearcher struct {
	mu    sync.Mutex
	scans []string
}

func (s *fakeSearcher) Scan(_, pattern string, _ bool) (models.LookupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans = append(s.scans, pattern)
	return models.LookupResult{
		Pattern: pattern,
		Spans:   []models.Span{{Row: 0, Start: 2, End: 2 + len(pattern)}},
	}, nil
}

func (s *fakeSearcher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scans)
}

type fakeSink struct {
	mu      sync.Mutex
	written []byte
	err     error
}

func (s *fakeSink) WriteControlBytes(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.written = append(s.written, p...)
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	seen []Notification
}

func (n *fakeNotifier) NotifyOnce(note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, note)
}

func (n *fakeNotifier) all() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.seen...)
}

type fakeHighlighter struct {
	mu      sync.Mutex
	results []*models.LookupResult
}

func (h *fakeHighlighter) SetFindResult(r *models.LookupResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, r)
}

func (h *fakeHighlighter) all() []*models.LookupResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*models.LookupResult(nil), h.results...)
}

type fakeUsage struct {
	mu       sync.Mutex
	commands []string
}

func (u *fakeUsage) RecordSmartCommand(_, command string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.commands = append(u.commands, command)
	return nil
}

type fixture struct {
	gate        *fakeGate
	settings    *fakeSettings
	acks        *fakeAcks
	context     *fakeContext
	matcher     *fakeMatcher
	searcher    *fakeSearcher
	sink        *fakeSink
	notifier    *fakeNotifier
	highlighter *fakeHighlighter
	usage       *fakeUsage
	loop        *dispatch.Loop
}

func newTestHelper(t *testing.T, configure func(f *fixture)) (*Helper, *fixture) {
	t.Helper()

	f := &fixture{
		gate:        &fakeGate{enabled: true},
		settings:    &fakeSettings{values: map[string]bool{}},
		acks:        &fakeAcks{set: map[string]bool{}},
		context:     &fakeContext{dir: "/work/demo"},
		matcher:     &fakeMatcher{},
		searcher:    &fakeSearcher{},
		sink:        &fakeSink{},
		notifier:    &fakeNotifier{},
		highlighter: &fakeHighlighter{},
		usage:       &fakeUsage{},
		loop:        dispatch.NewLoop(nil),
	}
	if configure != nil {
		configure(f)
	}

	h, err := New(Options{
		Session:     "session-1",
		Project:     "/work/demo",
		Gate:        f.gate,
		Settings:    f.settings,
		Acks:        f.acks,
		Context:     f.context,
		Matcher:     f.matcher,
		Searcher:    f.searcher,
		Input:       f.sink,
		Notifier:    f.notifier,
		Highlighter: f.highlighter,
		Dispatcher:  f.loop,
		Usage:       f.usage,
		QuietPeriod: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		h.Close()
		f.loop.Close()
	})
	return h, f
}

// settle waits for the debounce delay and drains the dispatcher.
func settle(f *fixture) {
	time.Sleep(120 * time.Millisecond)
	f.loop.Sync()
}

// --- construction ---

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Session: "s"})
	assert.Error(t, err)
}

// --- commit path ---

func TestProcessEnterKeyPressed_FeatureDisabled(t *testing.T) {
	h, f := newTestHelper(t, func(f *fixture) { f.gate.enabled = false })

	assert.False(t, h.ProcessEnterKeyPressed("ls", DefaultShortcut))

	dirCalls, runCalls := f.context.calls()
	assert.Zero(t, dirCalls)
	assert.Zero(t, runCalls)
	queries, executed := f.matcher.snapshot()
	assert.Empty(t, queries)
	assert.Empty(t, executed)
	assert.Equal(t, Idle, h.State())
}

func TestProcessEnterKeyPressed_ProjectDisabled(t *testing.T) {
	h, f := newTestHelper(t, func(f *fixture) {
		f.settings.values[ProjectSetting("/work/demo")] = false
	})

	assert.False(t, h.ProcessEnterKeyPressed("git status", DefaultShortcut))
	queries, _ := f.matcher.snapshot()
	assert.Empty(t, queries)
}

func TestProcessEnterKeyPressed_ErasesTypedCommand(t *testing.T) {
	h, f := newTestHelper(t, nil)

	handled := h.ProcessEnterKeyPressed("git status", DefaultShortcut)

	require.True(t, handled)
	assert.Equal(t, bytes.Repeat([]byte{Backspace}, 10), f.sink.written)

	_, executed := f.matcher.snapshot()
	require.Len(t, executed, 1)
	assert.Equal(t, models.Query{
		Session:          "session-1",
		Project:          "/work/demo",
		WorkingDirectory: "/work/demo",
		LocalSession:     true,
		Command:          "git status",
	}, executed[0])
	assert.Equal(t, []string{"git status"}, f.usage.commands)
	assert.Equal(t, Idle, h.State())
}

func TestProcessEnterKeyPressed_CountsRunesNotBytes(t *testing.T) {
	h, f := newTestHelper(t, nil)

	require.True(t, h.ProcessEnterKeyPressed("echo héllo", DefaultShortcut))
	assert.Len(t, f.sink.written, 10)
}

func TestProcessEnterKeyPressed_WrongKey(t *testing.T) {
	h, f := newTestHelper(t, nil)

	assert.False(t, h.ProcessEnterKeyPressed("git status", "enter"))
	queries, executed := f.matcher.snapshot()
	assert.Empty(t, queries)
	assert.Empty(t, executed)
	assert.Empty(t, f.sink.written)
}

func TestProcessEnterKeyPressed_NoHandler(t *testing.T) {
	h, f := newTestHelper(t, func(f *fixture) {
		f.matcher.match = func(models.Query) (bool, error) { return false, nil }
	})

	assert.False(t, h.ProcessEnterKeyPressed("ls -la", DefaultShortcut))
	_, executed := f.matcher.snapshot()
	assert.Empty(t, executed)
	assert.Empty(t, f.usage.commands)
}

func TestProcessEnterKeyPressed_TransportFailureStillHandled(t *testing.T) {
	h, f := newTestHelper(t, func(f *fixture) {
		f.sink.err = errors.New("pty closed")
	})

	assert.True(t, h.ProcessEnterKeyPressed("git status", DefaultShortcut))
	_, executed := f.matcher.snapshot()
	assert.Len(t, executed, 1)
}

func TestProcessEnterKeyPressed_GateFailuresFailClosed(t *testing.T) {
	tests := []struct {
		name string
		gate *fakeGate
	}{
		{"error", &fakeGate{enabled: true, err: errors.New("shutting down")}},
		{"panic", &fakeGate{panics: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, f := newTestHelper(t, func(f *fixture) { f.gate = tt.gate })

			assert.False(t, h.ProcessEnterKeyPressed("git status", DefaultShortcut))
			assert.Empty(t, f.sink.written)
		})
	}
}

func TestProcessEnterKeyPressed_MatcherErrorIsNoMatch(t *testing.T) {
	h, f := newTestHelper(t, func(f *fixture) {
		f.matcher.match = func(models.Query) (bool, error) { return false, errors.New("registry gone") }
	})

	assert.False(t, h.ProcessEnterKeyPressed("git status", DefaultShortcut))
	assert.Empty(t, f.sink.written)
}

func TestProcessEnterKeyPressed_BusySessionIsNotLocal(t *testing.T) {
	h, f := newTestHelper(t, func(f *fixture) { f.context.busy = true })

	require.True(t, h.ProcessEnterKeyPressed("git status", DefaultShortcut))
	_, executed := f.matcher.snapshot()
	require.Len(t, executed, 1)
	assert.False(t, executed[0].LocalSession)
}

// --- facts ---

func TestFacts_CachedUntilCommandExecuted(t *testing.T) {
	h, f := newTestHelper(t, nil)

	require.True(t, h.ProcessEnterKeyPressed("git status", DefaultShortcut))
	require.True(t, h.ProcessEnterKeyPressed("git status", DefaultShortcut))
	dirCalls, runCalls := f.context.calls()
	assert.Equal(t, 1, dirCalls)
	assert.Equal(t, 1, runCalls)

	h.OnCommandExecuted()
	require.True(t, h.ProcessEnterKeyPressed("git status", DefaultShortcut))
	dirCalls, runCalls = f.context.calls()
	assert.Equal(t, 2, dirCalls)
	assert.Equal(t, 2, runCalls)
}

func TestFacts_KeystrokesReuseCachedFacts(t *testing.T) {
	h, f := newTestHelper(t, nil)

	for _, typed := range []string{"git", "git status"} {
		h.ProcessKeyPressed(typed)
		settle(f)
	}
	dirCalls, runCalls := f.context.calls()
	assert.Equal(t, 1, dirCalls)
	assert.Equal(t, 1, runCalls)

	h.OnCommandExecuted()
	h.ProcessKeyPressed("git status")
	settle(f)
	dirCalls, _ = f.context.calls()
	assert.Equal(t, 2, dirCalls)
}

func TestFacts_EmptyDirectoryIsCached(t *testing.T) {
	h, f := newTestHelper(t, func(f *fixture) { f.context.dir = "" })

	require.True(t, h.ProcessEnterKeyPressed("git status", DefaultShortcut))
	require.True(t, h.ProcessEnterKeyPressed("git status", DefaultShortcut))
	dirCalls, _ := f.context.calls()
	assert.Equal(t, 1, dirCalls)
}

func TestFacts_NoMatchResetsFacts(t *testing.T) {
	h, f := newTestHelper(t, func(f *fixture) {
		f.matcher.match = func(models.Query) (bool, error) { return false, nil }
	})

	h.ProcessEnterKeyPressed("ls", DefaultShortcut)
	h.ProcessEnterKeyPressed("ls", DefaultShortcut)
	dirCalls, _ := f.context.calls()
	assert.Equal(t, 2, dirCalls)
}

// --- preview path ---

func TestProcessKeyPressed_BurstRunsOneLookupWithLastPayload(t *testing.T) {
	h, f := newTestHelper(t, nil)

	for _, typed := range []string{"g", "gi", "git", "git s", "git status"} {
		h.ProcessKeyPressed(typed)
	}
	settle(f)

	queries, _ := f.matcher.snapshot()
	require.Len(t, queries, 1)
	assert.Equal(t, "git status", queries[0].Command)

	highlights := f.highlighter.all()
	require.Len(t, highlights, 1)
	require.NotNil(t, highlights[0])
	assert.Equal(t, "git status", highlights[0].Pattern)
	assert.Equal(t, Acknowledging, h.State())
}

func TestProcessKeyPressed_FeatureDisabledSchedulesNothing(t *testing.T) {
	h, f := newTestHelper(t, func(f *fixture) { f.gate.enabled = false })

	h.ProcessKeyPressed("git status")
	settle(f)

	queries, _ := f.matcher.snapshot()
	assert.Empty(t, queries)
	assert.Empty(t, f.highlighter.all())
}

func TestProcessKeyPressed_ProjectDisabledClearsHighlight(t *testing.T) {
	h, f := newTestHelper(t, func(f *fixture) {
		f.settings.values[ProjectSetting("/work/demo")] = false
	})

	h.ProcessKeyPressed("git status")
	settle(f)

	highlights := f.highlighter.all()
	require.Len(t, highlights, 1)
	assert.Nil(t, highlights[0])
	assert.Empty(t, f.notifier.all())
}

func TestProcessKeyPressed_EmptyTextSearchesNothing(t *testing.T) {
	h, f := newTestHelper(t, nil)

	h.ProcessKeyPressed("")
	settle(f)

	assert.Zero(t, f.searcher.count())
	highlights := f.highlighter.all()
	require.Len(t, highlights, 1)
	assert.Nil(t, highlights[0])
	assert.Empty(t, f.notifier.all())
	assert.Equal(t, Idle, h.State())
}

func TestProcessKeyPressed_NoMatchClearsHighlight(t *testing.T) {
	h, f := newTestHelper(t, func(f *fixture) {
		f.matcher.match = func(models.Query) (bool, error) { return false, nil }
	})

	h.ProcessKeyPressed("ls")
	settle(f)

	assert.Zero(t, f.searcher.count())
	highlights := f.highlighter.all()
	require.Len(t, highlights, 1)
	assert.Nil(t, highlights[0])
	assert.Empty(t, f.notifier.all())
}

func TestProcessKeyPressed_HintShownOnceUntilDismissed(t *testing.T) {
	h, f := newTestHelper(t, nil)

	h.ProcessKeyPressed("git status")
	settle(f)
	assert.Equal(t, Acknowledging, h.State())

	for i := 0; i < 2; i++ {
		h.ProcessKeyPressed("git status")
		settle(f)
		// No hint is on its way, so the stage is not reported as acknowledging.
		assert.Equal(t, ResultReady, h.State())
	}

	notes := f.notifier.all()
	require.Len(t, notes, 1)
	assert.Equal(t, "Got it", notes[0].DismissLabel)
	assert.Contains(t, notes[0].Body, DefaultShortcut)
	assert.Len(t, f.highlighter.all(), 3)

	notes[0].Dismiss()
	acked, err := f.acks.IsAcknowledged(GotItKey)
	require.NoError(t, err)
	assert.True(t, acked)
	assert.Equal(t, ResultReady, h.State())

	h.ProcessKeyPressed("git status")
	settle(f)
	assert.Len(t, f.notifier.all(), 1)
}

func TestProcessKeyPressed_DismissWhileAcknowledgingReturnsToIdle(t *testing.T) {
	h, f := newTestHelper(t, nil)

	h.ProcessKeyPressed("git status")
	settle(f)
	require.Equal(t, Acknowledging, h.State())

	notes := f.notifier.all()
	require.Len(t, notes, 1)
	notes[0].Dismiss()
	assert.Equal(t, Idle, h.State())
}

func TestProcessKeyPressed_AcknowledgedShowsNoHint(t *testing.T) {
	h, f := newTestHelper(t, func(f *fixture) { f.acks.set[GotItKey] = true })

	h.ProcessKeyPressed("git status")
	settle(f)

	assert.Empty(t, f.notifier.all())
	highlights := f.highlighter.all()
	require.Len(t, highlights, 1)
	assert.NotNil(t, highlights[0])
}

func TestProcessKeyPressed_CancelBeforeDelay(t *testing.T) {
	h, f := newTestHelper(t, nil)

	h.ProcessKeyPressed("git status")
	h.OnCommandExecuted()
	settle(f)

	queries, _ := f.matcher.snapshot()
	assert.Empty(t, queries)
	assert.Empty(t, f.highlighter.all())
}

func TestProcessKeyPressed_StaleResultNeverApplied(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	h, f := newTestHelper(t, func(f *fixture) {
		f.matcher.match = func(q models.Query) (bool, error) {
			if q.Command == "git st" {
				once.Do(func() { close(entered) })
				<-release
			}
			return true, nil
		}
	})

	h.ProcessKeyPressed("git st")
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first lookup never started")
	}

	h.ProcessKeyPressed("git status")
	close(release)
	settle(f)

	highlights := f.highlighter.all()
	require.NotEmpty(t, highlights)
	for _, r := range highlights {
		require.NotNil(t, r)
		assert.Equal(t, "git status", r.Pattern)
	}
}

func TestProcessEnterKeyPressed_CancelsPendingPreview(t *testing.T) {
	h, f := newTestHelper(t, nil)

	h.ProcessKeyPressed("git status")
	require.True(t, h.ProcessEnterKeyPressed("git status", DefaultShortcut))
	settle(f)

	assert.Empty(t, f.highlighter.all())
	queries, _ := f.matcher.snapshot()
	assert.Len(t, queries, 1)
}

func TestClose_IgnoresInput(t *testing.T) {
	h, f := newTestHelper(t, nil)
	h.Close()
	h.Close()

	h.ProcessKeyPressed("git status")
	assert.False(t, h.ProcessEnterKeyPressed("git status", DefaultShortcut))
	settle(f)

	queries, _ := f.matcher.snapshot()
	assert.Empty(t, queries)
}

func TestMatchShortcut(t *testing.T) {
	match := MatchShortcut("alt+enter, ctrl+j")

	assert.True(t, match("alt+enter"))
	assert.True(t, match("ALT+Enter"))
	assert.True(t, match("ctrl+j"))
	assert.False(t, match("enter"))
	assert.False(t, match(""))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "acknowledging", Acknowledging.String())
	assert.Equal(t, "unknown", State(42).String())
}
