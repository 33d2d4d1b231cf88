// Package buffer holds terminal screen contents and searches them.
package buffer

import (
	"strings"
	"sync"
)

// DefaultMaxLines bounds scrollback when no limit is given.
const DefaultMaxLines = 5000

// Screen is a thread-safe line buffer with a cursor row. Columns are rune
// offsets.
type Screen struct {
	mu        sync.RWMutex
	lines     [][]rune
	cursorRow int
	maxLines  int
}

// NewScreen creates a screen with one empty line.
func NewScreen(maxLines int) *Screen {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &Screen{
		lines:    [][]rune{{}},
		maxLines: maxLines,
	}
}

// AppendOutput writes text above the cursor line. The cursor line keeps its
// content and stays last.
func (s *Screen) AppendOutput(text string) {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cursor := s.lines[s.cursorRow]
	out := make([][]rune, 0, strings.Count(text, "\n")+1)
	for _, line := range strings.Split(text, "\n") {
		out = append(out, []rune(strings.TrimRight(line, "\r")))
	}

	s.lines = append(s.lines[:s.cursorRow], out...)
	s.lines = append(s.lines, cursor)
	s.cursorRow = len(s.lines) - 1
	s.trimLocked()
}

// SetCursorLine replaces the content of the cursor line.
func (s *Screen) SetCursorLine(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[s.cursorRow] = []rune(text)
}

// NewLine freezes the cursor line and moves the cursor to a fresh line.
func (s *Screen) NewLine() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, []rune{})
	s.cursorRow = len(s.lines) - 1
	s.trimLocked()
}

// Lines returns a copy of the screen contents.
func (s *Screen) Lines() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.lines))
	for i, l := range s.lines {
		out[i] = string(l)
	}
	return out
}

// Line returns a single row, or "" when out of range.
func (s *Screen) Line(row int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if row < 0 || row >= len(s.lines) {
		return ""
	}
	return string(s.lines[row])
}

// CursorRow returns the row the cursor is on.
func (s *Screen) CursorRow() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursorRow
}

// Len returns the number of lines.
func (s *Screen) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

func (s *Screen) trimLocked() {
	if over := len(s.lines) - s.maxLines; over > 0 {
		s.lines = s.lines[over:]
		s.cursorRow -= over
	}
}
