package buffer

import (
	"golang.org/x/text/cases"

	"github.com/fentz26/smartterm/internal/models"
)

// Scan searches the cursor row only. An empty pattern never matches.
func (s *Screen) Scan(pattern string, ignoreCase bool) models.LookupResult {
	result := models.LookupResult{Pattern: pattern}
	if pattern == "" {
		return result
	}

	s.mu.RLock()
	row := s.cursorRow
	line := append([]rune(nil), s.lines[row]...)
	s.mu.RUnlock()

	result.Spans = FindAll(line, []rune(pattern), row, ignoreCase)
	return result
}

// FindAll returns non-overlapping occurrences of pattern in line, left to right.
func FindAll(line, pattern []rune, row int, ignoreCase bool) []models.Span {
	if len(pattern) == 0 || len(pattern) > len(line) {
		return nil
	}

	eq := func(a, b rune) bool { return a == b }
	if ignoreCase {
		eq = newFoldEqual()
	}

	var spans []models.Span
	for i := 0; i+len(pattern) <= len(line); {
		j := 0
		for j < len(pattern) && eq(line[i+j], pattern[j]) {
			j++
		}
		if j == len(pattern) {
			spans = append(spans, models.Span{Row: row, Start: i, End: i + len(pattern)})
			i += len(pattern)
			continue
		}
		i++
	}
	return spans
}

// newFoldEqual compares runes under Unicode case folding. A Caser is not safe
// for concurrent use, so each search gets its own.
func newFoldEqual() func(a, b rune) bool {
	folder := cases.Fold()
	memo := make(map[rune]string)
	fold := func(r rune) string {
		if f, ok := memo[r]; ok {
			return f
		}
		f := folder.String(string(r))
		memo[r] = f
		return f
	}
	return func(a, b rune) bool {
		return a == b || fold(a) == fold(b)
	}
}
