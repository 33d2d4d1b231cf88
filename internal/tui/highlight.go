package tui

import (
	"sort"

	"github.com/fentz26/smartterm/internal/models"
)

// renderScreen styles the rows named by the highlight.
func renderScreen(lines []string, hl *models.LookupResult) []string {
	if hl == nil || !hl.Found() {
		return lines
	}
	byRow := make(map[int][]models.Span)
	for _, sp := range hl.Spans {
		byRow[sp.Row] = append(byRow[sp.Row], sp)
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		if spans, ok := byRow[i]; ok {
			out[i] = renderLine(line, spans)
		} else {
			out[i] = line
		}
	}
	return out
}

// renderLine highlights rune ranges of line. Spans past the end are clipped.
func renderLine(line string, spans []models.Span) string {
	runes := []rune(line)
	sorted := append([]models.Span(nil), spans...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var out []rune
	pos := 0
	for _, sp := range sorted {
		start, end := clamp(sp.Start, pos, len(runes)), clamp(sp.End, 0, len(runes))
		if start >= end {
			continue
		}
		out = append(out, runes[pos:start]...)
		out = append(out, []rune(highlightStyle.Render(string(runes[start:end])))...)
		pos = end
	}
	out = append(out, runes[pos:]...)
	return string(out)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
