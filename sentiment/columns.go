package sentiment

import (
	"strings"
	"sync"
)

// Output column names written by PredictTable.
const (
	ColumnLabel      = "label"
	ColumnConfidence = "confidence"
)

// ColumnCandidates defines accepted header names for the well-known review columns.
type ColumnCandidates struct {
	Text   []string `json:"text"`
	Source []string `json:"source"`
	Label  []string `json:"label"`
}

var (
	columnCandidatesMu  sync.RWMutex
	activeColumnOptions = defaultColumnCandidates()
)

func defaultColumnCandidates() ColumnCandidates {
	return ColumnCandidates{
		Text:   []string{"text"},
		Source: []string{"src", "source"},
		Label:  []string{ColumnLabel},
	}
}

// SetColumnCandidates replaces the header names used to detect the text,
// source and label columns. Nil fields keep the built-in names.
func SetColumnCandidates(candidates ColumnCandidates) {
	columnCandidatesMu.Lock()
	defer columnCandidatesMu.Unlock()
	activeColumnOptions = candidates.withDefaults()
}

func getColumnCandidates() ColumnCandidates {
	columnCandidatesMu.RLock()
	defer columnCandidatesMu.RUnlock()
	return activeColumnOptions.clone()
}

func (c ColumnCandidates) withDefaults() ColumnCandidates {
	defaults := defaultColumnCandidates()
	return ColumnCandidates{
		Text:   pickStrings(c.Text, defaults.Text),
		Source: pickStrings(c.Source, defaults.Source),
		Label:  pickStrings(c.Label, defaults.Label),
	}
}

func (c ColumnCandidates) clone() ColumnCandidates {
	return ColumnCandidates{
		Text:   cloneStrings(c.Text),
		Source: cloneStrings(c.Source),
		Label:  cloneStrings(c.Label),
	}
}

func pickStrings(custom, fallback []string) []string {
	if custom == nil {
		return cloneStrings(fallback)
	}
	return cloneStrings(custom)
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

// findColumn returns the first header equal to a candidate, in candidate order.
// Matching is exact apart from surrounding whitespace: "Text" is not "text".
func findColumn(header []string, candidates []string) int {
	for _, cand := range candidates {
		for i, col := range header {
			if strings.TrimSpace(col) == cand {
				return i
			}
		}
	}
	return -1
}
