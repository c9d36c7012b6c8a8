// Package dashboard holds the analyst's working copy of a prediction batch.
package dashboard

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"yashubustudio/reviewlens/sentiment"
)

// Row is one review as displayed. Pos is its position in the uploaded batch
// and stays stable under filtering.
type Row struct {
	Pos        int
	Text       string
	Source     string
	Label      sentiment.Label
	Confidence float64
}

// Filter narrows the displayed rows. An empty slice puts no restriction on that
// field, the way an empty multiselect shows every row.
type Filter struct {
	Sources []string
	Labels  []sentiment.Label
	Search  string
}

// Session is the mutable batch returned by /predict plus the analyst's edits.
type Session struct {
	mu sync.RWMutex

	table    *sentiment.Table
	textIdx  int
	srcIdx   int
	labelIdx int
	confIdx  int
	labels   []sentiment.Label
	edited   bool
}

// NewSession takes ownership of a copy of t, which must carry text and label columns.
func NewSession(t *sentiment.Table) (*Session, error) {
	if t == nil {
		return nil, sentiment.Validationf("no predictions loaded")
	}
	t = t.Clone()
	textIdx, labelIdx := t.TextColumn(), t.LabelColumn()
	if textIdx < 0 {
		return nil, sentiment.Validationf("predictions must contain a 'text' column")
	}
	if labelIdx < 0 {
		return nil, sentiment.Validationf("predictions must contain a 'label' column")
	}
	labels, err := t.Labels(labelIdx)
	if err != nil {
		return nil, err
	}
	return &Session{
		table:    t,
		textIdx:  textIdx,
		srcIdx:   t.SourceColumn(),
		labelIdx: labelIdx,
		confIdx:  t.ColumnIndex(sentiment.ColumnConfidence),
		labels:   labels,
	}, nil
}

// Len is the number of rows in the batch.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.labels)
}

// HasSource reports whether the batch carries a source column.
func (s *Session) HasSource() bool {
	return s.srcIdx >= 0
}

// Sources lists distinct source values in first-seen order.
func (s *Session) Sources() []string {
	if s.srcIdx < 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, rec := range s.table.Records {
		v := rec[s.srcIdx]
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// View returns the rows matching f in batch order. The stored batch is not modified.
func (s *Session) View(f Filter) []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sources map[string]struct{}
	if len(f.Sources) > 0 {
		sources = make(map[string]struct{}, len(f.Sources))
		for _, v := range f.Sources {
			sources[v] = struct{}{}
		}
	}
	var labels map[sentiment.Label]struct{}
	if len(f.Labels) > 0 {
		labels = make(map[sentiment.Label]struct{}, len(f.Labels))
		for _, l := range f.Labels {
			labels[l] = struct{}{}
		}
	}
	needle := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]Row, 0, len(s.labels))
	for pos := range s.labels {
		row := s.rowLocked(pos)
		if sources != nil && s.srcIdx >= 0 {
			if _, ok := sources[row.Source]; !ok {
				continue
			}
		}
		if labels != nil {
			if _, ok := labels[row.Label]; !ok {
				continue
			}
		}
		if needle != "" && !strings.Contains(strings.ToLower(row.Text), needle) {
			continue
		}
		out = append(out, row)
	}
	return out
}

// Row returns the row at pos.
func (s *Session) Row(pos int) (Row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pos < 0 || pos >= len(s.labels) {
		return Row{}, false
	}
	return s.rowLocked(pos), true
}

func (s *Session) rowLocked(pos int) Row {
	rec := s.table.Records[pos]
	row := Row{
		Pos:   pos,
		Text:  rec[s.textIdx],
		Label: s.labels[pos],
	}
	if s.srcIdx >= 0 {
		row.Source = rec[s.srcIdx]
	}
	if s.confIdx >= 0 {
		row.Confidence, _ = strconv.ParseFloat(strings.TrimSpace(rec[s.confIdx]), 64)
	}
	return row
}

// SetLabel relabels the row at original position pos.
func (s *Session) SetLabel(pos int, label sentiment.Label) error {
	return s.ApplyEdits(map[int]sentiment.Label{pos: label})
}

// ApplyEdits merges edits keyed by original position. Either every edit is
// applied or, when any position or label is invalid, none is.
func (s *Session) ApplyEdits(edits map[int]sentiment.Label) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pos, l := range edits {
		if pos < 0 || pos >= len(s.labels) {
			return sentiment.Validationf("row %d does not exist", pos)
		}
		if !l.Valid() {
			return sentiment.Validationf("row %d: label %d is outside the taxonomy", pos, int(l))
		}
	}
	for pos, l := range edits {
		if s.labels[pos] == l {
			continue
		}
		s.labels[pos] = l
		s.table.Records[pos][s.labelIdx] = strconv.Itoa(int(l))
		s.edited = true
	}
	return nil
}

// Edited reports whether any label differs from what the service returned.
func (s *Session) Edited() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edited
}

// Labels returns the current label of every row in batch order.
func (s *Session) Labels() []sentiment.Label {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]sentiment.Label, len(s.labels))
	copy(out, s.labels)
	return out
}

// Table returns a copy of the batch with the current labels.
func (s *Session) Table() *sentiment.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Clone()
}

// Histogram counts rows per label.
func Histogram(rows []Row) [sentiment.NumLabels]int {
	var counts [sentiment.NumLabels]int
	for _, r := range rows {
		if r.Label.Valid() {
			counts[r.Label]++
		}
	}
	return counts
}

// ExportCSV writes the full batch, edits included.
func (s *Session) ExportCSV(w io.Writer) error {
	if err := s.Table().Write(w); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	return nil
}

// PredictionsCSV renders the current batch for submission to /evaluate.
func (s *Session) PredictionsCSV() ([]byte, error) {
	return s.Table().Bytes()
}
