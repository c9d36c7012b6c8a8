package sentiment

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Table is an order-preserving CSV document. Every record has len(Columns) cells.
type Table struct {
	Columns []string
	Records [][]string
}

// ReadTable parses a CSV with a header row. Short records are padded so every
// row lines up with the header.
func ReadTable(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, Validationf("malformed CSV: %v", err)
	}
	if len(rows) == 0 {
		return nil, Validationf("empty CSV file")
	}
	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = cleanCell(cell)
	}
	records := make([][]string, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) > len(header) {
			return nil, Validationf("row %d has %d fields, header has %d", i+1, len(row), len(header))
		}
		rec := make([]string, len(header))
		copy(rec, row)
		records = append(records, rec)
	}
	return &Table{Columns: header, Records: records}, nil
}

// ReadTableBytes parses an in-memory CSV.
func ReadTableBytes(data []byte) (*Table, error) {
	return ReadTable(bytes.NewReader(data))
}

// ReadTableFile opens path and parses it as CSV.
func ReadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	t, err := ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return t, nil
}

// Write emits the table as CSV including the header.
func (t *Table) Write(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, rec := range t.Records {
		if err := writer.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Bytes renders the table as CSV.
func (t *Table) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes the table through a temp file and renames it into place.
func (t *Table) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(tmp), err)
	}
	if err := t.Write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", filepath.Base(tmp), err)
	}
	return os.Rename(tmp, path)
}

// Len is the number of data rows.
func (t *Table) Len() int {
	return len(t.Records)
}

// ColumnIndex returns the position of name (case-insensitive) or -1.
func (t *Table) ColumnIndex(name string) int {
	return findColumn(t.Columns, []string{name})
}

// TextColumn locates the review text column.
func (t *Table) TextColumn() int {
	return findColumn(t.Columns, getColumnCandidates().Text)
}

// SourceColumn locates the optional source column.
func (t *Table) SourceColumn() int {
	return findColumn(t.Columns, getColumnCandidates().Source)
}

// LabelColumn locates the label column.
func (t *Table) LabelColumn() int {
	return findColumn(t.Columns, getColumnCandidates().Label)
}

// Column returns a copy of the values in column idx.
func (t *Table) Column(idx int) []string {
	out := make([]string, len(t.Records))
	if idx < 0 || idx >= len(t.Columns) {
		return out
	}
	for i, rec := range t.Records {
		out[i] = rec[idx]
	}
	return out
}

// SetColumn overwrites an existing column or appends a new one.
func (t *Table) SetColumn(name string, values []string) error {
	if len(values) != len(t.Records) {
		return fmt.Errorf("column %q has %d values for %d rows", name, len(values), len(t.Records))
	}
	idx := t.ColumnIndex(name)
	if idx < 0 {
		t.Columns = append(t.Columns, name)
		idx = len(t.Columns) - 1
		for i := range t.Records {
			t.Records[i] = append(t.Records[i], "")
		}
	}
	for i, v := range values {
		t.Records[i][idx] = v
	}
	return nil
}

// Labels parses column idx as taxonomy labels.
func (t *Table) Labels(idx int) ([]Label, error) {
	if idx < 0 || idx >= len(t.Columns) {
		return nil, errors.New("label column out of range")
	}
	out := make([]Label, len(t.Records))
	for i, rec := range t.Records {
		l, err := ParseLabel(rec[idx])
		if err != nil {
			return nil, Validationf("row %d: %v", i+1, err)
		}
		out[i] = l
	}
	return out, nil
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := &Table{
		Columns: cloneStrings(t.Columns),
		Records: make([][]string, len(t.Records)),
	}
	for i, rec := range t.Records {
		out.Records[i] = cloneStrings(rec)
	}
	return out
}

// HasCSVExtension reports whether name looks like a CSV upload.
func HasCSVExtension(name string) bool {
	return strings.EqualFold(filepath.Ext(strings.TrimSpace(name)), ".csv")
}
