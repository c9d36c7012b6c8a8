package sentiment

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadTableStripsBOMAndPadsRows(t *testing.T) {
	data := []byte("\ufefftext, src\n\"hello, world\",web\nshort\n")
	tbl, err := ReadTableBytes(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"text", "src"}, tbl.Columns)
	assert.Equal(t, 0, tbl.TextColumn())
	assert.Equal(t, 1, tbl.SourceColumn())
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"hello, world", "web"}, tbl.Records[0])
	assert.Equal(t, []string{"short", ""}, tbl.Records[1])
}

func TestReadTableRejectsBadInput(t *testing.T) {
	_, err := ReadTableBytes(nil)
	assert.True(t, IsValidation(err))

	_, err = ReadTableBytes([]byte("text\na,b,c\n"))
	assert.True(t, IsValidation(err))

	_, err = ReadTableBytes([]byte("text\n\"unterminated\n"))
	assert.True(t, IsValidation(err))
}

func TestTableRoundTripThroughFile(t *testing.T) {
	tbl := &Table{
		Columns: []string{"text", "label"},
		Records: [][]string{{"line one", "2"}, {"with \"quotes\"", "0"}},
	}
	path := filepath.Join(t.TempDir(), "out", "pred.csv")
	require.NoError(t, tbl.WriteFile(path))

	back, err := ReadTableFile(path)
	require.NoError(t, err)
	assert.Equal(t, tbl, back)
}

func TestSetColumn(t *testing.T) {
	tbl := &Table{Columns: []string{"text"}, Records: [][]string{{"a"}, {"b"}}}
	require.NoError(t, tbl.SetColumn("label", []string{"1", "2"}))
	require.NoError(t, tbl.SetColumn("label", []string{"0", "0"}))
	assert.Equal(t, []string{"text", "label"}, tbl.Columns)
	assert.Equal(t, []string{"0", "0"}, tbl.Column(1))

	require.NoError(t, tbl.SetColumn("Label", []string{"2", "2"}))
	assert.Equal(t, []string{"text", "label", "Label"}, tbl.Columns)
	assert.Equal(t, []string{"0", "0"}, tbl.Column(1))

	assert.Error(t, tbl.SetColumn("x", []string{"only one"}))
}

func TestColumnDetectionIsExact(t *testing.T) {
	tbl, err := ReadTableBytes([]byte("TEXT,Label\nfine,1\n"))
	require.NoError(t, err)
	assert.Equal(t, -1, tbl.TextColumn())
	assert.Equal(t, -1, tbl.LabelColumn())

	tbl, err = ReadTableBytes([]byte(" text ,src\nfine,web\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.TextColumn())
}

func TestSetColumnCandidatesOverridesHeaders(t *testing.T) {
	SetColumnCandidates(ColumnCandidates{Text: []string{"review", "text"}})
	t.Cleanup(func() { SetColumnCandidates(ColumnCandidates{}) })

	tbl, err := ReadTableBytes([]byte("id,review,src\n1,great,web\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.TextColumn())
	assert.Equal(t, 2, tbl.SourceColumn())
	assert.Equal(t, -1, tbl.LabelColumn())

	SetColumnCandidates(ColumnCandidates{})
	assert.Equal(t, -1, tbl.TextColumn())
}

func TestTableLabels(t *testing.T) {
	tbl, err := ReadTableBytes([]byte("label\n2\nNegative\n1.0\n"))
	require.NoError(t, err)
	labels, err := tbl.Labels(0)
	require.NoError(t, err)
	assert.Equal(t, []Label{Positive, Negative, Neutral}, labels)

	tbl.Records[1][0] = "meh"
	_, err = tbl.Labels(0)
	require.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "row 2")
}

func TestBytesWritesHeader(t *testing.T) {
	tbl := &Table{Columns: []string{"text"}}
	b, err := tbl.Bytes()
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte("text\n"), b))
}

func TestHasCSVExtension(t *testing.T) {
	assert.True(t, HasCSVExtension("reviews.csv"))
	assert.True(t, HasCSVExtension("REVIEWS.CSV"))
	assert.False(t, HasCSVExtension("reviews.xlsx"))
	assert.False(t, HasCSVExtension("csv"))
}
