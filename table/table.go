// Package table reads per-court case-count CSV files and exposes the numeric
// column sums the goal formulas are built on.
package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Well-known columns present in every court file.
const (
	ColCourtCode = "sigla_tribunal"
	ColBranch    = "ramo_justica"
)

var (
	// ErrEmpty is returned for files without a header or without data rows.
	ErrEmpty = errors.New("table has no data rows")
	// ErrMissingColumn is returned when a requested column is not in the header.
	ErrMissingColumn = errors.New("missing column")
	// ErrNonNumeric is returned when a column holds a value that is neither
	// numeric nor a missing-value marker.
	ErrNonNumeric = errors.New("non-numeric value")
)

// Table holds one court's raw dataset. Cells keep their original text; numeric
// interpretation happens in Sum.
type Table struct {
	Source  string
	Header  []string
	Records [][]string
	Delim   rune

	index map[string]int
}

// New builds a table from a header and records, indexing the header. The first
// occurrence of a duplicated column name wins.
func New(source string, header []string, records [][]string) *Table {
	t := &Table{Source: source, Header: header, Records: records, Delim: ',', index: make(map[string]int, len(header))}
	for i, h := range header {
		if _, dup := t.index[h]; !dup {
			t.index[h] = i
		}
	}
	return t
}

// Load reads the CSV file at path. A zero delim detects ';' or ',' from the
// header line.
func Load(path string, delim rune) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data, path, delim)
}

// Read is Load for an arbitrary reader.
func Read(r io.Reader, source string, delim rune) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	return Parse(data, source, delim)
}

// Parse decodes CSV bytes into a Table.
func Parse(data []byte, source string, delim rune) (*Table, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if delim == 0 {
		delim = DetectDelimiter(data)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.TrimLeadingSpace = true
	r.ReuseRecord = false

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", source, ErrEmpty)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: header: %w", source, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: %w", source, ErrEmpty)
	}

	t := New(source, header, records)
	t.Delim = delim
	return t, nil
}

// DetectDelimiter picks ';' or ',' by counting occurrences in the first line.
// Ties (including no separator at all) resolve to ','.
func DetectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Records) }

// Has reports whether the header contains col.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Cell returns the value of col in record i, or "" when either is out of range.
func (t *Table) Cell(i int, col string) string {
	j, ok := t.index[col]
	if !ok || i < 0 || i >= len(t.Records) || j >= len(t.Records[i]) {
		return ""
	}
	return strings.TrimSpace(t.Records[i][j])
}

// First returns the first non-missing value of col, scanning rows in order.
func (t *Table) First(col string) string {
	for i := range t.Records {
		if v := t.Cell(i, col); !isMissing(v) {
			return v
		}
	}
	return ""
}

// Sum adds up the numeric cells of col. Missing cells contribute nothing; n is
// the number of non-missing cells, so n == 0 means the column is entirely
// missing.
func (t *Table) Sum(col string) (sum float64, n int, err error) {
	if !t.Has(col) {
		return 0, 0, fmt.Errorf("%s: %w", col, ErrMissingColumn)
	}
	for i := range t.Records {
		v, ok, err := parseNumber(t.Cell(i, col))
		if err != nil {
			return 0, 0, fmt.Errorf("%s row %d: %w", col, i+1, err)
		}
		if !ok {
			continue
		}
		sum += v
		n++
	}
	return sum, n, nil
}

// Write encodes the table as CSV with the given delimiter.
func (t *Table) Write(w io.Writer, delim rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = delim
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Records); err != nil {
		return err
	}
	return cw.Error()
}

var missingTokens = map[string]bool{
	"": true, "na": true, "nan": true, "null": true, "none": true, "- -": true, "--": true,
}

func isMissing(s string) bool {
	return missingTokens[strings.ToLower(strings.TrimSpace(s))]
}

// parseNumber interprets a cell. ok is false for missing-value markers. A
// decimal comma is accepted when the value has no dot.
func parseNumber(s string) (v float64, ok bool, err error) {
	s = strings.TrimSpace(s)
	if isMissing(s) {
		return 0, false, nil
	}
	v, perr := strconv.ParseFloat(s, 64)
	if perr != nil && strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		v, perr = strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	}
	if perr != nil {
		return 0, false, fmt.Errorf("%q: %w", s, ErrNonNumeric)
	}
	if math.IsNaN(v) {
		return 0, false, nil
	}
	if math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("%q: %w", s, ErrNonNumeric)
	}
	return v, true, nil
}
