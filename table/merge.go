package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// Merger concatenates CSV tables into one output. The header of the first
// table that has one is written once; every later header is skipped and data
// rows are copied unchanged. Column sets are not reconciled.
type Merger struct {
	w       *csv.Writer
	inDelim rune
	header  bool
	rows    int
}

// NewMerger writes the merged table to w using outDelim. Sources are read with
// inDelim.
func NewMerger(w io.Writer, inDelim, outDelim rune) *Merger {
	cw := csv.NewWriter(w)
	cw.Comma = outDelim
	return &Merger{w: cw, inDelim: inDelim}
}

// Append copies one source table and returns the number of data rows copied.
func (m *Merger) Append(r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.Comma = m.inDelim
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("merge header: %w", err)
	}
	if !m.header {
		if err := m.w.Write(header); err != nil {
			return 0, err
		}
		m.header = true
	}

	n := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("merge row %d: %w", n+1, err)
		}
		if err := m.w.Write(rec); err != nil {
			return n, err
		}
		n++
	}
	m.rows += n
	return n, nil
}

// Rows returns the number of data rows written so far.
func (m *Merger) Rows() int { return m.rows }

// Flush writes any buffered output.
func (m *Merger) Flush() error {
	m.w.Flush()
	return m.w.Error()
}
