// Package table reads the row indexed CSV tables scored by the test runner
// and writes them back with a similarity column.
package table

import (
	"encoding/csv"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// SimColumn is the name of the appended score column.
const SimColumn = "sim"

// Table is a CSV table whose first column is the row index.
type Table struct {
	Header []string
	Rows   [][]string
}

// Read loads the table at path.
func Read(fs afero.Fs, path string) (*Table, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if len(records) == 0 {
		return nil, errors.Errorf("%s has no header", path)
	}
	return &Table{Header: records[0], Rows: records[1:]}, nil
}

// Len is the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// AppendSim sets the sim column from the first Len() scores, in row order.
// Scores past the last row are dropped. An existing sim column is replaced.
func (t *Table) AppendSim(scores []float64) error {
	if len(scores) < len(t.Rows) {
		return errors.Errorf("%d scores for %d rows", len(scores), len(t.Rows))
	}

	col := -1
	for i, name := range t.Header {
		if name == SimColumn {
			col = i
		}
	}
	if col < 0 {
		col = len(t.Header)
		t.Header = append(t.Header, SimColumn)
	}

	for i, row := range t.Rows {
		for len(row) <= col {
			row = append(row, "")
		}
		row[col] = strconv.FormatFloat(scores[i], 'g', -1, 32)
		t.Rows[i] = row
	}
	return nil
}

// Write stores the table at path, replacing any existing file.
func (t *Table) Write(fs afero.Fs, path string) error {
	f, err := fs.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}

	w := csv.NewWriter(f)
	if err := w.Write(t.Header); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	return errors.Wrapf(f.Close(), "closing %s", path)
}
