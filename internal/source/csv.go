package source

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/rotisserie/eris"
)

// ReadCSV reads a CSV with a header row followed by parish rows.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "csv: parse")
	}
	if len(records) == 0 {
		return nil, nil
	}
	return RowsFromValues(records[1:]), nil
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadCSV(f)
}
