package source

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadXLSX reads the first sheet of an XLSX workbook. The first row is a
// header.
func ReadXLSX(path string) ([]Row, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}

	sheet := f.Sheets[0]
	var values [][]string
	for i, row := range sheet.Rows {
		if i == 0 || row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		values = append(values, cells)
	}
	return RowsFromValues(values), nil
}
