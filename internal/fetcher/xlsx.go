package fetcher

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// xlsxRows reads the first sheet of the workbook at path.
func xlsxRows(path string) (rowReader, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: open workbook")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("fetcher: workbook has no sheets")
	}

	rows := f.Sheets[0].Rows
	next := 0
	return func() ([]string, error) {
		for next < len(rows) {
			row := rows[next]
			next++
			if row == nil {
				continue
			}
			cells := make([]string, len(row.Cells))
			for i, c := range row.Cells {
				cells[i] = c.String()
			}
			return cells, nil
		}
		return nil, io.EOF
	}, nil
}
