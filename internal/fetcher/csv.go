package fetcher

import (
	"encoding/csv"
	"errors"
	"io"

	"github.com/rotisserie/eris"
)

// rowReader yields one listing row per call and io.EOF after the last.
type rowReader func() ([]string, error)

// delimitedRows reads a CSV or TSV listing. Lines starting with # are
// comments; rows may have differing field counts.
func delimitedRows(r io.Reader, delim rune) rowReader {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.Comment = '#'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	return func() ([]string, error) {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: read delimited row")
		}
		return rec, nil
	}
}
