package fetcher

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Format is the file format of an external listing.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// DetectFormat guesses the format from the URL's extension, defaulting to CSV.
func DetectFormat(rawURL string) Format {
	switch strings.ToLower(path.Ext(strings.SplitN(rawURL, "?", 2)[0])) {
	case ".tsv", ".tab":
		return FormatTSV
	case ".json":
		return FormatJSON
	case ".xlsx":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

// ListingOptions selects the values to read from a listing.
type ListingOptions struct {
	Format Format
	// Column names the header column (CSV, TSV, XLSX) or object field (JSON)
	// holding the handle or profile URL. Empty reads the first column of a
	// headerless file, or JSON string elements.
	Column string
}

// ReadListing downloads rawURL through f and returns the non-empty values of
// the selected column in file order.
func ReadListing(ctx context.Context, f Fetcher, rawURL string, opts ListingOptions) ([]string, error) {
	format := opts.Format
	if format == "" {
		format = DetectFormat(rawURL)
	}

	if format == FormatXLSX {
		return readXLSXListing(ctx, f, rawURL, opts.Column)
	}

	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	switch format {
	case FormatCSV:
		return columnValues(ctx, delimitedRows(body, ','), opts.Column)
	case FormatTSV:
		return columnValues(ctx, delimitedRows(body, '\t'), opts.Column)
	case FormatJSON:
		fields := jsonFallbackFields
		if opts.Column != "" {
			fields = []string{opts.Column}
		}
		return jsonValues(ctx, body, fields)
	default:
		return nil, eris.Errorf("fetcher: unsupported listing format %q", format)
	}
}

func readXLSXListing(ctx context.Context, f Fetcher, rawURL, column string) ([]string, error) {
	dir, err := os.MkdirTemp("", "listing-*")
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: temp dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	local := filepath.Join(dir, "listing.xlsx")
	if _, err := f.DownloadToFile(ctx, rawURL, local); err != nil {
		return nil, err
	}

	next, err := xlsxRows(local)
	if err != nil {
		return nil, err
	}
	return columnValues(ctx, next, column)
}

// columnValues reads the non-empty values of column. An empty column reads
// the first field of every row, with no header.
func columnValues(ctx context.Context, next rowReader, column string) ([]string, error) {
	idx := 0
	if column != "" {
		header, err := next()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if idx = indexOf(header, column); idx < 0 {
			return nil, eris.Errorf("fetcher: column %q not in header", column)
		}
	}

	var out []string
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "fetcher: read listing")
		}
		row, err := next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if idx < len(row) {
			if v := strings.TrimSpace(row[idx]); v != "" {
				out = append(out, v)
			}
		}
	}
}

func indexOf(header []string, column string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), column) {
			return i
		}
	}
	return -1
}
