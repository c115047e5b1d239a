// Package fetcher downloads external listing files over http(s), ftp or the
// local filesystem and parses them as CSV, JSON or XLSX.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads one remote resource.
type Fetcher interface {
	// Download fetches the URL and returns the body. The caller closes it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL into path and returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
