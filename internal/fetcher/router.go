package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"

	"github.com/rotisserie/eris"
)

// ErrLocalFilesDisabled is returned for file URLs and bare paths when the
// router was built without WithLocalFiles.
var ErrLocalFilesDisabled = eris.New("fetcher: local file sources are disabled")

// Router dispatches on the URL scheme: http and https, ftp, and file or bare
// paths for local listings.
type Router struct {
	http  Fetcher
	ftp   Fetcher
	local bool
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithLocalFiles lets the router read file URLs and bare paths from the local
// filesystem.
func WithLocalFiles() RouterOption {
	return func(r *Router) { r.local = true }
}

// NewRouter creates a Router. A nil fetcher disables its scheme. Local files
// are refused unless WithLocalFiles is given.
func NewRouter(httpF, ftpF Fetcher, opts ...RouterOption) *Router {
	r := &Router{http: httpF, ftp: ftpF}
	for _, o := range opts {
		o(r)
	}
	return r
}

// IsLocal reports whether rawURL names a local file rather than a remote
// resource.
func IsLocal(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "file" || u.Scheme == ""
}

func (r *Router) route(rawURL string) (Fetcher, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", eris.Wrap(err, "fetcher: parse url")
	}
	var f Fetcher
	switch u.Scheme {
	case "http", "https":
		f = r.http
	case "ftp":
		f = r.ftp
	case "file", "":
		if !r.local {
			return nil, "", eris.Wrapf(ErrLocalFilesDisabled, "fetcher: open %q", rawURL)
		}
		if u.Scheme == "file" {
			return nil, u.Path, nil
		}
		return nil, rawURL, nil
	default:
		return nil, "", eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
	if f == nil {
		return nil, "", eris.Errorf("fetcher: no fetcher for scheme %q", u.Scheme)
	}
	return f, "", nil
}

// Download opens the resource behind rawURL.
func (r *Router) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	f, local, err := r.route(rawURL)
	if err != nil {
		return nil, err
	}
	if f == nil {
		file, err := os.Open(local)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: open local file")
		}
		return file, nil
	}
	return f.Download(ctx, rawURL)
}

// DownloadToFile copies the resource behind rawURL into path.
func (r *Router) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	f, local, err := r.route(rawURL)
	if err != nil {
		return 0, err
	}
	if f == nil {
		src, err := os.Open(local)
		if err != nil {
			return 0, eris.Wrap(err, "fetcher: open local file")
		}
		defer src.Close() //nolint:errcheck
		return writeFile(path, src)
	}
	return f.DownloadToFile(ctx, rawURL, path)
}
