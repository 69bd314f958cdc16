// Package fetcher retrieves dataset archives over HTTP, FTP or from the
// local filesystem.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns its body. The caller closes it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Multi dispatches downloads by URL scheme. A nil member rejects its
// schemes.
type Multi struct {
	HTTP Fetcher
	FTP  Fetcher
	File Fetcher
}

// NewMulti returns a Multi backed by the default fetcher for each scheme.
func NewMulti(httpOpts HTTPOptions, ftpOpts FTPOptions) *Multi {
	return &Multi{
		HTTP: NewHTTPFetcher(httpOpts),
		FTP:  NewFTPFetcher(ftpOpts),
		File: FileFetcher{},
	}
}

// Download implements Fetcher.
func (m *Multi) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	f, err := m.route(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, rawURL)
}

func (m *Multi) route(rawURL string) (Fetcher, error) {
	var f Fetcher
	switch scheme(rawURL) {
	case "http", "https":
		f = m.HTTP
	case "ftp":
		f = m.FTP
	case "file", "":
		f = m.File
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme in %q", rawURL)
	}
	if f == nil {
		return nil, eris.Errorf("fetcher: no fetcher configured for %q", rawURL)
	}
	return f, nil
}

// scheme returns the lower-cased URL scheme, or "" for plain paths.
func scheme(rawURL string) string {
	if !strings.Contains(rawURL, "://") {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "invalid"
	}
	return strings.ToLower(u.Scheme)
}
