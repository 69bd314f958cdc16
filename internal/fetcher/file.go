package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"

	"github.com/rotisserie/eris"
)

// FileFetcher opens local archives given as file:// URLs or plain paths.
type FileFetcher struct{}

// Download implements Fetcher.
func (FileFetcher) Download(_ context.Context, rawURL string) (io.ReadCloser, error) {
	path := rawURL
	if scheme(rawURL) == "file" {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: parse file url %q", rawURL)
		}
		path = u.Path
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	return f, nil
}
