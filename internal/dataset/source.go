package dataset

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/shapeset/internal/fetcher"
)

// Source downloads whole archives into memory.
type Source struct {
	fetcher  fetcher.Fetcher
	maxBytes int64
	log      *zap.Logger
}

// NewSource returns a Source reading through f. maxBytes bounds the archive
// size; zero means unlimited.
func NewSource(f fetcher.Fetcher, maxBytes int64) *Source {
	return &Source{
		fetcher:  f,
		maxBytes: maxBytes,
		log:      zap.L().With(zap.String("component", "dataset.source")),
	}
}

// Fetch downloads the archive at url.
func (s *Source) Fetch(ctx context.Context, url string) ([]byte, error) {
	body, err := s.fetcher.Download(ctx, url)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: fetch %s", url)
	}
	defer body.Close() //nolint:errcheck

	var r io.Reader = body
	if s.maxBytes > 0 {
		r = io.LimitReader(body, s.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", url)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, eris.Errorf("dataset: archive %s exceeds %d bytes", url, s.maxBytes)
	}

	s.log.Debug("dataset: fetched archive", zap.String("url", url), zap.Int("bytes", len(data)))
	return data, nil
}
