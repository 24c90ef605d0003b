// Package sources implements the raw record readers for every ingested
// stream: infection line-listings, ICU occupancy, vaccination counters,
// hospitalization sums, population demographics, holiday intervals, and
// district/state master data. None of this touches the engine
// (internal/series, internal/views, internal/counters, internal/diffbuilder)
// directly; the engine has no notion of what any counter means, and these
// readers are the producers that feed it.
package sources

import (
	"compress/gzip"
	"io"
	"os"
	"strings"

	"github.com/dheyman/epiflux/internal/epierr"
)

// MagicOpen opens path, gzip-decoding transparently if its extension is
// ".gz".
func MagicOpen(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, epierr.Wrap(epierr.IO, "open "+path, err)
	}
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, epierr.Wrap(epierr.Decode, "gzip header "+path, err)
		}
		return gzipReadCloser{gz: gz, f: f}, nil
	}
	return f, nil
}

type gzipReadCloser struct {
	gz *gzip.Reader
	f  *os.File
}

func (g gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }
func (g gzipReadCloser) Close() error {
	if err := g.gz.Close(); err != nil {
		g.f.Close()
		return err
	}
	return g.f.Close()
}
