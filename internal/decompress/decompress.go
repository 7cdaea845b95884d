// Package decompress implements the Decompressor: given a bare
// index filename, probe for .xz/.gz/.bz2 counterparts in that preference
// order and stream-expand the first hit. Driven with bounded parallelism
// across a batch of files via a worker pool (internal/vfs.FileSystem
// injected for testability, errgroup for the fan-out).
package decompress

import (
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
	"golang.org/x/sync/errgroup"

	"github.com/canonical/aptmirror/internal/logging"
	"github.com/canonical/aptmirror/internal/vfs"
)

// suffixes is checked in preference order.
var suffixes = []string{".xz", ".gz", ".bz2"}

// Expander decompresses one bare filename into its expanded counterpart.
type Expander struct {
	FS     vfs.FileSystem
	Logger logging.Logger
}

// New builds an Expander. A nil logger discards log output.
func New(fs vfs.FileSystem, logger logging.Logger) *Expander {
	if logger == nil {
		logger = logging.Discard
	}
	return &Expander{FS: fs, Logger: logger}
}

// One expands a single bare path (relative to root). It probes root+bare+suffix
// for each suffix in preference order and streams the first hit into
// root+bare. Finding none of the three is logged as a warning, not an error:
// some indices are legitimately served uncompressed, in which case bare
// already exists and nothing need be done.
func (e *Expander) One(root, bare string) error {
	for _, suf := range suffixes {
		compressed := bare + suf
		r, err := e.FS.Open(joinRoot(root, compressed))
		if err != nil {
			continue
		}
		defer r.Close()

		dec, err := newDecoder(suf, r)
		if err != nil {
			return fmt.Errorf("decompress %s: %w", compressed, err)
		}

		w, err := e.FS.Create(joinRoot(root, bare))
		if err != nil {
			return fmt.Errorf("decompress %s: create %s: %w", compressed, bare, err)
		}
		if _, err := io.Copy(w, dec); err != nil {
			w.Close()
			return fmt.Errorf("decompress %s: %w", compressed, err)
		}
		return w.Close()
	}

	if _, err := e.FS.Stat(joinRoot(root, bare)); err != nil {
		e.Logger.Warn("decompress: no compressed or uncompressed variant found", "file", bare)
	}
	return nil
}

// Batch expands every bare path in bares, bounded to parallelism concurrent
// workers (<= 0 means unbounded). A single failure cancels the remaining work
// and is returned once every in-flight worker has stopped.
func (e *Expander) Batch(ctx context.Context, root string, bares []string, parallelism int) error {
	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}

	for _, bare := range bares {
		bare := bare
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			return e.One(root, bare)
		})
	}
	return g.Wait()
}

func newDecoder(suffix string, r io.Reader) (io.Reader, error) {
	switch suffix {
	case ".xz":
		return xz.NewReader(r)
	case ".gz":
		return gzip.NewReader(r)
	case ".bz2":
		return bzip2.NewReader(r), nil
	default:
		return nil, fmt.Errorf("unknown suffix %q", suffix)
	}
}

func joinRoot(root, p string) string {
	if root == "" {
		return p
	}
	return root + "/" + p
}
