// Package promote implements the Promoter: copies staged
// files to the live mirror, only when the staging copy is strictly newer (or
// the mirror copy is absent), creating parent directories as needed. Must run
// before the sweep so newly required files are never wrongly swept.
package promote

import (
	"fmt"
	"io"
	"path"

	"github.com/canonical/aptmirror/internal/logging"
	"github.com/canonical/aptmirror/internal/vfs"
)

// Promoter copies staged files into the live mirror for every path in a
// Reference Set.
type Promoter struct {
	FS     vfs.FileSystem
	Logger logging.Logger
}

// New builds a Promoter. A nil logger discards output.
func New(fs vfs.FileSystem, logger logging.Logger) *Promoter {
	if logger == nil {
		logger = logging.Discard
	}
	return &Promoter{FS: fs, Logger: logger}
}

// Promote copies every path in refPaths from stagingRoot to mirrorRoot,
// skipping paths absent from staging and paths whose mirror copy is already
// at least as new. Returns the count actually copied.
func (p *Promoter) Promote(stagingRoot, mirrorRoot string, refPaths []string) (int, error) {
	copied := 0
	for _, rel := range refPaths {
		stagingPath := path.Join(stagingRoot, rel)
		info, err := p.FS.Stat(stagingPath)
		if err != nil {
			continue
		}

		mirrorPath := path.Join(mirrorRoot, rel)
		if mirrorInfo, err := p.FS.Stat(mirrorPath); err == nil {
			if !info.ModTime().After(mirrorInfo.ModTime()) {
				continue
			}
		}

		if err := p.copyOne(stagingPath, mirrorPath); err != nil {
			return copied, fmt.Errorf("promote: %s: %w", rel, err)
		}
		copied++
	}
	p.Logger.Info("promote: complete", "copied", copied, "candidates", len(refPaths))
	return copied, nil
}

func (p *Promoter) copyOne(src, dst string) error {
	if err := p.FS.MkdirAll(path.Dir(dst), 0o755); err != nil {
		return err
	}
	r, err := p.FS.Open(src)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := p.FS.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
