// Package sweep implements the Sweeper: walks the live mirror
// for a repository, computes the candidate set (on-disk regular files minus
// the Reference Set), deletes candidates, and prunes directories left empty.
// In test mode it computes and logs totals but performs no deletions.
package sweep

import (
	"io/fs"
	"strings"

	"github.com/canonical/aptmirror/internal/logging"
	"github.com/canonical/aptmirror/internal/refset"
	"github.com/canonical/aptmirror/internal/vfs"
)

// Result reports what a sweep found and (unless TestMode) removed.
type Result struct {
	Walked     int
	Candidates []string
	Deleted    int
}

// Sweeper walks and reclaims a repository's mirror subtree.
type Sweeper struct {
	FS       vfs.FileSystem
	Logger   logging.Logger
	TestMode bool
}

// New builds a Sweeper. A nil logger discards output.
func New(fs vfs.FileSystem, logger logging.Logger, testMode bool) *Sweeper {
	if logger == nil {
		logger = logging.Discard
	}
	return &Sweeper{FS: fs, Logger: logger, TestMode: testMode}
}

// Sweep walks repoRoot (mirror/{sanitise(uri)}) without following symlinks.
// A symlink is always treated as required and never enters the candidate
// set, regardless of Reference Set membership. The remaining regular files
// are checked against refs (paths relative to repoRoot) to build the
// candidate set, which is then deleted unless TestMode is set.
func (s *Sweeper) Sweep(repoRoot string, refs *refset.Set) (Result, error) {
	var res Result
	var dirs []string

	err := s.FS.WalkDir(repoRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != repoRoot {
				dirs = append(dirs, p)
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		res.Walked++
		rel := strings.TrimPrefix(strings.TrimPrefix(p, repoRoot), "/")
		if !refs.Contains(rel) {
			res.Candidates = append(res.Candidates, p)
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	if s.TestMode {
		s.Logger.Info("sweep: test mode, no deletions", "walked", res.Walked, "candidates", len(res.Candidates))
		return res, nil
	}

	for _, p := range res.Candidates {
		if err := s.FS.Remove(p); err != nil {
			s.Logger.Warn("sweep: failed to remove candidate", "path", p, "err", err)
			continue
		}
		res.Deleted++
	}

	s.pruneEmptyDirs(dirs)

	s.Logger.Info("sweep: complete", "walked", res.Walked, "deleted", res.Deleted)
	return res, nil
}

// pruneEmptyDirs removes directories left empty after deletion, deepest
// first so a chain of now-empty parents is fully collapsed.
func (s *Sweeper) pruneEmptyDirs(dirs []string) {
	ordered := make([]string, len(dirs))
	copy(ordered, dirs)
	for i := len(ordered) - 1; i >= 0; i-- {
		dir := ordered[i]
		entries, err := s.FS.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		s.FS.Remove(dir)
	}
}
