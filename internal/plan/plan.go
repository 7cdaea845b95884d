// Package plan implements the Plan Builder: drives the
// Packages/Sources parser over modified (and unmodified) index files and
// emits the Package Records that need transfer, recording every filename
// seen into the Reference Set regardless of whether it needs a fetch.
package plan

import (
	"path"
	"strconv"
	"strings"

	"github.com/canonical/aptmirror/internal/control"
	"github.com/canonical/aptmirror/internal/logging"
	"github.com/canonical/aptmirror/internal/refset"
	"github.com/canonical/aptmirror/internal/vfs"
)

// Package is the Package Record: one transferable artifact, its declared
// size, and whether the mirror already holds the current version.
type Package struct {
	Filename string
	Size     int64
	Latest   bool
}

// needsUpdate reports whether a file needs re-fetching: true if it is
// absent, if its on-disk size differs from declaredSize, or if force is set.
func needsUpdate(fs vfs.FileSystem, mirrorPath string, declaredSize int64, force bool) bool {
	if force {
		return true
	}
	info, err := fs.Stat(mirrorPath)
	if err != nil {
		return true
	}
	return info.Size() != declaredSize
}

// Build runs the Packages/Sources parser over paragraphs, appending every
// emitted filename to refs and returning the Package Records. repoPath is the
// sanitised repository root beneath the mirror; force mirrors forceUpdate.
// logger may be nil. A paragraph with a non-numeric Size is skipped with a
// warning rather than aborting the whole batch.
func Build(fs vfs.FileSystem, paragraphs []control.Paragraph, mirrorRoot, repoPath string, force bool, refs *refset.Set, logger logging.Logger) []Package {
	if logger == nil {
		logger = logging.Discard
	}
	var out []Package

	for _, p := range paragraphs {
		if fn, ok := p["Filename"]; ok {
			fn = strings.TrimPrefix(fn, "./")
			full := path.Join(repoPath, fn)
			size, err := strconv.ParseInt(p["Size"], 10, 64)
			if err != nil {
				logger.Warn("plan: malformed Size, skipping paragraph", "filename", fn, "size", p["Size"])
				continue
			}
			latest := !needsUpdate(fs, path.Join(mirrorRoot, full), size, force)
			refs.Add(full)
			out = append(out, Package{Filename: full, Size: size, Latest: latest})
			continue
		}

		if files, ok := p["Files"]; ok {
			dir := p["Directory"]
			for _, line := range strings.Split(strings.TrimPrefix(files, "\n"), "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				fields := strings.Fields(line)
				if len(fields) != 3 {
					continue
				}
				size, err := strconv.ParseInt(fields[1], 10, 64)
				if err != nil {
					continue
				}
				fn := strings.TrimPrefix(fields[2], "./")
				full := path.Join(dir, fn)
				latest := !needsUpdate(fs, path.Join(mirrorRoot, full), size, force)
				refs.Add(full)
				out = append(out, Package{Filename: full, Size: size, Latest: latest})
			}
		}
	}

	return out
}

// Pending filters ps to only the entries that still need a fetch.
func Pending(ps []Package) []Package {
	var out []Package
	for _, p := range ps {
		if !p.Latest {
			out = append(out, p)
		}
	}
	return out
}

// ReferenceOnly runs the parser purely to populate refs, without returning
// any packages — the "unmodified indices feed only the Reference Set" pass.
func ReferenceOnly(paragraphs []control.Paragraph, repoPath string, refs *refset.Set) {
	for _, p := range paragraphs {
		if fn, ok := p["Filename"]; ok {
			fn = strings.TrimPrefix(fn, "./")
			refs.Add(path.Join(repoPath, fn))
			continue
		}
		if files, ok := p["Files"]; ok {
			dir := p["Directory"]
			for _, line := range strings.Split(strings.TrimPrefix(files, "\n"), "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				fields := strings.Fields(line)
				if len(fields) != 3 {
					continue
				}
				fn := strings.TrimPrefix(fields[2], "./")
				refs.Add(path.Join(dir, fn))
			}
		}
	}
}
