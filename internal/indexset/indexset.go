// Package indexset implements the Index Collection: a per-repository
// registry of expected index files with before/after
// timestamps, represented as two variants of one sum type — Binary (keyed
// by component x architecture) and Source (keyed by component only) — that
// share one capability set rather than an inheritance hierarchy.
package indexset

import (
	"path"
	"strings"
	"time"

	"github.com/canonical/aptmirror/internal/vfs"
)

// Kind distinguishes the two Index Collection variants.
type Kind int

const (
	KindBinary Kind = iota
	KindSource
)

// FlatComponent is the synthetic component key used for flat-layout
// repositories.
const FlatComponent = "Flat"

// Key identifies one (component, architecture) bucket. Arch is empty for
// Source collections and for the synthetic Flat component.
type Key struct {
	Component string
	Arch      string
}

// TimestampPair is the File Timestamp Pair: the on-disk mtime before the
// current run's fetch against the mtime after it.
type TimestampPair struct {
	Current  time.Time
	Download time.Time
}

func (p TimestampPair) modified() bool {
	return !p.Current.Equal(p.Download)
}

// Collection is the Index Collection: a registry of sanitised-path ->
// Timestamp Pair, partitioned by Key.
type Collection struct {
	kind    Kind
	force   bool
	entries map[Key]map[string]*TimestampPair
}

// New creates an empty Collection. force mirrors the forceUpdate config
// option and the interrupted-previous-run flag: when set, ModifiedFiles
// and UnmodifiedFiles both degrade to "every registered file".
func New(kind Kind, force bool) *Collection {
	return &Collection{kind: kind, force: force, entries: map[Key]map[string]*TimestampPair{}}
}

func (c *Collection) Kind() Kind { return c.kind }

// Add registers a sanitised path under key. Re-adding an existing path is a
// no-op (de-duplication happens here, after selection emission).
func (c *Collection) Add(key Key, sanitisedPath string) {
	bucket, ok := c.entries[key]
	if !ok {
		bucket = map[string]*TimestampPair{}
		c.entries[key] = bucket
	}
	if _, exists := bucket[sanitisedPath]; !exists {
		bucket[sanitisedPath] = &TimestampPair{}
	}
}

// All returns every registered path across every key.
func (c *Collection) All() []string {
	var out []string
	for _, bucket := range c.entries {
		for p := range bucket {
			out = append(out, p)
		}
	}
	return out
}

// DetermineCurrentTimestamps records the pre-fetch mtime of every
// registered file that exists under stagingRoot. Must be called
// immediately after Release parsing, before any index file is re-fetched.
func (c *Collection) DetermineCurrentTimestamps(fs vfs.FileSystem, stagingRoot string) {
	for _, bucket := range c.entries {
		for p, pair := range bucket {
			full := path.Join(stagingRoot, p)
			if info, err := fs.Stat(full); err == nil {
				pair.Current = info.ModTime()
			}
		}
	}
}

// DetermineDownloadTimestamps records the post-fetch mtime of every
// registered file. A file that no longer exists is interpreted as "the
// upstream no longer serves this file" and is removed from the collection
// entirely.
func (c *Collection) DetermineDownloadTimestamps(fs vfs.FileSystem, stagingRoot string) {
	for key, bucket := range c.entries {
		for p, pair := range bucket {
			full := path.Join(stagingRoot, p)
			info, err := fs.Stat(full)
			if err != nil {
				delete(bucket, p)
				continue
			}
			pair.Download = info.ModTime()
		}
		if len(bucket) == 0 {
			delete(c.entries, key)
		}
	}
}

func stripExt(p string) string {
	switch {
	case strings.HasSuffix(p, ".gz"):
		return strings.TrimSuffix(p, ".gz")
	case strings.HasSuffix(p, ".xz"):
		return strings.TrimSuffix(p, ".xz")
	case strings.HasSuffix(p, ".bz2"):
		return strings.TrimSuffix(p, ".bz2")
	default:
		return p
	}
}

// ModifiedFiles returns every registered file whose current and download
// timestamps differ, with the file extension stripped so callers can
// locate the decompressed counterpart. Under force, every registered file
// is considered modified.
func (c *Collection) ModifiedFiles() []string {
	seen := map[string]bool{}
	var out []string
	for _, bucket := range c.entries {
		for p, pair := range bucket {
			if c.force || pair.modified() {
				stripped := stripExt(p)
				if !seen[stripped] {
					seen[stripped] = true
					out = append(out, stripped)
				}
			}
		}
	}
	return out
}

// UnmodifiedFiles returns every registered file whose current and download
// timestamps are equal (and non-zero, since a zero/zero pair only arises
// before DetermineDownloadTimestamps has run for that file; once it has run,
// a file with no download timestamp has already been deleted from the
// collection). Under force, every registered file is returned, as it is by
// ModifiedFiles.
func (c *Collection) UnmodifiedFiles() []string {
	seen := map[string]bool{}
	var out []string
	for _, bucket := range c.entries {
		for p, pair := range bucket {
			if c.force || !pair.modified() {
				stripped := stripExt(p)
				if !seen[stripped] {
					seen[stripped] = true
					out = append(out, stripped)
				}
			}
		}
	}
	return out
}

// Len reports how many (key, path) entries remain registered.
func (c *Collection) Len() int {
	n := 0
	for _, bucket := range c.entries {
		n += len(bucket)
	}
	return n
}
