// Package vfs abstracts the filesystem operations the mirror engine needs:
// the wider set of operations the seven-stage pipeline performs (walking,
// truncating, directory removal) rather than just download-and-link.
package vfs

import (
	"io"
	"io/fs"
	"os"
	"time"
)

// FileSystem abstracts all filesystem operations needed for mirroring.
// This allows for testing and alternative storage backends.
type FileSystem interface {
	// ReadFile reads the entire file at the given path.
	ReadFile(path string) ([]byte, error)

	// WriteFile writes data to a file, creating it if necessary.
	WriteFile(path string, data []byte, perm os.FileMode) error

	// Stat returns file info for the given path.
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether path exists.
	Exists(path string) bool

	// Open opens a file for reading.
	Open(path string) (io.ReadCloser, error)

	// Create creates or truncates a file for writing.
	Create(path string) (io.WriteCloser, error)

	// MkdirAll creates a directory and all necessary parents.
	MkdirAll(path string, perm os.FileMode) error

	// Remove deletes a file or empty directory. Not an error if absent.
	Remove(path string) error

	// RemoveAll removes path and any children it contains.
	RemoveAll(path string) error

	// Rename moves/renames a file or directory.
	Rename(oldPath, newPath string) error

	// Link creates a hard link.
	Link(oldPath, newPath string) error

	// Chtimes changes the access and modification times of a file.
	Chtimes(path string, atime, mtime time.Time) error

	// WalkDir walks the tree rooted at path, following no symlinks: every
	// symlink is reported as an entry whose Type() has fs.ModeSymlink set
	// and is never followed.
	WalkDir(path string, fn fs.WalkDirFunc) error

	// ReadDir lists the entries of a directory.
	ReadDir(path string) ([]fs.DirEntry, error)
}

// ModTime returns the modification time of path, or the zero time if path
// does not exist.
func ModTime(f FileSystem, path string) time.Time {
	info, err := f.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
