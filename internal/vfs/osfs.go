package vfs

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// OSFileSystem is a FileSystem implementation backed by the real OS filesystem.
type OSFileSystem struct{}

// NewOSFileSystem returns the production FileSystem.
func NewOSFileSystem() FileSystem {
	return OSFileSystem{}
}

func (OSFileSystem) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

func (OSFileSystem) WriteFile(path string, data []byte, perm os.FileMode) error {
	return os.WriteFile(path, data, perm)
}

func (OSFileSystem) Stat(path string) (os.FileInfo, error) { return os.Stat(path) }

func (fs OSFileSystem) Exists(path string) bool {
	_, err := fs.Stat(path)
	return err == nil
}

func (OSFileSystem) Open(path string) (io.ReadCloser, error) { return os.Open(path) }

func (OSFileSystem) Create(path string) (io.WriteCloser, error) { return os.Create(path) }

func (OSFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (OSFileSystem) Remove(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (OSFileSystem) RemoveAll(path string) error { return os.RemoveAll(path) }

func (OSFileSystem) Rename(oldPath, newPath string) error {
	if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
		return err
	}
	return os.Rename(oldPath, newPath)
}

func (OSFileSystem) Link(oldPath, newPath string) error {
	if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
		return err
	}
	return os.Link(oldPath, newPath)
}

func (OSFileSystem) Chtimes(path string, atime, mtime time.Time) error {
	return os.Chtimes(path, atime, mtime)
}

// WalkDir walks path without following symlinks: fs.WalkDir never follows a
// symlink to a directory on its own, it merely reports the entry, so a
// symlink target is always treated as required rather than expanded.
func (OSFileSystem) WalkDir(path string, fn fs.WalkDirFunc) error {
	return filepath.WalkDir(path, fn)
}

func (OSFileSystem) ReadDir(path string) ([]fs.DirEntry, error) { return os.ReadDir(path) }
