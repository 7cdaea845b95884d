package vfs

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemFileSystem is an in-memory FileSystem used by unit tests across the
// pipeline, with the walk/remove-all/chtimes operations the sweeper and
// promoter need.
type MemFileSystem struct {
	mu    sync.RWMutex
	files map[string]*memFile
}

type memFile struct {
	data    []byte
	mode    os.FileMode
	modTime time.Time
	isDir   bool
}

// NewMemFileSystem returns an empty in-memory filesystem rooted at "/".
func NewMemFileSystem() *MemFileSystem {
	return &MemFileSystem{files: map[string]*memFile{"/": {mode: os.ModeDir, isDir: true, modTime: time.Now()}}}
}

func clean(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return p
}

func (m *MemFileSystem) ReadFile(p string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p = clean(p)
	f, ok := m.files[p]
	if !ok {
		return nil, &os.PathError{Op: "read", Path: p, Err: os.ErrNotExist}
	}
	if f.isDir {
		return nil, &os.PathError{Op: "read", Path: p, Err: os.ErrInvalid}
	}
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out, nil
}

func (m *MemFileSystem) WriteFile(p string, data []byte, perm os.FileMode) error {
	w, err := m.Create(p)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Close()
}

type memFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	isDir   bool
}

func (fi *memFileInfo) Name() string       { return fi.name }
func (fi *memFileInfo) Size() int64        { return fi.size }
func (fi *memFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *memFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *memFileInfo) IsDir() bool        { return fi.isDir }
func (fi *memFileInfo) Sys() any           { return nil }

func (m *MemFileSystem) Stat(p string) (os.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p = clean(p)
	f, ok := m.files[p]
	if !ok {
		return nil, &os.PathError{Op: "stat", Path: p, Err: os.ErrNotExist}
	}
	return &memFileInfo{name: path.Base(p), size: int64(len(f.data)), mode: f.mode, modTime: f.modTime, isDir: f.isDir}, nil
}

func (m *MemFileSystem) Exists(p string) bool {
	_, err := m.Stat(p)
	return err == nil
}

func (m *MemFileSystem) Open(p string) (io.ReadCloser, error) {
	data, err := m.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemFileSystem) ensureDir(dir string) {
	if dir == "/" {
		return
	}
	parts := strings.Split(strings.Trim(dir, "/"), "/")
	cur := ""
	for _, part := range parts {
		cur += "/" + part
		if _, ok := m.files[cur]; !ok {
			m.files[cur] = &memFile{mode: os.ModeDir | 0o755, isDir: true, modTime: time.Now()}
		}
	}
}

func (m *MemFileSystem) Create(p string) (io.WriteCloser, error) {
	p = clean(p)
	m.mu.Lock()
	m.ensureDir(path.Dir(p))
	m.mu.Unlock()
	return &memWriter{m: m, path: p, buf: new(bytes.Buffer)}, nil
}

type memWriter struct {
	m    *MemFileSystem
	path string
	buf  *bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memWriter) Close() error {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	w.m.files[w.path] = &memFile{data: w.buf.Bytes(), mode: 0o644, modTime: time.Now()}
	return nil
}

func (m *MemFileSystem) MkdirAll(p string, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureDir(clean(p))
	return nil
}

func (m *MemFileSystem) Remove(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = clean(p)
	delete(m.files, p)
	return nil
}

func (m *MemFileSystem) RemoveAll(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = clean(p)
	prefix := p + "/"
	for k := range m.files {
		if k == p || strings.HasPrefix(k, prefix) {
			delete(m.files, k)
		}
	}
	return nil
}

func (m *MemFileSystem) Rename(oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldPath, newPath = clean(oldPath), clean(newPath)
	f, ok := m.files[oldPath]
	if !ok {
		return &os.PathError{Op: "rename", Path: oldPath, Err: os.ErrNotExist}
	}
	m.ensureDir(path.Dir(newPath))
	m.files[newPath] = f
	delete(m.files, oldPath)
	return nil
}

func (m *MemFileSystem) Link(oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldPath, newPath = clean(oldPath), clean(newPath)
	f, ok := m.files[oldPath]
	if !ok {
		return &os.PathError{Op: "link", Path: oldPath, Err: os.ErrNotExist}
	}
	m.ensureDir(path.Dir(newPath))
	cp := *f
	m.files[newPath] = &cp
	return nil
}

// Symlink creates a symlink entry for tests that need to exercise
// symlink-aware walking; MemFileSystem never creates one on its own.
func (m *MemFileSystem) Symlink(oldname, newname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	newname = clean(newname)
	m.ensureDir(path.Dir(newname))
	m.files[newname] = &memFile{data: []byte(oldname), mode: os.ModeSymlink | 0o777, modTime: time.Now()}
	return nil
}

func (m *MemFileSystem) Chtimes(p string, atime, mtime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = clean(p)
	f, ok := m.files[p]
	if !ok {
		return &os.PathError{Op: "chtimes", Path: p, Err: os.ErrNotExist}
	}
	f.modTime = mtime
	return nil
}

type memDirEntry struct {
	name  string
	isDir bool
	info  *memFileInfo
}

func (e memDirEntry) Name() string               { return e.name }
func (e memDirEntry) IsDir() bool                 { return e.isDir }
func (e memDirEntry) Type() fs.FileMode           { return e.info.Mode().Type() }
func (e memDirEntry) Info() (fs.FileInfo, error)  { return e.info, nil }

func (m *MemFileSystem) ReadDir(p string) ([]fs.DirEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p = clean(p)
	prefix := p
	if prefix != "/" {
		prefix += "/"
	}
	seen := map[string]bool{}
	var entries []fs.DirEntry
	for k, f := range m.files {
		if k == p || !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		if idx := strings.Index(rest, "/"); idx >= 0 {
			rest = rest[:idx]
			if seen[rest] {
				continue
			}
			seen[rest] = true
			entries = append(entries, memDirEntry{name: rest, isDir: true, info: &memFileInfo{name: rest, isDir: true}})
			continue
		}
		if seen[rest] {
			continue
		}
		seen[rest] = true
		entries = append(entries, memDirEntry{name: rest, isDir: f.isDir, info: &memFileInfo{name: rest, size: int64(len(f.data)), mode: f.mode, modTime: f.modTime, isDir: f.isDir}})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

// WalkDir walks the in-memory tree in lexical order, matching fs.WalkDir's
// contract closely enough for the sweeper's purposes.
func (m *MemFileSystem) WalkDir(root string, fn fs.WalkDirFunc) error {
	root = clean(root)
	m.mu.RLock()
	var paths []string
	for k := range m.files {
		if k == root || strings.HasPrefix(k, root+"/") {
			paths = append(paths, k)
		}
	}
	m.mu.RUnlock()
	sort.Strings(paths)
	for _, p := range paths {
		m.mu.RLock()
		f := m.files[p]
		m.mu.RUnlock()
		if f == nil {
			continue
		}
		info := &memFileInfo{name: path.Base(p), size: int64(len(f.data)), mode: f.mode, modTime: f.modTime, isDir: f.isDir}
		if err := fn(p, memDirEntry{name: path.Base(p), isDir: f.isDir, info: info}, nil); err != nil {
			if err == fs.SkipDir {
				continue
			}
			return err
		}
	}
	return nil
}
