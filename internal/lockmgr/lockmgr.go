// Package lockmgr implements the Lock Manager: a single-instance
// app lock for the duration of a run, plus per-URL lock files recording
// in-flight downloads so an interrupted run can be healed on the next start.
// Declared by several pack manifests (immutos-debco, dionysius-aarg,
// nabbar-golib) for exactly this exclusive-file-lock role; gofrs/flock is the
// idiomatic choice over a hand-rolled O_EXCL scheme.
package lockmgr

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/canonical/aptmirror/internal/logging"
	"github.com/canonical/aptmirror/internal/pathutil"
	"github.com/canonical/aptmirror/internal/vfs"
)

const appLockName = "aptmirror.lock"

// Manager owns the app lock and per-URL lock files under varPath.
type Manager struct {
	fs      vfs.FileSystem
	logger  logging.Logger
	varPath string

	appLock *flock.Flock

	mu    sync.Mutex
	urls  map[string]*flock.Flock
}

// New builds a Manager rooted at varPath (the root's var/ directory).
func New(fs vfs.FileSystem, logger logging.Logger, varPath string) *Manager {
	if logger == nil {
		logger = logging.Discard
	}
	return &Manager{fs: fs, logger: logger, varPath: varPath, urls: map[string]*flock.Flock{}}
}

// AcquireApp takes the single-instance app lock. It reports whether the lock
// file was already present on disk before acquisition — a sign the previous
// run was interrupted, which callers use to raise the interrupted-previous-run
// flag and force every Index Collection through the pipeline as modified.
func (m *Manager) AcquireApp() (interruptedPrevious bool, err error) {
	if err := m.fs.MkdirAll(m.varPath, 0o755); err != nil {
		return false, fmt.Errorf("lockmgr: mkdir var path: %w", err)
	}
	lockPath := path.Join(m.varPath, appLockName)
	interruptedPrevious = m.fs.Exists(lockPath)

	m.appLock = flock.New(lockPath)
	ok, err := m.appLock.TryLock()
	if err != nil {
		return interruptedPrevious, fmt.Errorf("lockmgr: acquire app lock: %w", err)
	}
	if !ok {
		return interruptedPrevious, fmt.Errorf("lockmgr: another run holds the app lock")
	}
	return interruptedPrevious, nil
}

// ReleaseApp releases the app lock and removes its file, marking this run as
// having completed cleanly.
func (m *Manager) ReleaseApp() error {
	if m.appLock == nil {
		return nil
	}
	if err := m.appLock.Unlock(); err != nil {
		return fmt.Errorf("lockmgr: release app lock: %w", err)
	}
	return m.fs.Remove(m.appLock.Path())
}

// urlLockPath derives a deterministic lock-file path for a URL. The
// sanitised path could itself contain '/', so it's flattened for use as a
// single filename component under var/.
func (m *Manager) urlLockPath(url string) string {
	flat := strings.ReplaceAll(pathutil.Sanitise(url), "/", "_")
	return path.Join(m.varPath, "url-"+flat+".lock")
}

// LockURL acquires the per-URL lock for url, recording url as its content so
// a stale-lock sweep can identify the partial download to remove. The
// returned release func unlocks and deletes the lock file.
func (m *Manager) LockURL(url string) (func(), error) {
	if err := m.fs.MkdirAll(m.varPath, 0o755); err != nil {
		return nil, fmt.Errorf("lockmgr: mkdir var path: %w", err)
	}
	lockPath := m.urlLockPath(url)
	fl := flock.New(lockPath)
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("lockmgr: lock %s: %w", url, err)
	}
	if err := m.fs.WriteFile(lockPath, []byte(url), 0o644); err != nil {
		fl.Unlock()
		return nil, fmt.Errorf("lockmgr: write lock contents for %s: %w", url, err)
	}

	m.mu.Lock()
	m.urls[url] = fl
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.urls, url)
		m.mu.Unlock()
		fl.Unlock()
		m.fs.Remove(lockPath)
	}, nil
}

// SweepStaleLocks scans varPath for leftover per-URL lock files from a
// previous interrupted run, removes the partial download each one names from
// both staging and the live mirror, and deletes the lock file. Must run
// before AcquireApp so a crashed run's partial writes never survive into the
// next cycle.
func (m *Manager) SweepStaleLocks(stagingRoot, mirrorRoot string) error {
	entries, err := m.fs.ReadDir(m.varPath)
	if err != nil {
		if !m.fs.Exists(m.varPath) {
			return nil
		}
		return fmt.Errorf("lockmgr: read var path: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "url-") || !strings.HasSuffix(e.Name(), ".lock") {
			continue
		}
		lockPath := path.Join(m.varPath, e.Name())
		data, err := m.fs.ReadFile(lockPath)
		if err != nil {
			continue
		}
		url := string(data)
		sanitised := pathutil.Sanitise(url)

		for _, root := range []string{stagingRoot, mirrorRoot} {
			full := path.Join(root, sanitised)
			if m.fs.Exists(full) {
				m.logger.Warn("lockmgr: removing partial from interrupted run", "url", url, "path", full)
				m.fs.Remove(full)
			}
			m.fs.Remove(full + ".tmp")
		}
		m.fs.Remove(lockPath)
	}
	return nil
}
