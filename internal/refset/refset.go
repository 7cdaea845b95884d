// Package refset implements the Reference Set: the set of
// sanitised paths the live mirror must retain after a run. Its complement
// within a repository's subtree is the sweep candidate set (internal/sweep).
package refset

import (
	"path"
	"strings"
	"sync"
)

// Set is a thread-safe set of sanitised, normalised paths. Workers return
// results at stage barriers rather than mutating shared state directly, so
// the mutation surface here is small and always called from the
// orchestrator goroutine between stages.
type Set struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

// New returns an empty Reference Set.
func New() *Set {
	return &Set{paths: map[string]struct{}{}}
}

func normalise(p string) string {
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}

// Add records p as required, after normalising it to the local path
// separator convention.
func (s *Set) Add(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths[normalise(p)] = struct{}{}
}

// AddAll records every path in ps.
func (s *Set) AddAll(ps []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range ps {
		s.paths[normalise(p)] = struct{}{}
	}
}

// Contains reports whether p (after normalisation) is in the set.
func (s *Set) Contains(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.paths[normalise(p)]
	return ok
}

// Len reports the number of distinct paths recorded.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}

// All returns every recorded path, in no particular order.
func (s *Set) All() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.paths))
	for p := range s.paths {
		out = append(out, p)
	}
	return out
}
