package sweep

import (
	"testing"

	"github.com/canonical/aptmirror/internal/refset"
	"github.com/canonical/aptmirror/internal/vfs"
)

func seedMirror(t *testing.T, fs vfs.FileSystem) {
	t.Helper()
	_ = fs.WriteFile("/mirror/repo/main/binary-amd64/Packages", []byte("a"), 0o644)
	_ = fs.WriteFile("/mirror/repo/main/binary-amd64/Packages.gz", []byte("b"), 0o644)
	_ = fs.WriteFile("/mirror/repo/pool/main/f/foo/foo_1.0_amd64.deb", []byte("c"), 0o644)
	_ = fs.WriteFile("/mirror/repo/pool/main/o/orphan/orphan_1.0_amd64.deb", []byte("d"), 0o644)
}

func TestSweepDeletesUnreferenced(t *testing.T) {
	fs := vfs.NewMemFileSystem()
	seedMirror(t, fs)

	refs := refset.New()
	refs.Add("main/binary-amd64/Packages")
	refs.Add("main/binary-amd64/Packages.gz")
	refs.Add("pool/main/f/foo/foo_1.0_amd64.deb")

	s := New(fs, nil, false)
	res, err := s.Sweep("/mirror/repo", refs)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Walked != 4 {
		t.Errorf("expected 4 walked files, got %d", res.Walked)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d: %v", len(res.Candidates), res.Candidates)
	}
	if res.Deleted != 1 {
		t.Errorf("expected 1 deletion, got %d", res.Deleted)
	}

	if fs.Exists("/mirror/repo/pool/main/o/orphan/orphan_1.0_amd64.deb") {
		t.Error("expected orphaned file to be deleted")
	}
	if !fs.Exists("/mirror/repo/pool/main/f/foo/foo_1.0_amd64.deb") {
		t.Error("referenced file should survive sweep")
	}
}

func TestSweepTestModePerformsNoDeletions(t *testing.T) {
	fs := vfs.NewMemFileSystem()
	seedMirror(t, fs)
	refs := refset.New()
	refs.Add("main/binary-amd64/Packages")

	s := New(fs, nil, true)
	res, err := s.Sweep("/mirror/repo", refs)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Deleted != 0 {
		t.Errorf("expected no deletions in test mode, got %d", res.Deleted)
	}
	if !fs.Exists("/mirror/repo/pool/main/o/orphan/orphan_1.0_amd64.deb") {
		t.Error("test mode must not delete anything")
	}
}

func TestSweepNeverCandidatesSymlinks(t *testing.T) {
	fs := vfs.NewMemFileSystem()
	seedMirror(t, fs)
	if err := fs.Symlink("foo_1.0_amd64.deb", "/mirror/repo/pool/main/f/foo/foo_1.0_amd64.deb.link"); err != nil {
		t.Fatalf("seed symlink: %v", err)
	}

	refs := refset.New()
	refs.Add("main/binary-amd64/Packages")
	refs.Add("main/binary-amd64/Packages.gz")
	refs.Add("pool/main/f/foo/foo_1.0_amd64.deb")

	s := New(fs, nil, false)
	res, err := s.Sweep("/mirror/repo", refs)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	for _, c := range res.Candidates {
		if c == "/mirror/repo/pool/main/f/foo/foo_1.0_amd64.deb.link" {
			t.Fatal("symlink must never be a sweep candidate, regardless of Reference Set membership")
		}
	}
	if !fs.Exists("/mirror/repo/pool/main/f/foo/foo_1.0_amd64.deb.link") {
		t.Error("unreferenced symlink should survive sweep")
	}
}

func TestSweepEmptyReferenceSetCandidatesAll(t *testing.T) {
	fs := vfs.NewMemFileSystem()
	seedMirror(t, fs)
	refs := refset.New()

	s := New(fs, nil, false)
	res, err := s.Sweep("/mirror/repo", refs)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(res.Candidates) != res.Walked {
		t.Errorf("expected every walked file to be a candidate, got %d of %d", len(res.Candidates), res.Walked)
	}
}
