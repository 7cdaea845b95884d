package promote

import (
	"testing"
	"time"

	"github.com/canonical/aptmirror/internal/vfs"
)

func TestPromoteCopiesAbsentMirrorFile(t *testing.T) {
	fs := vfs.NewMemFileSystem()
	_ = fs.WriteFile("/skel/repo/main/binary-amd64/Packages", []byte("data"), 0o644)

	p := New(fs, nil)
	copied, err := p.Promote("/skel/repo", "/mirror/repo", []string{"main/binary-amd64/Packages"})
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if copied != 1 {
		t.Errorf("expected 1 copy, got %d", copied)
	}
	got, err := fs.ReadFile("/mirror/repo/main/binary-amd64/Packages")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "data" {
		t.Errorf("unexpected content: %q", got)
	}
}

func TestPromoteSkipsWhenMirrorNewerOrEqual(t *testing.T) {
	fs := vfs.NewMemFileSystem()
	now := time.Now()

	_ = fs.WriteFile("/skel/repo/main/binary-amd64/Packages", []byte("staged"), 0o644)
	_ = fs.Chtimes("/skel/repo/main/binary-amd64/Packages", now, now)

	_ = fs.WriteFile("/mirror/repo/main/binary-amd64/Packages", []byte("live"), 0o644)
	_ = fs.Chtimes("/mirror/repo/main/binary-amd64/Packages", now.Add(time.Hour), now.Add(time.Hour))

	p := New(fs, nil)
	copied, err := p.Promote("/skel/repo", "/mirror/repo", []string{"main/binary-amd64/Packages"})
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if copied != 0 {
		t.Errorf("expected 0 copies when mirror is newer, got %d", copied)
	}
	got, _ := fs.ReadFile("/mirror/repo/main/binary-amd64/Packages")
	if string(got) != "live" {
		t.Errorf("mirror file should be untouched, got %q", got)
	}
}

func TestPromoteSkipsAbsentFromStaging(t *testing.T) {
	fs := vfs.NewMemFileSystem()
	p := New(fs, nil)
	copied, err := p.Promote("/skel/repo", "/mirror/repo", []string{"main/binary-amd64/Packages"})
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if copied != 0 {
		t.Errorf("expected 0 copies when staging file absent, got %d", copied)
	}
}
