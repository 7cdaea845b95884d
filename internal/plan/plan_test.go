package plan

import (
	"testing"

	"github.com/canonical/aptmirror/internal/control"
	"github.com/canonical/aptmirror/internal/refset"
	"github.com/canonical/aptmirror/internal/vfs"
)

func TestBuildBinaryPackageNeedsUpdateWhenAbsent(t *testing.T) {
	fs := vfs.NewMemFileSystem()
	refs := refset.New()
	paras := []control.Paragraph{
		{"Filename": "./pool/main/f/foo/foo_1.0_amd64.deb", "Size": "1234"},
	}

	pkgs := Build(fs, paras, "/mirror", "main", false, refs, nil)
	if len(pkgs) != 1 {
		t.Fatalf("expected 1 package, got %d", len(pkgs))
	}
	if pkgs[0].Latest {
		t.Error("expected Latest=false when file is absent")
	}
	if pkgs[0].Filename != "main/pool/main/f/foo/foo_1.0_amd64.deb" {
		t.Errorf("unexpected filename: %q", pkgs[0].Filename)
	}
	if !refs.Contains("main/pool/main/f/foo/foo_1.0_amd64.deb") {
		t.Error("expected filename recorded in Reference Set regardless of Latest")
	}
}

func TestBuildBinaryPackageLatestWhenSizeMatches(t *testing.T) {
	fs := vfs.NewMemFileSystem()
	_ = fs.WriteFile("/mirror/main/pool/main/f/foo/foo_1.0_amd64.deb", make([]byte, 1234), 0o644)
	refs := refset.New()
	paras := []control.Paragraph{
		{"Filename": "pool/main/f/foo/foo_1.0_amd64.deb", "Size": "1234"},
	}

	pkgs := Build(fs, paras, "/mirror", "main", false, refs, nil)
	if !pkgs[0].Latest {
		t.Error("expected Latest=true when on-disk size matches declared size")
	}
}

func TestBuildForceOverridesLatest(t *testing.T) {
	fs := vfs.NewMemFileSystem()
	_ = fs.WriteFile("/mirror/main/pool/main/f/foo/foo_1.0_amd64.deb", make([]byte, 1234), 0o644)
	refs := refset.New()
	paras := []control.Paragraph{
		{"Filename": "pool/main/f/foo/foo_1.0_amd64.deb", "Size": "1234"},
	}

	pkgs := Build(fs, paras, "/mirror", "main", true, refs, nil)
	if pkgs[0].Latest {
		t.Error("expected Latest=false under force, regardless of on-disk match")
	}
}

func TestBuildSourcePackageSplitsFiles(t *testing.T) {
	fs := vfs.NewMemFileSystem()
	refs := refset.New()
	paras := []control.Paragraph{
		{
			"Directory": "pool/main/m/mypkg",
			"Files":     "\naaaa 100 mypkg_1.0.dsc\nbbbb 2000 mypkg_1.0.tar.gz",
		},
	}

	pkgs := Build(fs, paras, "/mirror", "main", false, refs, nil)
	if len(pkgs) != 2 {
		t.Fatalf("expected 2 packages from Files field, got %d", len(pkgs))
	}
	if pkgs[0].Filename != "main/pool/main/m/mypkg/mypkg_1.0.dsc" {
		t.Errorf("unexpected filename: %q", pkgs[0].Filename)
	}
	if pkgs[1].Size != 2000 {
		t.Errorf("unexpected size: %d", pkgs[1].Size)
	}
}

func TestBuildSkipsMalformedSize(t *testing.T) {
	fs := vfs.NewMemFileSystem()
	refs := refset.New()
	paras := []control.Paragraph{
		{"Filename": "pool/main/f/foo/foo_1.0_amd64.deb", "Size": "not-a-number"},
	}

	pkgs := Build(fs, paras, "/mirror", "main", false, refs, nil)
	if len(pkgs) != 0 {
		t.Errorf("expected malformed paragraph skipped, got %d packages", len(pkgs))
	}
}

func TestPendingFiltersLatest(t *testing.T) {
	pkgs := []Package{{Filename: "a", Latest: true}, {Filename: "b", Latest: false}}
	pending := Pending(pkgs)
	if len(pending) != 1 || pending[0].Filename != "b" {
		t.Errorf("expected only non-latest package, got %v", pending)
	}
}

func TestReferenceOnlyDoesNotEmitPackages(t *testing.T) {
	refs := refset.New()
	paras := []control.Paragraph{
		{"Filename": "pool/main/f/foo/foo_1.0_amd64.deb", "Size": "1234"},
	}
	ReferenceOnly(paras, "main", refs)
	if refs.Len() != 1 {
		t.Errorf("expected 1 reference recorded, got %d", refs.Len())
	}
}
