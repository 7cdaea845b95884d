package release

import (
	"strings"
	"testing"
)

const sample = `Origin: Ubuntu
Label: Ubuntu
Suite: focal
Components: main restricted universe multiverse
Architectures: amd64 arm64
Date: Mon, 01 Jan 2024 00:00:00 UTC
MD5Sum:
 abcd1234 1000 main/binary-amd64/Packages
 malformedline
 ef567890 2000 main/binary-amd64/Packages.gz
SHA256:
 1111aaaa2222bbbb 1000 main/binary-amd64/Packages
 2222bbbb3333cccc 2000 main/binary-amd64/Packages.gz
 3333cccc4444dddd 500 main/i18n/Index
Acquire-By-Hash: yes
`

func TestParseChecksumBlocks(t *testing.T) {
	f, err := Parse(strings.NewReader(sample), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	byKind := f.FilenamesByKind()
	if got := len(byKind[SHA256]); got != 3 {
		t.Errorf("expected 3 SHA256 entries, got %d", got)
	}
	if got := len(byKind[MD5Sum]); got != 2 {
		t.Errorf("expected 2 valid MD5Sum entries (malformed line skipped), got %d", got)
	}

	if f.Fields["Acquire-By-Hash"] != "yes" {
		t.Errorf("expected Acquire-By-Hash field to be captured, got %+v", f.Fields)
	}
	if f.Fields["Components"] != "main restricted universe multiverse" {
		t.Errorf("unexpected Components field: %q", f.Fields["Components"])
	}
}

func TestParseEntrySizes(t *testing.T) {
	f, err := Parse(strings.NewReader(sample), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var found bool
	for _, e := range f.Entries {
		if e.Kind == SHA256 && e.Filename == "main/i18n/Index" {
			found = true
			if e.Size != 500 {
				t.Errorf("expected size 500, got %d", e.Size)
			}
		}
	}
	if !found {
		t.Fatalf("expected to find main/i18n/Index entry")
	}
}
