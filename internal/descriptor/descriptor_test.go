package descriptor

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name    string
		line    string
		def     string
		want    Descriptor
		wantErr bool
	}{
		{
			name: "structured binary minimal",
			line: "deb [arch=amd64] http://example/ubuntu focal main",
			def:  "amd64",
			want: Descriptor{Type: Binary, Architectures: []string{"amd64"}, URI: "http://example/ubuntu", Distribution: "focal", Components: []string{"main"}, Clean: true},
		},
		{
			name: "flat binary",
			line: "deb http://vendor/repo",
			def:  "amd64",
			want: Descriptor{Type: Binary, Architectures: []string{"amd64"}, URI: "http://vendor/repo", Clean: true},
		},
		{
			name: "flat binary explicit slash",
			line: "deb http://vendor/repo /",
			def:  "amd64",
			want: Descriptor{Type: Binary, Architectures: []string{"amd64"}, URI: "http://vendor/repo", Clean: true},
		},
		{
			name: "multi-arch",
			line: "deb [arch=amd64,i386] http://m/d buster main",
			def:  "amd64",
			want: Descriptor{Type: Binary, Architectures: []string{"amd64", "i386"}, URI: "http://m/d", Distribution: "buster", Components: []string{"main"}, Clean: true},
		},
		{
			name: "source",
			line: "deb-src http://example/ubuntu focal main universe",
			def:  "amd64",
			want: Descriptor{Type: Source, Architectures: []string{"amd64"}, URI: "http://example/ubuntu", Distribution: "focal", Components: []string{"main", "universe"}, Clean: true},
		},
		{
			name: "inline comment stripped",
			line: "deb http://example/ubuntu focal main # comment here",
			def:  "amd64",
			want: Descriptor{Type: Binary, Architectures: []string{"amd64"}, URI: "http://example/ubuntu", Distribution: "focal", Components: []string{"main"}, Clean: true},
		},
		{name: "missing kind", line: "", def: "amd64", wantErr: true},
		{name: "unknown kind", line: "rpm http://x", def: "amd64", wantErr: true},
		{name: "missing uri", line: "deb", def: "amd64", wantErr: true},
		{name: "malformed bracket", line: "deb [arch=amd64 http://x focal main", def: "amd64", wantErr: true},
		{name: "trailing bracket after uri", line: "deb http://x [arch=amd64] focal main", def: "amd64", wantErr: true},
		{name: "flat source rejected", line: "deb-src http://vendor/repo", def: "amd64", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.line, tc.def)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got none (result=%+v)", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestFlatInvariant(t *testing.T) {
	lines := []string{
		"deb http://vendor/repo",
		"deb [arch=amd64] http://example/ubuntu focal main",
	}
	for _, line := range lines {
		d, err := Parse(line, "amd64")
		if err != nil {
			t.Fatalf("Parse(%q): %v", line, err)
		}
		flat := d.Flat()
		componentsEmpty := len(d.Components) == 0
		if flat != (d.Distribution == "" && componentsEmpty) {
			t.Errorf("Flat() inconsistent with distribution/components for %q", line)
		}
		if len(d.Architectures) == 0 {
			t.Errorf("Architectures must be non-empty for %q", line)
		}
	}
}
