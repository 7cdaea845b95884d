package config

import (
	"strings"
	"testing"

	"github.com/canonical/aptmirror/internal/logging"
)

const sampleConfig = `# example directive file
set rootPath = /srv/aptmirror
set architecture = amd64
set threads = 8
set contents = True
set language = en_US,en_GB,fr
set forceUpdate = false

deb [arch=amd64] http://archive.ubuntu.com/ubuntu focal main restricted
deb-src http://archive.ubuntu.com/ubuntu focal main

clean http://archive.ubuntu.com/ubuntu False
`

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse(strings.NewReader(sampleConfig), Defaults(), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.RootPath != "/srv/aptmirror" {
		t.Errorf("unexpected RootPath: %q", c.RootPath)
	}
	if c.Architecture != "amd64" {
		t.Errorf("unexpected Architecture: %q", c.Architecture)
	}
	if c.Threads != 8 {
		t.Errorf("unexpected Threads: %d", c.Threads)
	}
	if !c.Contents {
		t.Error("expected Contents=true")
	}
}

func TestParseCollapsesLanguageRegionCodes(t *testing.T) {
	c, err := Parse(strings.NewReader(sampleConfig), Defaults(), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []string{"en", "fr"}
	if len(c.Languages) != len(want) {
		t.Fatalf("expected %v, got %v", want, c.Languages)
	}
	for i, l := range want {
		if c.Languages[i] != l {
			t.Errorf("expected Languages[%d]=%q, got %q", i, l, c.Languages[i])
		}
	}
}

func TestParseRepositoriesAndCleanOverride(t *testing.T) {
	c, err := Parse(strings.NewReader(sampleConfig), Defaults(), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(c.Repositories) != 2 {
		t.Fatalf("expected 2 repositories, got %d", len(c.Repositories))
	}
	for _, r := range c.Repositories {
		if r.URI == "http://archive.ubuntu.com/ubuntu" && r.Clean {
			t.Errorf("expected clean override to disable sweeping for %s", r.URI)
		}
	}
}

func TestParseUnknownSettingWarnsAndContinues(t *testing.T) {
	rec := logging.NewRecorder()
	_, err := Parse(strings.NewReader("set bogusOption = 1\nset threads = 4\n"), Defaults(), rec)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rec.Warns) != 1 {
		t.Errorf("expected 1 warning for unknown setting, got %d: %v", len(rec.Warns), rec.Warns)
	}
}

func TestParseMalformedRepositoryLineWarnsAndContinues(t *testing.T) {
	rec := logging.NewRecorder()
	c, err := Parse(strings.NewReader("deb\nset threads = 4\n"), Defaults(), rec)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(c.Repositories) != 0 {
		t.Errorf("expected malformed repository line to be skipped, got %v", c.Repositories)
	}
	if len(rec.Warns) != 1 {
		t.Errorf("expected 1 warning, got %d", len(rec.Warns))
	}
}

func TestDefaultsThreadsPositive(t *testing.T) {
	if Defaults().Threads <= 0 {
		t.Error("expected a positive default thread count")
	}
}
