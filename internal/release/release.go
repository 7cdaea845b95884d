// Package release implements the Release-file grammar: a
// plain-text paragraph file with checksum blocks introduced by a
// "SHA256:"/"SHA1:"/"MD5Sum:" header line.
package release

import (
	"bufio"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// ChecksumKind names the hash algorithm a checksum block was introduced
// under.
type ChecksumKind string

const (
	SHA256 ChecksumKind = "SHA256"
	SHA1   ChecksumKind = "SHA1"
	MD5Sum ChecksumKind = "MD5Sum"
)

// Entry is one checksum-block line: "checksum size filename".
type Entry struct {
	Kind     ChecksumKind
	Checksum string
	Size     int64
	Filename string
}

// File is a parsed Release file: every checksum-block entry, in file order,
// plus every "Key: value" line outside a checksum block (Origin, Suite,
// Components, Acquire-By-Hash, ...), keyed by field name.
type File struct {
	Entries []Entry
	Fields  map[string]string
}

var headerRe = regexp.MustCompile(`^(SHA256|SHA1|MD5Sum):\s*$`)
var fieldRe = regexp.MustCompile(`^([A-Za-z0-9_-]+):\s?(.*)$`)

// Parse reads a Release (or InRelease-with-signature-already-stripped) file
// and extracts every checksum block.
func Parse(r io.Reader, logger *slog.Logger) (*File, error) {
	f := &File{Fields: map[string]string{}}
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var currentKind ChecksumKind
	inBlock := false

	for scanner.Scan() {
		line := scanner.Text()

		if m := headerRe.FindStringSubmatch(line); m != nil {
			currentKind = ChecksumKind(m[1])
			inBlock = true
			continue
		}

		if inBlock {
			if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
				parts := strings.Fields(line)
				if len(parts) != 3 {
					if logger != nil {
						logger.Warn("release: malformed checksum line, skipping", "line", line)
					}
					continue
				}
				size, err := strconv.ParseInt(parts[1], 10, 64)
				if err != nil {
					if logger != nil {
						logger.Warn("release: non-numeric size, skipping", "line", line)
					}
					continue
				}
				f.Entries = append(f.Entries, Entry{
					Kind:     currentKind,
					Checksum: parts[0],
					Size:     size,
					Filename: parts[2],
				})
				continue
			}
			inBlock = false
		}

		if m := fieldRe.FindStringSubmatch(line); m != nil {
			f.Fields[m[1]] = m[2]
		}
	}

	return f, scanner.Err()
}

// FilenamesByKind groups entries' filenames by the checksum kind they were
// declared under, preserving first-seen order within each kind.
func (f *File) FilenamesByKind() map[ChecksumKind][]string {
	out := map[ChecksumKind][]string{}
	seen := map[string]bool{}
	for _, e := range f.Entries {
		key := string(e.Kind) + "\x00" + e.Filename
		if seen[key] {
			continue
		}
		seen[key] = true
		out[e.Kind] = append(out[e.Kind], e.Filename)
	}
	return out
}
