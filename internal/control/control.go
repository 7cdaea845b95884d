// Package control implements the Packages/Sources paragraph grammar:
// empty-line-delimited RFC822-like paragraphs, keeping only
// the fields the rest of the pipeline needs.
package control

import (
	"bufio"
	"io"
	"regexp"
	"strings"
)

// Retained is the set of fields worth keeping; everything else is dropped
// as the paragraph is parsed, to save memory on large indices.
var Retained = map[string]bool{
	"Filename":  true,
	"MD5sum":    true,
	"SHA1":      true,
	"SHA256":    true,
	"Size":      true,
	"Files":     true,
	"Directory": true,
}

// Paragraph is one Packages/Sources stanza, reduced to the retained fields.
type Paragraph map[string]string

var fieldStartRe = regexp.MustCompile(`^[A-Za-z0-9_-]+:`)

// ParseParagraphs reads a Packages or Sources file (already decompressed)
// and returns every paragraph it contains.
func ParseParagraphs(r io.Reader) ([]Paragraph, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 8*1024*1024)

	var paragraphs []Paragraph
	current := Paragraph{}
	var currentKey string
	haveContent := false

	flush := func() {
		if haveContent {
			paragraphs = append(paragraphs, current)
		}
		current = Paragraph{}
		currentKey = ""
		haveContent = false
	}

	for scanner.Scan() {
		line := scanner.Text()

		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}

		haveContent = true

		if fieldStartRe.MatchString(line) {
			idx := strings.Index(line, ":")
			key := line[:idx]
			value := strings.TrimPrefix(line[idx+1:], " ")
			currentKey = key
			if Retained[key] {
				current[key] = value
			} else {
				currentKey = "" // drop continuations of fields we don't keep
			}
			continue
		}

		// Continuation line: append with a leading newline, trimmed.
		if currentKey != "" && Retained[currentKey] {
			current[currentKey] += "\n" + strings.TrimSpace(line)
		}
	}

	// Trailing paragraph without a terminating blank line.
	flush()

	return paragraphs, scanner.Err()
}
