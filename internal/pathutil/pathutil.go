// Package pathutil implements the Path Sanitiser: a deterministic,
// idempotent, total URI -> filesystem-path-suffix transform.
package pathutil

import "regexp"

var (
	schemeRe = regexp.MustCompile(`^[A-Za-z0-9]+://`)
	portRe   = regexp.MustCompile(`:\d+`)
)

// Sanitise strips the scheme prefix (an alphanumeric run followed by "://")
// and any ":<digits>" port token from raw, leaving a string fit to use as a
// filesystem path suffix under a root. It does not percent-decode and does
// not lowercase. Sanitise is total (never errors) and idempotent:
// Sanitise(Sanitise(x)) == Sanitise(x) for any input, because the output
// never contains "://" or a bare ":<digits>" run for the regexes to match
// again.
func Sanitise(raw string) string {
	out := schemeRe.ReplaceAllString(raw, "")
	out = portRe.ReplaceAllString(out, "")
	return out
}
