// Package config implements the Config Model: an immutable snapshot of
// tunables parsed from a line-oriented directive file, generalising the
// teacher's DittoConfig/go:embed-default-config idiom (cmd/main.go) from a
// JSON struct to a directive grammar ("set name = value" / "deb"/"deb-src"
// repository lines / "clean <uri> False"), following refrapt/settings.py's
// Parse loop for the directive shape.
package config

import (
	"bufio"
	"io"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/canonical/aptmirror/internal/descriptor"
	"github.com/canonical/aptmirror/internal/logging"
	"github.com/canonical/aptmirror/internal/pathutil"
)

// Config is the immutable Config Model: every tunable the directive file
// exposes, plus the parsed Repository Descriptors.
type Config struct {
	RootPath  string
	Architecture string
	Contents     bool
	Threads      int
	LimitRate    string
	Languages    []string
	ForceUpdate  bool
	ByHash       bool
	LogLevel     logging.Level
	Test         bool
	DisableClean bool

	AuthNoChallenge    bool
	NoCheckCertificate bool
	Unlink             bool
	UseProxy           bool
	HTTPProxy          string
	HTTPSProxy         string
	ProxyUser          string
	ProxyPass          string
	Certificate        string
	CACertificate      string
	PrivateKey         string

	Repositories []descriptor.Descriptor
}

// MirrorPath, SkelPath, and VarPath derive from RootPath, mirroring
// refrapt/settings.py's MirrorPath/SkelPath/VarPath accessors.
func (c Config) MirrorPath() string { return c.RootPath + "/mirror" }
func (c Config) SkelPath() string   { return c.RootPath + "/skel" }
func (c Config) VarPath() string    { return c.RootPath + "/var" }

// Defaults returns the built-in defaults applied before the directive file
// is parsed, mirroring refrapt/settings.py's _settings dict.
func Defaults() Config {
	return Config{
		RootPath:     "/var/lib/aptmirror",
		Architecture: runtime.GOARCH,
		Contents:     true,
		Threads:      runtime.NumCPU(),
		LimitRate:    "500m",
		Languages:    []string{"en"},
		LogLevel:     logging.LevelInfo,
	}
}

var (
	setLineRe  = regexp.MustCompile(`^set\s+([A-Za-z]+)\s*=\s*(.*)$`)
	cleanLineRe = regexp.MustCompile(`^clean\s+(\S+)\s+(\S+)\s*$`)
)

// known maps directive-file option names to setter functions. An unknown
// option name is a warning, not a fatal error.
func known(c *Config, key, rawValue string) bool {
	value := stripInlineComment(rawValue)
	switch key {
	case "rootPath":
		c.RootPath = unquote(value)
	case "architecture":
		c.Architecture = unquote(value)
	case "contents":
		c.Contents = parseBool(value)
	case "threads":
		if n, err := strconv.Atoi(value); err == nil {
			c.Threads = n
		}
	case "limitRate":
		c.LimitRate = unquote(value)
	case "language":
		c.Languages = collapseLanguages(strings.Split(unquote(value), ","))
	case "forceUpdate":
		c.ForceUpdate = parseBool(value)
	case "byHash":
		c.ByHash = parseBool(value)
	case "logLevel":
		c.LogLevel = logging.Level(strings.ToLower(unquote(value)))
	case "test":
		c.Test = parseBool(value)
	case "disableClean":
		c.DisableClean = parseBool(value)
	case "authNoChallenge":
		c.AuthNoChallenge = parseBool(value)
	case "noCheckCertificate":
		c.NoCheckCertificate = parseBool(value)
	case "unlink":
		c.Unlink = parseBool(value)
	case "useProxy":
		c.UseProxy = parseBool(value)
	case "httpProxy":
		c.HTTPProxy = unquote(value)
	case "httpsProxy":
		c.HTTPSProxy = unquote(value)
	case "proxyUser":
		c.ProxyUser = unquote(value)
	case "proxyPass":
		c.ProxyPass = unquote(value)
	case "certificate":
		c.Certificate = unquote(value)
	case "caCertificate":
		c.CACertificate = unquote(value)
	case "privateKey":
		c.PrivateKey = unquote(value)
	default:
		return false
	}
	return true
}

func stripInlineComment(v string) string {
	if idx := strings.Index(v, "#"); idx >= 0 {
		v = v[:idx]
	}
	return strings.TrimSpace(v)
}

func unquote(v string) string {
	return strings.Trim(strings.TrimSpace(v), `"`)
}

func parseBool(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

// collapseLanguages collapses region-coded language tags to their base
// code ("xx_YY" -> "xx") and de-duplicates the result, order-preserving.
func collapseLanguages(langs []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range langs {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if idx := strings.Index(l, "_"); idx >= 0 {
			l = l[:idx]
		}
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

// Parse reads a directive file over the defaults, returning the resulting
// Config. Unknown options and malformed repository lines are logged and
// skipped, never fatal. logger may be nil.
func Parse(r io.Reader, defaults Config, logger logging.Logger) (Config, error) {
	if logger == nil {
		logger = logging.Discard
	}
	c := defaults
	var cleanOverrides []struct {
		uri   string
		clean bool
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "set "):
			m := setLineRe.FindStringSubmatch(line)
			if m == nil {
				logger.Warn("config: malformed set directive, ignoring", "line", line)
				continue
			}
			if !known(&c, m[1], m[2]) {
				logger.Warn("config: unknown setting, ignoring", "key", m[1])
			}

		case strings.HasPrefix(line, "deb"):
			d, err := descriptor.Parse(line, c.Architecture)
			if err != nil {
				logger.Warn("config: unparseable repository line, ignoring", "line", line, "err", err)
				continue
			}
			c.Repositories = append(c.Repositories, d)

		case strings.HasPrefix(line, "clean "):
			m := cleanLineRe.FindStringSubmatch(line)
			if m == nil {
				logger.Warn("config: malformed clean directive, ignoring", "line", line)
				continue
			}
			cleanOverrides = append(cleanOverrides, struct {
				uri   string
				clean bool
			}{uri: m[1], clean: !strings.EqualFold(m[2], "False")})

		default:
			logger.Warn("config: unrecognised directive, ignoring", "line", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return c, err
	}

	for _, ov := range cleanOverrides {
		for i := range c.Repositories {
			if pathutil.Sanitise(c.Repositories[i].URI) == pathutil.Sanitise(ov.uri) {
				c.Repositories[i].Clean = ov.clean
			}
		}
	}

	return c, nil
}
