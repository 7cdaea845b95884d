// Package selector implements the Release -> Index Selection Policy:
// given a parsed Release file and a Repository Descriptor,
// compute the set of index-file URLs to fetch, and register the
// Packages/Sources index files that result into an Index Collection.
package selector

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/canonical/aptmirror/internal/descriptor"
	"github.com/canonical/aptmirror/internal/indexset"
	"github.com/canonical/aptmirror/internal/release"
)

// Options are the configuration knobs the policy is driven by.
type Options struct {
	Contents  bool
	Languages []string
	ByHash    bool
}

var indexSuffix = regexp.MustCompile(`(\.(gz|bz2|xz))?$`)

func quoted(s string) string { return regexp.QuoteMeta(s) }

// Select emits the relative index-file paths to fetch for one repository
// and registers the Packages/Sources files it finds into coll.
func Select(rel *release.File, d descriptor.Descriptor, opts Options, coll *indexset.Collection) []string {
	allFilenames := distinctFilenames(rel)

	seen := map[string]bool{}
	var urls []string
	emit := func(u string) {
		if !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}

	switch {
	case d.Type == descriptor.Binary && d.Flat():
		selectFlatBinary(allFilenames, emit, coll)
	case d.Type == descriptor.Binary:
		selectStructuredBinary(allFilenames, rel, d, opts, emit, coll)
	case d.Type == descriptor.Source:
		selectStructuredSource(allFilenames, d, emit, coll)
	}

	sort.Strings(urls)
	return urls
}

func distinctFilenames(rel *release.File) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range rel.Entries {
		if !seen[e.Filename] {
			seen[e.Filename] = true
			out = append(out, e.Filename)
		}
	}
	return out
}

func selectFlatBinary(filenames []string, emit func(string), coll *indexset.Collection) {
	for _, fn := range filenames {
		emit(fn)
	}
	pkgRe := regexp.MustCompile(`^Packages` + indexSuffix.String())
	for _, fn := range filenames {
		if pkgRe.MatchString(fn) {
			coll.Add(indexset.Key{Component: indexset.FlatComponent}, fn)
		}
	}
}

func selectStructuredBinary(filenames []string, rel *release.File, d descriptor.Descriptor, opts Options, emit func(string), coll *indexset.Collection) {
	for _, arch := range d.Architectures {
		for _, comp := range d.Components {
			emit(comp + "/binary-" + arch + "/Release")
			emit(comp + "/i18n/Index")

			pkgRe := regexp.MustCompile(`^` + quoted(comp+"/binary-"+arch+"/Packages") + `.*$`)
			cnfRe := regexp.MustCompile(`^` + quoted(comp+"/cnf/Commands-"+arch) + `.*$`)
			i18nCnfRe := regexp.MustCompile(`^` + quoted(comp+"/i18n/cnf/Commands-"+arch) + `.*$`)
			dep11Re := regexp.MustCompile(`^` + quoted(comp+"/dep11/") + `(Components-` + quoted(arch) + `\.yml|icons-.*\.tar).*$`)

			for _, fn := range filenames {
				if pkgRe.MatchString(fn) || cnfRe.MatchString(fn) || i18nCnfRe.MatchString(fn) || dep11Re.MatchString(fn) {
					emit(fn)
				}
			}

			if opts.Contents {
				contentsRe := regexp.MustCompile(`^Contents-` + quoted(arch) + `.*$`)
				compContentsRe := regexp.MustCompile(`^` + quoted(comp+"/Contents-"+arch) + `.*$`)
				for _, fn := range filenames {
					if contentsRe.MatchString(fn) || compContentsRe.MatchString(fn) {
						emit(fn)
					}
				}
			}

			for _, lang := range opts.Languages {
				transRe := regexp.MustCompile(`^` + quoted(comp+"/i18n/Translation-"+lang) + `.*$`)
				for _, fn := range filenames {
					if transRe.MatchString(fn) {
						emit(fn)
					}
				}
			}

			if opts.ByHash {
				families := []string{"binary-" + arch, "cnf", "i18n", "dep11"}
				for _, e := range rel.Entries {
					for _, fam := range families {
						emit(fmt.Sprintf("%s/%s/by-hash/%s/%s", comp, fam, e.Kind, e.Checksum))
					}
				}
			}

			registerRe := regexp.MustCompile(`^` + quoted(comp+"/binary-"+arch+"/Packages") + indexSuffix.String())
			for _, fn := range filenames {
				if registerRe.MatchString(fn) {
					coll.Add(indexset.Key{Component: comp, Arch: arch}, fn)
				}
			}
		}
	}
}

func selectStructuredSource(filenames []string, d descriptor.Descriptor, emit func(string), coll *indexset.Collection) {
	for _, comp := range d.Components {
		emit(comp + "/source/Release")

		sourcesRe := regexp.MustCompile(`^` + quoted(comp+"/source/Sources") + indexSuffix.String())
		for _, fn := range filenames {
			if sourcesRe.MatchString(fn) {
				emit(fn)
				coll.Add(indexset.Key{Component: comp}, fn)
			}
		}
	}
}
