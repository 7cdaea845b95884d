// Package orchestrator implements the seven-stage pipeline state machine:
// Init -> FetchRelease -> ParseRelease -> FetchIndex -> Decompress
// -> BuildPlan -> FetchArtifacts -> Promote -> Sweep -> Done, reporting
// progress over a Mirror(ctx) <-chan ProgressUpdate style channel while
// driving the full component set instead of one flat download loop.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/canonical/aptmirror/internal/config"
	"github.com/canonical/aptmirror/internal/control"
	"github.com/canonical/aptmirror/internal/decompress"
	"github.com/canonical/aptmirror/internal/descriptor"
	"github.com/canonical/aptmirror/internal/fetch"
	"github.com/canonical/aptmirror/internal/indexset"
	"github.com/canonical/aptmirror/internal/lockmgr"
	"github.com/canonical/aptmirror/internal/logging"
	"github.com/canonical/aptmirror/internal/pathutil"
	"github.com/canonical/aptmirror/internal/plan"
	"github.com/canonical/aptmirror/internal/promote"
	"github.com/canonical/aptmirror/internal/refset"
	"github.com/canonical/aptmirror/internal/release"
	"github.com/canonical/aptmirror/internal/selector"
	"github.com/canonical/aptmirror/internal/sweep"
	"github.com/canonical/aptmirror/internal/vfs"
)

// Stage names, surfaced on every ProgressUpdate.
const (
	StageInit           = "Init"
	StageFetchRelease   = "FetchRelease"
	StageParseRelease   = "ParseRelease"
	StageFetchIndex     = "FetchIndex"
	StageDecompress     = "Decompress"
	StageBuildPlan      = "BuildPlan"
	StageFetchArtifacts = "FetchArtifacts"
	StagePromote        = "Promote"
	StageSweep          = "Sweep"
	StageDone           = "Done"
)

// ProgressUpdate is emitted on the channel Run/RunClean return: once at
// Init, once per excluded repository or stage error, once per swept
// repository, and a final Done update, generalising the teacher's
// ProgressUpdate type.
type ProgressUpdate struct {
	Stage      string
	Repository string
	Message    string
	Err        error
	Done       bool
}

// Fetcher is the subset of fetch.Fetcher the orchestrator drives.
type Fetcher interface {
	Download(ctx context.Context, jobs []fetch.Job, label string) []fetch.Result
}

// Decompressor is the subset of decompress.Expander the orchestrator drives.
type Decompressor interface {
	Batch(ctx context.Context, root string, bares []string, parallelism int) error
}

// Locker sweeps stale per-URL locks and holds the single-instance app lock.
type Locker interface {
	SweepStaleLocks(stagingRoot, mirrorRoot string) error
	AcquireApp() (interruptedPrevious bool, err error)
	ReleaseApp() error
}

// Orchestrator owns one run's state machine.
type Orchestrator struct {
	Config  config.Config
	FS      vfs.FileSystem
	Logger  logging.Logger
	Fetcher Fetcher
	Decomp  Decompressor
	Locker  Locker
}

// New builds an Orchestrator. A nil logger discards output.
func New(cfg config.Config, fs vfs.FileSystem, logger logging.Logger, fetcher Fetcher, decomp Decompressor, locker Locker) *Orchestrator {
	if logger == nil {
		logger = logging.Discard
	}
	return &Orchestrator{Config: cfg, FS: fs, Logger: logger, Fetcher: fetcher, Decomp: decomp, Locker: locker}
}

// repoState carries one repository's per-run working state through the
// pipeline. Index Collections and Reference Sets are per-repository, since
// the sweep candidate set is computed per repository subtree.
type repoState struct {
	desc       descriptor.Descriptor
	sanitised  string // sanitise(uri), also the mirror/skel subtree name
	excluded   bool
	coll       *indexset.Collection
	refs       *refset.Set
	releaseRel string   // relative path of whichever Release variant was found
	indexURLs  []string // full index-file URL set selected from Release, relative to the dists prefix
	modified   []string
	unmodified []string
	pending    []plan.Package
}

func (o *Orchestrator) distPrefix(d descriptor.Descriptor) string {
	if d.Flat() {
		return ""
	}
	return "dists/" + d.Distribution + "/"
}

// Run executes the full seven-stage pipeline (Init through Sweep/Done).
func (o *Orchestrator) Run(ctx context.Context) <-chan ProgressUpdate {
	return o.run(ctx, true)
}

// RunClean executes only discovery (stages Init..BuildPlan) followed by
// Sweep: a stand-alone clean mode with no artifact fetch and no promotion.
func (o *Orchestrator) RunClean(ctx context.Context) <-chan ProgressUpdate {
	return o.run(ctx, false)
}

func (o *Orchestrator) run(ctx context.Context, fetchArtifacts bool) <-chan ProgressUpdate {
	ch := make(chan ProgressUpdate, 16)
	go func() {
		defer close(ch)
		defer func() { ch <- ProgressUpdate{Stage: StageDone, Done: true} }()

		emit := func(u ProgressUpdate) {
			select {
			case ch <- u:
			case <-ctx.Done():
			}
		}

		states, err := o.init(ctx, emit)
		if err != nil {
			emit(ProgressUpdate{Stage: StageInit, Err: err})
			return
		}
		defer o.Locker.ReleaseApp()

		o.fetchRelease(ctx, states, emit)
		o.parseRelease(ctx, states, emit)
		o.fetchIndex(ctx, states, emit)
		o.decompressModified(ctx, states, emit)
		o.buildPlan(ctx, states, emit)

		if fetchArtifacts && !o.Config.Test {
			o.fetchArtifacts(ctx, states, emit)
		}
		if fetchArtifacts {
			o.promote(ctx, states, emit)
		}
		o.sweep(ctx, states, emit)
	}()
	return ch
}

// ErrNoRepositories means no repository lines survived config parsing.
// The CLI maps this to a non-zero exit rather than a quiet no-op run.
var ErrNoRepositories = errors.New("orchestrator: no repositories declared")

func (o *Orchestrator) init(ctx context.Context, emit func(ProgressUpdate)) ([]*repoState, error) {
	emit(ProgressUpdate{Stage: StageInit, Message: "validating configuration"})

	if len(o.Config.Repositories) == 0 {
		return nil, ErrNoRepositories
	}
	for _, root := range []string{o.Config.MirrorPath(), o.Config.SkelPath(), o.Config.VarPath()} {
		if err := o.FS.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("orchestrator: create root %s: %w", root, err)
		}
	}

	if err := o.Locker.SweepStaleLocks(o.Config.SkelPath(), o.Config.MirrorPath()); err != nil {
		return nil, fmt.Errorf("orchestrator: sweep stale locks: %w", err)
	}
	interrupted, err := o.Locker.AcquireApp()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: acquire app lock: %w", err)
	}
	if interrupted {
		emit(ProgressUpdate{Stage: StageInit, Message: "previous run was interrupted, forcing full reprocessing"})
	}

	states := make([]*repoState, 0, len(o.Config.Repositories))
	for _, d := range o.Config.Repositories {
		kind := indexset.KindBinary
		if d.Type == descriptor.Source {
			kind = indexset.KindSource
		}
		force := o.Config.ForceUpdate || interrupted
		states = append(states, &repoState{
			desc:      d,
			sanitised: pathutil.Sanitise(d.URI),
			coll:      indexset.New(kind, force),
			refs:      refset.New(),
		})
	}
	return states, nil
}

// releaseCandidates are tried in order; the first to materialise wins.
var releaseCandidates = []string{"InRelease", "Release"}

func (o *Orchestrator) fetchRelease(ctx context.Context, states []*repoState, emit func(ProgressUpdate)) {
	var jobs []fetch.Job
	for _, s := range states {
		prefix := o.distPrefix(s.desc)
		for _, name := range releaseCandidates {
			url := s.desc.URI + "/" + prefix + name
			dest := path.Join(o.Config.SkelPath(), s.sanitised, prefix, name)
			jobs = append(jobs, fetch.Job{URL: url, DestPath: dest, Force: true})
		}
		if !s.desc.Flat() {
			url := s.desc.URI + "/" + prefix + "Release.gpg"
			dest := path.Join(o.Config.SkelPath(), s.sanitised, prefix, "Release.gpg")
			jobs = append(jobs, fetch.Job{URL: url, DestPath: dest, Force: true})
		}
	}
	o.Fetcher.Download(ctx, jobs, StageFetchRelease)

	for _, s := range states {
		prefix := o.distPrefix(s.desc)
		found := false
		for _, name := range releaseCandidates {
			rel := prefix + name
			if o.FS.Exists(path.Join(o.Config.SkelPath(), s.sanitised, rel)) {
				s.releaseRel = rel
				s.refs.Add(rel)
				found = true
				break
			}
		}
		if !found {
			s.excluded = true
			emit(ProgressUpdate{Stage: StageFetchRelease, Repository: s.desc.URI, Message: "no Release or InRelease, excluding repository"})
			continue
		}
		if !s.desc.Flat() {
			s.refs.Add(prefix + "Release.gpg")
		}
	}
}

func (o *Orchestrator) parseRelease(ctx context.Context, states []*repoState, emit func(ProgressUpdate)) {
	for _, s := range states {
		if s.excluded {
			continue
		}
		data, err := o.FS.ReadFile(path.Join(o.Config.SkelPath(), s.sanitised, s.releaseRel))
		if err != nil {
			s.excluded = true
			emit(ProgressUpdate{Stage: StageParseRelease, Repository: s.desc.URI, Err: err})
			continue
		}

		rel, err := release.Parse(strings.NewReader(string(data)), nil)
		if err != nil {
			s.excluded = true
			emit(ProgressUpdate{Stage: StageParseRelease, Repository: s.desc.URI, Err: err})
			continue
		}

		opts := selector.Options{Contents: o.Config.Contents, Languages: o.Config.Languages, ByHash: o.Config.ByHash}
		// The full selected URL set is only recorded here; it is not added to
		// the Reference Set until fetchIndex confirms each one still exists
		// upstream, so a file the upstream has dropped is never protected
		// from the next Sweep.
		s.indexURLs = selector.Select(rel, s.desc, opts, s.coll)
		prefix := o.distPrefix(s.desc)

		s.coll.DetermineCurrentTimestamps(o.FS, path.Join(o.Config.SkelPath(), s.sanitised, prefix))
	}
}

func (o *Orchestrator) fetchIndex(ctx context.Context, states []*repoState, emit func(ProgressUpdate)) {
	var jobs []fetch.Job
	for _, s := range states {
		if s.excluded {
			continue
		}
		prefix := o.distPrefix(s.desc)
		for _, rel := range s.indexURLs {
			url := s.desc.URI + "/" + prefix + rel
			dest := path.Join(o.Config.SkelPath(), s.sanitised, prefix, rel)
			jobs = append(jobs, fetch.Job{URL: url, DestPath: dest, Force: true})
		}
	}
	o.Fetcher.Download(ctx, jobs, StageFetchIndex)

	for _, s := range states {
		if s.excluded {
			continue
		}
		prefix := o.distPrefix(s.desc)
		s.coll.DetermineDownloadTimestamps(o.FS, path.Join(o.Config.SkelPath(), s.sanitised, prefix))
		s.modified = s.coll.ModifiedFiles()
		s.unmodified = s.coll.UnmodifiedFiles()

		// Only the index files that actually materialized survive into the
		// Reference Set; one the upstream no longer serves stays absent here,
		// so nothing protects its stale on-disk copy from the next Sweep.
		for _, rel := range s.indexURLs {
			dest := path.Join(o.Config.SkelPath(), s.sanitised, prefix, rel)
			if o.FS.Exists(dest) {
				s.refs.Add(prefix + rel)
			}
		}
	}
}

func (o *Orchestrator) decompressModified(ctx context.Context, states []*repoState, emit func(ProgressUpdate)) {
	for _, s := range states {
		if s.excluded || len(s.modified) == 0 {
			continue
		}
		root := path.Join(o.Config.SkelPath(), s.sanitised, o.distPrefix(s.desc))
		if err := o.Decomp.Batch(ctx, root, s.modified, o.Config.Threads); err != nil {
			emit(ProgressUpdate{Stage: StageDecompress, Repository: s.desc.URI, Err: err})
		}
	}
}

func (o *Orchestrator) buildPlan(ctx context.Context, states []*repoState, emit func(ProgressUpdate)) {
	for _, s := range states {
		if s.excluded {
			continue
		}
		prefix := o.distPrefix(s.desc)
		stagingRoot := path.Join(o.Config.SkelPath(), s.sanitised, prefix)
		// Package Filenames in Packages/Sources are relative to the
		// repository root, not to dists/<distribution>, so the plan's
		// on-disk check happens against the unprefixed repo root.
		mirrorRoot := path.Join(o.Config.MirrorPath(), s.sanitised)

		for _, bare := range s.modified {
			data, err := o.FS.ReadFile(path.Join(stagingRoot, bare))
			if err != nil {
				continue
			}
			paragraphs, err := control.ParseParagraphs(strings.NewReader(string(data)))
			if err != nil {
				emit(ProgressUpdate{Stage: StageBuildPlan, Repository: s.desc.URI, Err: err})
				continue
			}
			pkgs := plan.Build(o.FS, paragraphs, mirrorRoot, "", o.Config.ForceUpdate, s.refs, o.Logger)
			s.pending = append(s.pending, plan.Pending(pkgs)...)
		}

		for _, bare := range s.unmodified {
			data, err := o.FS.ReadFile(path.Join(stagingRoot, bare))
			if err != nil {
				continue
			}
			paragraphs, err := control.ParseParagraphs(strings.NewReader(string(data)))
			if err != nil {
				continue
			}
			plan.ReferenceOnly(paragraphs, "", s.refs)
		}
	}
}

func (o *Orchestrator) fetchArtifacts(ctx context.Context, states []*repoState, emit func(ProgressUpdate)) {
	var jobs []fetch.Job
	for _, s := range states {
		if s.excluded {
			continue
		}
		for _, pkg := range s.pending {
			url := s.desc.URI + "/" + pkg.Filename
			dest := path.Join(o.Config.SkelPath(), s.sanitised, pkg.Filename)
			jobs = append(jobs, fetch.Job{URL: url, DestPath: dest, Force: o.Config.ForceUpdate})
		}
	}
	o.Fetcher.Download(ctx, jobs, StageFetchArtifacts)
}

func (o *Orchestrator) promote(ctx context.Context, states []*repoState, emit func(ProgressUpdate)) {
	for _, s := range states {
		if s.excluded {
			continue
		}
		stagingRoot := path.Join(o.Config.SkelPath(), s.sanitised)
		mirrorRoot := path.Join(o.Config.MirrorPath(), s.sanitised)

		p := promote.New(o.FS, o.Logger)
		if _, err := p.Promote(stagingRoot, mirrorRoot, s.refs.All()); err != nil {
			emit(ProgressUpdate{Stage: StagePromote, Repository: s.desc.URI, Err: err})
		}
	}
}

func (o *Orchestrator) sweep(ctx context.Context, states []*repoState, emit func(ProgressUpdate)) {
	if o.Config.DisableClean {
		return
	}
	for _, s := range states {
		if s.excluded || !s.desc.Clean || len(s.modified) == 0 {
			continue
		}
		mirrorRoot := path.Join(o.Config.MirrorPath(), s.sanitised)

		sw := sweep.New(o.FS, o.Logger, o.Config.Test)
		res, err := sw.Sweep(mirrorRoot, s.refs)
		if err != nil {
			emit(ProgressUpdate{Stage: StageSweep, Repository: s.desc.URI, Err: err})
			continue
		}
		emit(ProgressUpdate{Stage: StageSweep, Repository: s.desc.URI, Message: fmt.Sprintf("walked=%d deleted=%d", res.Walked, res.Deleted)})
	}
}
