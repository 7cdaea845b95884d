// Package fetch implements the Fetcher collaborator: bounded
// parallel retrieval of a URL list, with per-URL lock files for crash
// resumability and atomic tmp-then-rename writes (temp file + rename,
// streaming through a hasher), accepting a destination mapper, a lock
// manager, and a rate limiter instead of being hardwired to one fixed layout.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"path"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/canonical/aptmirror/internal/logging"
	"github.com/canonical/aptmirror/internal/vfs"
)

// Locker is the subset of the Lock Manager the Fetcher needs: acquire a
// per-URL lock before transfer, release it after (success or failure).
type Locker interface {
	LockURL(url string) (release func(), err error)
}

// Job is one file to retrieve.
type Job struct {
	URL      string
	DestPath string
	Force    bool // bypass the refuse-overwrite-unless-forced rule
}

// Result reports the outcome of one Job. Err is nil on success; a failed Job
// never aborts the batch, manifesting only as "file absent after fetch".
type Result struct {
	Job Job
	Err error
}

// Options configures a Fetcher. The directive file's noCheckCertificate,
// proxy, and certificate options are threaded through the
// http.Client/http.Transport by the caller that builds one, not here. The
// authNoChallenge option is parsed into config.Config but is not applied to
// any request.
type Options struct {
	Parallelism int
	RateLimit   *rate.Limiter // nil means unlimited
}

// Fetcher performs bounded-parallel HTTP downloads with lock-file
// resumability. The core is agnostic to transport; this is the HTTP
// implementation the CLI wires in by default.
type Fetcher struct {
	FS     vfs.FileSystem
	Client *http.Client
	Locker Locker
	Logger logging.Logger
	Opts   Options
}

// New builds a Fetcher. A nil client defaults to http.DefaultClient; a nil
// logger discards output.
func New(fs vfs.FileSystem, client *http.Client, locker Locker, logger logging.Logger, opts Options) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = logging.Discard
	}
	return &Fetcher{FS: fs, Client: client, Locker: locker, Logger: logger, Opts: opts}
}

// Download retrieves every job in jobs with bounded parallelism. label is
// used only for logging. Individual job failures are reported in the
// returned slice and never abort the batch.
func (f *Fetcher) Download(ctx context.Context, jobs []Job, label string) []Result {
	results := make([]Result, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	if f.Opts.Parallelism > 0 {
		g.SetLimit(f.Opts.Parallelism)
	}

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			results[i] = Result{Job: job, Err: f.one(ctx, job)}
			return nil
		})
	}
	_ = g.Wait()

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			f.Logger.Warn("fetch: job failed", "kind", label, "url", r.Job.URL, "err", r.Err)
		}
	}
	f.Logger.Info("fetch: batch complete", "kind", label, "total", len(jobs), "failed", failed)
	return results
}

func (f *Fetcher) one(ctx context.Context, job Job) error {
	if f.Opts.RateLimit != nil {
		if err := f.Opts.RateLimit.Wait(ctx); err != nil {
			return err
		}
	}

	if !job.Force {
		if _, err := f.FS.Stat(job.DestPath); err == nil {
			return fmt.Errorf("fetch: refusing to overwrite existing file %s without force", job.DestPath)
		}
	}

	var release func()
	if f.Locker != nil {
		r, err := f.Locker.LockURL(job.URL)
		if err != nil {
			return fmt.Errorf("fetch: lock %s: %w", job.URL, err)
		}
		release = r
	}
	defer func() {
		if release != nil {
			release()
		}
	}()

	if err := f.FS.MkdirAll(path.Dir(job.DestPath), 0o755); err != nil {
		return fmt.Errorf("fetch: mkdir: %w", err)
	}

	tmpPath := job.DestPath + ".tmp"
	out, err := f.FS.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("fetch: create temp: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.URL, nil)
	if err != nil {
		out.Close()
		return fmt.Errorf("fetch: request: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		out.Close()
		f.FS.Remove(tmpPath)
		return fmt.Errorf("fetch: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		out.Close()
		f.FS.Remove(tmpPath)
		return fmt.Errorf("fetch: status %d for %s", resp.StatusCode, job.URL)
	}

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, hasher), resp.Body); err != nil {
		out.Close()
		f.FS.Remove(tmpPath)
		return fmt.Errorf("fetch: copy: %w", err)
	}
	if err := out.Close(); err != nil {
		f.FS.Remove(tmpPath)
		return fmt.Errorf("fetch: close temp: %w", err)
	}
	_ = hex.EncodeToString(hasher.Sum(nil))

	if err := f.FS.Rename(tmpPath, job.DestPath); err != nil {
		return fmt.Errorf("fetch: rename: %w", err)
	}
	return nil
}
