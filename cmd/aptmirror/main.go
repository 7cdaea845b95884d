// Command aptmirror drives the seven-stage pipeline against a directive
// file, the CLI-boundary wiring for the engine in internal/orchestrator.
// Config path resolution follows flag, then environment, then a local
// ./aptmirror.conf, then an embedded fallback, via cobra/pflag and a
// directive-file grammar.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	_ "embed"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/canonical/aptmirror/internal/config"
	"github.com/canonical/aptmirror/internal/decompress"
	"github.com/canonical/aptmirror/internal/fetch"
	"github.com/canonical/aptmirror/internal/lockmgr"
	"github.com/canonical/aptmirror/internal/logging"
	"github.com/canonical/aptmirror/internal/orchestrator"
	"github.com/canonical/aptmirror/internal/progress"
	"github.com/canonical/aptmirror/internal/vfs"
)

//go:embed aptmirror.default.conf
var embeddedDefaultConfig []byte

const configPathEnv = "APTMIRROR_CONFIG_PATH"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		confPath   string
		testMode   bool
		cleanOnly  bool
		noProgress bool
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Synchronise the configured repositories into the local mirror",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd.Context(), confPath, testMode, cleanOnly, noProgress)
		},
	}
	runCmd.Flags().StringVar(&confPath, "conf", "", "path to the directive configuration file")
	runCmd.Flags().BoolVar(&testMode, "test", false, "discover and plan only, perform no artifact downloads or sweeps")
	runCmd.Flags().BoolVar(&cleanOnly, "clean", false, "stand-alone mode: discovery and sweep only, no artifact fetch")
	runCmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the human progress display")

	rootCmd := &cobra.Command{Use: "aptmirror", SilenceUsage: true, SilenceErrors: true}
	rootCmd.AddCommand(runCmd)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "aptmirror:", err)
		return 1
	}
	return 0
}

func execute(ctx context.Context, confPath string, testMode, cleanOnly, noProgress bool) error {
	logger := logging.New(os.Stderr, logging.LevelInfo)

	data, err := loadConfig(confPath)
	if err != nil {
		return fmt.Errorf("aptmirror: %w", err)
	}

	cfg, err := config.Parse(strings.NewReader(string(data)), config.Defaults(), logger)
	if err != nil {
		return fmt.Errorf("aptmirror: parse config: %w", err)
	}
	if testMode {
		cfg.Test = true
	}

	logger = logging.New(os.Stderr, cfg.LogLevel)

	fs := vfs.NewOSFileSystem()
	locker := lockmgr.New(fs, logger, cfg.VarPath())
	client := httpClient(cfg)

	var limiter *rate.Limiter
	if bps := parseLimitRate(cfg.LimitRate); bps > 0 {
		limiter = rate.NewLimiter(rate.Limit(bps), int(bps))
	}
	fetcher := fetch.New(fs, client, locker, logger, fetch.Options{Parallelism: cfg.Threads, RateLimit: limiter})
	decomp := decompress.New(fs, logger)

	orch := orchestrator.New(cfg, fs, logger, fetcher, decomp, locker)

	var updates <-chan orchestrator.ProgressUpdate
	if cleanOnly {
		updates = orch.RunClean(ctx)
	} else {
		updates = orch.Run(ctx)
	}

	if noProgress {
		var fatal error
		for u := range updates {
			if u.Err != nil {
				if u.Err == orchestrator.ErrNoRepositories {
					fatal = u.Err
				}
				logger.Warn("stage error", "stage", u.Stage, "repository", u.Repository, "err", u.Err)
			}
		}
		return fatal
	}
	return progress.Render(updates, os.Stdout)
}

// loadConfig resolves the directive file: explicit flag first, then
// environment variable, then a conventional local file, then the
// embedded fallback.
func loadConfig(flagPath string) ([]byte, error) {
	if p := firstNonEmpty(flagPath, os.Getenv(configPathEnv)); p != "" {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", p, err)
		}
		return data, nil
	}
	if data, err := os.ReadFile("aptmirror.conf"); err == nil {
		return data, nil
	}
	return embeddedDefaultConfig, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// httpClient builds the transport the fetcher's proxy, client certificate,
// and certificate-verification options are threaded into -- all concerns
// net/http.Transport already models directly, so no third-party HTTP
// client layer is introduced here.
func httpClient(cfg config.Config) *http.Client {
	transport := &http.Transport{}

	if cfg.UseProxy {
		proxyURL := cfg.HTTPSProxy
		if proxyURL == "" {
			proxyURL = cfg.HTTPProxy
		}
		if proxyURL != "" {
			if u, err := url.Parse(proxyURL); err == nil {
				if cfg.ProxyUser != "" {
					u.User = url.UserPassword(cfg.ProxyUser, cfg.ProxyPass)
				}
				transport.Proxy = http.ProxyURL(u)
			}
		}
	}

	if cfg.NoCheckCertificate || cfg.Certificate != "" || cfg.CACertificate != "" {
		transport.TLSClientConfig = tlsConfig(cfg)
	}

	return &http.Client{Transport: transport}
}

func tlsConfig(cfg config.Config) *tls.Config {
	tc := &tls.Config{InsecureSkipVerify: cfg.NoCheckCertificate} //nolint:gosec // explicit config opt-in via noCheckCertificate

	if cfg.CACertificate != "" {
		if pem, err := os.ReadFile(cfg.CACertificate); err == nil {
			pool := x509.NewCertPool()
			if pool.AppendCertsFromPEM(pem) {
				tc.RootCAs = pool
			}
		}
	}
	if cfg.Certificate != "" && cfg.PrivateKey != "" {
		if cert, err := tls.LoadX509KeyPair(cfg.Certificate, cfg.PrivateKey); err == nil {
			tc.Certificates = []tls.Certificate{cert}
		}
	}
	return tc
}

func parseLimitRate(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	mult := 1.0
	switch {
	case strings.HasSuffix(raw, "g"):
		mult = 1 << 30
		raw = strings.TrimSuffix(raw, "g")
	case strings.HasSuffix(raw, "m"):
		mult = 1 << 20
		raw = strings.TrimSuffix(raw, "m")
	case strings.HasSuffix(raw, "k"):
		mult = 1 << 10
		raw = strings.TrimSuffix(raw, "k")
	}
	var n float64
	if _, err := fmt.Sscanf(raw, "%f", &n); err != nil {
		return 0
	}
	return n * mult
}
