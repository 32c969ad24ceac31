package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/docsmith/internal/catalog"
	"git.home.luguber.info/inful/docsmith/internal/config"
	"git.home.luguber.info/inful/docsmith/internal/events"
	"git.home.luguber.info/inful/docsmith/internal/flatten"
	"git.home.luguber.info/inful/docsmith/internal/logfields"
	"git.home.luguber.info/inful/docsmith/internal/metrics"
	"git.home.luguber.info/inful/docsmith/internal/pipeline"
	"git.home.luguber.info/inful/docsmith/internal/prebuilt"
	"git.home.luguber.info/inful/docsmith/internal/registry"
	"git.home.luguber.info/inful/docsmith/internal/retry"
	"git.home.luguber.info/inful/docsmith/internal/server"
	"git.home.luguber.info/inful/docsmith/internal/site"
	"git.home.luguber.info/inful/docsmith/internal/stats"
	"git.home.luguber.info/inful/docsmith/internal/syncdocs"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"docsmith.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Prebuilt struct{} `cmd:"" help:"Fetch download stats and regenerate the prebuilt-packages page"`

	Sync struct {
		Fresh bool `help:"Remove the destination first and fetch a new snapshot"`
	} `cmd:"" help:"Fetch and install the external docs subtree"`

	Flatten struct{} `cmd:"" help:"Flatten the docs tree into a single text corpus"`

	Build struct{} `cmd:"" help:"Run the full pipeline: sync, prebuilt, flatten, site"`

	Serve struct {
		Addr    string        `help:"Listen address" default:":8080"`
		Watch   bool          `help:"Re-run flatten when the docs tree changes"`
		Refresh time.Duration `help:"Re-fetch stats and regenerate the page at this interval (0 disables)"`
		Fresh   bool          `help:"Discard generated artifacts and run a full build before serving"`
	} `cmd:"" help:"Serve the built site locally with health and metrics endpoints"`

	Clean struct {
		Synced bool `help:"Also remove the synced docs subtree"`
	} `cmd:"" help:"Remove generated artifacts (corpus, stats store)"`
}

func main() {
	kctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", logfields.Error(err))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch kctx.Command() {
	case "prebuilt":
		err = runSingleStage(ctx, cfg, stagePrebuilt(cfg, metrics.NoopRecorder{}))
	case "sync":
		if CLI.Sync.Fresh {
			if err := os.RemoveAll(cfg.Sync.Destination); err != nil {
				slog.Error("Failed to clear sync destination", logfields.Error(err))
				os.Exit(1)
			}
		}
		err = runSingleStage(ctx, cfg, stageSync(cfg))
	case "flatten":
		err = runSingleStage(ctx, cfg, stageFlatten(cfg))
	case "build":
		err = runBuild(ctx, cfg)
	case "serve":
		err = runServe(ctx, cfg)
	case "clean":
		err = runClean(cfg, CLI.Clean.Synced)
	default:
		err = fmt.Errorf("unknown command: %s", kctx.Command())
	}
	if err != nil {
		slog.Error("Command failed", logfields.Error(err))
		os.Exit(1)
	}
}

// newPublisher returns a NATS publisher when events are enabled, otherwise a
// no-op. A broken events config degrades to no-op with a warning rather than
// failing the run.
func newPublisher(cfg *config.Config) events.Publisher {
	if !cfg.Events.Enabled {
		return events.NoopPublisher{}
	}
	pub, err := events.NewNATSPublisher(cfg.Events)
	if err != nil {
		slog.Warn("Run-event publishing disabled", logfields.Error(err))
		return events.NoopPublisher{}
	}
	return pub
}

// runSingleStage executes one stage through the pipeline runner so metrics,
// warning aggregation and run events stay uniform across commands.
func runSingleStage(ctx context.Context, cfg *config.Config, stage pipeline.Stage) error {
	publisher := newPublisher(cfg)
	defer publisher.Close()

	runner := pipeline.NewRunner(metrics.NoopRecorder{}, publisher)
	report := runner.Run(ctx, []pipeline.Stage{stage})
	if report.Failed() {
		return fmt.Errorf("%s failed", stage.Name)
	}
	return nil
}

func runBuild(ctx context.Context, cfg *config.Config) error {
	publisher := newPublisher(cfg)
	defer publisher.Close()

	runner := pipeline.NewRunner(metrics.NoopRecorder{}, publisher)
	report := runner.Run(ctx, []pipeline.Stage{
		stageSync(cfg),
		stagePrebuilt(cfg, metrics.NoopRecorder{}),
		stageFlatten(cfg),
		stageSite(cfg),
	})
	if report.Failed() {
		return fmt.Errorf("build failed")
	}
	return nil
}

// stagePrebuilt fetches download counts for the cataloged packages and
// rewrites the marked region of the prebuilt page. The recorder observes
// per-query results and the pool size.
func stagePrebuilt(cfg *config.Config, recorder metrics.Recorder) pipeline.Stage {
	return pipeline.Stage{
		Name: "prebuilt",
		Run: func(ctx context.Context) ([]string, error) {
			cat, err := catalog.Load(cfg.Catalog.Path)
			if err != nil {
				return nil, err
			}

			store, err := newStore(cfg)
			if err != nil {
				return nil, err
			}
			defer func() { _ = store.Close() }()

			if cfg.Stats.Deadline > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.Stats.Deadline)
				defer cancel()
			}

			fetcher := stats.NewFetcher(
				registry.NewClient(cfg.Stats.Timeout),
				store,
				stats.Options{
					Concurrency: cfg.Stats.Concurrency,
					Timeout:     cfg.Stats.Timeout,
					Policy: retry.Policy{
						Mode:       retry.BackoffExponential,
						Initial:    cfg.Stats.RetryInitial,
						Max:        cfg.Stats.RetryMax,
						MaxRetries: *cfg.Stats.MaxRetries,
						Jitter:     0.2,
					},
					Recorder: recorder,
				},
			)
			result, err := fetcher.Fetch(ctx, cat.List())
			if err != nil {
				return nil, err
			}

			table := prebuilt.Generate(result.Records, cfg.Prebuilt.Ecosystem)
			if err := prebuilt.ReplaceRegion(cfg.Prebuilt.PagePath, cfg.Prebuilt.BeginMarker, cfg.Prebuilt.EndMarker, table); err != nil {
				return result.Warnings, err
			}
			slog.Info("Prebuilt page regenerated",
				logfields.Path(cfg.Prebuilt.PagePath),
				slog.Int("packages", len(result.Records)))
			return result.Warnings, nil
		},
	}
}

func stageSync(cfg *config.Config) pipeline.Stage {
	return pipeline.Stage{
		Name: "sync",
		Run: func(ctx context.Context) ([]string, error) {
			outcome, err := syncdocs.NewJob(cfg.Sync).Run(ctx)
			if err != nil {
				return nil, err
			}
			if outcome.Skipped {
				slog.Info("Sync skipped, destination already populated", logfields.Path(cfg.Sync.Destination))
			} else {
				slog.Info("Docs subtree synced",
					logfields.Path(cfg.Sync.Destination),
					slog.Int("extracted", outcome.Extracted),
					slog.Int("stripped", outcome.Stripped))
			}
			return outcome.Warnings, nil
		},
	}
}

func stageFlatten(cfg *config.Config) pipeline.Stage {
	return pipeline.Stage{
		Name: "flatten",
		Run: func(_ context.Context) ([]string, error) {
			result, err := flatten.Run(cfg.Flatten.Root, cfg.Flatten.Exclusions, cfg.Flatten.Output)
			if err != nil {
				return nil, err
			}
			if result.Unchanged {
				slog.Info("Corpus unchanged, write skipped", logfields.Path(cfg.Flatten.Output))
			} else {
				slog.Info("Corpus written",
					logfields.Path(cfg.Flatten.Output),
					slog.Int("files", result.Files),
					slog.Int("bytes", result.Bytes))
			}
			return nil, nil
		},
	}
}

func stageSite(cfg *config.Config) pipeline.Stage {
	return pipeline.Stage{
		Name: "site",
		Run: func(ctx context.Context) ([]string, error) {
			return nil, site.Build(ctx, cfg.Site)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if CLI.Serve.Fresh {
		if err := runClean(cfg, true); err != nil {
			return err
		}
		if err := runBuild(ctx, cfg); err != nil {
			return err
		}
	}

	recorder := metrics.NewPrometheusRecorder(prom.NewRegistry())
	publisher := newPublisher(cfg)
	defer publisher.Close()

	runner := pipeline.NewRunner(recorder, publisher)

	opts := server.Options{
		Addr:     CLI.Serve.Addr,
		Dir:      serveDir(cfg),
		Recorder: recorder,
	}
	if CLI.Serve.Watch {
		opts.WatchRoot = cfg.Flatten.Root
		opts.OnChange = func() {
			runner.Run(ctx, []pipeline.Stage{stageFlatten(cfg)})
		}
	}
	if CLI.Serve.Refresh > 0 {
		opts.RefreshInterval = CLI.Serve.Refresh
		opts.RefreshTask = func() {
			runner.Run(ctx, []pipeline.Stage{stagePrebuilt(cfg, recorder)})
		}
	}
	return server.New(opts).Run(ctx)
}

// serveDir picks the directory to serve: the generator's output when
// configured, otherwise the raw docs tree.
func serveDir(cfg *config.Config) string {
	if cfg.Site.Output != "" {
		return cfg.Site.Output
	}
	return cfg.Flatten.Root
}

func runClean(cfg *config.Config, synced bool) error {
	targets := []string{cfg.Flatten.Output, cfg.Stats.StorePath}
	if synced {
		targets = append(targets, cfg.Sync.Destination)
	}
	for _, target := range targets {
		if target == "" {
			continue
		}
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("remove %s: %w", target, err)
		}
		slog.Info("Removed", logfields.Path(target))
	}
	return nil
}

// newStore opens the persistent stats store, or an in-memory one when no
// store path is configured.
func newStore(cfg *config.Config) (stats.Store, error) {
	if cfg.Stats.StorePath == "" {
		return stats.NewMemoryStore(), nil
	}
	return stats.NewSQLiteStore(cfg.Stats.StorePath)
}
