package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/docsmith/internal/catalog"
	apperrors "git.home.luguber.info/inful/docsmith/internal/errors"
	"git.home.luguber.info/inful/docsmith/internal/logfields"
	"git.home.luguber.info/inful/docsmith/internal/metrics"
	"git.home.luguber.info/inful/docsmith/internal/registry"
	"git.home.luguber.info/inful/docsmith/internal/retry"
)

// Options configures a Fetcher.
type Options struct {
	Concurrency int           // bounded worker pool size
	Timeout     time.Duration // per registry query
	Policy      retry.Policy
	Recorder    metrics.Recorder // nil means no metrics
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return Options{
		Concurrency: 5,
		Timeout:     10 * time.Second,
		Policy:      retry.DefaultPolicy(),
	}
}

// Fetcher queries registries for download counts with graceful per-package
// degradation.
type Fetcher struct {
	client *registry.Client
	store  Store
	opts   Options
}

// Result carries one record per requested package (in input order) plus the
// warnings accumulated while degrading.
type Result struct {
	Records  []Record
	Warnings []string
}

// NewFetcher builds a Fetcher backed by the given registry client and store.
func NewFetcher(client *registry.Client, store Store, opts Options) *Fetcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultOptions().Concurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	return &Fetcher{client: client, store: store, opts: opts}
}

type fetchOutcome struct {
	rec     Record
	warning string
}

// Fetch queries each package's registry concurrently and returns one record
// per package. A package whose query exhausts retries degrades to its cached
// record (Stale=true) or to an absent count with a warning; only an unknown
// registry scheme or a store failure is fatal. The resulting records are
// written back to the store, overwriting each package's entry.
func (f *Fetcher) Fetch(ctx context.Context, pkgs []catalog.Package) (*Result, error) {
	// Scheme resolution is validated up front so a catalog typo fails the run
	// before any network traffic.
	for _, pkg := range pkgs {
		if !f.client.Supported(pkg.RegistryScheme()) {
			return nil, apperrors.RegistryUnknown(pkg.RegistryScheme()).
				WithContext("package", pkg.Name)
		}
	}

	f.opts.Recorder.SetFetchConcurrency(f.opts.Concurrency)

	outcomes := runOrdered(pkgs, f.opts.Concurrency, func(pkg catalog.Package) (fetchOutcome, error) {
		return f.fetchOne(ctx, pkg), nil
	})

	result := &Result{Records: make([]Record, 0, len(pkgs))}
	for _, o := range outcomes {
		result.Records = append(result.Records, o.Value.rec)
		if o.Value.warning != "" {
			result.Warnings = append(result.Warnings, o.Value.warning)
		}
	}

	// Persist with a context that survives the fetch deadline: losing the
	// cache update would make the next run's fallback worse for no reason.
	if err := f.store.PutAll(context.WithoutCancel(ctx), result.Records); err != nil {
		return nil, apperrors.StoreError("put", err)
	}
	return result, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, pkg catalog.Package) fetchOutcome {
	scheme, id := pkg.RegistryScheme(), pkg.RegistryID()

	var lastErr error
	for attempt := 0; attempt <= f.opts.Policy.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		if attempt > 0 {
			slog.Debug("retrying registry query", logfields.Package(pkg.Name), slog.Int("attempt", attempt))
		}

		qctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
		count, err := f.client.Downloads(qctx, scheme, id)
		cancel()
		f.opts.Recorder.IncRegistryQueryResult(err == nil)
		if err == nil {
			return fetchOutcome{rec: Record{
				Package:   pkg,
				Downloads: &count,
				AsOf:      time.Now().UTC(),
			}}
		}
		lastErr = err
		if !apperrors.IsRetryable(err) || attempt == f.opts.Policy.MaxRetries {
			break
		}

		select {
		case <-time.After(f.opts.Policy.JitteredDelay(attempt + 1)):
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = f.opts.Policy.MaxRetries // abandon in-flight work on deadline
		}
	}

	return f.fallback(ctx, pkg, lastErr)
}

// fallback reuses the prior cached record (marked stale) or emits an absent
// count; either way the batch continues.
func (f *Fetcher) fallback(ctx context.Context, pkg catalog.Package, cause error) fetchOutcome {
	cached, err := f.store.Get(context.WithoutCancel(ctx), pkg)
	if err == nil {
		slog.Warn("registry query failed, using cached record",
			logfields.Package(pkg.Name), logfields.Registry(pkg.Registry), logfields.Error(cause))
		return fetchOutcome{
			rec: Record{
				Package:   pkg,
				Downloads: cached.Downloads,
				AsOf:      cached.AsOf,
				Stale:     true,
			},
			warning: fmt.Sprintf("stats for %s are stale (query failed: %v)", pkg.Name, cause),
		}
	}
	if !IsNotFound(err) {
		slog.Warn("stats store read failed during fallback", logfields.Package(pkg.Name), logfields.Error(err))
	}

	slog.Warn("registry query failed, no cached record",
		logfields.Package(pkg.Name), logfields.Registry(pkg.Registry), logfields.Error(cause))
	return fetchOutcome{
		rec: Record{
			Package: pkg,
			AsOf:    time.Now().UTC(),
		},
		warning: fmt.Sprintf("no download count available for %s (query failed: %v)", pkg.Name, cause),
	}
}
