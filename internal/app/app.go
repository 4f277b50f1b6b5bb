// Package app implements the application layer for tally.
package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.trai.ch/tally/internal/core/domain"
	"go.trai.ch/tally/internal/core/ports"
	"go.trai.ch/tally/internal/engine/cache"
	"go.trai.ch/tally/internal/engine/challenge"
	"go.trai.ch/tally/internal/engine/queue"
	"go.trai.ch/tally/internal/engine/ratelimit"
	"go.trai.ch/tally/internal/engine/recheck"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Request asks for the post count of a subject in a channel. Months and
// Threshold override the category policy when set.
type Request struct {
	Subject   string
	Channel   string
	Category  string
	Months    *int
	Threshold *int
}

// Result is the answer to Lookup. Entry holds the cached entry, if any. Future
// is set when the entry is missing or stale and a measurement was queued.
type Result struct {
	Key       domain.CacheKey
	Threshold int
	Entry     *domain.CacheEntry
	Future    *queue.Future
}

// Pending reports whether a fresh value is still being measured.
func (r Result) Pending() bool {
	return r.Future != nil
}

// Status is a snapshot of the dispatch machinery.
type Status struct {
	Limiter   ratelimit.Status      `json:"limiter"`
	Challenge domain.ChallengeState `json:"challenge"`
	Queue     queue.Stats           `json:"queue"`
	Jobs      []queue.JobInfo       `json:"jobs"`
	Entries   int                   `json:"entries"`
}

// App represents the main application logic.
type App struct {
	cache   *cache.Store
	limiter *ratelimit.Limiter
	gate    *challenge.Gate
	queue   *queue.Queue
	kv      ports.StateStore
	watcher ports.ConfigWatcher
	log     ports.Logger

	mu       sync.RWMutex
	settings domain.Settings
}

// New creates a new App instance.
func New(
	settings domain.Settings,
	store *cache.Store,
	limiter *ratelimit.Limiter,
	gate *challenge.Gate,
	q *queue.Queue,
	kv ports.StateStore,
	watcher ports.ConfigWatcher,
	log ports.Logger,
) *App {
	return &App{
		cache:    store,
		limiter:  limiter,
		gate:     gate,
		queue:    q,
		kv:       kv,
		watcher:  watcher,
		log:      log,
		settings: settings,
	}
}

// Settings returns the current settings.
func (a *App) Settings() domain.Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings
}

// Lookup returns the cached entry for req when it is fresh and otherwise
// queues a measurement. It never waits for the network.
func (a *App) Lookup(ctx context.Context, req Request) (Result, error) {
	key, threshold, err := a.resolve(req)
	if err != nil {
		return Result{}, err
	}

	entry, err := a.cache.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}

	res := Result{Key: key, Threshold: threshold, Entry: entry}
	if a.cache.NeedsRefresh(entry, threshold) {
		res.Future = a.queue.Submit(key, threshold)
	}
	return res, nil
}

// Resolve is Lookup followed by waiting for the measurement, if one was
// queued. The queue must be running.
func (a *App) Resolve(ctx context.Context, req Request) (domain.CacheEntry, error) {
	res, err := a.Lookup(ctx, req)
	if err != nil {
		return domain.CacheEntry{}, err
	}
	if !res.Pending() {
		return *res.Entry, nil
	}
	return res.Future.Wait(ctx)
}

func (a *App) resolve(req Request) (domain.CacheKey, int, error) {
	subject := strings.TrimSpace(req.Subject)
	channel := strings.TrimSpace(req.Channel)
	if subject == "" || channel == "" {
		return domain.CacheKey{}, 0, domain.ErrEmptySubject
	}
	if domain.IsAnonymous(subject) {
		return domain.CacheKey{}, 0, zerr.With(zerr.Wrap(domain.ErrAnonymousSubject, "lookup rejected"), "subject", subject)
	}

	settings := a.Settings()
	if !settings.ChannelAllowed(channel) {
		return domain.CacheKey{}, 0, zerr.With(zerr.Wrap(domain.ErrChannelNotAllowed, "lookup rejected"), "channel", channel)
	}

	policy := settings.CategoryFor(req.Category)
	if req.Months != nil {
		policy.Months = *req.Months
	}
	if req.Threshold != nil {
		policy.Threshold = *req.Threshold
	}
	return domain.NewCacheKey(channel, policy.Months, subject), policy.Threshold, nil
}

// PurgeAll removes every cache entry. Limiter state is kept.
func (a *App) PurgeAll(ctx context.Context) (int, error) {
	n, err := a.cache.PurgeAll(ctx)
	if err != nil {
		return n, err
	}
	a.log.Info("cache purged", "entries", n)
	return n, nil
}

// PurgeKey removes one cache entry so the next lookup measures again.
func (a *App) PurgeKey(ctx context.Context, key domain.CacheKey) error {
	if err := a.cache.PurgeKey(ctx, key); err != nil {
		return err
	}
	a.log.Info("cache entry purged", "key", key.String())
	return nil
}

// ForceResume ends any dispatch cooldown and wakes parked workers.
func (a *App) ForceResume(ctx context.Context) error {
	if err := a.limiter.ForceResume(ctx); err != nil {
		return err
	}
	a.queue.Resume()
	return nil
}

// SetRateLimitParameters stores limiter parameters shared by all processes.
// Parked workers re-evaluate their wait against the new parameters.
func (a *App) SetRateLimitParameters(ctx context.Context, p domain.RateLimitParams) error {
	if err := a.limiter.SetParameters(ctx, p); err != nil {
		return err
	}
	a.queue.Resume()
	return nil
}

// List returns cache entries matching opts.
func (a *App) List(ctx context.Context, opts cache.ListOptions) ([]cache.Listed, error) {
	return a.cache.List(ctx, opts)
}

// Export writes every cache entry to w.
func (a *App) Export(ctx context.Context, w io.Writer) (int, error) {
	return a.cache.Export(ctx, w)
}

// Import merges cache entries from r.
func (a *App) Import(ctx context.Context, r io.Reader) (int, error) {
	n, err := a.cache.Import(ctx, r)
	if err != nil {
		return n, err
	}
	a.log.Info("cache imported", "entries", n)
	return n, nil
}

// Backfill schedules rechecks for legacy truncated entries.
func (a *App) Backfill(ctx context.Context) (int, error) {
	return a.cache.Backfill(ctx)
}

// Status reports limiter, challenge and queue state.
func (a *App) Status(ctx context.Context) (Status, error) {
	limiter, err := a.limiter.Status(ctx)
	if err != nil {
		return Status{}, err
	}
	entries, err := a.cache.List(ctx, cache.ListOptions{Filter: cache.FilterAll})
	if err != nil {
		return Status{}, err
	}
	return Status{
		Limiter:   limiter,
		Challenge: a.gate.State(),
		Queue:     a.queue.Stats(),
		Jobs:      a.queue.Jobs(),
		Entries:   len(entries),
	}, nil
}

// Reload applies settings that can change without a restart: categories,
// channels, the refresh cooldown, recheck policy, limiter defaults and
// challenge timeouts.
func (a *App) Reload(s domain.Settings) {
	a.mu.Lock()
	a.settings = s
	a.mu.Unlock()

	a.cache.Configure(recheck.PolicyFromSettings(s.Recheck), s.RefreshCooldown)
	a.limiter.SetDefaults(s.RateLimit.Params)
	a.gate.SetSettings(s.Challenge)
	a.queue.Resume()
	a.log.Debug("settings applied", "channels", len(s.Channels), "categories", len(s.Categories))
}

// WithQueue runs the fetch queue while fn executes.
func (a *App) WithQueue(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.queue.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return fn(gctx)
	})
	return g.Wait()
}

// Serve runs the fetch queue, the settings watcher and handler on the
// configured listen address until ctx is done.
func (a *App) Serve(ctx context.Context, handler http.Handler, configPath string) error {
	srv := &http.Server{
		Addr:              a.Settings().Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.queue.Run(ctx)
	})
	g.Go(func() error {
		return a.watcher.Watch(ctx, configPath, a.Reload)
	})
	g.Go(func() error {
		a.log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return zerr.With(zerr.Wrap(err, "http server failed"), "addr", srv.Addr)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close releases the state store.
func (a *App) Close() error {
	return a.kv.Close()
}
