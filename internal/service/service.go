// Package service resolves schedule ids to calendar feeds, builds schedules
// and keeps the schedule cache warm.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"schoolsched/internal/config"
	"schoolsched/internal/ics"
	appLog "schoolsched/internal/log"
	"schoolsched/internal/schedule"
	"schoolsched/internal/store"
	"schoolsched/internal/veracross"
)

// ErrUnknownSchedule is returned for an id that is neither configured nor a
// calendar UUID.
var ErrUnknownSchedule = errors.New("unknown schedule")

// backgroundBuildTimeout bounds rebuilds that outlive the request that
// triggered them.
const backgroundBuildTimeout = 2 * time.Minute

// SourceFactory turns one configured feed (UUID or URL) into a BlockSource.
type SourceFactory func(cfg *config.Config, feed string) (schedule.BlockSource, error)

// Service serves schedules from the cache and rebuilds them from their
// feeds when missing or stale.
type Service struct {
	cfg       atomic.Pointer[config.Config]
	store     *store.ScheduleStore
	newSource SourceFactory
	now       func() time.Time

	group singleflight.Group
	bg    sync.WaitGroup
}

// Option customises a Service.
type Option func(*Service)

// WithSourceFactory replaces the default feed-to-source mapping.
func WithSourceFactory(f SourceFactory) Option {
	return func(s *Service) { s.newSource = f }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service. fetcher is shared by every feed source; it may be
// nil when a custom SourceFactory is supplied.
func New(cfg *config.Config, st *store.ScheduleStore, fetcher *ics.Fetcher, opts ...Option) *Service {
	s := &Service{
		store: st,
		now:   time.Now,
	}
	s.cfg.Store(cfg)
	s.newSource = VeracrossSources(fetcher, func() time.Time { return s.now() })
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the configuration currently in effect.
func (s *Service) Config() *config.Config { return s.cfg.Load() }

// UpdateConfig swaps in a new configuration. Builds already running keep the
// configuration they started with.
func (s *Service) UpdateConfig(cfg *config.Config) {
	s.cfg.Store(cfg)
	appLog.Info("service config updated", "schedules", len(cfg.Schedules))
}

// Schedules lists the configured schedules.
func (s *Service) Schedules() []config.ScheduleConfig {
	return append([]config.ScheduleConfig(nil), s.cfg.Load().Schedules...)
}

// Schedule returns the schedule for id.
//
// A fresh cache entry is returned as-is. A stale one is returned too, and a
// rebuild is started in the background. On a miss the schedule is built,
// cached and returned; concurrent callers for the same id share one build.
func (s *Service) Schedule(ctx context.Context, id string) (*schedule.Schedule, error) {
	cfg := s.cfg.Load()
	t, err := resolve(cfg, id)
	if err != nil {
		return nil, err
	}

	entry, err := s.store.Get(ctx, t.id)
	switch {
	case err == nil:
		if entry.Stale(s.now(), cfg.CacheTTL()) {
			appLog.Debug("cached schedule is stale; rebuilding in background", "id", t.id, "created_at", entry.CreatedAt)
			s.rebuildInBackground(t)
		}
		return entry.Schedule, nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrVersionMismatch):
		appLog.Debug("schedule cache miss", "id", t.id, "reason", err.Error())
	default:
		appLog.Warn("schedule cache unavailable; building directly", "id", t.id, "reason", err.Error())
	}

	return s.rebuild(ctx, t)
}

// Refresh rebuilds and re-caches the schedule for id regardless of the cache.
func (s *Service) Refresh(ctx context.Context, id string) (*schedule.Schedule, error) {
	t, err := resolve(s.cfg.Load(), id)
	if err != nil {
		return nil, err
	}
	return s.rebuild(ctx, t)
}

// RefreshAll rebuilds every configured schedule. A failing schedule does not
// stop the others; all failures are returned joined.
func (s *Service) RefreshAll(ctx context.Context) error {
	var errs []error
	for _, sc := range s.cfg.Load().Schedules {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := s.Refresh(ctx, sc.ID); err != nil {
			appLog.Error("schedule refresh failed", err, "id", sc.ID)
			errs = append(errs, fmt.Errorf("%s: %w", sc.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Build assembles a schedule without touching the cache. With no feeds the
// id is resolved like Schedule does; otherwise the given feeds are used.
func (s *Service) Build(ctx context.Context, id string, feeds ...string) (*schedule.Schedule, error) {
	cfg := s.cfg.Load()
	if len(feeds) == 0 {
		t, err := resolve(cfg, id)
		if err != nil {
			return nil, err
		}
		return s.build(ctx, cfg, t)
	}
	return s.build(ctx, cfg, target{id: id, feeds: feeds})
}

// Wait blocks until background rebuilds have finished.
func (s *Service) Wait() { s.bg.Wait() }

// rebuild runs one shared build per id. The build is detached from the
// caller's cancellation so that one abandoned request cannot fail the others
// waiting on it; each caller still stops waiting when its own ctx ends.
func (s *Service) rebuild(ctx context.Context, t target) (*schedule.Schedule, error) {
	ch := s.group.DoChan(t.id, func() (any, error) {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundBuildTimeout)
		defer cancel()

		sched, err := s.build(bctx, s.cfg.Load(), t)
		if err != nil {
			return nil, err
		}
		if _, err := s.store.Put(bctx, sched); err != nil {
			// Serve the fresh build even if it could not be cached.
			appLog.Error("schedule cache write failed", err, "id", t.id)
		}
		return sched, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			appLog.Debug("schedule build shared", "id", t.id)
		}
		return res.Val.(*schedule.Schedule), nil
	}
}

func (s *Service) rebuildInBackground(t target) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		if _, err := s.rebuild(context.Background(), t); err != nil {
			appLog.Error("background schedule rebuild failed", err, "id", t.id)
		}
	}()
}

func (s *Service) build(ctx context.Context, cfg *config.Config, t target) (*schedule.Schedule, error) {
	sources := make([]schedule.BlockSource, 0, len(t.feeds))
	for _, feed := range t.feeds {
		src, err := s.newSource(cfg, feed)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", t.id, err)
		}
		sources = append(sources, src)
	}

	start := s.now()
	sched, err := schedule.Build(ctx, t.id, cfg.DivisionFor(t.id), sources...)
	if err != nil {
		return nil, err
	}
	appLog.Info("schedule built",
		"id", t.id,
		"feeds", len(t.feeds),
		"days", len(sched.Days),
		"took", s.now().Sub(start).String(),
	)
	return sched, nil
}

type target struct {
	id    string
	feeds []string
}

// resolve maps an id to its feeds: a configured schedule first, else a bare
// calendar UUID standing for a single feed.
func resolve(cfg *config.Config, id string) (target, error) {
	if sc, ok := cfg.FindSchedule(id); ok {
		if len(sc.Feeds) == 0 {
			return target{}, fmt.Errorf("schedule %s has no feeds", id)
		}
		return target{id: sc.ID, feeds: sc.Feeds}, nil
	}
	if u, err := uuid.Parse(id); err == nil {
		return target{id: u.String(), feeds: []string{u.String()}}, nil
	}
	return target{}, fmt.Errorf("%w: %q", ErrUnknownSchedule, id)
}

// VeracrossSources is the default SourceFactory: a UUID becomes a subscribe
// URL via the configured template, an http(s) URL is fetched directly.
func VeracrossSources(fetcher *ics.Fetcher, now func() time.Time) SourceFactory {
	return func(cfg *config.Config, feed string) (schedule.BlockSource, error) {
		exclude, err := cfg.ExcludePatterns()
		if err != nil {
			return nil, err
		}
		opts := veracross.Options{
			Fetcher:  fetcher,
			Location: cfg.Location(),
			Window:   veracross.WindowAround(now(), cfg.BackfillDays, cfg.HorizonDays),
			Exclude:  exclude,
		}

		if _, err := uuid.Parse(feed); err == nil {
			return veracross.NewSource(feed, cfg.FeedURLTemplate, opts)
		}
		u, err := url.Parse(feed)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("feed %q is neither a calendar UUID nor an http(s) URL", ics.RedactURL(feed))
		}
		return veracross.NewURLSource(u.Host+u.Path, feed, opts), nil
	}
}
