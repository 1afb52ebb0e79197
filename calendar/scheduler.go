package calendar

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/thisisthedave/tasknotes-sub002/clocker"
)

// localWatchInterval is how often local feed files are polled for
// modification between scheduled refreshes, so that edits show up
// faster than the coarse refresh interval.
const localWatchInterval = 15 * time.Second

// SchedulerOpts tune a subscription scheduler. Zero fields take the
// defaults.
type SchedulerOpts struct {
	// Fetcher retrieves raw feed text. Nil means NewFetcher().
	Fetcher Fetcher
	// Location interprets floating feed instants. Nil means time.Local.
	Location *time.Location
	// Now is the scheduler's clock. Nil means time.Now.
	Now clocker.NowFunc
}

// Scheduler owns the refresh timers and file watches for every tracked
// subscription and keeps the cache populated. Exactly one refresh
// writer exists per subscription: the cron jobs and manual Refresh
// calls serialize on the scheduler itself.
type Scheduler struct {
	fetcher Fetcher
	cache   *Cache
	cron    *cron.Cron
	loc     *time.Location
	now     clocker.NowFunc

	mu   sync.Mutex
	subs map[string]*subscriptionState
}

// subscriptionState pairs a subscription record with its scheduled
// jobs. Entry IDs of zero mean no job is registered.
type subscriptionState struct {
	sub     Subscription
	refresh cron.EntryID
	watch   cron.EntryID
	lastMod time.Time // last seen mtime for local feeds
}

// NewScheduler creates a scheduler that keeps cache populated. Call
// Start to begin timer-driven refreshes.
func NewScheduler(cache *Cache, opts SchedulerOpts) *Scheduler {
	if opts.Fetcher == nil {
		opts.Fetcher = NewFetcher()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		fetcher: opts.Fetcher,
		cache:   cache,
		cron:    cron.New(),
		loc:     opts.Location,
		now:     opts.Now,
		subs:    make(map[string]*subscriptionState),
	}
}

// Start begins timer-driven refreshes.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels every owned timer and waits for in-flight refresh jobs
// to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// SetSubscription adds or replaces a subscription and reschedules its
// jobs. Disabled subscriptions keep their record but own no timers.
// Fetch bookkeeping survives edits, so a settings change does not wipe
// the last error off a subscription.
func (s *Scheduler) SetSubscription(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.subs[sub.ID]
	if ok {
		s.cancelJobsLocked(st)
		sub.LastFetchedAt = st.sub.LastFetchedAt
		sub.LastError = st.sub.LastError
		st.sub = sub
	} else {
		st = &subscriptionState{sub: sub}
		s.subs[sub.ID] = st
	}

	if !sub.Enabled {
		return
	}
	s.scheduleLocked(st)
}

func (s *Scheduler) scheduleLocked(st *subscriptionState) {
	id := st.sub.ID

	refresh, err := s.cron.AddFunc("@every "+st.sub.RefreshInterval().String(), func() {
		s.refreshJob(id)
	})
	if err != nil {
		slog.Error(
			"failed to schedule subscription refresh",
			"subscription", id,
			"err", err)
		return
	}
	st.refresh = refresh

	if st.sub.Kind != SubscriptionLocal {
		return
	}
	watch, err := s.cron.AddFunc("@every "+localWatchInterval.String(), func() {
		s.watchJob(id)
	})
	if err != nil {
		slog.Error(
			"failed to schedule feed file watch",
			"subscription", id,
			"err", err)
		return
	}
	st.watch = watch
}

func (s *Scheduler) cancelJobsLocked(st *subscriptionState) {
	if st.refresh != 0 {
		s.cron.Remove(st.refresh)
		st.refresh = 0
	}
	if st.watch != 0 {
		s.cron.Remove(st.watch)
		st.watch = 0
	}
}

// RemoveSubscription cancels the subscription's timers and drops its
// cache entry.
func (s *Scheduler) RemoveSubscription(id string) {
	s.mu.Lock()
	st, ok := s.subs[id]
	if ok {
		s.cancelJobsLocked(st)
		delete(s.subs, id)
	}
	s.mu.Unlock()

	if ok {
		s.cache.Drop(id)
	}
}

// Subscription returns the live record for one subscription, including
// the scheduler-owned fetch bookkeeping.
func (s *Scheduler) Subscription(id string) (Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.subs[id]
	if !ok {
		return Subscription{}, false
	}
	return st.sub, true
}

// Subscriptions lists every tracked subscription, sorted by ID.
func (s *Scheduler) Subscriptions() []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := make([]Subscription, 0, len(s.subs))
	for _, st := range s.subs {
		subs = append(subs, st.sub)
	}
	slices.SortFunc(subs, func(a, b Subscription) int {
		return strings.Compare(a.ID, b.ID)
	})
	return subs
}

// refreshJob is the timer callback. Errors land on the subscription
// record and in the log; the previous cache entry stays readable.
func (s *Scheduler) refreshJob(id string) {
	if err := s.Refresh(context.Background(), id); err != nil {
		slog.Error(
			"subscription refresh failed",
			"subscription", id,
			"err", err)
	}
}

// watchJob refreshes a local subscription as soon as its file changes,
// instead of waiting out the coarse refresh interval.
func (s *Scheduler) watchJob(id string) {
	s.mu.Lock()
	st, ok := s.subs[id]
	if !ok || st.sub.Kind != SubscriptionLocal {
		s.mu.Unlock()
		return
	}
	path := st.sub.Path
	last := st.lastMod
	s.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil {
		// A missing file surfaces through the next scheduled refresh.
		return
	}
	if !info.ModTime().After(last) {
		return
	}

	s.mu.Lock()
	if st, ok := s.subs[id]; ok {
		st.lastMod = info.ModTime()
	}
	s.mu.Unlock()

	slog.Debug(
		"local feed changed, refreshing",
		"subscription", id,
		"path", path)
	s.refreshJob(id)
}

// Refresh fetches and re-expands one subscription immediately. On
// failure the previous cache entry stays readable until its TTL runs
// out and the error is recorded on the subscription.
func (s *Scheduler) Refresh(ctx context.Context, id string) error {
	s.mu.Lock()
	st, ok := s.subs[id]
	if !ok {
		s.mu.Unlock()
		return errors.Errorf("unknown subscription %q", id)
	}
	sub := st.sub
	s.mu.Unlock()

	events, err := s.fetchAndExpand(ctx, sub)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok = s.subs[id]
	if !ok {
		// Removed while we were fetching; nothing to record.
		return nil
	}
	if err != nil {
		st.sub.LastError = err.Error()
		return err
	}

	s.cache.Put(id, events, now, sub.RefreshInterval())
	st.sub.LastError = ""
	st.sub.LastFetchedAt = now

	slog.DebugContext(ctx,
		"subscription refreshed",
		"subscription", id,
		"source", sub.Source(),
		"events", len(events))
	return nil
}

// RefreshAll refreshes every enabled subscription, logging failures
// instead of stopping on them. It is meant for startup, before the
// timers have had a chance to run.
func (s *Scheduler) RefreshAll(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.subs))
	for id, st := range s.subs {
		if st.sub.Enabled {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.Refresh(ctx, id); err != nil {
			slog.Error(
				"initial subscription refresh failed",
				"subscription", id,
				"err", err)
		}
	}
}

func (s *Scheduler) fetchAndExpand(ctx context.Context, sub Subscription) ([]Event, error) {
	data, err := s.fetcher.Fetch(ctx, sub)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch %s", sub.Source())
	}
	events, err := ParseFeed(sub.ID, data, ExpandOptions{
		Now:      s.now(),
		Location: s.loc,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", sub.Source())
	}
	return events, nil
}
