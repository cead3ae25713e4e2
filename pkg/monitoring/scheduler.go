// Package monitoring polls the upstream admin API on independent per-kind
// cadences and keeps the latest snapshot of each kind.
package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/privacyshield/sazpd-console/pkg/errs"
	"github.com/privacyshield/sazpd-console/pkg/metrics"
)

// EscalationThreshold is the number of consecutive failed polls of one kind
// after which the Escalator is called.
const EscalationThreshold = 3

// Fetcher retrieves the current payload of one kind.
type Fetcher func(ctx context.Context) (any, error)

// Fetchers maps every kind to its fetcher.
type Fetchers map[Kind]Fetcher

// Escalator is notified once when a kind keeps failing.
type Escalator interface {
	Escalate(kind Kind, failures int, err error)
}

// slot holds the state of one kind. pollMu serializes polls; mu guards the
// fields read by clients so reads never wait for a poll in flight.
type slot struct {
	pollMu sync.Mutex

	mu       sync.RWMutex
	snapshot *Snapshot
	failures int
	lastErr  string
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithEscalator sets the component notified on repeated poll failures.
func WithEscalator(e Escalator) Option {
	return func(s *Scheduler) { s.escalator = e }
}

// WithMetrics records poll outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// Scheduler runs one polling loop per kind.
type Scheduler struct {
	cfg       *SchedulerConfig
	fetchers  Fetchers
	slots     map[Kind]*slot
	escalator Escalator
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time

	subMu   sync.Mutex
	subs    map[int]*subscription
	nextSub int
}

type subscription struct {
	ch    chan Update
	kinds map[Kind]bool
}

// NewScheduler creates a scheduler. Every kind needs a fetcher.
func NewScheduler(fetchers Fetchers, cfg *SchedulerConfig, opts ...Option) (*Scheduler, error) {
	if cfg == nil {
		cfg = DefaultSchedulerConfig()
	}
	s := &Scheduler{
		cfg:      cfg,
		fetchers: make(Fetchers, len(allKinds)),
		slots:    make(map[Kind]*slot, len(allKinds)),
		logger:   slog.Default(),
		now:      time.Now,
		subs:     make(map[int]*subscription),
	}
	for _, kind := range allKinds {
		f, ok := fetchers[kind]
		if !ok || f == nil {
			return nil, fmt.Errorf("no fetcher registered for monitoring kind %s", kind)
		}
		s.fetchers[kind] = f
		s.slots[kind] = &slot{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the shared configuration.
func (s *Scheduler) Config() *SchedulerConfig {
	return s.cfg
}

// Run starts one loop per kind and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup

	s.logger.Info("monitoring scheduler starting", "enabled", s.cfg.Enabled())

	for _, kind := range allKinds {
		wg.Add(1)
		go func(kind Kind) {
			defer wg.Done()
			s.loop(ctx, kind)
		}(kind)
	}

	<-ctx.Done()
	wg.Wait()
	s.logger.Info("monitoring scheduler stopped")
}

// loop polls kind once immediately and then on its interval. The toggle and
// the interval are re-read on every tick.
func (s *Scheduler) loop(ctx context.Context, kind Kind) {
	if s.cfg.Enabled() {
		_ = s.poll(ctx, kind)
	}

	timer := time.NewTimer(s.cfg.Interval(kind))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if s.cfg.Enabled() {
				_ = s.poll(ctx, kind)
			}
			timer.Reset(s.cfg.Interval(kind))
		}
	}
}

// Refresh polls kind immediately without touching its schedule.
func (s *Scheduler) Refresh(ctx context.Context, kind Kind) error {
	if !kind.Valid() {
		return errs.NotFound("unknown monitoring kind %q", kind)
	}
	return s.poll(ctx, kind)
}

// RefreshAll polls every kind concurrently and aggregates the failures.
func (s *Scheduler) RefreshAll(ctx context.Context) error {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result *multierror.Error
	)
	for _, kind := range allKinds {
		wg.Add(1)
		go func(kind Kind) {
			defer wg.Done()
			if err := s.poll(ctx, kind); err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
		}(kind)
	}
	wg.Wait()

	if err := result.ErrorOrNil(); err != nil {
		return errs.Unavailable(err, "refresh %d of %d monitoring kinds failed", len(result.Errors), len(allKinds))
	}
	return nil
}

func (s *Scheduler) poll(ctx context.Context, kind Kind) error {
	sl := s.slots[kind]
	sl.pollMu.Lock()
	defer sl.pollMu.Unlock()

	pollCtx := ctx
	if s.cfg.PollTimeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, s.cfg.PollTimeout)
		defer cancel()
	}

	start := time.Now()
	data, err := s.fetch(pollCtx, kind)
	took := time.Since(start)

	if err != nil {
		sl.mu.Lock()
		sl.failures++
		failures := sl.failures
		sl.lastErr = err.Error()
		sl.mu.Unlock()

		s.metrics.ObservePoll(string(kind), err, took, failures)
		s.logger.Warn("monitoring poll failed",
			"kind", kind,
			"consecutiveFailures", failures,
			errs.Attr(err))

		if failures == EscalationThreshold && s.escalator != nil {
			s.metrics.ObserveEscalation(string(kind))
			s.escalator.Escalate(kind, failures, err)
		}
		return errs.Unavailable(err, "poll %s", kind)
	}

	snap := Snapshot{Kind: kind, Data: data, FetchedAt: s.now()}
	sl.mu.Lock()
	sl.snapshot = &snap
	sl.failures = 0
	sl.lastErr = ""
	sl.mu.Unlock()

	s.metrics.ObservePoll(string(kind), nil, took, 0)
	s.publish(Update{Snapshot: snap})
	return nil
}

func (s *Scheduler) fetch(ctx context.Context, kind Kind) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetcher for %s panicked: %v", kind, r)
		}
	}()
	return s.fetchers[kind](ctx)
}

// Snapshot returns the last successful snapshot of kind.
func (s *Scheduler) Snapshot(kind Kind) (Snapshot, bool) {
	sl, ok := s.slots[kind]
	if !ok {
		return Snapshot{}, false
	}
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	if sl.snapshot == nil {
		return Snapshot{}, false
	}
	return *sl.snapshot, true
}

// View returns the client view of kind. A kind never fetched is stale.
func (s *Scheduler) View(kind Kind) (View, error) {
	sl, ok := s.slots[kind]
	if !ok {
		return View{}, errs.NotFound("unknown monitoring kind %q", kind)
	}
	interval := s.cfg.Interval(kind)

	sl.mu.RLock()
	defer sl.mu.RUnlock()

	v := View{
		Kind:                kind,
		IsStale:             true,
		IntervalSeconds:     int(interval / time.Second),
		ConsecutiveFailures: sl.failures,
		LastError:           sl.lastErr,
	}
	if sl.snapshot != nil {
		fetchedAt := sl.snapshot.FetchedAt
		v.Data = sl.snapshot.Data
		v.FetchedAt = &fetchedAt
		v.IsStale = sl.snapshot.IsStale(s.now(), interval)
	}
	return v, nil
}

// Views returns the view of every kind in a fixed order.
func (s *Scheduler) Views() []View {
	views := make([]View, 0, len(allKinds))
	for _, kind := range allKinds {
		v, _ := s.View(kind)
		views = append(views, v)
	}
	return views
}

// Subscribe returns a channel receiving an Update after every successful
// poll of the given kinds, or of every kind when none are given. Updates are
// dropped for subscribers that do not keep up.
func (s *Scheduler) Subscribe(buffer int, kinds ...Kind) (<-chan Update, func()) {
	if buffer < 1 {
		buffer = 1
	}
	sub := &subscription{ch: make(chan Update, buffer)}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	s.subMu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(sub.ch)
		})
	}
}

func (s *Scheduler) publish(u Update) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, sub := range s.subs {
		if sub.kinds != nil && !sub.kinds[u.Snapshot.Kind] {
			continue
		}
		select {
		case sub.ch <- u:
		default:
			s.logger.Debug("dropping monitoring update for slow subscriber", "kind", u.Snapshot.Kind)
		}
	}
}
