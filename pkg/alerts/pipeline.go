package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/privacyshield/sazpd-console/pkg/errs"
	"github.com/privacyshield/sazpd-console/pkg/metrics"
	"github.com/privacyshield/sazpd-console/pkg/monitoring"
)

// Service is the external alert service that owns upstream alerts.
type Service interface {
	Acknowledge(ctx context.Context, id string) error
	Resolve(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// SnapshotSource is the part of the monitoring scheduler the pipeline uses.
type SnapshotSource interface {
	Snapshot(kind monitoring.Kind) (monitoring.Snapshot, bool)
	Refresh(ctx context.Context, kind monitoring.Kind) error
	Subscribe(buffer int, kinds ...monitoring.Kind) (<-chan monitoring.Update, func())
}

// Toggle reports whether real-time monitoring is on.
type Toggle interface {
	Enabled() bool
}

// PipelineConfig controls notification delivery.
type PipelineConfig struct {
	NotifyTimeout time.Duration // Max time a notifier may take. Default 5s.
}

// DefaultPipelineConfig returns the default pipeline configuration.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{NotifyTimeout: 5 * time.Second}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithNotifier sets the notifier. The default logs notifications.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) {
		if n != nil {
			p.notifier = n
		}
	}
}

// WithService sets the external alert service for upstream alert actions.
func WithService(s Service) Option {
	return func(p *Pipeline) { p.service = s }
}

// WithMetrics records notification counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// Pipeline tracks unacknowledged critical alerts and local alerts.
type Pipeline struct {
	source   SnapshotSource
	toggle   Toggle
	cfg      *PipelineConfig
	service  Service
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	// observeMu orders Observe calls so prevCritical follows snapshot order.
	observeMu    sync.Mutex
	prevCritical int

	mu    sync.RWMutex
	local map[string]*Alert
}

// NewPipeline creates a pipeline reading alert snapshots from source.
func NewPipeline(source SnapshotSource, toggle Toggle, cfg *PipelineConfig, opts ...Option) *Pipeline {
	if cfg == nil {
		cfg = DefaultPipelineConfig()
	}
	p := &Pipeline{
		source: source,
		toggle: toggle,
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		local:  make(map[string]*Alert),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.notifier == nil {
		p.notifier = NewLogNotifier(p.logger)
	}
	return p
}

// Observe processes one alerts snapshot. It fires exactly one notification
// when the number of unacknowledged critical alerts grew since the previous
// snapshot, and reports whether it did. It is a no-op while real-time
// monitoring is disabled.
func (p *Pipeline) Observe(snapshot []Alert) bool {
	if p.toggle != nil && !p.toggle.Enabled() {
		return false
	}

	p.observeMu.Lock()
	defer p.observeMu.Unlock()

	var critical []Alert
	for _, a := range snapshot {
		if a.IsUnacknowledgedCritical() {
			critical = append(critical, a)
		}
	}
	count := len(critical)
	prev := p.prevCritical
	p.prevCritical = count

	fire := count > prev
	p.metrics.ObserveCritical(count, fire)
	if fire {
		p.notify(Notification{
			Count:    count,
			Previous: prev,
			Alerts:   critical,
			At:       p.now(),
		})
	}
	return fire
}

// notify delivers n synchronously. Errors and panics are logged only.
func (p *Pipeline) notify(n Notification) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("alert notifier panicked", "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.NotifyTimeout)
	defer cancel()

	if err := p.notifier.Notify(ctx, n); err != nil {
		p.logger.Error("failed to deliver alert notification", "count", n.Count, errs.Attr(err))
	}
}

// Acknowledge marks an alert as acknowledged.
func (p *Pipeline) Acknowledge(ctx context.Context, id string) error {
	if p.updateLocal(id, func(a *Alert) { a.Acknowledged = true }) {
		p.logger.Info("local alert acknowledged", "alertID", id)
		return nil
	}
	return p.forward(ctx, "acknowledge", id, func(s Service) error { return s.Acknowledge(ctx, id) })
}

// Resolve marks an alert as resolved, which also acknowledges it.
func (p *Pipeline) Resolve(ctx context.Context, id string) error {
	if p.updateLocal(id, func(a *Alert) { a.Acknowledged, a.Resolved = true, true }) {
		p.logger.Info("local alert resolved", "alertID", id)
		return nil
	}
	return p.forward(ctx, "resolve", id, func(s Service) error { return s.Resolve(ctx, id) })
}

// Delete removes an alert in any state.
func (p *Pipeline) Delete(ctx context.Context, id string) error {
	p.mu.Lock()
	_, ok := p.local[id]
	delete(p.local, id)
	p.mu.Unlock()
	if ok {
		p.logger.Info("local alert deleted", "alertID", id)
		return nil
	}
	return p.forward(ctx, "delete", id, func(s Service) error { return s.Delete(ctx, id) })
}

func (p *Pipeline) updateLocal(id string, fn func(*Alert)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.local[id]
	if ok {
		fn(a)
	}
	return ok
}

// forward sends an action on an upstream alert to the alert service and
// refreshes the alerts snapshot once it succeeded.
func (p *Pipeline) forward(ctx context.Context, action, id string, call func(Service) error) error {
	if p.service == nil {
		return errs.NotFound("alert %q not found", id)
	}
	if err := call(p.service); err != nil {
		p.logger.Warn("alert action failed", "action", action, "alertID", id, errs.Attr(err))
		return err
	}
	p.logger.Info("alert action forwarded", "action", action, "alertID", id)

	if p.source != nil {
		if err := p.source.Refresh(ctx, monitoring.KindAlerts); err != nil {
			p.logger.Warn("failed to refresh alerts after action", "action", action, "alertID", id, errs.Attr(err))
		}
	}
	return nil
}

// Escalate synthesizes a local warning alert for a kind whose polls keep
// failing. It satisfies monitoring.Escalator.
func (p *Pipeline) Escalate(kind monitoring.Kind, failures int, err error) {
	a := &Alert{
		ID:        uuid.New().String(),
		Severity:  SeverityWarning,
		CreatedAt: p.now(),
		Message:   fmt.Sprintf("%s monitoring failed %d times in a row: %v", kind, failures, err),
		Source:    OriginLocal,
	}

	p.mu.Lock()
	p.local[a.ID] = a
	p.mu.Unlock()

	p.logger.Warn("monitoring escalated to alert",
		"kind", kind,
		"failures", failures,
		"alertID", a.ID)
}

// ListFilter narrows List results.
type ListFilter struct {
	Severity        Severity
	IncludeResolved bool
}

// ListResult is the merged alert list with its per-severity summary.
type ListResult struct {
	Alerts  []Alert `json:"alerts"`
	Summary Summary `json:"summary"`
}

// List merges the latest upstream snapshot with local alerts, newest first.
// The summary covers every unresolved alert regardless of filter.
func (p *Pipeline) List(filter ListFilter) ListResult {
	all := p.localAlerts()
	if p.source != nil {
		if snap, ok := p.source.Snapshot(monitoring.KindAlerts); ok {
			upstream, err := FromSnapshotData(snap.Data)
			if err != nil {
				p.logger.Warn("failed to decode alerts snapshot", errs.Attr(err))
			}
			all = append(all, upstream...)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	out := make([]Alert, 0, len(all))
	for _, a := range all {
		if a.Resolved && !filter.IncludeResolved {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		out = append(out, a)
	}
	return ListResult{Alerts: out, Summary: Summarize(all)}
}

func (p *Pipeline) localAlerts() []Alert {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Alert, 0, len(p.local))
	for _, a := range p.local {
		out = append(out, *a)
	}
	return out
}

// Run feeds every alerts snapshot into Observe until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	if p.source == nil {
		return
	}
	updates, cancel := p.source.Subscribe(8, monitoring.KindAlerts)
	defer cancel()

	p.logger.Info("alert pipeline started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("alert pipeline stopped")
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			list, err := FromSnapshotData(u.Snapshot.Data)
			if err != nil {
				p.logger.Warn("failed to decode alerts snapshot", errs.Attr(err))
				continue
			}
			p.Observe(list)
		}
	}
}
