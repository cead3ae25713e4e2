package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/privacyshield/sazpd-console/pkg/errs"
)

// Pruner deletes records created before cutoff and reports how many went.
type Pruner interface {
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

// RetentionOption configures a RetentionWorker.
type RetentionOption func(*RetentionWorker)

// WithSweepInterval sets how often the trail is swept. Default 24h.
func WithSweepInterval(d time.Duration) RetentionOption {
	return func(w *RetentionWorker) {
		if d > 0 {
			w.every = d
		}
	}
}

// WithRetentionClock replaces time.Now.
func WithRetentionClock(now func() time.Time) RetentionOption {
	return func(w *RetentionWorker) { w.now = now }
}

// WithRetentionLogger sets the logger.
func WithRetentionLogger(l *slog.Logger) RetentionOption {
	return func(w *RetentionWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// RetentionWorker drops audit records older than AuditConfig.RetentionDays
// from the local trail.
type RetentionWorker struct {
	pruner Pruner
	keep   time.Duration
	every  time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewRetentionWorker builds a worker for pruner. A nil pruner or zero
// RetentionDays yields a disabled worker.
func NewRetentionWorker(pruner Pruner, cfg *AuditConfig, opts ...RetentionOption) *RetentionWorker {
	if cfg == nil {
		cfg = DefaultAuditConfig()
	}
	w := &RetentionWorker{
		pruner: pruner,
		keep:   time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		every:  24 * time.Hour,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Enabled reports whether Run does any work.
func (w *RetentionWorker) Enabled() bool {
	return w.pruner != nil && w.keep > 0
}

// Cutoff is the creation time before which records are dropped.
func (w *RetentionWorker) Cutoff() time.Time {
	return w.now().Add(-w.keep)
}

// Sweep runs one pass and returns the number of deleted records.
func (w *RetentionWorker) Sweep() (int64, error) {
	if !w.Enabled() {
		return 0, nil
	}
	cutoff := w.Cutoff()
	deleted, err := w.pruner.DeleteOlderThan(cutoff)
	if err != nil {
		return 0, errs.Unavailable(err, "prune audit records before %s", cutoff.Format(time.RFC3339))
	}
	if deleted > 0 {
		w.logger.Info("pruned audit records", "deleted", deleted, "cutoff", cutoff.Format(time.RFC3339))
	}
	return deleted, nil
}

// Run sweeps once immediately and then every interval until ctx is done.
func (w *RetentionWorker) Run(ctx context.Context) {
	if !w.Enabled() {
		w.logger.Info("audit retention disabled", "hasPruner", w.pruner != nil, "keep", w.keep.String())
		return
	}

	w.logger.Info("audit retention running", "keep", w.keep.String(), "every", w.every.String())
	ticker := time.NewTicker(w.every)
	defer ticker.Stop()

	for {
		if _, err := w.Sweep(); err != nil {
			w.logger.Error("audit retention sweep failed", errs.Attr(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
