package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privacyshield/sazpd-console/pkg/errs"
)

type recordingPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	deleted int64
	err     error
}

func (p *recordingPruner) DeleteOlderThan(cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.deleted, p.err
}

func (p *recordingPruner) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cutoffs)
}

func TestRetentionWorker_Enabled(t *testing.T) {
	assert.True(t, NewRetentionWorker(&recordingPruner{}, DefaultAuditConfig()).Enabled())
	assert.False(t, NewRetentionWorker(nil, DefaultAuditConfig()).Enabled())
	assert.False(t, NewRetentionWorker(&recordingPruner{}, &AuditConfig{RetentionDays: 0}).Enabled())
}

func TestRetentionWorker_SweepUsesRetentionDays(t *testing.T) {
	now := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)
	p := &recordingPruner{deleted: 4}
	w := NewRetentionWorker(p, &AuditConfig{RetentionDays: 7}, WithRetentionClock(func() time.Time { return now }))

	n, err := w.Sweep()
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.Len(t, p.cutoffs, 1)
	assert.Equal(t, now.AddDate(0, 0, -7), p.cutoffs[0])
}

func TestRetentionWorker_SweepFailureIsUnavailable(t *testing.T) {
	p := &recordingPruner{err: errors.New("database is locked")}
	w := NewRetentionWorker(p, DefaultAuditConfig())

	_, err := w.Sweep()
	assert.True(t, errors.Is(err, errs.ErrUnavailable))
	assert.Contains(t, err.Error(), "database is locked")
}

func TestRetentionWorker_DisabledSweepIsNoop(t *testing.T) {
	n, err := NewRetentionWorker(nil, DefaultAuditConfig()).Sweep()
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestRetentionWorker_RunSweepsOnStartAndOnTick(t *testing.T) {
	p := &recordingPruner{}
	w := NewRetentionWorker(p, DefaultAuditConfig(), WithSweepInterval(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	assert.Eventually(t, func() bool { return p.calls() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRetentionWorker_DisabledRunReturns(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewRetentionWorker(nil, DefaultAuditConfig()).Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("disabled worker should return immediately")
	}
}
