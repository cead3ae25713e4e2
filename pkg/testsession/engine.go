package testsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/privacyshield/sazpd-console/pkg/errs"
	"github.com/privacyshield/sazpd-console/pkg/metrics"
	"github.com/privacyshield/sazpd-console/pkg/modules"
)

// ProgressFunc lets an executor report its completion percentage. Any call
// also counts as a liveness signal for the stall watchdog.
type ProgressFunc func(percent int)

// Executor runs the opaque compliance checks of one module.
type Executor func(ctx context.Context, progress ProgressFunc) (Results, error)

// Dispatch maps every module, by catalog index, to its executor.
type Dispatch [modules.Count]Executor

// Validate returns an error if any module has no executor.
func (d Dispatch) Validate() error {
	for i, id := range modules.IDs() {
		if d[i] == nil {
			return fmt.Errorf("no executor registered for module %s", id)
		}
	}
	return nil
}

// moduleRun tracks one in-flight execution.
type moduleRun struct {
	gen          uint64
	cancel       context.CancelFunc
	startedAt    time.Time
	lastProgress time.Time
	settled      chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithHistory persists finished sessions to store.
func WithHistory(store *HistoryStore) Option {
	return func(e *Engine) { e.history = store }
}

// WithMetrics records session and module outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine owns the state of the single test session and drives module
// executions. All commands are serialized by mu.
type Engine struct {
	mu           sync.Mutex
	session      *Session
	runs         [modules.Count]*moduleRun
	gen          uint64
	lastFinished *Session

	dispatch Dispatch
	cfg      *SessionConfig
	history  *HistoryStore
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	subMu   sync.Mutex
	subs    map[int]chan Session
	nextSub int
}

// NewEngine creates an engine holding a fresh idle session.
func NewEngine(dispatch Dispatch, cfg *SessionConfig, opts ...Option) (*Engine, error) {
	if err := dispatch.Validate(); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = DefaultSessionConfig()
	}
	e := &Engine{
		dispatch: dispatch,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
		subs:     make(map[int]chan Session),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.session = newIdleSession(uuid.New().String())
	return e, nil
}

// StartFull starts a new session running every module. Only one session may
// run at a time.
func (e *Engine) StartFull(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Status == SessionRunning {
		return "", errs.Conflict("test session %s is already running", e.session.ID)
	}
	if id, busy := e.runningModuleLocked(); busy {
		return "", errs.Conflict("module %s is still running", id)
	}

	now := e.now()
	sess := newIdleSession(uuid.New().String())
	sess.Status = SessionRunning
	sess.StartedAt = &now
	e.session = sess
	e.runs = [modules.Count]*moduleRun{}

	if e.cfg.Parallel {
		for i := range sess.Modules {
			e.launchLocked(i)
		}
	} else {
		go e.runSequential(sess.ID)
	}

	e.logger.Info("test session started",
		"sessionID", sess.ID,
		"parallel", e.cfg.Parallel)
	return sess.ID, nil
}

// runSequential executes modules one after another until the session
// settles or leaves the running state.
func (e *Engine) runSequential(sessionID string) {
	for i := 0; i < modules.Count; i++ {
		e.mu.Lock()
		if e.session.ID != sessionID || e.session.Status != SessionRunning {
			e.mu.Unlock()
			return
		}
		run := e.launchLocked(i)
		e.mu.Unlock()

		<-run.settled
	}
}

// StartStep runs a single module. Steps are only accepted while the session
// is idle; they never change the session status.
func (e *Engine) StartStep(ctx context.Context, id modules.ID) error {
	i, ok := id.Index()
	if !ok {
		return errs.NotFound("unknown module %q", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Status != SessionIdle {
		return errs.Conflict("module steps require an idle session, session %s is %s", e.session.ID, e.session.Status)
	}
	if e.session.Modules[i].Status == ModuleRunning {
		return errs.Conflict("module %s is already running", id)
	}

	e.launchLocked(i)
	e.logger.Info("test step started", "sessionID", e.session.ID, "module", id)
	return nil
}

// Stop cancels the running session. Modules still running are marked failed.
// It is a no-op when no session is running.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.session.Status != SessionRunning {
		e.mu.Unlock()
		return nil
	}

	now := e.now()
	e.session.Status = SessionCancelled
	e.session.CompletedAt = &now

	for i := range e.session.Modules {
		m := &e.session.Modules[i]
		run := e.runs[i]
		if m.Status != ModuleRunning || run == nil {
			continue
		}
		res := m.Results.clone()
		res.Errors = append(res.Errors, "cancelled: test session stopped by operator")
		e.settleLocked(i, run, ModuleFailed, res)
	}

	finished := e.finishLocked()
	e.mu.Unlock()

	e.record(finished)
	return nil
}

// Reset discards the current session and starts over with a fresh idle one.
// It is refused while anything is running.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Status == SessionRunning {
		return errs.Conflict("cannot reset while test session %s is running", e.session.ID)
	}
	if id, busy := e.runningModuleLocked(); busy {
		return errs.Conflict("cannot reset while module %s is running", id)
	}

	prev := e.session.ID
	e.session = newIdleSession(uuid.New().String())
	e.runs = [modules.Count]*moduleRun{}
	e.logger.Info("test session reset", "previousSessionID", prev, "sessionID", e.session.ID)
	return nil
}

// Status returns a copy of the current session.
func (e *Engine) Status() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone()
}

// Results returns the most recently finished session.
func (e *Engine) Results(ctx context.Context) (Session, error) {
	if e.history != nil {
		latest, err := e.history.Latest()
		if err != nil {
			return Session{}, errs.Unavailable(err, "load test results")
		}
		if latest != nil {
			return *latest, nil
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastFinished == nil {
		return Session{}, errs.NotFound("no finished test session")
	}
	return e.lastFinished.Clone(), nil
}

// History returns one page of finished sessions.
func (e *Engine) History(ctx context.Context, page, limit int) ([]Session, int, error) {
	if e.history == nil {
		return nil, 0, errs.Unavailable(nil, "test session history is not configured")
	}
	sessions, total, err := e.history.List(page, limit)
	if err != nil {
		return nil, 0, errs.Unavailable(err, "list test sessions")
	}
	return sessions, total, nil
}

// launchLocked transitions module i to running and starts its executor.
// Must be called with e.mu held.
func (e *Engine) launchLocked(i int) *moduleRun {
	e.gen++
	now := e.now()

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if e.cfg.ExecutionBudget > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), e.cfg.ExecutionBudget)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	run := &moduleRun{
		gen:          e.gen,
		cancel:       cancel,
		startedAt:    now,
		lastProgress: now,
		settled:      make(chan struct{}),
	}
	e.runs[i] = run

	m := &e.session.Modules[i]
	m.Status = ModuleRunning
	m.Progress = 0
	m.StartedAt = &now
	m.CompletedAt = nil
	m.Results = Results{}.normalize()
	e.recomputeProgressLocked()

	go e.execute(ctx, i, run)
	return run
}

// execute runs the executor for module i outside the lock and hands the
// outcome back to the engine.
func (e *Engine) execute(ctx context.Context, i int, run *moduleRun) {
	defer run.cancel()

	progress := func(p int) { e.reportProgress(i, run.gen, p) }
	res, err := safeExecute(ctx, e.dispatch[i], progress)

	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = errs.Timeout("module %s exceeded its execution budget of %s", modules.IDs()[i], e.cfg.ExecutionBudget)
	}

	e.mu.Lock()
	if e.runs[i] != run || isClosed(run.settled) {
		e.mu.Unlock()
		e.logger.Debug("discarding result of superseded module run",
			"module", modules.IDs()[i], "gen", run.gen)
		return
	}

	status := ModuleCompleted
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		status = ModuleFailed
	} else if res.Failed > 0 {
		status = ModuleFailed
	}
	e.settleLocked(i, run, status, res)
	finished := e.maybeFinishLocked()
	e.mu.Unlock()

	e.record(finished)
}

func safeExecute(ctx context.Context, exec Executor, progress ProgressFunc) (res Results, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("module executor panicked: %v", r)
		}
	}()
	return exec(ctx, progress)
}

// reportProgress applies a progress update from run gen of module i. Values
// are clamped below 100 until the module settles.
func (e *Engine) reportProgress(i int, gen uint64, p int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	run := e.runs[i]
	if run == nil || run.gen != gen || isClosed(run.settled) {
		return
	}
	run.lastProgress = e.now()

	m := &e.session.Modules[i]
	if p > 99 {
		p = 99
	}
	if p > m.Progress {
		m.Progress = p
		e.recomputeProgressLocked()
	}
}

// settleLocked moves module i to a settled status. Must be called with e.mu held.
func (e *Engine) settleLocked(i int, run *moduleRun, status ModuleStatus, res Results) {
	now := e.now()
	m := &e.session.Modules[i]
	m.Status = status
	m.Progress = 100
	m.CompletedAt = &now
	m.Results = res.normalize()

	close(run.settled)
	run.cancel()
	e.recomputeProgressLocked()

	e.metrics.ObserveModuleRun(string(m.ID), string(status))
	e.logger.Info("test module settled",
		"sessionID", e.session.ID,
		"module", m.ID,
		"status", status,
		"testsRun", m.Results.TestsRun,
		"failed", m.Results.Failed)
}

// maybeFinishLocked closes a running session once every module has settled.
// Returns the finished session, or nil if the session is still in progress.
func (e *Engine) maybeFinishLocked() *Session {
	s := e.session
	if s.Status != SessionRunning {
		return nil
	}

	anyFailed := false
	for _, m := range s.Modules {
		if !m.Status.IsSettled() {
			return nil
		}
		if m.Status == ModuleFailed {
			anyFailed = true
		}
	}

	now := e.now()
	s.CompletedAt = &now
	if anyFailed {
		s.Status = SessionFailed
	} else {
		s.Status = SessionCompleted
		sum := &Summary{}
		for _, m := range s.Modules {
			sum.TotalTests += m.Results.TestsRun
			sum.TotalPassed += m.Results.Passed
			sum.TotalFailed += m.Results.Failed
		}
		if s.StartedAt != nil {
			sum.TotalDuration = now.Sub(*s.StartedAt)
		}
		s.Summary = sum
	}
	e.recomputeProgressLocked()
	return e.finishLocked()
}

// finishLocked snapshots a session that just reached a terminal state.
func (e *Engine) finishLocked() *Session {
	finished := e.session.Clone()
	e.lastFinished = &finished
	return &finished
}

// record persists and reports a finished session. Safe with a nil session.
func (e *Engine) record(finished *Session) {
	if finished == nil {
		return
	}
	e.metrics.ObserveSession(string(finished.Status))
	e.logger.Info("test session finished",
		"sessionID", finished.ID,
		"status", finished.Status)

	if e.history == nil {
		return
	}
	if err := e.history.Save(*finished); err != nil {
		e.logger.Error("failed to persist test session", "sessionID", finished.ID, errs.Attr(err))
	}
}

// recomputeProgressLocked derives session progress as the mean of module
// progress while the session runs.
func (e *Engine) recomputeProgressLocked() {
	s := e.session
	if s.Status == SessionIdle || s.Status == SessionCancelled {
		return
	}
	total := 0
	for _, m := range s.Modules {
		total += m.Progress
	}
	s.Progress = total / len(s.Modules)
}

func (e *Engine) runningModuleLocked() (modules.ID, bool) {
	for _, m := range e.session.Modules {
		if m.Status == ModuleRunning {
			return m.ID, true
		}
	}
	return "", false
}

// checkTimeouts force-fails modules that stalled or overran their budget.
func (e *Engine) checkTimeouts() {
	e.mu.Lock()
	now := e.now()
	var finished *Session

	for i := range e.session.Modules {
		m := &e.session.Modules[i]
		run := e.runs[i]
		if m.Status != ModuleRunning || run == nil || isClosed(run.settled) {
			continue
		}

		var reason error
		switch {
		case e.cfg.ExecutionBudget > 0 && now.Sub(run.startedAt) > e.cfg.ExecutionBudget:
			reason = errs.Timeout("module %s exceeded its execution budget of %s", m.ID, e.cfg.ExecutionBudget)
		case e.cfg.StallTimeout > 0 && now.Sub(run.lastProgress) > e.cfg.StallTimeout:
			reason = errs.Timeout("module %s made no progress for %s", m.ID, e.cfg.StallTimeout)
		default:
			continue
		}

		e.logger.Warn("force-failing module", "module", m.ID, "reason", reason.Error())
		res := m.Results.clone()
		res.Errors = append(res.Errors, reason.Error())
		e.settleLocked(i, run, ModuleFailed, res)
		if f := e.maybeFinishLocked(); f != nil {
			finished = f
		}
	}
	e.mu.Unlock()

	e.record(finished)
}

// Subscribe returns a channel receiving the session status every
// StatusInterval while Run is active. Slow readers miss updates rather
// than blocking the publisher.
func (e *Engine) Subscribe(buffer int) (<-chan Session, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Session, buffer)

	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subMu.Lock()
			delete(e.subs, id)
			e.subMu.Unlock()
			close(ch)
		})
	}
}

func (e *Engine) publish(s Session) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// Run starts the watchdog, the status publisher and history retention. It
// blocks until ctx is cancelled; in-flight executions are then cancelled.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup

	e.logger.Info("test session engine starting",
		"statusInterval", e.cfg.StatusInterval.String(),
		"stallTimeout", e.cfg.StallTimeout.String(),
		"executionBudget", e.cfg.ExecutionBudget.String())

	wg.Add(2)
	go func() {
		defer wg.Done()
		e.tickLoop(ctx, e.cfg.WatchInterval, e.checkTimeouts)
	}()
	go func() {
		defer wg.Done()
		e.tickLoop(ctx, e.cfg.StatusInterval, func() { e.publish(e.Status()) })
	}()

	if e.history != nil && e.cfg.RetentionDays > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.tickLoop(ctx, time.Hour, e.cleanupHistory)
		}()
	}

	<-ctx.Done()
	wg.Wait()

	e.mu.Lock()
	for _, run := range e.runs {
		if run != nil {
			run.cancel()
		}
	}
	e.mu.Unlock()
	e.logger.Info("test session engine stopped")
}

func (e *Engine) tickLoop(ctx context.Context, every time.Duration, fn func()) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func (e *Engine) cleanupHistory() {
	cutoff := e.now().AddDate(0, 0, -e.cfg.RetentionDays)
	deleted, err := e.history.DeleteOlderThan(cutoff)
	if err != nil {
		e.logger.Error("failed to delete old test sessions", errs.Attr(err))
	} else if deleted > 0 {
		e.logger.Info("deleted old test sessions", "count", deleted)
	}
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
