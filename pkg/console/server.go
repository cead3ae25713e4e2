// Package console assembles the compliance console: it opens the database,
// connects to the admin API, wires the test engine, monitoring scheduler,
// alert pipeline and audit reader together and serves them over one HTTP
// router.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"gorm.io/gorm"

	"github.com/privacyshield/sazpd-console/pkg/alerts"
	"github.com/privacyshield/sazpd-console/pkg/audit"
	"github.com/privacyshield/sazpd-console/pkg/cache"
	"github.com/privacyshield/sazpd-console/pkg/config"
	"github.com/privacyshield/sazpd-console/pkg/database"
	"github.com/privacyshield/sazpd-console/pkg/metrics"
	"github.com/privacyshield/sazpd-console/pkg/monitoring"
	"github.com/privacyshield/sazpd-console/pkg/testsession"
	"github.com/privacyshield/sazpd-console/pkg/upstream"
)

// APIPrefix is the base path of every console endpoint.
const APIPrefix = "/api/sazpd/v1"

// Server owns the console components and their background loops.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	db         *gorm.DB
	client     *upstream.Client
	engine     *testsession.Engine
	scheduler  *monitoring.Scheduler
	pipeline   *alerts.Pipeline
	auditStore *audit.GormStore
	reader     *audit.Reader
	auditCache *cache.LRUCache
	retention  *audit.RetentionWorker
	redis      *redis.Client

	registry   *prometheus.Registry
	httpClient *http.Client
	notifiers  []alerts.Notifier

	router    chi.Router
	startedAt time.Time

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithHTTPClient sets the http.Client used to reach the admin API.
func WithHTTPClient(hc *http.Client) ServerOption {
	return func(s *Server) { s.httpClient = hc }
}

// WithRegistry sets the Prometheus registry served on /metrics. The default
// is a fresh registry carrying the Go and process collectors.
func WithRegistry(reg *prometheus.Registry) ServerOption {
	return func(s *Server) { s.registry = reg }
}

// WithNotifier adds a critical alert notifier next to the log notifier and
// the Redis publisher.
func WithNotifier(n alerts.Notifier) ServerOption {
	return func(s *Server) { s.notifiers = append(s.notifiers, n) }
}

// NewServer builds every component from cfg. The database schema is
// migrated before NewServer returns; no background loop runs until Start.
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("console config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m := metrics.New(s.registry)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db
	built := false
	defer func() {
		if !built {
			_ = s.closeDB()
			if s.redis != nil {
				_ = s.redis.Close()
			}
		}
	}()
	if err := database.Migrate(ctx, db, &audit.Record{}, &testsession.SessionRecord{}); err != nil {
		return nil, err
	}

	clientOpts := []upstream.Option{upstream.WithMetrics(m), upstream.WithLogger(logger.With("component", "upstream"))}
	if s.httpClient != nil {
		clientOpts = append(clientOpts, upstream.WithHTTPClient(s.httpClient))
	}
	s.client, err = upstream.NewClient(cfg.Upstream, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}

	// The pipeline reads the scheduler's snapshots and the scheduler
	// escalates into the pipeline, so the escalator is bound afterwards.
	esc := &escalatorRef{}
	s.scheduler, err = monitoring.NewScheduler(s.client.Fetchers(nil), cfg.Monitoring,
		monitoring.WithEscalator(esc),
		monitoring.WithMetrics(m),
		monitoring.WithLogger(logger.With("component", "monitoring")))
	if err != nil {
		return nil, fmt.Errorf("failed to create monitoring scheduler: %w", err)
	}

	notifier, err := s.buildNotifier(logger)
	if err != nil {
		return nil, err
	}
	s.pipeline = alerts.NewPipeline(s.scheduler, cfg.Monitoring, cfg.Alerts,
		alerts.WithNotifier(notifier),
		alerts.WithService(s.client.Alerts()),
		alerts.WithMetrics(m),
		alerts.WithLogger(logger.With("component", "alerts")))
	esc.target = s.pipeline

	s.engine, err = testsession.NewEngine(s.client.Executors(), cfg.Session,
		testsession.WithHistory(testsession.NewHistoryStore(db)),
		testsession.WithMetrics(m),
		testsession.WithLogger(logger.With("component", "testsession")))
	if err != nil {
		return nil, fmt.Errorf("failed to create test engine: %w", err)
	}

	s.auditStore = audit.NewGormStore(db)
	var source audit.Source = s.auditStore
	if cfg.AuditSource == config.AuditSourceUpstream {
		source = s.client.Audit()
	}
	s.reader = audit.NewReader(source, m, logger.With("component", "audit"))
	s.auditCache = cache.New(cfg.AuditCache)
	s.retention = audit.NewRetentionWorker(s.auditStore, cfg.Audit, audit.WithRetentionLogger(logger.With("component", "audit-retention")))

	built = true
	return s, nil
}

func (s *Server) closeDB() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// buildNotifier always logs notifications and additionally publishes them to
// Redis when a URL is configured.
func (s *Server) buildNotifier(logger *slog.Logger) (alerts.Notifier, error) {
	chain := alerts.MultiNotifier{alerts.NewLogNotifier(logger.With("component", "alerts"))}
	if s.cfg.Redis.URL != "" {
		rn, client, err := alerts.NewRedisNotifierFromURL(s.cfg.Redis.URL, s.cfg.Redis.Channel)
		if err != nil {
			return nil, fmt.Errorf("failed to configure redis notifier: %w", err)
		}
		s.redis = client
		chain = append(chain, rn)
		s.logger.Info("publishing critical alerts to redis", "channel", s.cfg.Redis.Channel)
	}
	chain = append(chain, s.notifiers...)
	return chain, nil
}

// escalatorRef forwards escalations to target once it is set.
type escalatorRef struct {
	target monitoring.Escalator
}

func (e *escalatorRef) Escalate(kind monitoring.Kind, failures int, err error) {
	if e.target != nil {
		e.target.Escalate(kind, failures, err)
	}
}

// invalidatingAppender drops cached audit reads whenever a record is added.
type invalidatingAppender struct {
	store audit.Appender
	cache *cache.LRUCache
}

func (a invalidatingAppender) Append(rec *audit.Record) error {
	err := a.store.Append(rec)
	a.cache.InvalidateAll()
	return err
}

// MountRoutes creates the HTTP router with every console API mounted under
// APIPrefix.
func (s *Server) MountRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", audit.HeaderActorID, audit.HeaderActorEmail},
		ExposedHeaders:   []string{"Content-Disposition", "X-Cache"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if s.cfg.Audit != nil && s.cfg.Audit.Enabled {
		appender := invalidatingAppender{store: s.auditStore, cache: s.auditCache}
		r.Use(audit.AuditMiddleware(appender, s.cfg.Audit, s.logger.With("component", "audit")))
		s.logger.Info("audit middleware enabled",
			"logConflicts", s.cfg.Audit.LogConflicts,
			"retentionDays", s.cfg.Audit.RetentionDays)
	}

	r.Route(APIPrefix, func(r chi.Router) {
		r.Mount("/test", testsession.Router(s.engine))
		r.Mount("/monitoring", monitoring.Router(s.scheduler))
		r.Mount("/alerts", alerts.Router(s.pipeline))
		r.Mount("/audit", cache.CacheMiddleware(s.auditCache)(audit.Router(s.reader)))
	})

	r.Get("/healthz", s.healthHandler)
	r.Get("/livez", s.healthHandler)
	r.Get("/readyz", s.readyHandler)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.router = r
	return r
}

// Router returns the router built by MountRoutes.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start launches the background loops. They stop when ctx is cancelled or
// Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("console already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	loops := map[string]func(context.Context){
		"testsession": s.engine.Run,
		"monitoring":  s.scheduler.Run,
		"alerts":      s.pipeline.Run,
	}
	if s.cfg.AuditSource == config.AuditSourceLocal {
		loops["audit-retention"] = s.retention.Run
	}
	for name, run := range loops {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			run(runCtx)
			s.logger.Debug("background loop exited", "loop", name)
		}()
	}

	s.running = true
	s.logger.Info("console started", "loops", len(loops))
	return nil
}

// Stop cancels the background loops, waits for them until ctx expires and
// releases the Redis and database connections.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	running := s.running
	cancel := s.cancel
	s.running = false
	s.mu.Unlock()

	var result *multierror.Error
	if running {
		cancel()
		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			result = multierror.Append(result, fmt.Errorf("background loops did not stop: %w", ctx.Err()))
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close redis: %w", err))
		}
	}
	if err := s.closeDB(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close database: %w", err))
	}
	s.logger.Info("console stopped")
	return result.ErrorOrNil()
}

// healthHandler returns a simple liveness response.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "alive",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// readyHandler reports ready once the loops run and the database answers.
// Upstream reachability and monitoring staleness are reported but do not
// gate readiness: the console keeps serving its last snapshots while the
// admin API is down.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	allReady := true

	dbStatus := map[string]string{"status": "up"}
	if err := database.Ping(r.Context(), s.db); err != nil {
		dbStatus["status"] = "down"
		dbStatus["error"] = err.Error()
		allReady = false
	}

	loopStatus := map[string]string{"status": "running"}
	if !running {
		loopStatus["status"] = "stopped"
		allReady = false
	}

	upstreamStatus := map[string]string{"status": "up"}
	for _, g := range upstream.Groups() {
		state := s.client.BreakerState(g)
		upstreamStatus[string(g)] = state.String()
		if state != gobreaker.StateClosed {
			upstreamStatus["status"] = "degraded"
		}
	}

	stale := 0
	for _, v := range s.scheduler.Views() {
		if v.IsStale {
			stale++
		}
	}
	monitoringStatus := map[string]any{
		"enabled":    s.cfg.Monitoring.Enabled(),
		"staleKinds": stale,
	}

	status := "ready"
	code := http.StatusOK
	if !allReady {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"components": map[string]any{
			"database":   dbStatus,
			"loops":      loopStatus,
			"upstream":   upstreamStatus,
			"monitoring": monitoringStatus,
		},
	})
}
