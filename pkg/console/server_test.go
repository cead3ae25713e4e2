package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privacyshield/sazpd-console/pkg/alerts"
	"github.com/privacyshield/sazpd-console/pkg/audit"
	"github.com/privacyshield/sazpd-console/pkg/config"
	"github.com/privacyshield/sazpd-console/pkg/database"
	"github.com/privacyshield/sazpd-console/pkg/testsession"
)

// fakeAdmin is a minimal admin API.
type fakeAdmin struct {
	mu     sync.Mutex
	alerts []alerts.Alert
	acked  []string
}

func (f *fakeAdmin) handler() http.Handler {
	okJSON := func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, http.StatusOK, map[string]any{"ok": true})
	}

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", okJSON)
		r.Get("/metrics", okJSON)
		r.Get("/logs", okJSON)
		r.Get("/operators/stats", okJSON)
		r.Get("/config", okJSON)
		r.Get("/alerts", func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			writeTestJSON(w, http.StatusOK, f.alerts)
		})
		r.Post("/alerts/{id}/acknowledge", func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			id := chi.URLParam(r, "id")
			for i := range f.alerts {
				if f.alerts[i].ID == id {
					f.alerts[i].Acknowledged = true
					f.acked = append(f.acked, id)
					writeTestJSON(w, http.StatusOK, f.alerts[i])
					return
				}
			}
			writeTestJSON(w, http.StatusNotFound, map[string]string{"error": "alert not found"})
		})
		r.Post("/test/modules/{id}/run", func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(w, http.StatusOK, testsession.Results{TestsRun: 4, Passed: 4})
		})
	})
	return r
}

func (f *fakeAdmin) ackedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.acked...)
}

func writeTestJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []alerts.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note alerts.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func newTestConfig(t *testing.T, adminURL string) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Database.Driver = database.DriverSQLite
	cfg.Database.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	cfg.Upstream.BaseURL = adminURL
	cfg.Upstream.RequestTimeout = 2 * time.Second
	cfg.Session.StatusInterval = 50 * time.Millisecond
	cfg.AuditCache.Enabled = true
	return cfg
}

type testConsole struct {
	server   *Server
	http     *httptest.Server
	admin    *fakeAdmin
	notifier *recordingNotifier
}

func setupTestConsole(t *testing.T, mutate ...func(*config.Config)) *testConsole {
	t.Helper()
	admin := &fakeAdmin{}
	adminSrv := httptest.NewServer(admin.handler())
	t.Cleanup(adminSrv.Close)

	cfg := newTestConfig(t, adminSrv.URL+"/api")
	for _, m := range mutate {
		m(cfg)
	}

	notifier := &recordingNotifier{}
	s, err := NewServer(context.Background(), cfg, nil,
		WithRegistry(prometheus.NewRegistry()),
		WithNotifier(notifier))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	srv := httptest.NewServer(s.MountRoutes())
	t.Cleanup(srv.Close)

	return &testConsole{server: s, http: srv, admin: admin, notifier: notifier}
}

func (c *testConsole) do(t *testing.T, method, path string, header http.Header) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, c.http.URL+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestNewServer_RequiresUpstream(t *testing.T) {
	cfg := newTestConfig(t, "")
	_, err := NewServer(context.Background(), cfg, nil, WithRegistry(prometheus.NewRegistry()))
	assert.Error(t, err)

	_, err = NewServer(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	c := setupTestConsole(t)

	for _, path := range []string{"/healthz", "/livez"} {
		resp, body := c.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var got map[string]string
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "alive", got["status"])
		assert.NotEmpty(t, got["uptime"])
	}
}

func TestReadyz_FollowsLoops(t *testing.T) {
	c := setupTestConsole(t)

	resp, body := c.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), `"not_ready"`)

	require.NoError(t, c.server.Start(context.Background()))
	assert.Error(t, c.server.Start(context.Background()))

	resp, body = c.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Status     string `json:"status"`
		Components struct {
			Database map[string]string `json:"database"`
			Loops    map[string]string `json:"loops"`
			Upstream map[string]string `json:"upstream"`
		} `json:"components"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "ready", got.Status)
	assert.Equal(t, "up", got.Components.Database["status"])
	assert.Equal(t, "running", got.Components.Loops["status"])
	assert.Equal(t, "closed", got.Components.Upstream["monitoring:health"])
	assert.Equal(t, "closed", got.Components.Upstream["alerts"])
}

func TestFullSessionRunsAgainstAdminAPI(t *testing.T) {
	c := setupTestConsole(t)

	resp, _ := c.do(t, http.MethodPost, APIPrefix+"/test/start", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var sess testsession.Session
	require.Eventually(t, func() bool {
		_, body := c.do(t, http.MethodGet, APIPrefix+"/test/status", nil)
		if err := json.Unmarshal(body, &sess); err != nil {
			return false
		}
		return sess.Status == testsession.SessionCompleted
	}, 5*time.Second, 20*time.Millisecond)

	require.NotNil(t, sess.Summary)
	assert.Equal(t, 24, sess.Summary.TotalTests)
	assert.Equal(t, 24, sess.Summary.TotalPassed)
	assert.Equal(t, 100, sess.Progress)

	// The finished session is persisted right after it settles.
	assert.Eventually(t, func() bool {
		_, body := c.do(t, http.MethodGet, APIPrefix+"/test/history", nil)
		var history struct {
			Total int `json:"total"`
		}
		return json.Unmarshal(body, &history) == nil && history.Total == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestCommandsAreAuditedAndInvalidateCache(t *testing.T) {
	c := setupTestConsole(t)
	c.admin.alerts = []alerts.Alert{{ID: "u-1", Severity: alerts.SeverityWarning, CreatedAt: time.Now(), Message: "slow"}}

	resp, _ := c.do(t, http.MethodGet, APIPrefix+"/audit/logs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	resp, _ = c.do(t, http.MethodGet, APIPrefix+"/audit/logs", nil)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))

	resp, _ = c.do(t, http.MethodPost, APIPrefix+"/alerts/u-1:acknowledge", http.Header{audit.HeaderActorID: {"ops-1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"u-1"}, c.admin.ackedIDs())

	resp, body := c.do(t, http.MethodGet, APIPrefix+"/audit/logs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))

	var page audit.ListResult
	require.NoError(t, json.Unmarshal(body, &page))
	require.Equal(t, 1, page.Total)
	rec := page.Records[0]
	assert.Equal(t, "ops-1", rec.ActorID)
	assert.Equal(t, "alert.acknowledge", rec.Action)
	assert.Equal(t, audit.ResultSuccess, rec.Result)
	require.NotNil(t, rec.TargetID)
	assert.Equal(t, "u-1", *rec.TargetID)
}

func TestReadsAreNotAudited(t *testing.T) {
	c := setupTestConsole(t, func(cfg *config.Config) { cfg.AuditCache.Enabled = false })

	c.do(t, http.MethodGet, APIPrefix+"/test/status", nil)
	c.do(t, http.MethodGet, APIPrefix+"/monitoring/snapshots", nil)

	resp, body := c.do(t, http.MethodGet, APIPrefix+"/audit/logs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("X-Cache"))

	var page audit.ListResult
	require.NoError(t, json.Unmarshal(body, &page))
	assert.Equal(t, 0, page.Total)
}

func TestCriticalAlertNotifies(t *testing.T) {
	c := setupTestConsole(t)
	c.admin.alerts = []alerts.Alert{{ID: "u-9", Severity: alerts.SeverityCritical, CreatedAt: time.Now(), Message: "disk full"}}

	require.NoError(t, c.server.Start(context.Background()))

	// The pipeline subscribes asynchronously; keep refreshing until it has
	// seen a snapshot. Repeated snapshots of the same alert notify once.
	require.Eventually(t, func() bool {
		c.do(t, http.MethodPost, APIPrefix+"/monitoring/snapshots/alerts:refresh", nil)
		return c.notifier.count() > 0
	}, 5*time.Second, 50*time.Millisecond)

	c.do(t, http.MethodPost, APIPrefix+"/monitoring/snapshots/alerts:refresh", nil)
	assert.Equal(t, 1, c.notifier.count())

	_, body := c.do(t, http.MethodGet, APIPrefix+"/alerts?severity=critical", nil)
	var list alerts.ListResult
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Alerts, 1)
	assert.Equal(t, "u-9", list.Alerts[0].ID)
	assert.Equal(t, 1, list.Summary.Critical)
}

func TestMetricsEndpoint(t *testing.T) {
	c := setupTestConsole(t)

	resp, _ := c.do(t, http.MethodPost, APIPrefix+"/monitoring/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := c.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "sazpd_monitoring_polls_total"))
}

func TestStopWithoutStart(t *testing.T) {
	c := setupTestConsole(t)
	assert.NoError(t, c.server.Stop(context.Background()))
}
