package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHandlerScheduler(t *testing.T) (*Scheduler, map[Kind]*fakeSource) {
	t.Helper()
	sources := newSources()
	s, err := NewScheduler(fetchersFor(sources), nil)
	require.NoError(t, err)
	return s, sources
}

func serve(s *Scheduler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	Router(s).ServeHTTP(w, req)
	return w
}

func TestListSnapshotsHandler(t *testing.T) {
	s, _ := setupHandlerScheduler(t)

	w := serve(s, http.MethodGet, "/snapshots", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		RealTimeEnabled bool   `json:"realTimeEnabled"`
		Snapshots       []View `json:"snapshots"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.RealTimeEnabled)
	require.Len(t, resp.Snapshots, 6)
	assert.Equal(t, KindHealth, resp.Snapshots[0].Kind)
	assert.True(t, resp.Snapshots[0].IsStale)
}

func TestRefreshAndGetSnapshotHandlers(t *testing.T) {
	s, _ := setupHandlerScheduler(t)

	w := serve(s, http.MethodPost, "/snapshots/operatorStats:refresh", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(s, http.MethodGet, "/snapshots/operatorStats", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var v View
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	assert.Equal(t, KindOperatorStats, v.Kind)
	assert.False(t, v.IsStale)
	assert.Equal(t, map[string]any{"kind": "operatorStats"}, v.Data)

	w = serve(s, http.MethodGet, "/snapshots/disk", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefreshHandler_UpstreamDown(t *testing.T) {
	s, sources := setupHandlerScheduler(t)
	sources[KindHealth].set(nil, errors.New("dial tcp: connection refused"))

	w := serve(s, http.MethodPost, "/snapshots/health:refresh", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "UNAVAILABLE", resp["code"])
}

func TestRefreshAllHandler(t *testing.T) {
	s, sources := setupHandlerScheduler(t)

	w := serve(s, http.MethodPost, "/refresh", "")
	assert.Equal(t, http.StatusOK, w.Code)

	sources[KindAlerts].set(nil, errors.New("timeout"))
	w = serve(s, http.MethodPost, "/refresh", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestConfigHandlers(t *testing.T) {
	s, _ := setupHandlerScheduler(t)

	w := serve(s, http.MethodGet, "/config", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var body configBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.NotNil(t, body.RealTimeEnabled)
	assert.True(t, *body.RealTimeEnabled)
	assert.Equal(t, 120, body.Intervals[KindConfig])

	w = serve(s, http.MethodPut, "/config", `{"realTimeEnabled": false, "intervals": {"health": 5}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, s.Config().Enabled())
	assert.Equal(t, 5*time.Second, s.Config().Interval(KindHealth))
}

func TestUpdateConfigHandler_RejectsWholeUpdate(t *testing.T) {
	s, _ := setupHandlerScheduler(t)

	w := serve(s, http.MethodPut, "/config", `{"realTimeEnabled": false, "intervals": {"health": 5, "logs": 0}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, s.Config().Enabled())
	assert.Equal(t, 10*time.Second, s.Config().Interval(KindHealth))

	w = serve(s, http.MethodPut, "/config", `{"intervals": {"disk": 5}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(s, http.MethodPut, "/config", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateConfigHandler_RejectsOverflowingInterval(t *testing.T) {
	s, _ := setupHandlerScheduler(t)

	// 18446744075s in nanoseconds wraps around to about 1.3s.
	w := serve(s, http.MethodPut, "/config", `{"intervals": {"health": 18446744075}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "at most")
	assert.Equal(t, 10*time.Second, s.Config().Interval(KindHealth))

	w = serve(s, http.MethodPut, "/config", `{"intervals": {"health": 9223372036}}`)
	assert.Equal(t, http.StatusOK, w.Code)
}
