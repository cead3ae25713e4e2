package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privacyshield/sazpd-console/pkg/errs"
	"github.com/privacyshield/sazpd-console/pkg/monitoring"
)

func serve(p *Pipeline, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	Router(p).ServeHTTP(w, req)
	return w
}

func TestListHandler(t *testing.T) {
	up := &upstreamAlerts{}
	up.set([]Alert{crit("u-1", false), warn("u-2")})
	sched := newTestScheduler(t, up)
	require.NoError(t, sched.Refresh(context.Background(), monitoring.KindAlerts))
	p := NewPipeline(sched, sched.Config(), nil)

	w := serve(p, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, w.Code)

	var res ListResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Len(t, res.Alerts, 2)
	assert.Equal(t, 1, res.Summary.Critical)

	w = serve(p, http.MethodGet, "/?severity=warning")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, "u-2", res.Alerts[0].ID)

	w = serve(p, http.MethodGet, "/?severity=fatal")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(p, http.MethodGet, "/?includeResolved=maybe")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestActionHandlers(t *testing.T) {
	up := &upstreamAlerts{}
	sched := newTestScheduler(t, up)
	svc := &fakeService{}
	p := NewPipeline(sched, sched.Config(), nil, WithService(svc))

	w := serve(p, http.MethodPost, "/u-1:acknowledge")
	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "acknowledged", resp["status"])
	assert.Equal(t, "u-1", resp["alertId"])

	w = serve(p, http.MethodPost, "/u-1:resolve")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(p, http.MethodDelete, "/u-1")
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []string{"acknowledge:u-1", "resolve:u-1", "delete:u-1"}, svc.calls)
}

func TestActionHandlers_UpstreamErrors(t *testing.T) {
	sched := newTestScheduler(t, &upstreamAlerts{})

	svc := &fakeService{err: errs.Unavailable(errors.New("dial tcp"), "acknowledge alert")}
	p := NewPipeline(sched, sched.Config(), nil, WithService(svc))
	w := serve(p, http.MethodPost, "/u-1:acknowledge")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	svc.err = errs.NotFound("alert u-1 not found")
	w = serve(p, http.MethodDelete, "/u-1")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
