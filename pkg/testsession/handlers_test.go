package testsession

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privacyshield/sazpd-console/pkg/modules"
)

func doRequest(t *testing.T, e *Engine, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	Router(e).ServeHTTP(w, req)
	return w
}

func TestStartFullHandler(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	e := newTestEngine(t, dispatchAll(gatedExec(release, passing(1))))

	w := doRequest(t, e, http.MethodPost, "/start")
	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, e.Status().ID, resp["sessionId"])
	assert.Equal(t, "running", resp["status"])

	w = doRequest(t, e, http.MethodPost, "/start")
	assert.Equal(t, http.StatusConflict, w.Code)

	var errResp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&errResp))
	assert.Equal(t, "CONFLICT", errResp["code"])
	assert.NotEmpty(t, errResp["error"])
}

func TestStartStepHandler(t *testing.T) {
	e := newTestEngine(t, dispatchAll(instantExec(passing(3), nil)))

	w := doRequest(t, e, http.MethodPost, "/step/unknown")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, e, http.MethodPost, "/step/"+string(modules.ResponseAnalysis))
	assert.Equal(t, http.StatusAccepted, w.Code)

	waitForModule(t, e, modules.ResponseAnalysis, ModuleCompleted)
}

func TestStopAndResetHandlers(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	e := newTestEngine(t, dispatchAll(gatedExec(release, passing(1))))

	w := doRequest(t, e, http.MethodPost, "/stop")
	assert.Equal(t, http.StatusOK, w.Code)

	doRequest(t, e, http.MethodPost, "/start")

	w = doRequest(t, e, http.MethodPost, "/reset")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(t, e, http.MethodPost, "/stop")
	assert.Equal(t, http.StatusOK, w.Code)
	var stopped Session
	require.NoError(t, json.NewDecoder(w.Body).Decode(&stopped))
	assert.Equal(t, SessionCancelled, stopped.Status)

	w = doRequest(t, e, http.MethodPost, "/reset")
	assert.Equal(t, http.StatusOK, w.Code)
	var reset Session
	require.NoError(t, json.NewDecoder(w.Body).Decode(&reset))
	assert.Equal(t, SessionIdle, reset.Status)
	assert.NotEqual(t, stopped.ID, reset.ID)
}

func TestStatusHandler(t *testing.T) {
	e := newTestEngine(t, dispatchAll(instantExec(passing(1), nil)))

	w := doRequest(t, e, http.MethodGet, "/status")
	assert.Equal(t, http.StatusOK, w.Code)

	var s Session
	require.NoError(t, json.NewDecoder(w.Body).Decode(&s))
	assert.Equal(t, SessionIdle, s.Status)
	require.Len(t, s.Modules, modules.Count)
	assert.Equal(t, modules.DocumentGeneration, s.Modules[0].ID)
	assert.NotNil(t, s.Modules[0].Results.Errors)
}

func TestResultsAndHistoryHandlers(t *testing.T) {
	store := NewHistoryStore(setupTestDB(t))
	e := newTestEngine(t, dispatchAll(instantExec(passing(1), nil)), WithHistory(store))

	w := doRequest(t, e, http.MethodGet, "/results")
	assert.Equal(t, http.StatusNotFound, w.Code)

	doRequest(t, e, http.MethodPost, "/start")
	waitForStatus(t, e, SessionCompleted)
	require.Eventually(t, func() bool {
		latest, err := store.Latest()
		return err == nil && latest != nil
	}, 2*time.Second, 5*time.Millisecond)

	w = doRequest(t, e, http.MethodGet, "/results")
	assert.Equal(t, http.StatusOK, w.Code)
	var res Session
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, SessionCompleted, res.Status)
	require.NotNil(t, res.Summary)
	assert.Equal(t, 6, res.Summary.TotalTests)

	w = doRequest(t, e, http.MethodGet, "/history?page=1&limit=5")
	assert.Equal(t, http.StatusOK, w.Code)
	var hist struct {
		Sessions []Session `json:"sessions"`
		Total    int       `json:"total"`
		Page     int       `json:"page"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&hist))
	assert.Equal(t, 1, hist.Total)
	assert.Equal(t, 1, hist.Page)
	require.Len(t, hist.Sessions, 1)
}

func TestHistoryHandler_NoStore(t *testing.T) {
	e := newTestEngine(t, dispatchAll(instantExec(passing(1), nil)))

	w := doRequest(t, e, http.MethodGet, "/history")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestModulesHandler(t *testing.T) {
	e := newTestEngine(t, dispatchAll(instantExec(passing(1), nil)))

	w := doRequest(t, e, http.MethodGet, "/modules")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Modules []modules.Module `json:"modules"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Modules, modules.Count)
	assert.Equal(t, modules.CampaignManagement, resp.Modules[5].ID)
}
