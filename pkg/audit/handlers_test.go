package audit

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestListLogsHandler(t *testing.T) {
	reader, _ := newTestReader(t)
	r := Router(reader)

	rec := doRequest(t, r, "/logs?actorId=u-1&limit=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var res ListResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.TotalPages)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "rec-3", res.Records[0].ID)
	assert.True(t, res.Records[0].Masked)
}

func TestListLogsHandler_DateRange(t *testing.T) {
	reader, _ := newTestReader(t)
	r := Router(reader)

	from := baseTime.Add(30 * time.Second).Format(time.RFC3339)
	to := baseTime.Add(90 * time.Second).Format(time.RFC3339)
	rec := doRequest(t, r, "/logs?from="+from+"&to="+to)
	require.Equal(t, http.StatusOK, rec.Code)

	var res ListResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Records, 1)
	assert.Equal(t, "rec-2", res.Records[0].ID)
}

func TestListLogsHandler_BadQuery(t *testing.T) {
	reader, _ := newTestReader(t)
	r := Router(reader)

	for _, target := range []string{
		"/logs?from=yesterday",
		"/logs?page=0",
		"/logs?limit=abc",
		"/logs?from=2026-03-02T00:00:00Z&to=2026-03-01T00:00:00Z",
	} {
		rec := doRequest(t, r, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Contains(t, rec.Body.String(), "INVALID_ARGUMENT", target)
	}
}

func TestGetLogHandler(t *testing.T) {
	reader, _ := newTestReader(t)
	r := Router(reader)

	rec := doRequest(t, r, "/logs/rec-2")
	require.Equal(t, http.StatusOK, rec.Code)
	var got MaskedRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, Placeholder, got.TargetName)

	rec = doRequest(t, r, "/logs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDiffLogHandler(t *testing.T) {
	reader, _ := newTestReader(t)
	r := Router(reader)

	rec := doRequest(t, r, "/logs/rec-1/diff")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ID      string        `json:"id"`
		Changes []FieldChange `json:"changes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rec-1", body.ID)
	require.Len(t, body.Changes, 1)
	assert.Equal(t, "title", body.Changes[0].Field)
}

func TestExportLogsHandler(t *testing.T) {
	reader, _ := newTestReader(t)
	r := Router(reader)

	rec := doRequest(t, r, "/logs:export?targetType=secrets")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "audit-logs.csv")

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "rec-2", rows[1][0])
}

func TestExportLogsHandler_SourceDown(t *testing.T) {
	r := Router(NewReader(failingSource{}, nil, nil))

	rec := doRequest(t, r, "/logs:export")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestFilterQueryRoundTrip(t *testing.T) {
	from := baseTime
	in := Filter{ActorID: "u-1", Action: "delete", Search: "ivanov", From: &from, Page: 2, Limit: 10}

	out, err := FilterFromQuery(in.Query())
	require.NoError(t, err)
	assert.Equal(t, in.ActorID, out.ActorID)
	assert.Equal(t, in.Action, out.Action)
	assert.Equal(t, in.Search, out.Search)
	require.NotNil(t, out.From)
	assert.True(t, from.Equal(*out.From))
	assert.Nil(t, out.To)
	assert.Equal(t, 2, out.Page)
	assert.Equal(t, 10, out.Limit)
}
