package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/perfsonar/elmond/internal/model"
)

type fakeMetadata struct {
	records  []model.Record
	err      error
	paginate bool
	url      *url.URL
	params   model.Params
}

func (f *fakeMetadata) Search(ctx context.Context, params model.Params, requestURL *url.URL, paginate bool) ([]model.Record, error) {
	f.params, f.url, f.paginate = params, requestURL, paginate
	return f.records, f.err
}

func (f *fakeMetadata) Get(ctx context.Context, key string, params model.Params, requestURL *url.URL) (model.Record, error) {
	f.params, f.url = params, requestURL
	if f.err != nil {
		return nil, f.err
	}
	for _, rec := range f.records {
		if rec["metadata-key"] == key {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", model.ErrNotFound, key)
}

type fetchCall struct {
	key, eventType, summaryType, window string
}

type fakeData struct {
	calls  []fetchCall
	points []model.DataPoint
	err    error
}

func (f *fakeData) Fetch(ctx context.Context, key, eventType, summaryType, window string, params model.Params) ([]model.DataPoint, error) {
	f.calls = append(f.calls, fetchCall{key, eventType, summaryType, window})
	return f.points, f.err
}

func newTestHandler() (http.Handler, *fakeMetadata, *fakeData) {
	m := &fakeMetadata{records: []model.Record{{
		"metadata-key": "abc",
		"event-types": []model.EventTypeEntry{
			{EventType: "failures", BaseURI: "/esmond/perfsonar/archive/abc/failures/base/0"},
			{
				EventType: "throughput",
				BaseURI:   "/esmond/perfsonar/archive/abc/throughput/base/0",
				Summaries: []model.SummaryEntry{
					{EventType: "throughput", SummaryType: "average", SummaryWindow: 86400, URI: "/esmond/perfsonar/archive/abc/throughput/averages/86400"},
				},
			},
		},
	}}}
	d := &fakeData{points: []model.DataPoint{{TS: 10, Val: 1.5}}}
	h := NewHandler("", m, d, zap.NewNop())
	return h.Router(), m, d
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListMetadata(t *testing.T) {
	h, m, _ := newTestHandler()

	for _, path := range []string{"/esmond/perfsonar/archive", "/esmond/perfsonar/archive/"} {
		rec := get(t, h, path+"?limit=1&source=10.0.0.1")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body []map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body, 1)
		require.Equal(t, "abc", body[0]["metadata-key"])

		require.True(t, m.paginate)
		require.Equal(t, model.Params{"limit": "1", "source": "10.0.0.1"}, m.params)
		require.Equal(t, "http://example.com"+path+"?limit=1&source=10.0.0.1", m.url.String())
	}
}

func TestGetMetadata(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := get(t, h, "/esmond/perfsonar/archive/abc/")
	require.Equal(t, http.StatusOK, rec.Code)
	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)

	rec = get(t, h, "/esmond/perfsonar/archive/missing")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"error": "not found: missing"}`, rec.Body.String())
}

func TestGetEventTypeAndSummaries(t *testing.T) {
	h, _, d := newTestHandler()

	rec := get(t, h, "/esmond/perfsonar/archive/abc/throughput")
	require.Equal(t, http.StatusOK, rec.Code)
	var entry model.EventTypeEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	require.Equal(t, "throughput", entry.EventType)
	require.Len(t, entry.Summaries, 1)

	rec = get(t, h, "/esmond/perfsonar/archive/abc/histogram-rtt")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, h, "/esmond/perfsonar/archive/abc/throughput/averages")
	require.Equal(t, http.StatusOK, rec.Code)
	var summaries []model.SummaryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Equal(t, []model.SummaryEntry{{
		EventType:     "throughput",
		SummaryType:   "average",
		SummaryWindow: 86400,
		URI:           "/esmond/perfsonar/archive/abc/throughput/averages/86400",
	}}, summaries)

	rec = get(t, h, "/esmond/perfsonar/archive/abc/throughput/aggregations/")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())

	rec = get(t, h, "/esmond/perfsonar/archive/abc/throughput/base")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[{"ts": 10, "val": 1.5}]`, rec.Body.String())
	require.Equal(t, []fetchCall{{"abc", "throughput", "base", "0"}}, d.calls)
}

func TestGetData(t *testing.T) {
	h, _, d := newTestHandler()

	rec := get(t, h, "/esmond/perfsonar/archive/abc/throughput/averages/86400?time-range=3600")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[{"ts": 10, "val": 1.5}]`, rec.Body.String())
	require.Equal(t, []fetchCall{{"abc", "throughput", "average", "86400"}}, d.calls)

	rec = get(t, h, "/esmond/perfsonar/archive/abc/throughput/medians/0")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Len(t, d.calls, 1)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		body   string
	}{
		{fmt.Errorf("%w: summary window must be an integer", model.ErrInvalidRequest), http.StatusBadRequest, "invalid request: summary window must be an integer"},
		{fmt.Errorf("%w: no rollup", model.ErrNotImplemented), http.StatusNotImplemented, "not implemented: no rollup"},
		{errors.New("search failed: connection refused"), http.StatusInternalServerError, "failed to fetch data"},
	}
	for _, tt := range tests {
		h, _, d := newTestHandler()
		d.err = tt.err
		rec := get(t, h, "/esmond/perfsonar/archive/abc/throughput/base/0")
		require.Equal(t, tt.status, rec.Code)
		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, tt.body, body.Error)
	}
}

func TestRequestID(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := get(t, h, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "req-1", rec.Header().Get("X-Request-Id"))
}

func TestMetricsAndCORS(t *testing.T) {
	h, _, _ := newTestHandler()

	get(t, h, "/esmond/perfsonar/archive/abc")
	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "elmond_api_requests_total")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://dashboard.example.net")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
