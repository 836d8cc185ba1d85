package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/openbuildings-cli/internal/dataset"
	"github.com/sells-group/openbuildings-cli/internal/model"
	"github.com/sells-group/openbuildings-cli/internal/nearest"
)

func rioRecords() []model.Building {
	return []model.Building{
		{Latitude: -22.95, Longitude: -43.20, AreaInMeters: 120.5, Confidence: 0.81, PlusCode: "589R2RX2+AA", Row: 1},
		{Latitude: -23.00, Longitude: -43.25, AreaInMeters: 88.1, Confidence: 0.70, PlusCode: "589R2R22+BB", Row: 2},
		{Latitude: -22.90, Longitude: -43.10, AreaInMeters: 55.0, Confidence: 0.90, PlusCode: "589R3V22+CC", Row: 3},
	}
}

func newTestServer(t *testing.T, records []model.Building) http.Handler {
	t.Helper()
	ix, err := nearest.NewIndex(records)
	require.NoError(t, err)

	ds := &dataset.Dataset{Source: "rio.csv", Columns: []string{"latitude", "longitude"}, Records: records}
	srv := NewServer(ix, dataset.Summarize(ds, 2), Options{
		Landmark: model.CristoRedentor,
		MaxK:     10,
		S2Level:  16,
	}, nil)
	return srv.Router()
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	rr := get(t, newTestServer(t, rioRecords()), "/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 3, body["records"])
}

func TestRouter_NearestDefaultsToLandmark(t *testing.T) {
	rr := get(t, newTestServer(t, rioRecords()), "/v1/nearest")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp NearestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Cristo Redentor", resp.Reference.Name)
	assert.Equal(t, 1, resp.K)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "589R2RX2+AA", resp.Results[0].Building.PlusCode)
	assert.Equal(t, "rio.csv", resp.Results[0].Dataset)
	assert.NotEmpty(t, resp.Results[0].S2Token)
}

func TestRouter_NearestTopK(t *testing.T) {
	rr := get(t, newTestServer(t, rioRecords()), "/v1/nearest?lat=-23.0&lon=-43.25&k=3&name=Barra")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp NearestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Barra", resp.Reference.Name)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "589R2R22+BB", resp.Results[0].Building.PlusCode)
	assert.Zero(t, resp.Results[0].Distance)
	assert.LessOrEqual(t, resp.Results[1].Distance, resp.Results[2].Distance)
}

func TestRouter_NearestUnnamedReference(t *testing.T) {
	rr := get(t, newTestServer(t, rioRecords()), "/v1/nearest?lat=-22.9&lon=-43.1")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp NearestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "-22.9,-43.1", resp.Reference.Name)
	assert.Equal(t, "589R3V22+CC", resp.Results[0].Building.PlusCode)
}

func TestRouter_NearestBadParams(t *testing.T) {
	h := newTestServer(t, rioRecords())
	for _, target := range []string{
		"/v1/nearest?lat=abc&lon=1",
		"/v1/nearest?lat=1",
		"/v1/nearest?lon=1",
		"/v1/nearest?lat=NaN&lon=1",
		"/v1/nearest?lat=91&lon=1",
		"/v1/nearest?lat=1&lon=181",
		"/v1/nearest?k=0",
		"/v1/nearest?k=11",
		"/v1/nearest?k=two",
	} {
		rr := get(t, h, target)
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
		assert.Contains(t, rr.Body.String(), `"error"`, target)
	}
}

func TestRouter_NearestEmptyDataset(t *testing.T) {
	rr := get(t, newTestServer(t, nil), "/v1/nearest")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "dataset is empty")
}

func TestRouter_Within(t *testing.T) {
	h := newTestServer(t, rioRecords())
	rr := get(t, h, "/v1/within?min_lng=-43.21&min_lat=-22.96&max_lng=-43.09&max_lat=-22.89")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp WithinResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Buildings, 2)
	assert.Equal(t, "589R2RX2+AA", resp.Buildings[0].PlusCode)
	assert.Equal(t, "589R3V22+CC", resp.Buildings[1].PlusCode)

	rr = get(t, h, "/v1/within?min_lng=-43.3&min_lat=-23.1&max_lng=-43.0&max_lat=-22.8&limit=1")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Len(t, resp.Buildings, 1)
}

func TestRouter_WithinBadParams(t *testing.T) {
	h := newTestServer(t, rioRecords())
	for _, target := range []string{
		"/v1/within?min_lng=-43&min_lat=-23&max_lng=-42",
		"/v1/within?min_lng=-42&min_lat=-23&max_lng=-43&max_lat=-22",
		"/v1/within?min_lng=-43&min_lat=-23&max_lng=-42&max_lat=-22&limit=0",
	} {
		rr := get(t, h, target)
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}

func TestRouter_Stats(t *testing.T) {
	rr := get(t, newTestServer(t, rioRecords()), "/v1/stats")
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "rio.csv", body["source"])
	assert.EqualValues(t, 3, body["rows"])
	assert.Len(t, body["head"], 2)
	assert.Len(t, body["stats"], 4)
}

func TestRouter_StatsEmptyDataset(t *testing.T) {
	rr := get(t, newTestServer(t, nil), "/v1/stats")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"mean":null`)
}

func TestRouter_MetricsCountsRequests(t *testing.T) {
	h := newTestServer(t, rioRecords())
	get(t, h, "/v1/nearest")
	get(t, h, "/v1/nearest?k=0")

	rr := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	out := string(body)

	assert.Contains(t, out, `openbuildings_http_requests_total{code="200",route="/v1/nearest"} 1`)
	assert.Contains(t, out, `openbuildings_http_requests_total{code="400",route="/v1/nearest"} 1`)
	assert.Contains(t, out, "openbuildings_nearest_query_duration_seconds_count 1")
	assert.Contains(t, out, "openbuildings_dataset_records 3")
}

func TestRouter_CORS(t *testing.T) {
	h := newTestServer(t, rioRecords())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_NotFound(t *testing.T) {
	rr := get(t, newTestServer(t, rioRecords()), "/v2/nothing")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.False(t, strings.Contains(rr.Body.String(), "panic"))
}
