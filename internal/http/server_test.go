package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"carga/internal/services"
	"carga/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "carga_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	ledger := services.NewLedgerService(repo, nil)
	reports := services.NewReportService(repo)

	srv := NewServer(":0", ledger, reports, []string{"*"})
	ts := httptest.NewServer(srv.Server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func createResource(t *testing.T, ts *httptest.Server, name string) int64 {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/resources", map[string]any{"name": name, "unit": "TI"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out struct {
		ID int64 `json:"id"`
	}
	decodeBody(t, resp, &out)
	return out.ID
}

func createProject(t *testing.T, ts *httptest.Server, name string) int64 {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/projects", map[string]any{
		"name":           name,
		"classification": "Proyecto",
		"phase":          "Desarrollo",
		"complexity":     "Baja",
		"has_resource":   true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out struct {
		ID int64 `json:"id"`
	}
	decodeBody(t, resp, &out)
	return out.ID
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestResourceLifecycle(t *testing.T) {
	ts := newTestServer(t)

	id := createResource(t, ts, "Ana Torres")

	resp, err := http.Get(ts.URL + "/api/resources")
	require.NoError(t, err)
	var list []resourceJSON
	decodeBody(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "Ana Torres", list[0].Name)

	resp = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/resources/%d", ts.URL, id), nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/resources/%d", ts.URL, id), nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateResource_EmptyName(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/resources", map[string]any{"name": "  "})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateProject_InvalidClassification(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/projects", map[string]any{
		"name":           "X",
		"classification": "Otra",
		"complexity":     "Baja",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateAssignment_EndToEnd(t *testing.T) {
	ts := newTestServer(t)
	resID := createResource(t, ts, "Ana Torres")
	projID := createProject(t, ts, "Core Bancario")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/assignments", map[string]any{
		"project_id":  projID,
		"resource_id": resID,
		"start_week":  "2024-03-04",
		"end_week":    "2024-03-18",
		"percentage":  40,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var a assignmentJSON
	decodeBody(t, resp, &a)
	assert.Equal(t, "2024-03-04", a.StartWeek)
	assert.Equal(t, "Proyecto", a.Classification)

	resp, err := http.Get(fmt.Sprintf("%s/api/assignments/%d/weeks", ts.URL, a.ID))
	require.NoError(t, err)
	var weeks []weekEntryJSON
	decodeBody(t, resp, &weeks)
	require.Len(t, weeks, 3)
	assert.Equal(t, "Marzo_24", weeks[0].MonthLabel)
	assert.Equal(t, "Sem 2", weeks[0].WeekLabel)
	assert.Equal(t, "2024-03-08", weeks[0].WeekFriday)
}

func TestCreateAssignment_CapacityConflictBody(t *testing.T) {
	ts := newTestServer(t)
	resID := createResource(t, ts, "Ana Torres")
	projID := createProject(t, ts, "Core Bancario")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/assignments", map[string]any{
		"project_id":  projID,
		"resource_id": resID,
		"start_week":  "2024-03-04",
		"end_week":    "2024-03-04",
		"percentage":  60,
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/assignments", map[string]any{
		"project_id":  projID,
		"resource_id": resID,
		"start_week":  "2024-03-04",
		"end_week":    "2024-03-04",
		"percentage":  50,
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var conflict conflictResponse
	decodeBody(t, resp, &conflict)
	require.Len(t, conflict.Weeks, 1)
	assert.Equal(t, "2024-03-04", conflict.Weeks[0].WeekMonday)
	assert.Equal(t, "Marzo_24:Sem 2", conflict.Weeks[0].Label)
	assert.Equal(t, 60.0, conflict.Weeks[0].Current)
	assert.Equal(t, 50.0, conflict.Weeks[0].New)
	assert.NotEmpty(t, conflict.Message)
}

func TestCreateAssignment_ErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	resID := createResource(t, ts, "Ana Torres")
	projID := createProject(t, ts, "Core Bancario")

	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{
			name:   "non-Monday start",
			body:   map[string]any{"project_id": projID, "resource_id": resID, "start_week": "2024-03-05", "end_week": "2024-03-11"},
			status: http.StatusBadRequest,
		},
		{
			name:   "end before start",
			body:   map[string]any{"project_id": projID, "resource_id": resID, "start_week": "2024-03-11", "end_week": "2024-03-04"},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown project",
			body:   map[string]any{"project_id": 9999, "resource_id": resID, "start_week": "2024-03-04", "end_week": "2024-03-04"},
			status: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, ts.URL+"/api/assignments", tt.body)
			resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestBulkAssignments(t *testing.T) {
	ts := newTestServer(t)
	resID := createResource(t, ts, "Ana Torres")
	projID := createProject(t, ts, "Core Bancario")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/assignments/bulk", map[string]any{
		"project_id":  projID,
		"resource_id": resID,
		"start_week":  "2024-03-04",
		"percentages": []float64{30, 0, 50},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		Count   int `json:"count"`
		Created []struct {
			Label      string  `json:"label"`
			Percentage float64 `json:"percentage"`
		} `json:"created"`
	}
	decodeBody(t, resp, &out)
	assert.Equal(t, 2, out.Count)
	require.Len(t, out.Created, 2)
	assert.Equal(t, "Marzo_24:Sem 2", out.Created[0].Label)
	assert.Equal(t, "Marzo_24:Sem 4", out.Created[1].Label)
}

func TestWeekWindowEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/weeks/window?start=2024-03-04&weeks=2")
	require.NoError(t, err)
	var out struct {
		Labels []string `json:"labels"`
		Weeks  []struct {
			WeekMonday string `json:"week_monday"`
			WeekFriday string `json:"week_friday"`
		} `json:"weeks"`
	}
	decodeBody(t, resp, &out)
	assert.Equal(t, []string{"Marzo_24:Sem 2", "Marzo_24:Sem 3"}, out.Labels)
	require.Len(t, out.Weeks, 2)
	assert.Equal(t, "2024-03-08", out.Weeks[0].WeekFriday)

	// Bad start degrades to an empty window, not an error.
	resp, err = http.Get(ts.URL + "/api/weeks/window?start=garbage&weeks=2")
	require.NoError(t, err)
	decodeBody(t, resp, &out)
	assert.Empty(t, out.Weeks)
}

func TestCapacityGrid_CacheInvalidatedOnWrite(t *testing.T) {
	ts := newTestServer(t)
	resID := createResource(t, ts, "Ana Torres")
	projID := createProject(t, ts, "Core Bancario")

	gridURL := ts.URL + "/api/grid/capacity?start=2024-03-04&weeks=2"

	var grid struct {
		Labels     []string             `json:"labels"`
		ByResource map[string][]float64 `json:"by_resource"`
	}
	resp, err := http.Get(gridURL)
	require.NoError(t, err)
	decodeBody(t, resp, &grid)
	assert.Equal(t, []float64{0, 0}, grid.ByResource["Ana Torres"])

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/assignments", map[string]any{
		"project_id":  projID,
		"resource_id": resID,
		"start_week":  "2024-03-04",
		"end_week":    "2024-03-04",
		"percentage":  45,
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// The cached zero grid must not survive the write.
	resp, err = http.Get(gridURL)
	require.NoError(t, err)
	decodeBody(t, resp, &grid)
	assert.Equal(t, []float64{45, 0}, grid.ByResource["Ana Torres"])
}

func TestResourceVsGridEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resID := createResource(t, ts, "Ana Torres")
	projID := createProject(t, ts, "Core Bancario")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/assignments", map[string]any{
		"project_id":  projID,
		"resource_id": resID,
		"start_week":  "2024-03-04",
		"end_week":    "2024-03-04",
		"percentage":  25,
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err := http.Get(ts.URL + "/api/grid/resources-vs?start=2024-03-04&weeks=1")
	require.NoError(t, err)
	var out struct {
		Types    []string `json:"types"`
		People   []string `json:"people"`
		ByPerson map[string]struct {
			LoadByTypeWeek map[string][]float64 `json:"load_by_type_week"`
		} `json:"by_person"`
	}
	decodeBody(t, resp, &out)
	assert.Equal(t, []string{"Proyecto", "Anteproyecto", "Estrategia", "Admon"}, out.Types)
	require.Contains(t, out.ByPerson, "Ana Torres")
	assert.Equal(t, []float64{25}, out.ByPerson["Ana Torres"].LoadByTypeWeek["Proyecto"])
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/resources", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}
