package postgrest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/water-compliance-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAPIKey        = "test-anon-key"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testClient(baseURL string) *Client {
	return &Client{
		apiKey:     testAPIKey,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func writeRows(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set(headerContentType, contentTypeJSON)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestClient_CountSystems_Active(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "/public_water_systems", r.URL.Path)
		assert.Equal(t, "eq.A", r.URL.Query().Get("pws_activity_code"))
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
		assert.Equal(t, testAPIKey, r.Header.Get("apikey"))
		assert.Equal(t, "Bearer "+testAPIKey, r.Header.Get("Authorization"))
		w.Header().Set("Content-Range", "0-24/3573")
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer srv.Close()

	n, err := testClient(srv.URL).CountSystems(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 3573, n)
}

func TestClient_CountViolations_Filters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/violations_enforcement", r.URL.Path)
		assert.Equal(t, "eq.Y", r.URL.Query().Get("is_health_based_ind"))
		assert.Equal(t, "eq.Unaddressed", r.URL.Query().Get("violation_status"))
		w.Header().Set("Content-Range", "*/17")
	}))
	defer srv.Close()

	n, err := testClient(srv.URL).CountViolations(context.Background(),
		domain.ViolationFilter{HealthBasedOnly: true, Status: domain.StatusUnaddressed})
	require.NoError(t, err)
	assert.Equal(t, 17, n)
}

func TestClient_CountSystemHealth_AllRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/system_health_dashboard", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("health_status"))
		w.Header().Set("Content-Range", "*/0")
	}))
	defer srv.Close()

	n, err := testClient(srv.URL).CountSystemHealth(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClient_Count_MissingHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CountSystemHealth(context.Background(), domain.HealthRed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "system_health_dashboard")
}

func TestClient_ActivePopulation_SumsAndSkipsNulls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3000", r.URL.Query().Get("limit"))
		assert.Equal(t, "population_served_count", r.URL.Query().Get("select"))
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`[{"population_served_count":1000},{"population_served_count":null},{"population_served_count":250}]`))
	}))
	defer srv.Close()

	total, err := testClient(srv.URL).ActivePopulation(context.Background(), 3000)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), total)
}

func TestClient_CountySummaries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/county_summary", r.URL.Path)
		assert.Equal(t, "critical_violations.desc", r.URL.Query().Get("order"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		writeRows(t, w, []domain.CountySummary{{County: "Fulton", CriticalViolations: 9}})
	}))
	defer srv.Close()

	rows, err := testClient(srv.URL).CountySummaries(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Fulton", rows[0].County)
}

func TestClient_SystemsSorted_RPC(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rpc/get_systems_sorted", r.URL.Path)
		assert.Equal(t, contentTypeJSON, r.Header.Get(headerContentType))

		var args map[string]int
		require.NoError(t, json.NewDecoder(r.Body).Decode(&args))
		assert.Equal(t, map[string]int{"page_offset": 40, "page_limit": 20}, args)

		_, _ = w.Write([]byte(`[{"pwsid":"GA001","pws_name":"A","health_status":"RED","population_served_count":null}]`))
	}))
	defer srv.Close()

	rows, err := testClient(srv.URL).SystemsSorted(context.Background(), 40, 20)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.HealthRed, rows[0].HealthStatus)
	assert.Zero(t, rows[0].PopulationServed)
}

func TestClient_System_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.GA999", r.URL.Query().Get("pwsid"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).System(context.Background(), "GA999")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClient_System_Found(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeRows(t, w, []domain.SystemDetail{{PWSID: "GA001", Name: "Smalltown", ActivityCode: "A"}})
	}))
	defer srv.Close()

	sys, err := testClient(srv.URL).System(context.Background(), "GA001")
	require.NoError(t, err)
	assert.True(t, sys.Active())
}

func TestClient_Violations_Order(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assert.Equal(t, "non_compl_per_begin_date.desc", r.URL.Query().Get("order"))
		writeRows(t, w, []domain.SystemViolation{{ViolationID: "V-1"}})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.ExplainedViolations(context.Background(), "GA001")
	require.NoError(t, err)
	_, err = c.Violations(context.Background(), "GA001")
	require.NoError(t, err)

	assert.Equal(t, []string{"/public_violation_explanations", "/violations_enforcement"}, paths)
}

func TestClient_ViolationsWithExplanations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rpc/get_violations_with_explanations", r.URL.Path)
		var args map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&args))
		assert.Equal(t, "GA001", args["system_pwsid"])
		_, _ = w.Write([]byte(`[{"violation_id":"V-1","violation_code":"02","contaminant_code":null,"severity_score":7}]`))
	}))
	defer srv.Close()

	rows, err := testClient(srv.URL).ViolationsWithExplanations(context.Background(), "GA001")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].ContaminantCode)
	require.NotNil(t, rows[0].SeverityScore)
	assert.Equal(t, 7, *rows[0].SeverityScore)
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"42883","message":"function get_systems_sorted does not exist"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).SystemsSorted(context.Background(), 0, 20)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "does not exist")
}

func TestClient_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	require.NoError(t, testClient(srv.URL).Ping(context.Background()))
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		header  string
		want    int
		wantErr bool
	}{
		{header: "0-24/3573", want: 3573},
		{header: "*/0", want: 0},
		{header: "*/*", wantErr: true},
		{header: "", wantErr: true},
		{header: "0-1/abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			n, err := parseContentRange(tt.header)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestNewClient_TrimsBaseURL(t *testing.T) {
	c := NewClient("http://localhost:54321/rest/v1/", "", time.Second, slog.Default())
	assert.Equal(t, "http://localhost:54321/rest/v1", c.baseURL)
}
