package dashboard_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/couchcryptid/water-compliance-api/internal/dashboard"
	"github.com/couchcryptid/water-compliance-api/internal/domain"
	"github.com/couchcryptid/water-compliance-api/internal/observability"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fake backend ---

type fakeBackend struct {
	mu sync.Mutex

	systems, activeSystems         int
	violations, healthViolations   int
	unaddressedViolations          int
	population                     int64
	counties                       []domain.CountySummary
	trends                         []domain.ViolationTrend
	health                         map[domain.HealthStatus]int
	sorted                         []domain.SystemHealthRecord
	system                         *domain.SystemDetail
	explained, plain               []domain.SystemViolation
	visits                         []domain.SiteVisit
	areas                          []domain.GeographicArea
	records                        []domain.ViolationRecord
	failing                        map[string]error
	gotOffset, gotLimit, gotPopLim int
}

func (f *fakeBackend) fail(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failing[name]
}

func (f *fakeBackend) CountSystems(_ context.Context, activeOnly bool) (int, error) {
	if activeOnly {
		return f.activeSystems, f.fail("active")
	}
	return f.systems, f.fail("systems")
}

func (f *fakeBackend) CountViolations(_ context.Context, filter domain.ViolationFilter) (int, error) {
	switch {
	case filter.HealthBasedOnly:
		return f.healthViolations, f.fail("violations")
	case filter.Status == domain.StatusUnaddressed:
		return f.unaddressedViolations, f.fail("violations")
	default:
		return f.violations, f.fail("violations")
	}
}

func (f *fakeBackend) ActivePopulation(_ context.Context, limit int) (int64, error) {
	f.mu.Lock()
	f.gotPopLim = limit
	f.mu.Unlock()
	return f.population, f.fail("population")
}

func (f *fakeBackend) CountySummaries(_ context.Context, _ int) ([]domain.CountySummary, error) {
	return f.counties, f.fail("counties")
}

func (f *fakeBackend) ViolationTrends(context.Context) ([]domain.ViolationTrend, error) {
	return f.trends, f.fail("trends")
}

func (f *fakeBackend) CountSystemHealth(_ context.Context, status domain.HealthStatus) (int, error) {
	if status == "" {
		return f.health[domain.HealthRed] + f.health[domain.HealthYellow] + f.health[domain.HealthGreen], f.fail("health")
	}
	return f.health[status], f.fail("health")
}

func (f *fakeBackend) SystemsSorted(_ context.Context, offset, limit int) ([]domain.SystemHealthRecord, error) {
	f.mu.Lock()
	f.gotOffset, f.gotLimit = offset, limit
	f.mu.Unlock()
	return f.sorted, f.fail("sorted")
}

func (f *fakeBackend) System(_ context.Context, _ string) (domain.SystemDetail, error) {
	if err := f.fail("system"); err != nil {
		return domain.SystemDetail{}, err
	}
	if f.system == nil {
		return domain.SystemDetail{}, domain.ErrNotFound
	}
	return *f.system, nil
}

func (f *fakeBackend) ExplainedViolations(context.Context, string) ([]domain.SystemViolation, error) {
	return f.explained, f.fail("explained")
}

func (f *fakeBackend) Violations(context.Context, string) ([]domain.SystemViolation, error) {
	return f.plain, f.fail("plain")
}

func (f *fakeBackend) SiteVisits(context.Context, string) ([]domain.SiteVisit, error) {
	return f.visits, f.fail("visits")
}

func (f *fakeBackend) GeographicAreas(context.Context, string) ([]domain.GeographicArea, error) {
	return f.areas, f.fail("areas")
}

func (f *fakeBackend) ViolationsWithExplanations(context.Context, string) ([]domain.ViolationRecord, error) {
	return f.records, f.fail("records")
}

func (f *fakeBackend) Ping(context.Context) error { return f.fail("ping") }

func newService(b *fakeBackend) (*dashboard.Service, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	opts := dashboard.Options{PageSize: 3, CountyLimit: 50, PopulationLimit: 3000}
	return dashboard.NewService(b, opts, slog.Default(), m), m
}

func healthyBackend() *fakeBackend {
	return &fakeBackend{
		systems:               2500,
		activeSystems:         2000,
		violations:            5000,
		healthViolations:      800,
		unaddressedViolations: 120,
		population:            9_000_000,
		counties: []domain.CountySummary{
			{County: "Fulton", CriticalViolations: 9},
			{County: "Cobb", CriticalViolations: 2},
			{County: "Rabun"},
		},
		trends: []domain.ViolationTrend{
			{Year: 2022, TotalViolations: 100, HealthViolations: 20, UnaddressedViolations: 5},
			{Year: 2023, TotalViolations: 10, HealthViolations: 12, UnaddressedViolations: 1},
		},
		health: map[domain.HealthStatus]int{domain.HealthRed: 4, domain.HealthYellow: 6, domain.HealthGreen: 90},
	}
}

// --- overview ---

func TestOverview_Success(t *testing.T) {
	b := healthyBackend()
	svc, _ := newService(b)

	o := svc.Overview(context.Background())

	assert.True(t, o.DBConnected)
	assert.Empty(t, o.Error)
	assert.Equal(t, 2500, o.Metrics.TotalSystems)
	assert.Equal(t, 120, o.Metrics.SystemsWithCriticalViolations)
	assert.InDelta(t, 2.5, o.Metrics.AvgViolationsPerSystem, 1e-9)
	assert.Equal(t, int64(9_000_000), o.Metrics.TotalPopulationServed)
	assert.Equal(t, domain.HealthStats{Red: 4, Yellow: 6, Green: 90}, o.HealthStats)
	assert.Equal(t, 3000, b.gotPopLim)

	require.Len(t, o.Counties, 3)
	assert.Equal(t, domain.HealthRed, o.Counties[0].RiskLevel)
	assert.Equal(t, domain.HealthYellow, o.Counties[1].RiskLevel)
	assert.Equal(t, domain.HealthGreen, o.Counties[2].RiskLevel)

	require.Len(t, o.Anomalies, 1)
	assert.Equal(t, 2023, o.Anomalies[0].Year)
}

func TestOverview_FallbackOnFailure(t *testing.T) {
	b := healthyBackend()
	b.failing = map[string]error{"trends": errors.New("connection refused")}
	svc, m := newService(b)

	o := svc.Overview(context.Background())

	assert.False(t, o.DBConnected)
	assert.Contains(t, o.Error, "connection refused")
	assert.Equal(t, domain.DashboardMetrics{}, o.Metrics)
	assert.Empty(t, o.Counties)
	assert.NotNil(t, o.Trends)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.DashboardFallbacks), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.BackendQueries.WithLabelValues("violation_trends", "error")), 1e-9)
}

// --- systems page ---

func TestSystemsPage_DedupesFanOut(t *testing.T) {
	b := healthyBackend()
	b.sorted = []domain.SystemHealthRecord{
		{PWSID: "GA001", HealthStatus: domain.HealthGreen},
		{PWSID: "GA002", HealthStatus: domain.HealthRed},
		{PWSID: "GA001", HealthStatus: domain.HealthRed},
	}
	svc, m := newService(b)

	page, err := svc.SystemsPage(context.Background(), 2)
	require.NoError(t, err)

	want := []domain.SystemHealthRecord{
		{PWSID: "GA001", HealthStatus: domain.HealthRed},
		{PWSID: "GA002", HealthStatus: domain.HealthRed},
	}
	if diff := cmp.Diff(want, page.Systems); diff != "" {
		t.Errorf("systems mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, page.DuplicatesDropped)
	assert.Equal(t, 3, b.gotOffset)
	assert.Equal(t, 3, b.gotLimit)
	assert.Equal(t, 100, page.Pagination.Total)
	assert.Equal(t, 34, page.Pagination.TotalPages)
	assert.True(t, page.Pagination.HasPrev)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.DuplicatesDropped), 1e-9)
}

func TestSystemsPage_ClampsPage(t *testing.T) {
	b := healthyBackend()
	svc, _ := newService(b)

	page, err := svc.SystemsPage(context.Background(), -4)
	require.NoError(t, err)
	assert.Equal(t, 0, b.gotOffset)
	assert.Equal(t, 1, page.Pagination.Page)
	assert.Empty(t, page.Systems)
}

func TestSystemsPage_BackendError(t *testing.T) {
	b := healthyBackend()
	b.failing = map[string]error{"sorted": errors.New("rpc failed")}
	svc, _ := newService(b)

	_, err := svc.SystemsPage(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc failed")
}

// --- counties & trends ---

func TestCountiesPage(t *testing.T) {
	b := healthyBackend()
	for i := range 12 {
		b.counties = append(b.counties, domain.CountySummary{County: "Extra", TotalSystems: i})
	}
	svc, _ := newService(b)

	page, err := svc.CountiesPage(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, page.Chart, 10)
	require.Len(t, page.Counties, 3)
	assert.Equal(t, 0, page.Counties[0].TotalSystems)
	assert.Equal(t, 15, page.Pagination.Total)
	assert.Equal(t, 5, page.Pagination.TotalPages)
}

func TestTrends(t *testing.T) {
	svc, _ := newService(healthyBackend())

	tr, err := svc.Trends(context.Background())
	require.NoError(t, err)
	assert.Len(t, tr.Trends, 2)
	assert.Len(t, tr.Anomalies, 1)
}

// --- system detail ---

func TestSystemDetail_PrefersExplainedViolations(t *testing.T) {
	b := healthyBackend()
	b.system = &domain.SystemDetail{PWSID: "GA001", Name: "Smalltown", ActivityCode: "A"}
	b.explained = []domain.SystemViolation{
		{ViolationID: "1", HealthBasedInd: "Y", Status: domain.StatusAddressed},
		{ViolationID: "2", HealthBasedInd: "Y", Status: domain.StatusUnaddressed},
	}
	b.plain = []domain.SystemViolation{{ViolationID: "plain"}}
	svc, _ := newService(b)

	view, err := svc.SystemDetail(context.Background(), "GA001")
	require.NoError(t, err)
	assert.Equal(t, "Smalltown", view.System.Name)
	require.Len(t, view.Violations, 2)
	assert.Equal(t, domain.HealthRed, view.Summary.HealthStatus)
	assert.Equal(t, 2, view.Summary.HealthViolations)
	assert.Equal(t, 1, view.Summary.UnaddressedViolations)
	assert.NotNil(t, view.SiteVisits)
	assert.NotNil(t, view.GeographicAreas)
}

func TestSystemDetail_FallsBackToEnforcementTable(t *testing.T) {
	b := healthyBackend()
	b.system = &domain.SystemDetail{PWSID: "GA001"}
	b.plain = []domain.SystemViolation{{ViolationID: "plain", HealthBasedInd: "Y", Status: domain.StatusResolved}}
	svc, _ := newService(b)

	view, err := svc.SystemDetail(context.Background(), "GA001")
	require.NoError(t, err)
	require.Len(t, view.Violations, 1)
	assert.Equal(t, "plain", view.Violations[0].ViolationID)
	assert.Equal(t, domain.HealthYellow, view.Summary.HealthStatus)
}

func TestSystemDetail_SecondaryFailuresDegrade(t *testing.T) {
	b := healthyBackend()
	b.system = &domain.SystemDetail{PWSID: "GA001"}
	b.failing = map[string]error{
		"explained": errors.New("view missing"),
		"plain":     errors.New("table missing"),
		"visits":    errors.New("timeout"),
		"areas":     errors.New("timeout"),
	}
	svc, _ := newService(b)

	view, err := svc.SystemDetail(context.Background(), "GA001")
	require.NoError(t, err)
	assert.Empty(t, view.Violations)
	assert.Empty(t, view.SiteVisits)
	assert.Empty(t, view.GeographicAreas)
	assert.Equal(t, domain.HealthGreen, view.Summary.HealthStatus)
	assert.NotNil(t, view.Summary.RecentViolations)
}

func TestSystemDetail_NotFound(t *testing.T) {
	svc, _ := newService(healthyBackend())

	_, err := svc.SystemDetail(context.Background(), "GA999")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSystemDetail_SystemQueryError(t *testing.T) {
	b := healthyBackend()
	b.failing = map[string]error{"system": errors.New("boom")}
	svc, _ := newService(b)

	_, err := svc.SystemDetail(context.Background(), "GA001")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

// --- violation detail ---

func TestViolationDetail(t *testing.T) {
	b := healthyBackend()
	b.records = []domain.ViolationRecord{
		{ViolationID: "V-1", ViolationCode: "02"},
		{ViolationID: "V-2", ViolationCode: "01"},
	}
	svc, _ := newService(b)

	d, err := svc.ViolationDetail(context.Background(), "GA001", "V-2")
	require.NoError(t, err)
	assert.Equal(t, "GA001", d.PWSID)
	assert.Equal(t, "Violation 01", d.ViolationDescription)

	_, err = svc.ViolationDetail(context.Background(), "GA001", "V-3")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestViolationDetail_BackendError(t *testing.T) {
	b := healthyBackend()
	b.failing = map[string]error{"records": errors.New("rpc failed")}
	svc, _ := newService(b)

	_, err := svc.ViolationDetail(context.Background(), "GA001", "V-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckReadiness(t *testing.T) {
	b := healthyBackend()
	svc, _ := newService(b)
	require.NoError(t, svc.CheckReadiness(context.Background()))

	b.failing = map[string]error{"ping": errors.New("down")}
	require.Error(t, svc.CheckReadiness(context.Background()))
}
