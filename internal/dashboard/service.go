// Package dashboard assembles the read-only views of the water compliance
// dashboard from a query backend.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/water-compliance-api/internal/domain"
	"github.com/couchcryptid/water-compliance-api/internal/observability"
	"golang.org/x/sync/errgroup"
)

// Backend runs the queries the dashboard needs against the SDWIS data.
type Backend interface {
	CountSystems(ctx context.Context, activeOnly bool) (int, error)
	CountViolations(ctx context.Context, f domain.ViolationFilter) (int, error)
	// ActivePopulation sums population served over the first limit active systems.
	ActivePopulation(ctx context.Context, limit int) (int64, error)
	CountySummaries(ctx context.Context, limit int) ([]domain.CountySummary, error)
	ViolationTrends(ctx context.Context) ([]domain.ViolationTrend, error)
	// CountSystemHealth counts health rows with the given status; "" counts all rows.
	CountSystemHealth(ctx context.Context, status domain.HealthStatus) (int, error)
	SystemsSorted(ctx context.Context, offset, limit int) ([]domain.SystemHealthRecord, error)
	System(ctx context.Context, pwsid string) (domain.SystemDetail, error)
	ExplainedViolations(ctx context.Context, pwsid string) ([]domain.SystemViolation, error)
	Violations(ctx context.Context, pwsid string) ([]domain.SystemViolation, error)
	SiteVisits(ctx context.Context, pwsid string) ([]domain.SiteVisit, error)
	GeographicAreas(ctx context.Context, pwsid string) ([]domain.GeographicArea, error)
	ViolationsWithExplanations(ctx context.Context, pwsid string) ([]domain.ViolationRecord, error)
	Ping(ctx context.Context) error
}

// Options sizes the listings.
type Options struct {
	PageSize        int
	CountyLimit     int
	PopulationLimit int
}

// chartCounties is how many counties the chart data carries.
const chartCounties = 10

// Service builds dashboard views.
type Service struct {
	backend Backend
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService creates a Service over the given backend.
func NewService(b Backend, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{backend: b, opts: opts, logger: logger, metrics: metrics}
}

// Overview is the landing page view.
type Overview struct {
	Metrics     domain.DashboardMetrics `json:"metrics"`
	HealthStats domain.HealthStats      `json:"health_stats"`
	Counties    []CountyRow             `json:"counties"`
	Trends      []domain.ViolationTrend `json:"trends"`
	Anomalies   []domain.TrendAnomaly   `json:"trend_anomalies"`
	DBConnected bool                    `json:"db_connected"`
	Error       string                  `json:"error,omitempty"`
}

// CountyRow is a county summary with its risk indicator.
type CountyRow struct {
	domain.CountySummary
	RiskLevel domain.HealthStatus `json:"risk_level"`
}

// SystemsPage is one page of the deduplicated system health listing.
type SystemsPage struct {
	Systems           []domain.SystemHealthRecord `json:"systems"`
	Pagination        domain.PageWindow           `json:"pagination"`
	DuplicatesDropped int                         `json:"duplicates_dropped"`
}

// CountiesPage is one page of county summaries plus the chart data.
type CountiesPage struct {
	Counties   []CountyRow       `json:"counties"`
	Chart      []CountyRow       `json:"chart"`
	Pagination domain.PageWindow `json:"pagination"`
}

// Trends is the yearly violation series.
type Trends struct {
	Trends    []domain.ViolationTrend `json:"trends"`
	Anomalies []domain.TrendAnomaly   `json:"trend_anomalies"`
}

// SystemView is everything shown on a system's page.
type SystemView struct {
	System          domain.SystemDetail      `json:"system"`
	Summary         domain.SystemSummary     `json:"summary"`
	Violations      []domain.SystemViolation `json:"violations"`
	SiteVisits      []domain.SiteVisit       `json:"site_visits"`
	GeographicAreas []domain.GeographicArea  `json:"geographic_areas"`
}

// Overview fetches every overview aggregate concurrently. Any failure yields
// zeroed metrics with DBConnected false rather than an error.
func (s *Service) Overview(ctx context.Context) Overview {
	var (
		counts   domain.OverviewCounts
		stats    domain.HealthStats
		counties []domain.CountySummary
		trends   []domain.ViolationTrend
	)

	g, gctx := errgroup.WithContext(ctx)
	count := func(name string, dst *int, fn func(context.Context) (int, error)) {
		g.Go(func() error {
			return s.track(name, func() error {
				n, err := fn(gctx)
				*dst = n
				return err
			})
		})
	}

	count("count_systems", &counts.TotalSystems, func(ctx context.Context) (int, error) {
		return s.backend.CountSystems(ctx, false)
	})
	count("count_active_systems", &counts.ActiveSystems, func(ctx context.Context) (int, error) {
		return s.backend.CountSystems(ctx, true)
	})
	count("count_violations", &counts.TotalViolations, func(ctx context.Context) (int, error) {
		return s.backend.CountViolations(ctx, domain.ViolationFilter{})
	})
	count("count_health_violations", &counts.HealthViolations, func(ctx context.Context) (int, error) {
		return s.backend.CountViolations(ctx, domain.ViolationFilter{HealthBasedOnly: true})
	})
	count("count_unaddressed_violations", &counts.UnaddressedViolations, func(ctx context.Context) (int, error) {
		return s.backend.CountViolations(ctx, domain.ViolationFilter{Status: domain.StatusUnaddressed})
	})
	count("count_health_red", &stats.Red, func(ctx context.Context) (int, error) {
		return s.backend.CountSystemHealth(ctx, domain.HealthRed)
	})
	count("count_health_yellow", &stats.Yellow, func(ctx context.Context) (int, error) {
		return s.backend.CountSystemHealth(ctx, domain.HealthYellow)
	})
	count("count_health_green", &stats.Green, func(ctx context.Context) (int, error) {
		return s.backend.CountSystemHealth(ctx, domain.HealthGreen)
	})
	g.Go(func() error {
		return s.track("active_population", func() (err error) {
			counts.PopulationServed, err = s.backend.ActivePopulation(gctx, s.opts.PopulationLimit)
			return err
		})
	})
	g.Go(func() error {
		return s.track("county_summaries", func() (err error) {
			counties, err = s.backend.CountySummaries(gctx, s.opts.CountyLimit)
			return err
		})
	})
	g.Go(func() error {
		return s.track("violation_trends", func() (err error) {
			trends, err = s.backend.ViolationTrends(gctx)
			return err
		})
	})

	if err := g.Wait(); err != nil {
		s.logger.Error("overview query failed, serving fallback", "error", err)
		s.metrics.DashboardFallbacks.Inc()
		return Overview{
			Counties:  []CountyRow{},
			Trends:    []domain.ViolationTrend{},
			Anomalies: []domain.TrendAnomaly{},
			Error:     err.Error(),
		}
	}

	return Overview{
		Metrics:     domain.ComputeMetrics(counts),
		HealthStats: stats,
		Counties:    countyRows(counties),
		Trends:      nonNil(trends),
		Anomalies:   s.checkTrends(trends),
		DBConnected: true,
	}
}

// SystemsPage returns one deduplicated page of the system health listing.
func (s *Service) SystemsPage(ctx context.Context, page int) (SystemsPage, error) {
	page = max(page, 1)
	offset := (page - 1) * s.opts.PageSize

	var (
		rows  []domain.SystemHealthRecord
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.track("systems_sorted", func() (err error) {
			rows, err = s.backend.SystemsSorted(gctx, offset, s.opts.PageSize)
			return err
		})
	})
	g.Go(func() error {
		return s.track("count_system_health", func() (err error) {
			total, err = s.backend.CountSystemHealth(gctx, "")
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return SystemsPage{}, fmt.Errorf("load systems page %d: %w", page, err)
	}

	systems := domain.DedupeBySeverity(rows)
	dropped := len(rows) - len(systems)
	if dropped > 0 {
		s.metrics.DuplicatesDropped.Add(float64(dropped))
		s.logger.Debug("dropped duplicate system rows", "page", page, "dropped", dropped)
	}

	return SystemsPage{
		Systems:           systems,
		Pagination:        domain.NewPageWindow(page, s.opts.PageSize, total),
		DuplicatesDropped: dropped,
	}, nil
}

// CountiesPage windows the top county summaries client-side.
func (s *Service) CountiesPage(ctx context.Context, page int) (CountiesPage, error) {
	var counties []domain.CountySummary
	err := s.track("county_summaries", func() (err error) {
		counties, err = s.backend.CountySummaries(ctx, s.opts.CountyLimit)
		return err
	})
	if err != nil {
		return CountiesPage{}, fmt.Errorf("load county summaries: %w", err)
	}

	rows := countyRows(counties)
	window := domain.NewPageWindow(page, s.opts.PageSize, len(rows))
	return CountiesPage{
		Counties:   domain.SlicePage(rows, window),
		Chart:      rows[:min(chartCounties, len(rows))],
		Pagination: window,
	}, nil
}

// Trends returns the yearly violation series and its anomalies.
func (s *Service) Trends(ctx context.Context) (Trends, error) {
	var trends []domain.ViolationTrend
	err := s.track("violation_trends", func() (err error) {
		trends, err = s.backend.ViolationTrends(ctx)
		return err
	})
	if err != nil {
		return Trends{}, fmt.Errorf("load violation trends: %w", err)
	}
	return Trends{Trends: nonNil(trends), Anomalies: s.checkTrends(trends)}, nil
}

// SystemDetail loads a system and its related lists. A missing system
// returns domain.ErrNotFound; failures of the related lists degrade to
// empty lists.
func (s *Service) SystemDetail(ctx context.Context, pwsid string) (SystemView, error) {
	var (
		system     domain.SystemDetail
		violations []domain.SystemViolation
		visits     []domain.SiteVisit
		areas      []domain.GeographicArea
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.track("system", func() (err error) {
			system, err = s.backend.System(gctx, pwsid)
			return err
		})
	})

	// Secondary lists never fail the group; they log and fall back to empty.
	var secondary errgroup.Group
	secondary.Go(func() error {
		violations = s.systemViolations(ctx, pwsid)
		return nil
	})
	secondary.Go(func() error {
		if err := s.track("site_visits", func() (err error) {
			visits, err = s.backend.SiteVisits(ctx, pwsid)
			return err
		}); err != nil {
			s.logger.Warn("site visits unavailable", "pwsid", pwsid, "error", err)
		}
		return nil
	})
	secondary.Go(func() error {
		if err := s.track("geographic_areas", func() (err error) {
			areas, err = s.backend.GeographicAreas(ctx, pwsid)
			return err
		}); err != nil {
			s.logger.Warn("geographic areas unavailable", "pwsid", pwsid, "error", err)
		}
		return nil
	})

	err := g.Wait()
	_ = secondary.Wait()
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return SystemView{}, err
		}
		return SystemView{}, fmt.Errorf("load system %s: %w", pwsid, err)
	}

	violations = nonNil(violations)
	return SystemView{
		System:          system,
		Summary:         domain.SummarizeViolations(violations),
		Violations:      violations,
		SiteVisits:      nonNil(visits),
		GeographicAreas: nonNil(areas),
	}, nil
}

// systemViolations prefers violations joined with explanations and falls
// back to the plain enforcement table when that view errors or is empty.
func (s *Service) systemViolations(ctx context.Context, pwsid string) []domain.SystemViolation {
	var explained []domain.SystemViolation
	err := s.track("explained_violations", func() (err error) {
		explained, err = s.backend.ExplainedViolations(ctx, pwsid)
		return err
	})
	if err == nil && len(explained) > 0 {
		return explained
	}
	if err != nil {
		s.logger.Warn("explained violations unavailable, using enforcement table", "pwsid", pwsid, "error", err)
	}

	var plain []domain.SystemViolation
	if err := s.track("violations", func() (err error) {
		plain, err = s.backend.Violations(ctx, pwsid)
		return err
	}); err != nil {
		s.logger.Warn("violations unavailable", "pwsid", pwsid, "error", err)
		return nil
	}
	return plain
}

// ViolationDetail resolves one violation of a system.
func (s *Service) ViolationDetail(ctx context.Context, pwsid, violationID string) (domain.ViolationDetail, error) {
	var records []domain.ViolationRecord
	err := s.track("violations_with_explanations", func() (err error) {
		records, err = s.backend.ViolationsWithExplanations(ctx, pwsid)
		return err
	})
	if err != nil {
		return domain.ViolationDetail{}, fmt.Errorf("load violations for %s: %w", pwsid, err)
	}

	rec, ok := domain.FindViolation(records, violationID)
	if !ok {
		return domain.ViolationDetail{}, fmt.Errorf("violation %s of %s: %w", violationID, pwsid, domain.ErrNotFound)
	}
	return domain.ResolveViolationDetail(pwsid, rec), nil
}

// CheckReadiness pings the backend.
func (s *Service) CheckReadiness(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

func (s *Service) checkTrends(trends []domain.ViolationTrend) []domain.TrendAnomaly {
	anomalies := domain.ValidateTrends(trends)
	for _, a := range anomalies {
		s.logger.Warn("violation trend anomaly",
			"year", a.Year, "field", a.Field, "value", a.Value, "total", a.Total)
	}
	return nonNil(anomalies)
}

// track records the count, outcome and duration of one backend query.
func (s *Service) track(query string, fn func() error) error {
	start := time.Now()
	err := fn()
	s.metrics.BackendQueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	s.metrics.BackendQueries.WithLabelValues(query, outcome).Inc()
	return err
}

func countyRows(counties []domain.CountySummary) []CountyRow {
	rows := make([]CountyRow, len(counties))
	for i, c := range counties {
		rows[i] = CountyRow{CountySummary: c, RiskLevel: c.RiskLevel()}
	}
	return rows
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
