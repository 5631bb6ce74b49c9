// Package postgres implements the dashboard backend and the explanation
// store directly against the SDWIS Postgres database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/water-compliance-api/internal/domain"
	"github.com/lib/pq"
)

// Store runs dashboard queries and stores explanations. It implements
// dashboard.Backend and pipeline.BatchLoader.
type Store struct {
	db      *sql.DB
	timeout time.Duration
	logger  *slog.Logger
}

// Open connects to Postgres using lib/pq and verifies the connection.
func Open(ctx context.Context, dsn string, timeout time.Duration, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := New(db, timeout, logger)
	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return s, nil
}

// New wraps an existing database handle.
func New(db *sql.DB, timeout time.Duration, logger *slog.Logger) *Store {
	return &Store{db: db, timeout: timeout, logger: logger}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) countRow(ctx context.Context, name, query string, args ...any) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

// CountSystems counts public water systems, optionally only active ones.
func (s *Store) CountSystems(ctx context.Context, activeOnly bool) (int, error) {
	if activeOnly {
		return s.countRow(ctx, "count active systems", countActiveSystemsSQL)
	}
	return s.countRow(ctx, "count systems", countSystemsSQL)
}

// CountViolations counts enforcement violations matching f.
func (s *Store) CountViolations(ctx context.Context, f domain.ViolationFilter) (int, error) {
	var status any
	if f.Status != "" {
		status = f.Status
	}
	return s.countRow(ctx, "count violations", countViolationsSQL, f.HealthBasedOnly, status)
}

// ActivePopulation sums population served over the first limit active systems.
func (s *Store) ActivePopulation(ctx context.Context, limit int) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var total int64
	if err := s.db.QueryRowContext(ctx, activePopulationSQL, limit).Scan(&total); err != nil {
		return 0, fmt.Errorf("active population: %w", err)
	}
	return total, nil
}

// CountSystemHealth counts system_health_dashboard rows, filtered by status
// unless status is empty.
func (s *Store) CountSystemHealth(ctx context.Context, status domain.HealthStatus) (int, error) {
	if status == "" {
		return s.countRow(ctx, "count system health", countHealthSQL)
	}
	return s.countRow(ctx, "count system health", countHealthByStatusSQL, string(status))
}

// CountySummaries returns the counties with the most critical violations.
func (s *Store) CountySummaries(ctx context.Context, limit int) ([]domain.CountySummary, error) {
	return queryRows(ctx, s, "county summaries", countySummariesSQL, func(r *sql.Rows) (domain.CountySummary, error) {
		var c domain.CountySummary
		err := r.Scan(&c.County, &c.TotalSystems, &c.TotalPopulation, &c.CriticalViolations, &c.TotalViolations)
		return c, err
	}, limit)
}

// ViolationTrends returns yearly violation counts, oldest first.
func (s *Store) ViolationTrends(ctx context.Context) ([]domain.ViolationTrend, error) {
	return queryRows(ctx, s, "violation trends", violationTrendsSQL, func(r *sql.Rows) (domain.ViolationTrend, error) {
		var t domain.ViolationTrend
		err := r.Scan(&t.Year, &t.TotalViolations, &t.HealthViolations, &t.UnaddressedViolations)
		return t, err
	})
}

// SystemsSorted calls get_systems_sorted, which orders worst systems first.
func (s *Store) SystemsSorted(ctx context.Context, offset, limit int) ([]domain.SystemHealthRecord, error) {
	return queryRows(ctx, s, "get_systems_sorted", systemsSortedSQL, func(r *sql.Rows) (domain.SystemHealthRecord, error) {
		var h domain.SystemHealthRecord
		var status string
		err := r.Scan(&h.PWSID, &h.Name, &h.County, &h.City, &h.PopulationServed, &status,
			&h.TotalViolations, &h.HealthViolations, &h.UnaddressedViolations)
		h.HealthStatus = domain.HealthStatus(status)
		return h, err
	}, offset, limit)
}

// System returns one public water system or domain.ErrNotFound.
func (s *Store) System(ctx context.Context, pwsid string) (domain.SystemDetail, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var d domain.SystemDetail
	err := s.db.QueryRowContext(ctx, systemSQL, pwsid).Scan(
		&d.PWSID, &d.Name, &d.TypeCode, &d.PopulationServed, &d.ActivityCode,
		&d.OrgName, &d.AdminName, &d.Email, &d.Phone, &d.AddressLine1, &d.AddressLine2,
		&d.City, &d.ZipCode, &d.StateCode, &d.PrimacyAgencyCode, &d.OwnerTypeCode,
		&d.FirstReported, &d.LastReported,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SystemDetail{}, fmt.Errorf("system %s: %w", pwsid, domain.ErrNotFound)
	}
	if err != nil {
		return domain.SystemDetail{}, fmt.Errorf("system %s: %w", pwsid, err)
	}
	return d, nil
}

// ExplainedViolations lists a system's violations joined with current
// explanations, newest first.
func (s *Store) ExplainedViolations(ctx context.Context, pwsid string) ([]domain.SystemViolation, error) {
	return queryRows(ctx, s, "explained violations", explainedViolationsSQL, scanSystemViolation, pwsid)
}

// Violations lists a system's enforcement violations, newest first.
func (s *Store) Violations(ctx context.Context, pwsid string) ([]domain.SystemViolation, error) {
	return queryRows(ctx, s, "violations", violationsSQL, scanSystemViolation, pwsid)
}

func scanSystemViolation(r *sql.Rows) (domain.SystemViolation, error) {
	var v domain.SystemViolation
	err := r.Scan(&v.ViolationID, &v.ViolationCode, &v.CategoryCode, &v.HealthBasedInd, &v.Status,
		&v.BeginDate, &v.EndDate, &v.ContaminantCode, &v.PublicNotificationTier, &v.Measure,
		&v.UnitOfMeasure, &v.ExplanationText, &v.HealthRiskLevel)
	return v, err
}

// SiteVisits lists a system's site visits, most recent first.
func (s *Store) SiteVisits(ctx context.Context, pwsid string) ([]domain.SiteVisit, error) {
	return queryRows(ctx, s, "site visits", siteVisitsSQL, func(r *sql.Rows) (domain.SiteVisit, error) {
		var v domain.SiteVisit
		err := r.Scan(&v.VisitID, &v.VisitDate, &v.ReasonCode, &v.ComplianceEvalCode, &v.TreatmentEvalCode, &v.Comments)
		return v, err
	}, pwsid)
}

// GeographicAreas lists the areas a system serves.
func (s *Store) GeographicAreas(ctx context.Context, pwsid string) ([]domain.GeographicArea, error) {
	return queryRows(ctx, s, "geographic areas", geographicAreasSQL, func(r *sql.Rows) (domain.GeographicArea, error) {
		var a domain.GeographicArea
		err := r.Scan(&a.County, &a.City, &a.ZipCode, &a.AreaTypeCode)
		return a, err
	}, pwsid)
}

// ViolationsWithExplanations calls get_violations_with_explanations.
func (s *Store) ViolationsWithExplanations(ctx context.Context, pwsid string) ([]domain.ViolationRecord, error) {
	return queryRows(ctx, s, "get_violations_with_explanations", violationsWithExplanationsSQL, func(r *sql.Rows) (domain.ViolationRecord, error) {
		var v domain.ViolationRecord
		err := r.Scan(
			&v.ViolationID, &v.ViolationCode, &v.ViolationDescription, &v.Status, &v.HealthBasedInd,
			&v.ContaminantCode, &v.ContaminantDescription, &v.BeginDate, &v.EndDate,
			&v.PublicNotificationTier, &v.Measure, &v.UnitOfMeasure,
			&v.ExplanationText, &v.HealthRiskLevel, &v.SeverityScore,
			&v.SystemName, &v.PopulationServed, &v.County, &v.City,
			&v.HealthImpact, &v.RecommendedActions, &v.TimelineContext, &v.VulnerableGroups,
			&v.ContaminantExplanation, &v.AIGeneratedAt, &v.AIModelVersion,
		)
		return v, err
	}, pwsid)
}

// ViolationsNeedingExplanations selects health-based violations to send for
// explanation: open ones first, newest first, larger systems first.
func (s *Store) ViolationsNeedingExplanations(ctx context.Context, q domain.ExplanationQuery) ([]domain.ViolationContext, error) {
	var limit any
	if q.Limit > 0 {
		limit = q.Limit
	}
	return queryRows(ctx, s, "violations needing explanations", needingExplanationsSQL, func(r *sql.Rows) (domain.ViolationContext, error) {
		var v domain.ViolationContext
		err := r.Scan(
			&v.SubmissionYearQuarter, &v.ViolationID, &v.PWSID, &v.SystemName,
			&v.PopulationServed, &v.SchoolOrDaycare, &v.ContaminantCode, &v.ContaminantName,
			&v.ViolationCode, &v.ViolationDescription, &v.Measure, &v.UnitOfMeasure,
			&v.FederalMCL, &v.StateMCL, &v.Status, &v.BeginDate, &v.EndDate,
			&v.PublicNotificationTier, &v.County, &v.City,
		)
		return v, err
	}, pq.Array(q.Statuses()), q.Regenerate, limit)
}

// LoadBatch stores explanations in violation_ai_explanations. Earlier
// explanations of the same violation stop being current.
func (s *Store) LoadBatch(ctx context.Context, explanations []domain.Explanation) error {
	if len(explanations) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin explanation batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, e := range explanations {
		if _, err := tx.ExecContext(ctx, retireExplanationSQL, e.SubmissionYearQuarter, e.ViolationID); err != nil {
			return fmt.Errorf("retire explanation %s: %w", e.ViolationID, err)
		}
		if _, err := tx.ExecContext(ctx, insertExplanationSQL,
			e.SubmissionYearQuarter, e.ViolationID, e.PWSID,
			e.ExplanationText.ExplanationText, e.HealthRiskLevel, e.HealthImpact,
			e.RecommendedActions, e.TimelineContext, e.SeverityScore,
			e.VulnerableGroups, e.ContaminantExplanation, e.ModelVersion, e.GeneratedAt,
		); err != nil {
			return fmt.Errorf("insert explanation %s: %w", e.ViolationID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit explanation batch: %w", err)
	}
	s.logger.Debug("stored explanations", "count", len(explanations))
	return nil
}

func queryRows[T any](ctx context.Context, s *Store, name, query string, scan func(*sql.Rows) (T, error), args ...any) ([]T, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", name, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}
