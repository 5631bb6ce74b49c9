package domain

// OverviewCounts are the raw aggregates fetched for the dashboard overview.
type OverviewCounts struct {
	TotalSystems          int
	ActiveSystems         int
	TotalViolations       int
	HealthViolations      int
	UnaddressedViolations int
	PopulationServed      int64
}

// DashboardMetrics are the headline numbers of the overview.
type DashboardMetrics struct {
	TotalSystems                  int     `json:"total_systems"`
	ActiveSystems                 int     `json:"active_systems"`
	TotalViolations               int     `json:"total_violations"`
	HealthViolations              int     `json:"health_violations"`
	UnaddressedViolations         int     `json:"unaddressed_violations"`
	TotalPopulationServed         int64   `json:"total_population_served"`
	SystemsWithCriticalViolations int     `json:"systems_with_critical_violations"`
	AvgViolationsPerSystem        float64 `json:"avg_violations_per_system"`
}

// ComputeMetrics derives the overview metrics from raw counts.
// Critical systems are approximated by the unaddressed violation count.
func ComputeMetrics(c OverviewCounts) DashboardMetrics {
	m := DashboardMetrics{
		TotalSystems:                  c.TotalSystems,
		ActiveSystems:                 c.ActiveSystems,
		TotalViolations:               c.TotalViolations,
		HealthViolations:              c.HealthViolations,
		UnaddressedViolations:         c.UnaddressedViolations,
		TotalPopulationServed:         c.PopulationServed,
		SystemsWithCriticalViolations: c.UnaddressedViolations,
	}
	if c.ActiveSystems > 0 {
		m.AvgViolationsPerSystem = float64(c.TotalViolations) / float64(c.ActiveSystems)
	}
	return m
}

// ViolationTrend aggregates violations for one calendar year.
type ViolationTrend struct {
	Year                  int `json:"violation_year"`
	TotalViolations       int `json:"total_violations"`
	HealthViolations      int `json:"health_violations"`
	UnaddressedViolations int `json:"unaddressed_violations"`
}

// TrendAnomaly flags a year whose subset count exceeds its total.
type TrendAnomaly struct {
	Year  int    `json:"violation_year"`
	Field string `json:"field"`
	Value int    `json:"value"`
	Total int    `json:"total"`
}

// ValidateTrends reports years where health-based or unaddressed counts are
// larger than the total, which indicates a broken rollup upstream.
func ValidateTrends(trends []ViolationTrend) []TrendAnomaly {
	var anomalies []TrendAnomaly
	for _, t := range trends {
		if t.HealthViolations > t.TotalViolations {
			anomalies = append(anomalies, TrendAnomaly{
				Year: t.Year, Field: "health_violations", Value: t.HealthViolations, Total: t.TotalViolations,
			})
		}
		if t.UnaddressedViolations > t.TotalViolations {
			anomalies = append(anomalies, TrendAnomaly{
				Year: t.Year, Field: "unaddressed_violations", Value: t.UnaddressedViolations, Total: t.TotalViolations,
			})
		}
	}
	return anomalies
}
