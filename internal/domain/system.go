package domain

import "errors"

// ErrNotFound is returned by backends when a system or violation does not exist.
var ErrNotFound = errors.New("not found")

// SystemHealthRecord is one row of the system health listing. The same PWSID
// may appear more than once (see [DedupeBySeverity]).
type SystemHealthRecord struct {
	PWSID                 string       `json:"pwsid"`
	Name                  string       `json:"pws_name"`
	County                string       `json:"county_served"`
	City                  string       `json:"city_served"`
	PopulationServed      int64        `json:"population_served_count"`
	HealthStatus          HealthStatus `json:"health_status"`
	TotalViolations       int          `json:"total_violations"`
	HealthViolations      int          `json:"health_violations"`
	UnaddressedViolations int          `json:"unaddressed_violations"`
}

// CountySummary aggregates systems and violations for one county.
type CountySummary struct {
	County             string `json:"county_served"`
	TotalSystems       int    `json:"total_systems"`
	TotalPopulation    int64  `json:"total_population"`
	CriticalViolations int    `json:"critical_violations"`
	TotalViolations    int    `json:"total_violations"`
}

// RiskLevel maps critical violations onto the health scale:
// more than 5 is RED, any is YELLOW, none is GREEN.
func (c CountySummary) RiskLevel() HealthStatus {
	switch {
	case c.CriticalViolations > 5:
		return HealthRed
	case c.CriticalViolations > 0:
		return HealthYellow
	default:
		return HealthGreen
	}
}

// SystemDetail is a row of public_water_systems.
type SystemDetail struct {
	PWSID             string `json:"pwsid"`
	Name              string `json:"pws_name"`
	TypeCode          string `json:"pws_type_code"`
	PopulationServed  int64  `json:"population_served_count"`
	ActivityCode      string `json:"pws_activity_code"`
	OrgName           string `json:"org_name"`
	AdminName         string `json:"admin_name"`
	Email             string `json:"email_addr"`
	Phone             string `json:"phone_number"`
	AddressLine1      string `json:"address_line1"`
	AddressLine2      string `json:"address_line2"`
	City              string `json:"city_name"`
	ZipCode           string `json:"zip_code"`
	StateCode         string `json:"state_code"`
	PrimacyAgencyCode string `json:"primacy_agency_code"`
	OwnerTypeCode     string `json:"owner_type_code"`
	FirstReported     string `json:"first_reported_date"`
	LastReported      string `json:"last_reported_date"`
}

// Active reports whether the system is currently operating.
func (s SystemDetail) Active() bool {
	return s.ActivityCode == "A"
}

// SystemViolation is a violation as listed on a system's page.
type SystemViolation struct {
	ViolationID            string  `json:"violation_id"`
	ViolationCode          string  `json:"violation_code"`
	CategoryCode           string  `json:"violation_category_code"`
	HealthBasedInd         string  `json:"is_health_based_ind"`
	Status                 string  `json:"violation_status"`
	BeginDate              string  `json:"non_compl_per_begin_date"`
	EndDate                string  `json:"non_compl_per_end_date"`
	ContaminantCode        string  `json:"contaminant_code"`
	PublicNotificationTier int     `json:"public_notification_tier"`
	Measure                float64 `json:"viol_measure"`
	UnitOfMeasure          string  `json:"unit_of_measure"`
	ExplanationText        string  `json:"explanation_text,omitempty"`
	HealthRiskLevel        string  `json:"health_risk_level,omitempty"`
}

// HealthBased reports whether the violation is health-based.
func (v SystemViolation) HealthBased() bool { return v.HealthBasedInd == "Y" }

// Unaddressed reports whether no action has been taken yet.
func (v SystemViolation) Unaddressed() bool { return v.Status == StatusUnaddressed }

// Violation status values.
const (
	StatusUnaddressed = "Unaddressed"
	StatusAddressed   = "Addressed"
	StatusResolved    = "Resolved"
	StatusArchived    = "Archived"
)

// IsHistoricalStatus reports whether a violation status denotes a past,
// closed violation.
func IsHistoricalStatus(status string) bool {
	return status == StatusResolved || status == StatusArchived
}

// SiteVisit is an inspection or sanitary survey.
type SiteVisit struct {
	VisitID            string `json:"visit_id"`
	VisitDate          string `json:"visit_date"`
	ReasonCode         string `json:"visit_reason_code"`
	ComplianceEvalCode string `json:"compliance_eval_code"`
	TreatmentEvalCode  string `json:"treatment_eval_code"`
	Comments           string `json:"visit_comments"`
}

// GeographicArea is a place served by a system.
type GeographicArea struct {
	County       string `json:"county_served"`
	City         string `json:"city_served"`
	ZipCode      string `json:"zip_code_served"`
	AreaTypeCode string `json:"area_type_code"`
}

// SystemSummary is the derived view of a system's violation history.
type SystemSummary struct {
	HealthStatus          HealthStatus      `json:"health_status"`
	HealthViolations      int               `json:"health_violations"`
	UnaddressedViolations int               `json:"unaddressed_violations"`
	RecentViolations      []SystemViolation `json:"recent_violations"`
}

// recentViolationCount is how many violations the summary lists.
const recentViolationCount = 5

// SummarizeViolations derives the system summary from violations ordered
// newest first.
func SummarizeViolations(violations []SystemViolation) SystemSummary {
	summary := SystemSummary{
		HealthStatus:     DeriveSystemHealth(violations),
		RecentViolations: violations[:min(recentViolationCount, len(violations))],
	}
	for _, v := range violations {
		if v.HealthBased() {
			summary.HealthViolations++
		}
		if v.Unaddressed() {
			summary.UnaddressedViolations++
		}
	}
	if summary.RecentViolations == nil {
		summary.RecentViolations = []SystemViolation{}
	}
	return summary
}
