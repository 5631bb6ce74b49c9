package domain

import (
	"math"
	"strings"
	"time"
)

// dateLayout is the calendar date format used by SDWIS date columns.
const dateLayout = "2006-01-02"

// ViolationRecord is a row returned by get_violations_with_explanations.
// Nullable columns are pointers; nil means the column was NULL.
type ViolationRecord struct {
	ViolationID            string   `json:"violation_id"`
	ViolationCode          string   `json:"violation_code"`
	ViolationDescription   *string  `json:"violation_description"`
	Status                 string   `json:"violation_status"`
	HealthBasedInd         string   `json:"is_health_based_ind"`
	ContaminantCode        *string  `json:"contaminant_code"`
	ContaminantDescription *string  `json:"contaminant_description"`
	BeginDate              string   `json:"non_compl_per_begin_date"`
	EndDate                *string  `json:"non_compl_per_end_date"`
	PublicNotificationTier *int     `json:"public_notification_tier"`
	Measure                *float64 `json:"viol_measure"`
	UnitOfMeasure          *string  `json:"unit_of_measure"`
	ExplanationText        *string  `json:"explanation_text"`
	HealthRiskLevel        *string  `json:"health_risk_level"`
	SeverityScore          *int     `json:"severity_score"`
	SystemName             string   `json:"pws_name"`
	PopulationServed       int64    `json:"population_served_count"`
	County                 *string  `json:"county_served"`
	City                   *string  `json:"city_served"`
	HealthImpact           *string  `json:"health_impact"`
	RecommendedActions     *string  `json:"recommended_actions"`
	TimelineContext        *string  `json:"timeline_context"`
	VulnerableGroups       *string  `json:"vulnerable_groups"`
	ContaminantExplanation *string  `json:"contaminant_explanation"`
	AIGeneratedAt          *string  `json:"ai_generated_at"`
	AIModelVersion         *string  `json:"ai_model_version"`
}

// ViolationDetail is a fully resolved violation with every optional field
// replaced by an explicit default.
type ViolationDetail struct {
	ViolationID           string `json:"violation_id"`
	SubmissionYearQuarter string `json:"submission_year_quarter"`
	PWSID                 string `json:"pwsid"`

	SystemName         string `json:"pws_name"`
	PopulationServed   int64  `json:"population_served_count"`
	SchoolOrDaycareInd string `json:"is_school_or_daycare_ind"`

	ViolationCode          string `json:"violation_code"`
	ViolationDescription   string `json:"violation_description"`
	CategoryCode           string `json:"violation_category_code"`
	Status                 string `json:"violation_status"`
	HealthBasedInd         string `json:"is_health_based_ind"`
	ContaminantCode        string `json:"contaminant_code"`
	ContaminantDescription string `json:"contaminant_description"`

	Measure       float64 `json:"viol_measure"`
	UnitOfMeasure string  `json:"unit_of_measure"`
	FederalMCL    string  `json:"federal_mcl"`
	StateMCL      float64 `json:"state_mcl"`

	BeginDate  string `json:"non_compl_per_begin_date"`
	EndDate    string `json:"non_compl_per_end_date"`
	DaysActive *int   `json:"days_active,omitempty"`

	PublicNotificationTier int `json:"public_notification_tier"`
	CalculatedPubNotifTier int `json:"calculated_pub_notif_tier"`

	ExplanationText        string `json:"explanation_text"`
	HealthRiskLevel        string `json:"health_risk_level"`
	HealthImpact           string `json:"health_impact"`
	RecommendedActions     string `json:"recommended_actions"`
	TimelineContext        string `json:"timeline_context"`
	SeverityScore          int    `json:"severity_score"`
	VulnerableGroups       string `json:"vulnerable_groups"`
	ContaminantExplanation string `json:"contaminant_explanation"`
	AIGeneratedAt          string `json:"ai_generated_at"`
	AIModelVersion         string `json:"ai_model_version"`

	County  string `json:"county_served"`
	City    string `json:"city_served"`
	ZipCode string `json:"zip_code_served"`
}

// HasExplanation reports whether an AI explanation has been generated.
func (d ViolationDetail) HasExplanation() bool {
	return d.ExplanationText != ""
}

// FindViolation returns the record with the given violation ID.
func FindViolation(records []ViolationRecord, violationID string) (ViolationRecord, bool) {
	for _, r := range records {
		if r.ViolationID == violationID {
			return r, true
		}
	}
	return ViolationRecord{}, false
}

// ResolveViolationDetail fills every optional field of rec with its default.
// The RPC does not carry school/daycare, zip, quarter, category or MCL
// columns, so those take fixed defaults.
func ResolveViolationDetail(pwsid string, rec ViolationRecord) ViolationDetail {
	tier := deref(rec.PublicNotificationTier)

	d := ViolationDetail{
		ViolationID:        rec.ViolationID,
		PWSID:              pwsid,
		SystemName:         rec.SystemName,
		PopulationServed:   rec.PopulationServed,
		SchoolOrDaycareInd: "N",

		ViolationCode:          rec.ViolationCode,
		ViolationDescription:   orDefault(rec.ViolationDescription, "Violation "+rec.ViolationCode),
		Status:                 rec.Status,
		HealthBasedInd:         rec.HealthBasedInd,
		ContaminantCode:        deref(rec.ContaminantCode),
		ContaminantDescription: orDefault(rec.ContaminantDescription, deref(rec.ContaminantCode)),

		Measure:       deref(rec.Measure),
		UnitOfMeasure: deref(rec.UnitOfMeasure),

		BeginDate: rec.BeginDate,
		EndDate:   deref(rec.EndDate),

		PublicNotificationTier: tier,
		CalculatedPubNotifTier: tier,

		ExplanationText:        deref(rec.ExplanationText),
		HealthRiskLevel:        deref(rec.HealthRiskLevel),
		HealthImpact:           deref(rec.HealthImpact),
		RecommendedActions:     deref(rec.RecommendedActions),
		TimelineContext:        deref(rec.TimelineContext),
		SeverityScore:          deref(rec.SeverityScore),
		VulnerableGroups:       deref(rec.VulnerableGroups),
		ContaminantExplanation: deref(rec.ContaminantExplanation),
		AIGeneratedAt:          deref(rec.AIGeneratedAt),
		AIModelVersion:         deref(rec.AIModelVersion),

		County: deref(rec.County),
		City:   deref(rec.City),
	}

	if days, ok := DaysActive(d.BeginDate, d.EndDate); ok {
		d.DaysActive = &days
	}
	return d
}

// DaysActive returns the whole number of days between begin and end, using
// the current time when end is empty. It reports false when begin is missing
// or unparseable.
func DaysActive(begin, end string) (int, bool) {
	start, ok := parseDate(begin)
	if !ok {
		return 0, false
	}
	stop := clock.Now()
	if t, ok := parseDate(end); ok {
		stop = t
	}
	days := math.Ceil(math.Abs(stop.Sub(start).Hours()) / 24)
	return int(days), true
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// orDefault treats nil and empty strings alike.
func orDefault(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}
