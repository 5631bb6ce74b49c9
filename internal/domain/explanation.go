package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ViolationContext is everything known about a health-based violation when
// asking for a plain-language explanation. It is the payload of explanation
// request messages.
type ViolationContext struct {
	SubmissionYearQuarter  string   `json:"submission_year_quarter"`
	ViolationID            string   `json:"violation_id"`
	PWSID                  string   `json:"pwsid"`
	SystemName             string   `json:"pws_name"`
	PopulationServed       int64    `json:"population_served"`
	SchoolOrDaycare        bool     `json:"is_school_or_daycare"`
	ContaminantCode        string   `json:"contaminant_code"`
	ContaminantName        string   `json:"contaminant_name"`
	ViolationCode          string   `json:"violation_code"`
	ViolationDescription   string   `json:"violation_description"`
	Measure                *float64 `json:"viol_measure,omitempty"`
	UnitOfMeasure          string   `json:"unit_of_measure,omitempty"`
	FederalMCL             string   `json:"federal_mcl,omitempty"`
	StateMCL               *float64 `json:"state_mcl,omitempty"`
	Status                 string   `json:"violation_status"`
	BeginDate              string   `json:"non_compl_per_begin_date"`
	EndDate                string   `json:"non_compl_per_end_date,omitempty"`
	PublicNotificationTier *int     `json:"public_notification_tier,omitempty"`
	County                 string   `json:"county_served,omitempty"`
	City                   string   `json:"city_served,omitempty"`
}

// Key identifies the violation across quarterly submissions.
func (v ViolationContext) Key() string {
	return v.SubmissionYearQuarter + "|" + v.ViolationID
}

// Historical reports whether the violation is closed.
func (v ViolationContext) Historical() bool {
	return IsHistoricalStatus(v.Status)
}

// ParseViolationContext decodes an explanation request message.
func ParseViolationContext(raw RawMessage) (ViolationContext, error) {
	var v ViolationContext
	if err := json.Unmarshal(raw.Value, &v); err != nil {
		return ViolationContext{}, fmt.Errorf("parse violation context: %w", err)
	}
	if v.ViolationID == "" || v.PWSID == "" {
		return ViolationContext{}, fmt.Errorf("parse violation context: missing violation_id or pwsid")
	}
	return v, nil
}

// ExplanationText holds the generated plain-language fields.
type ExplanationText struct {
	ExplanationText        string `json:"explanation_text"`
	HealthImpact           string `json:"health_impact"`
	RecommendedActions     string `json:"recommended_actions"`
	TimelineContext        string `json:"timeline_context"`
	VulnerableGroups       string `json:"vulnerable_groups"`
	ContaminantExplanation string `json:"contaminant_explanation"`
}

// Explanation is a generated explanation ready to be stored.
type Explanation struct {
	SubmissionYearQuarter string `json:"submission_year_quarter"`
	ViolationID           string `json:"violation_id"`
	PWSID                 string `json:"pwsid"`
	ExplanationText
	SeverityScore   int       `json:"severity_score"`
	HealthRiskLevel string    `json:"health_risk_level"`
	ModelVersion    string    `json:"model_version"`
	Fallback        bool      `json:"fallback"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// ExplanationGenerator produces explanation text for a violation.
type ExplanationGenerator interface {
	Generate(ctx context.Context, v ViolationContext) (ExplanationText, error)
}

// RawMessage is an unprocessed message from the request topic.
type RawMessage struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// ContaminantHealthInfo is background health information for a contaminant.
type ContaminantHealthInfo struct {
	HealthEffects    string
	VulnerableGroups string
	ExposureType     string
}

var (
	contaminantHealthInfo = map[string]ContaminantHealthInfo{
		"1005": { // arsenic
			HealthEffects:    "skin problems, circulatory issues, and increased cancer risk (bladder, lung, skin)",
			VulnerableGroups: "pregnant women, children, and individuals with compromised immune systems",
			ExposureType:     "chronic exposure over years",
		},
		"2050": { // atrazine
			HealthEffects:    "cardiovascular problems and reproductive issues",
			VulnerableGroups: "pregnant women and developing children",
			ExposureType:     "long-term exposure",
		},
	}

	defaultHealthInfo = ContaminantHealthInfo{
		HealthEffects:    "various health problems depending on the contaminant level and duration of exposure",
		VulnerableGroups: "infants, young children, pregnant women, elderly, and immunocompromised individuals",
		ExposureType:     "prolonged exposure",
	}
)

// HealthInfoFor returns health information for a contaminant code.
func HealthInfoFor(code string) ContaminantHealthInfo {
	if info, ok := contaminantHealthInfo[code]; ok {
		return info
	}
	return defaultHealthInfo
}

// DaysSinceBegin returns whole days since the violation began, or 0 when
// the begin date is unknown.
func (v ViolationContext) DaysSinceBegin() int {
	start, ok := parseDate(v.BeginDate)
	if !ok {
		return 0
	}
	return int(clock.Now().Sub(start).Hours() / 24)
}

// SystemPrompt frames the model as a public health communicator.
const SystemPrompt = "You are a helpful public health communication expert."

// BuildPrompt renders the generation prompt for a violation. The model is
// asked to answer with a JSON object matching [ExplanationText].
func BuildPrompt(v ViolationContext) string {
	info := HealthInfoFor(v.ContaminantCode)

	status := v.Status + " (CURRENT VIOLATION)"
	guidance := "- IMPORTANT: This is a CURRENT active violation requiring immediate attention."
	if v.Historical() {
		status = v.Status + " (PAST VIOLATION - Has been resolved)"
		guidance = "- IMPORTANT: This is a PAST violation that has been resolved. Make sure to clarify this in your explanation and recommended actions."
	}

	var b strings.Builder
	b.WriteString("You are a public health communication expert helping residents understand water quality violations.\n")
	b.WriteString("Create a clear, accessible explanation of this drinking water violation for public consumption.\n\n")

	fmt.Fprintf(&b, "Water System: %s (PWSID: %s)\n", v.SystemName, v.PWSID)
	fmt.Fprintf(&b, "Location: %s, %s County\n", v.City, v.County)
	fmt.Fprintf(&b, "Population Served: %d\n", v.PopulationServed)
	fmt.Fprintf(&b, "School/Daycare System: %s\n\n", yesNo(v.SchoolOrDaycare))

	b.WriteString("Violation Details:\n")
	fmt.Fprintf(&b, "- Contaminant: %s (Code: %s)\n", v.ContaminantName, v.ContaminantCode)
	fmt.Fprintf(&b, "- Violation Type: %s\n", v.ViolationDescription)
	fmt.Fprintf(&b, "- Measured Level: %s %s\n", formatOptionalFloat(v.Measure), v.UnitOfMeasure)
	fmt.Fprintf(&b, "- Federal Limit (MCL): %s\n", orNotSpecified(v.FederalMCL))
	fmt.Fprintf(&b, "- Status: %s\n", status)
	fmt.Fprintf(&b, "- Duration: %d days since violation began\n", v.DaysSinceBegin())
	fmt.Fprintf(&b, "- Public Notification Tier: %s\n\n", formatOptionalInt(v.PublicNotificationTier))

	b.WriteString("Health Information:\n")
	fmt.Fprintf(&b, "- Typical Health Effects: %s\n", info.HealthEffects)
	fmt.Fprintf(&b, "- Most Vulnerable Groups: %s\n", info.VulnerableGroups)
	fmt.Fprintf(&b, "- Exposure Type: %s\n\n", info.ExposureType)

	b.WriteString(`Respond with a JSON object with exactly these fields:
{
  "explanation_text": "A 2-3 sentence clear explanation of what happened and why it matters",
  "health_impact": "Specific health effects this contaminant can cause, focusing on the most relevant risks",
  "recommended_actions": "Practical steps residents can take (e.g., filters, bottled water, boiling)",
  "timeline_context": "How long this has been an issue and what to expect for resolution",
  "vulnerable_groups": "Who is most at risk (infants, pregnant women, elderly, etc.)",
  "contaminant_explanation": "What this contaminant is and how it gets into water in simple terms"
}

Guidelines:
- Use plain English, avoid technical jargon
- Be factual but not alarmist
- Focus on actionable information
- Keep each field concise but informative
- Mention specific risk levels when appropriate
`)
	b.WriteString(guidance)
	b.WriteString("\n")
	return b.String()
}

// FallbackExplanation is the deterministic explanation used when generation
// is disabled or fails.
func FallbackExplanation(v ViolationContext) ExplanationText {
	info := HealthInfoFor(v.ContaminantCode)
	days := v.DaysSinceBegin()

	if v.Historical() {
		return ExplanationText{
			ExplanationText:        fmt.Sprintf("The %s level in your water system was previously detected and has been resolved. This provides transparency about your water system history.", v.ContaminantName),
			HealthImpact:           info.HealthEffects,
			RecommendedActions:     "This violation has been resolved, but you can review your water system's history for transparency.",
			TimelineContext:        fmt.Sprintf("This violation occurred %d days ago and has since been resolved.", days),
			VulnerableGroups:       info.VulnerableGroups,
			ContaminantExplanation: fmt.Sprintf("%s is a contaminant that can affect drinking water quality and public health.", v.ContaminantName),
		}
	}
	return ExplanationText{
		ExplanationText:        fmt.Sprintf("The %s level in your water system exceeded federal safety standards. This violation requires attention to ensure safe drinking water.", v.ContaminantName),
		HealthImpact:           info.HealthEffects,
		RecommendedActions:     "Consider using bottled water or a certified water filter until this violation is resolved. Contact your water system for updates.",
		TimelineContext:        fmt.Sprintf("This violation has been ongoing for %d days. Resolution timeline depends on the specific remediation required.", days),
		VulnerableGroups:       info.VulnerableGroups,
		ContaminantExplanation: fmt.Sprintf("%s is a contaminant that can affect drinking water quality and public health.", v.ContaminantName),
	}
}

// NewExplanation assembles a storable explanation for v.
func NewExplanation(v ViolationContext, text ExplanationText, modelVersion string, fallback bool) Explanation {
	score := SeverityScore(v)
	return Explanation{
		SubmissionYearQuarter: v.SubmissionYearQuarter,
		ViolationID:           v.ViolationID,
		PWSID:                 v.PWSID,
		ExplanationText:       text,
		SeverityScore:         score,
		HealthRiskLevel:       RiskLevelForScore(score),
		ModelVersion:          modelVersion,
		Fallback:              fallback,
		GeneratedAt:           clock.Now().UTC(),
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func orNotSpecified(s string) string {
	if s == "" {
		return "Not specified"
	}
	return s
}

func formatOptionalFloat(f *float64) string {
	if f == nil {
		return "unknown"
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func formatOptionalInt(i *int) string {
	if i == nil || *i == 0 {
		return "Not specified"
	}
	return strconv.Itoa(*i)
}
