package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseContext() ViolationContext {
	return ViolationContext{
		SubmissionYearQuarter: "2024Q1",
		ViolationID:           "V-1",
		PWSID:                 testPWSID,
		SystemName:            "Smalltown Water",
		ContaminantCode:       "9999",
		ContaminantName:       "Unknown Contaminant",
		Status:                StatusAddressed,
		BeginDate:             "2024-01-01",
	}
}

func TestSeverityScore(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*ViolationContext)
		want   int
	}{
		{name: "baseline addressed", modify: func(*ViolationContext) {}, want: 6},
		{name: "high risk contaminant", modify: func(v *ViolationContext) { v.ContaminantCode = "1005" }, want: 9},
		{name: "medium risk contaminant", modify: func(v *ViolationContext) { v.ContaminantCode = "1930" }, want: 7},
		{name: "unaddressed", modify: func(v *ViolationContext) { v.Status = StatusUnaddressed }, want: 7},
		{name: "resolved", modify: func(v *ViolationContext) { v.Status = StatusResolved }, want: 4},
		{name: "archived", modify: func(v *ViolationContext) { v.Status = StatusArchived }, want: 3},
		{name: "large population", modify: func(v *ViolationContext) { v.PopulationServed = 25000 }, want: 8},
		{name: "mid population", modify: func(v *ViolationContext) { v.PopulationServed = 5000 }, want: 7},
		{name: "school", modify: func(v *ViolationContext) { v.SchoolOrDaycare = true }, want: 8},
		{name: "tier one", modify: func(v *ViolationContext) { v.PublicNotificationTier = ptr(1) }, want: 9},
		{name: "tier two", modify: func(v *ViolationContext) { v.PublicNotificationTier = ptr(2) }, want: 7},
		{name: "double the MCL", modify: func(v *ViolationContext) { v.Measure = ptr(0.05); v.FederalMCL = "0.010" }, want: 8},
		{name: "one and a half the MCL", modify: func(v *ViolationContext) { v.Measure = ptr(0.016); v.FederalMCL = "0.010" }, want: 7},
		{name: "unparseable MCL", modify: func(v *ViolationContext) { v.Measure = ptr(5.0); v.FederalMCL = "TT" }, want: 6},
		{name: "clamped high", modify: func(v *ViolationContext) {
			v.ContaminantCode = "1005"
			v.Status = StatusUnaddressed
			v.PopulationServed = 50000
			v.SchoolOrDaycare = true
			v.PublicNotificationTier = ptr(1)
		}, want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := baseContext()
			tt.modify(&v)
			assert.Equal(t, tt.want, SeverityScore(v))
		})
	}
}

func TestRiskLevelForScore(t *testing.T) {
	assert.Equal(t, RiskCritical, RiskLevelForScore(10))
	assert.Equal(t, RiskCritical, RiskLevelForScore(8))
	assert.Equal(t, RiskHigh, RiskLevelForScore(7))
	assert.Equal(t, RiskHigh, RiskLevelForScore(6))
	assert.Equal(t, RiskMedium, RiskLevelForScore(4))
	assert.Equal(t, RiskLow, RiskLevelForScore(3))
	assert.Equal(t, RiskLow, RiskLevelForScore(1))
}

func TestBuildPrompt(t *testing.T) {
	freezeClock(t, time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC))

	v := baseContext()
	v.ContaminantCode = "1005"
	v.ContaminantName = "Arsenic"
	v.County = "Fulton"
	v.City = "Atlanta"

	prompt := BuildPrompt(v)
	assert.Contains(t, prompt, "Smalltown Water (PWSID: GA0670000)")
	assert.Contains(t, prompt, "Atlanta, Fulton County")
	assert.Contains(t, prompt, "Arsenic (Code: 1005)")
	assert.Contains(t, prompt, "30 days since violation began")
	assert.Contains(t, prompt, "skin problems")
	assert.Contains(t, prompt, "CURRENT active violation")
	assert.Contains(t, prompt, `"contaminant_explanation"`)

	v.Status = StatusResolved
	assert.Contains(t, BuildPrompt(v), "PAST violation")
}

func TestFallbackExplanation(t *testing.T) {
	freezeClock(t, time.Date(2024, time.January, 11, 0, 0, 0, 0, time.UTC))

	v := baseContext()
	v.ContaminantName = "Nitrate"

	current := FallbackExplanation(v)
	assert.Contains(t, current.ExplanationText, "Nitrate level in your water system exceeded")
	assert.Contains(t, current.TimelineContext, "ongoing for 10 days")
	assert.Equal(t, HealthInfoFor("").VulnerableGroups, current.VulnerableGroups)

	v.Status = StatusArchived
	past := FallbackExplanation(v)
	assert.Contains(t, past.ExplanationText, "has been resolved")
	assert.Contains(t, past.TimelineContext, "occurred 10 days ago")
}

func TestNewExplanation(t *testing.T) {
	at := time.Date(2024, time.February, 1, 9, 30, 0, 0, time.UTC)
	freezeClock(t, at)

	v := baseContext()
	v.Status = StatusUnaddressed
	e := NewExplanation(v, ExplanationText{ExplanationText: "text"}, "gemini-2.0-flash-v1", false)

	assert.Equal(t, "2024Q1", e.SubmissionYearQuarter)
	assert.Equal(t, 7, e.SeverityScore)
	assert.Equal(t, RiskHigh, e.HealthRiskLevel)
	assert.Equal(t, at, e.GeneratedAt)
	assert.Equal(t, "text", e.ExplanationText.ExplanationText)

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"explanation_text":"text"`)
}

func TestParseViolationContext(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		raw := RawMessage{Value: []byte(`{"violation_id":"V-1","pwsid":"GA0670000","violation_status":"Unaddressed","public_notification_tier":1,"viol_measure":0.02}`)}
		v, err := ParseViolationContext(raw)
		require.NoError(t, err)
		assert.Equal(t, "V-1", v.ViolationID)
		require.NotNil(t, v.PublicNotificationTier)
		assert.Equal(t, 1, *v.PublicNotificationTier)
		assert.False(t, v.Historical())
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := ParseViolationContext(RawMessage{Value: []byte("{oops")})
		require.Error(t, err)
	})

	t.Run("missing keys", func(t *testing.T) {
		_, err := ParseViolationContext(RawMessage{Value: []byte(`{"pwsid":"GA0670000"}`)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing")
	})
}
