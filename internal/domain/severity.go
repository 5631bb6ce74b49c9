package domain

import (
	"strconv"
	"strings"
)

// Contaminant codes with elevated health risk: arsenic, atrazine, aldicarb,
// carbofuran. Medium risk: zinc, calcium, total dissolved solids.
var (
	highRiskContaminants   = map[string]bool{"1005": true, "2050": true, "2047": true, "2046": true}
	mediumRiskContaminants = map[string]bool{"1095": true, "1919": true, "1930": true}
)

// SeverityScore rates a violation from 1 to 10, starting at 5 and adjusting
// for contaminant, status, population, vulnerable users, notification tier
// and how far the measurement exceeds the federal MCL.
func SeverityScore(v ViolationContext) int {
	score := 5

	switch {
	case highRiskContaminants[v.ContaminantCode]:
		score += 3
	case mediumRiskContaminants[v.ContaminantCode]:
		score++
	}

	switch v.Status {
	case StatusUnaddressed:
		score += 2
	case StatusAddressed:
		score++
	case StatusResolved:
		score--
	case StatusArchived:
		score -= 2
	}

	switch {
	case v.PopulationServed > 10000:
		score += 2
	case v.PopulationServed > 1000:
		score++
	}

	if v.SchoolOrDaycare {
		score += 2
	}

	if v.PublicNotificationTier != nil {
		switch *v.PublicNotificationTier {
		case 1:
			score += 3
		case 2:
			score++
		}
	}

	score += mclExceedance(v.Measure, v.FederalMCL)

	return min(max(score, 1), 10)
}

// mclExceedance adds 2 above twice the MCL and 1 above one and a half times.
// Unparseable or non-positive MCLs contribute nothing.
func mclExceedance(measure *float64, federalMCL string) int {
	if measure == nil || *measure == 0 || federalMCL == "" {
		return 0
	}
	mcl, err := strconv.ParseFloat(strings.TrimSpace(federalMCL), 64)
	if err != nil || mcl <= 0 {
		return 0
	}
	switch {
	case *measure > mcl*2:
		return 2
	case *measure > mcl*1.5:
		return 1
	default:
		return 0
	}
}

// Health risk levels.
const (
	RiskCritical = "CRITICAL"
	RiskHigh     = "HIGH"
	RiskMedium   = "MEDIUM"
	RiskLow      = "LOW"
)

// RiskLevelForScore buckets a severity score into a risk level.
func RiskLevelForScore(score int) string {
	switch {
	case score >= 8:
		return RiskCritical
	case score >= 6:
		return RiskHigh
	case score >= 4:
		return RiskMedium
	default:
		return RiskLow
	}
}
