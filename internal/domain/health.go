package domain

// HealthStatus is the tri-state severity classification of a water system.
type HealthStatus string

const (
	HealthRed    HealthStatus = "RED"
	HealthYellow HealthStatus = "YELLOW"
	HealthGreen  HealthStatus = "GREEN"
)

// Rank orders statuses for comparison: RED 3, YELLOW 2, GREEN 1, anything
// else (including empty) 0. Matching is exact; "red" ranks 0.
func (s HealthStatus) Rank() int {
	switch s {
	case HealthRed:
		return 3
	case HealthYellow:
		return 2
	case HealthGreen:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is one of the three known statuses.
func (s HealthStatus) Valid() bool {
	return s.Rank() > 0
}

// HealthStats counts systems per health status across the whole dataset.
type HealthStats struct {
	Red    int `json:"red"`
	Yellow int `json:"yellow"`
	Green  int `json:"green"`
}

// Total returns the number of systems with a known status.
func (h HealthStats) Total() int {
	return h.Red + h.Yellow + h.Green
}

// DeriveSystemHealth classifies a system from its violation history:
// RED if any health-based violation is unaddressed, YELLOW if any
// health-based violation exists, GREEN otherwise.
func DeriveSystemHealth(violations []SystemViolation) HealthStatus {
	status := HealthGreen
	for _, v := range violations {
		if !v.HealthBased() {
			continue
		}
		if v.Unaddressed() {
			return HealthRed
		}
		status = HealthYellow
	}
	return status
}
