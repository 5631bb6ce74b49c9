package domain

// ViolationFilter narrows a violation count. Zero value counts everything.
type ViolationFilter struct {
	HealthBasedOnly bool
	Status          string
}

// ExplanationQuery selects violations that should be sent for explanation.
type ExplanationQuery struct {
	// Limit caps the number of violations returned; 0 means no limit.
	Limit int
	// IncludeHistorical also selects Resolved and Archived violations.
	IncludeHistorical bool
	// Regenerate selects violations that already have a current explanation.
	Regenerate bool
}

// CurrentStatuses are the statuses of violations still open.
var CurrentStatuses = []string{StatusUnaddressed, StatusAddressed}

// AllStatuses lists every violation status in priority order.
var AllStatuses = []string{StatusUnaddressed, StatusAddressed, StatusResolved, StatusArchived}

// Statuses returns the violation statuses the query selects.
func (q ExplanationQuery) Statuses() []string {
	if q.IncludeHistorical {
		return AllStatuses
	}
	return CurrentStatuses
}
