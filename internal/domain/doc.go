// Package domain models Safe Drinking Water Information System (SDWIS)
// compliance data as served to regulators.
//
// # Data Source
//
// Rows originate from the EPA SDWIS federal extracts, imported into a
// Postgres database that also exposes a PostgREST interface. The tables and
// views read by this service are:
//
//	public_water_systems          one row per system (PWSID)
//	violations_enforcement        one row per violation and enforcement action
//	site_visits                   sanitary surveys and inspections
//	geographic_areas              counties/cities/zips served by a system
//	system_health_dashboard       per-system health rollup (view)
//	county_summary                per-county rollup (view)
//	violation_trends              per-year rollup (view)
//	public_violation_explanations violations joined with current AI explanations (view)
//	violation_ai_explanations     generated explanations, one current row per violation
//
// and the RPC functions get_systems_sorted(page_offset, page_limit) and
// get_violations_with_explanations(system_pwsid).
//
// # SDWIS Conventions
//
// PWSID:
//
//	Two-letter state code followed by seven digits, e.g. "GA0670000".
//
// Flags:
//
//	is_health_based_ind and is_school_or_daycare_ind are "Y" or "N".
//	pws_activity_code "A" marks an active system.
//
// Violation status:
//
//	"Unaddressed", "Addressed", "Resolved", "Archived". The first two are
//	current; the last two are historical.
//
// Dates:
//
//	ISO calendar dates ("2024-03-31"). Open violations have no end date.
//
// # Health Status
//
// Each system carries a tri-state health status:
//
//	RED     an unaddressed health-based violation exists
//	YELLOW  health-based violations exist, all addressed
//	GREEN   no health-based violations
//
// The status orders as RED > YELLOW > GREEN > anything else. See [HealthStatus.Rank].
//
// # Fan-out Duplicates
//
// The system health view joins systems to their served geographic areas, so
// a system serving several counties appears once per county. Listings are
// collapsed per PWSID with [DedupeBySeverity], keeping the worst status.
package domain
