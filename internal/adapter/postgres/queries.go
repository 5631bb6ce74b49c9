package postgres

const (
	countSystemsSQL       = `SELECT COUNT(*) FROM public_water_systems`
	countActiveSystemsSQL = `SELECT COUNT(*) FROM public_water_systems WHERE pws_activity_code = 'A'`

	countViolationsSQL = `SELECT COUNT(*) FROM violations_enforcement
WHERE (NOT $1 OR is_health_based_ind = 'Y')
  AND ($2::text IS NULL OR violation_status = $2)`

	activePopulationSQL = `SELECT COALESCE(SUM(population_served_count), 0)::bigint FROM (
  SELECT population_served_count FROM public_water_systems
  WHERE pws_activity_code = 'A'
  LIMIT $1
) active`

	countHealthSQL         = `SELECT COUNT(*) FROM system_health_dashboard`
	countHealthByStatusSQL = `SELECT COUNT(*) FROM system_health_dashboard WHERE health_status = $1`

	countySummariesSQL = `SELECT COALESCE(county_served, ''), COALESCE(total_systems, 0),
  COALESCE(total_population, 0)::bigint, COALESCE(critical_violations, 0), COALESCE(total_violations, 0)
FROM county_summary
ORDER BY critical_violations DESC NULLS LAST
LIMIT $1`

	violationTrendsSQL = `SELECT violation_year::int, COALESCE(total_violations, 0),
  COALESCE(health_violations, 0), COALESCE(unaddressed_violations, 0)
FROM violation_trends
ORDER BY violation_year`

	systemsSortedSQL = `SELECT COALESCE(pwsid, ''), COALESCE(pws_name, ''), COALESCE(county_served, ''),
  COALESCE(city_served, ''), COALESCE(population_served_count, 0)::bigint, COALESCE(health_status, ''),
  COALESCE(total_violations, 0), COALESCE(health_violations, 0), COALESCE(unaddressed_violations, 0)
FROM get_systems_sorted($1, $2)`

	systemSQL = `SELECT pwsid, COALESCE(pws_name, ''), COALESCE(pws_type_code, ''),
  COALESCE(population_served_count, 0)::bigint, COALESCE(pws_activity_code, ''),
  COALESCE(org_name, ''), COALESCE(admin_name, ''), COALESCE(email_addr, ''), COALESCE(phone_number, ''),
  COALESCE(address_line1, ''), COALESCE(address_line2, ''), COALESCE(city_name, ''), COALESCE(zip_code, ''),
  COALESCE(state_code, ''), COALESCE(primacy_agency_code, ''), COALESCE(owner_type_code, ''),
  COALESCE(first_reported_date::text, ''), COALESCE(last_reported_date::text, '')
FROM public_water_systems
WHERE pwsid = $1`

	explainedViolationsSQL = `SELECT violation_id, COALESCE(violation_code, ''), COALESCE(violation_category_code, ''),
  COALESCE(is_health_based_ind, ''), COALESCE(violation_status, ''),
  COALESCE(non_compl_per_begin_date::text, ''), COALESCE(non_compl_per_end_date::text, ''),
  COALESCE(contaminant_code, ''), COALESCE(public_notification_tier, 0), COALESCE(viol_measure, 0),
  COALESCE(unit_of_measure, ''), COALESCE(explanation_text, ''), COALESCE(health_risk_level, '')
FROM public_violation_explanations
WHERE pwsid = $1
ORDER BY non_compl_per_begin_date DESC NULLS LAST`

	violationsSQL = `SELECT violation_id, COALESCE(violation_code, ''), COALESCE(violation_category_code, ''),
  COALESCE(is_health_based_ind, ''), COALESCE(violation_status, ''),
  COALESCE(non_compl_per_begin_date::text, ''), COALESCE(non_compl_per_end_date::text, ''),
  COALESCE(contaminant_code, ''), COALESCE(public_notification_tier, 0), COALESCE(viol_measure, 0),
  COALESCE(unit_of_measure, ''), '', ''
FROM violations_enforcement
WHERE pwsid = $1
ORDER BY non_compl_per_begin_date DESC NULLS LAST`

	siteVisitsSQL = `SELECT COALESCE(visit_id, ''), COALESCE(visit_date::text, ''), COALESCE(visit_reason_code, ''),
  COALESCE(compliance_eval_code, ''), COALESCE(treatment_eval_code, ''), COALESCE(visit_comments, '')
FROM site_visits
WHERE pwsid = $1
ORDER BY visit_date DESC NULLS LAST`

	geographicAreasSQL = `SELECT COALESCE(county_served, ''), COALESCE(city_served, ''),
  COALESCE(zip_code_served, ''), COALESCE(area_type_code, '')
FROM geographic_areas
WHERE pwsid = $1`

	violationsWithExplanationsSQL = `SELECT violation_id, COALESCE(violation_code, ''), violation_description,
  COALESCE(violation_status, ''), COALESCE(is_health_based_ind, ''),
  contaminant_code, contaminant_description,
  COALESCE(non_compl_per_begin_date::text, ''), non_compl_per_end_date::text,
  public_notification_tier, viol_measure, unit_of_measure,
  explanation_text, health_risk_level, severity_score,
  COALESCE(pws_name, ''), COALESCE(population_served_count, 0)::bigint, county_served, city_served,
  health_impact, recommended_actions, timeline_context, vulnerable_groups,
  contaminant_explanation, ai_generated_at::text, ai_model_version
FROM get_violations_with_explanations($1)`

	// $1 statuses, $2 regenerate, $3 limit (NULL for all).
	needingExplanationsSQL = `SELECT
  v.submission_year_quarter,
  v.violation_id,
  v.pwsid,
  COALESCE(p.pws_name, ''),
  COALESCE(p.population_served_count, 0)::bigint,
  COALESCE(p.is_school_or_daycare_ind = 'Y', FALSE),
  COALESCE(v.contaminant_code, ''),
  COALESCE(rc_cont.value_description, 'Unknown Contaminant'),
  COALESCE(v.violation_code, ''),
  COALESCE(rc_viol.value_description, 'Unknown Violation'),
  v.viol_measure,
  COALESCE(v.unit_of_measure, ''),
  COALESCE(v.federal_mcl::text, ''),
  v.state_mcl,
  v.violation_status,
  COALESCE(v.non_compl_per_begin_date::text, ''),
  COALESCE(v.non_compl_per_end_date::text, ''),
  v.public_notification_tier,
  COALESCE(geo.county_served, ''),
  COALESCE(geo.city_served, '')
FROM violations_enforcement v
JOIN public_water_systems p ON v.pwsid = p.pwsid
LEFT JOIN reference_codes rc_cont ON rc_cont.value_type = 'CONTAMINANT_CODE' AND rc_cont.value_code = v.contaminant_code
LEFT JOIN reference_codes rc_viol ON rc_viol.value_type = 'VIOLATION_CODE' AND rc_viol.value_code = v.violation_code
LEFT JOIN geographic_areas geo ON v.pwsid = geo.pwsid AND geo.area_type_code = 'CN'
WHERE v.is_health_based_ind = 'Y'
  AND v.violation_status = ANY($1)
  AND ($2 OR NOT EXISTS (
    SELECT 1 FROM violation_ai_explanations ai
    WHERE ai.submission_year_quarter = v.submission_year_quarter
      AND ai.violation_id = v.violation_id
      AND ai.is_current = TRUE
  ))
ORDER BY
  CASE WHEN v.violation_status IN ('Unaddressed', 'Addressed') THEN 1 ELSE 2 END,
  COALESCE(v.non_compl_per_begin_date, '1900-01-01'::date) DESC,
  p.population_served_count DESC NULLS LAST,
  CASE v.violation_status
    WHEN 'Unaddressed' THEN 1
    WHEN 'Addressed' THEN 2
    WHEN 'Resolved' THEN 3
    WHEN 'Archived' THEN 4
    ELSE 5
  END
LIMIT $3`

	retireExplanationSQL = `UPDATE violation_ai_explanations SET is_current = FALSE
WHERE submission_year_quarter = $1 AND violation_id = $2 AND is_current = TRUE`

	insertExplanationSQL = `INSERT INTO violation_ai_explanations (
  submission_year_quarter, violation_id, pwsid, explanation_text, health_risk_level,
  health_impact, recommended_actions, timeline_context, severity_score,
  vulnerable_groups, contaminant_explanation, model_version, generated_at, is_current
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, TRUE)`
)
