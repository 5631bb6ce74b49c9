// Package postgrest implements the dashboard backend over a Supabase
// PostgREST endpoint.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/water-compliance-api/internal/domain"
)

// Client implements dashboard.Backend against PostgREST tables, views, and
// RPC functions.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a PostgREST client for the given REST base URL
// (for Supabase, https://<project>.supabase.co/rest/v1).
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// CountSystems counts public water systems, optionally only active ones.
func (c *Client) CountSystems(ctx context.Context, activeOnly bool) (int, error) {
	q := url.Values{}
	if activeOnly {
		q.Set("pws_activity_code", eq("A"))
	}
	return c.count(ctx, "public_water_systems", q)
}

// CountViolations counts enforcement violations matching f.
func (c *Client) CountViolations(ctx context.Context, f domain.ViolationFilter) (int, error) {
	q := url.Values{}
	if f.HealthBasedOnly {
		q.Set("is_health_based_ind", eq("Y"))
	}
	if f.Status != "" {
		q.Set("violation_status", eq(f.Status))
	}
	return c.count(ctx, "violations_enforcement", q)
}

// ActivePopulation sums population served over the first limit active systems.
func (c *Client) ActivePopulation(ctx context.Context, limit int) (int64, error) {
	q := url.Values{
		"select":            {"population_served_count"},
		"pws_activity_code": {eq("A")},
		"limit":             {strconv.Itoa(limit)},
	}
	var rows []struct {
		Population *int64 `json:"population_served_count"`
	}
	if err := c.get(ctx, "public_water_systems", q, &rows); err != nil {
		return 0, err
	}
	var total int64
	for _, r := range rows {
		if r.Population != nil {
			total += *r.Population
		}
	}
	return total, nil
}

// CountySummaries returns the counties with the most critical violations.
func (c *Client) CountySummaries(ctx context.Context, limit int) ([]domain.CountySummary, error) {
	q := url.Values{
		"select": {"*"},
		"order":  {"critical_violations.desc"},
		"limit":  {strconv.Itoa(limit)},
	}
	return selectRows[domain.CountySummary](ctx, c, "county_summary", q)
}

// ViolationTrends returns yearly violation counts, oldest first.
func (c *Client) ViolationTrends(ctx context.Context) ([]domain.ViolationTrend, error) {
	q := url.Values{
		"select": {"*"},
		"order":  {"violation_year.asc"},
	}
	return selectRows[domain.ViolationTrend](ctx, c, "violation_trends", q)
}

// CountSystemHealth counts system_health_dashboard rows, filtered by status
// unless status is empty.
func (c *Client) CountSystemHealth(ctx context.Context, status domain.HealthStatus) (int, error) {
	q := url.Values{}
	if status != "" {
		q.Set("health_status", eq(string(status)))
	}
	return c.count(ctx, "system_health_dashboard", q)
}

// SystemsSorted calls get_systems_sorted, which orders worst systems first.
func (c *Client) SystemsSorted(ctx context.Context, offset, limit int) ([]domain.SystemHealthRecord, error) {
	args := map[string]int{"page_offset": offset, "page_limit": limit}
	return callRPC[domain.SystemHealthRecord](ctx, c, "get_systems_sorted", args)
}

// System returns one public water system or domain.ErrNotFound.
func (c *Client) System(ctx context.Context, pwsid string) (domain.SystemDetail, error) {
	q := url.Values{
		"select": {"*"},
		"pwsid":  {eq(pwsid)},
		"limit":  {"1"},
	}
	var rows []domain.SystemDetail
	if err := c.get(ctx, "public_water_systems", q, &rows); err != nil {
		return domain.SystemDetail{}, err
	}
	if len(rows) == 0 {
		return domain.SystemDetail{}, fmt.Errorf("system %s: %w", pwsid, domain.ErrNotFound)
	}
	return rows[0], nil
}

// ExplainedViolations lists a system's violations joined with current
// explanations, newest first.
func (c *Client) ExplainedViolations(ctx context.Context, pwsid string) ([]domain.SystemViolation, error) {
	return c.violations(ctx, "public_violation_explanations", pwsid)
}

// Violations lists a system's enforcement violations, newest first.
func (c *Client) Violations(ctx context.Context, pwsid string) ([]domain.SystemViolation, error) {
	return c.violations(ctx, "violations_enforcement", pwsid)
}

func (c *Client) violations(ctx context.Context, table, pwsid string) ([]domain.SystemViolation, error) {
	q := url.Values{
		"select": {"*"},
		"pwsid":  {eq(pwsid)},
		"order":  {"non_compl_per_begin_date.desc"},
	}
	return selectRows[domain.SystemViolation](ctx, c, table, q)
}

// SiteVisits lists a system's site visits, most recent first.
func (c *Client) SiteVisits(ctx context.Context, pwsid string) ([]domain.SiteVisit, error) {
	q := url.Values{
		"select": {"*"},
		"pwsid":  {eq(pwsid)},
		"order":  {"visit_date.desc"},
	}
	return selectRows[domain.SiteVisit](ctx, c, "site_visits", q)
}

// GeographicAreas lists the areas a system serves.
func (c *Client) GeographicAreas(ctx context.Context, pwsid string) ([]domain.GeographicArea, error) {
	q := url.Values{
		"select": {"*"},
		"pwsid":  {eq(pwsid)},
	}
	return selectRows[domain.GeographicArea](ctx, c, "geographic_areas", q)
}

// ViolationsWithExplanations calls get_violations_with_explanations.
func (c *Client) ViolationsWithExplanations(ctx context.Context, pwsid string) ([]domain.ViolationRecord, error) {
	args := map[string]string{"system_pwsid": pwsid}
	return callRPC[domain.ViolationRecord](ctx, c, "get_violations_with_explanations", args)
}

// Ping fetches a single system row.
func (c *Client) Ping(ctx context.Context) error {
	q := url.Values{"select": {"pwsid"}, "limit": {"1"}}
	var rows []json.RawMessage
	return c.get(ctx, "public_water_systems", q, &rows)
}

// Close is a no-op; the client holds no pooled resources beyond net/http's.
func (c *Client) Close() error { return nil }

func eq(v string) string { return "eq." + v }

func selectRows[T any](ctx context.Context, c *Client, table string, q url.Values) ([]T, error) {
	var rows []T
	if err := c.get(ctx, table, q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func callRPC[T any](ctx context.Context, c *Client, fn string, args any) ([]T, error) {
	var rows []T
	if err := c.rpc(ctx, fn, args, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// count issues a HEAD request with an exact count and reads the total from
// the Content-Range header.
func (c *Client) count(ctx context.Context, table string, q url.Values) (int, error) {
	q.Set("select", "*")
	req, err := c.newRequest(ctx, http.MethodHead, table, q, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Prefer", "count=exact")

	resp, err := c.do(req, "count "+table)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (c *Client) get(ctx context.Context, table string, q url.Values, dst any) error {
	req, err := c.newRequest(ctx, http.MethodGet, table, q, nil)
	if err != nil {
		return err
	}
	return c.decode(req, "select "+table, dst)
}

func (c *Client) rpc(ctx context.Context, fn string, args, dst any) error {
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode %s args: %w", fn, err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "rpc/"+fn, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.decode(req, "rpc "+fn, dst)
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + "/" + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *Client) decode(req *http.Request, op string, dst any) error {
	resp, err := c.do(req, op)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// do sends req and turns non-2xx responses into errors.
func (c *Client) do(req *http.Request, op string) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Debug("postgrest request", "op", op, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s: postgrest error: status %d: %s", op, resp.StatusCode, apiMessage(body))
	}
	return resp, nil
}

// apiMessage extracts the message field of a PostgREST error body, falling
// back to the raw body.
func apiMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(body))
}

var errNoCount = errors.New("response has no exact count")

// parseContentRange reads the total from "0-24/3573" or "*/3573".
func parseContentRange(h string) (int, error) {
	_, total, ok := strings.Cut(h, "/")
	if !ok || total == "*" {
		return 0, errNoCount
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, fmt.Errorf("parse content-range %q: %w", h, err)
	}
	return n, nil
}
