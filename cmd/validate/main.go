// Command validate checks the dashboard data source for integrity problems
// the dashboard would otherwise paper over: inconsistent yearly trends,
// health counts that do not add up, fan-out duplicates, and listings that
// are not sorted worst-first.
//
// Usage:
//
//	go run ./cmd/validate -pages 5
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/couchcryptid/water-compliance-api/internal/adapter/backend"
	"github.com/couchcryptid/water-compliance-api/internal/config"
	"github.com/couchcryptid/water-compliance-api/internal/domain"
	"github.com/couchcryptid/water-compliance-api/internal/observability"
)

// source is the subset of the dashboard backend the checks read.
type source interface {
	ViolationTrends(ctx context.Context) ([]domain.ViolationTrend, error)
	CountSystemHealth(ctx context.Context, status domain.HealthStatus) (int, error)
	SystemsSorted(ctx context.Context, offset, limit int) ([]domain.SystemHealthRecord, error)
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	notes  []string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) notef(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	pages := flag.Int("pages", 3, "number of system listing pages to check")
	flag.Parse()

	if *pages < 1 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg)

	ctx := context.Background()
	b, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open backend: %v\n", err)
		os.Exit(1)
	}

	code := run(ctx, b, cfg.PageSize, *pages, os.Stdout, logger)
	if err := b.Close(); err != nil {
		logger.Warn("backend close error", "error", err)
	}
	if code != 0 {
		os.Exit(code)
	}
}

func run(ctx context.Context, src source, pageSize, pages int, out io.Writer, logger *slog.Logger) int {
	fmt.Fprintln(out, "=== Water Compliance Data Validation ===")
	fmt.Fprintln(out)

	phases := []*phase{
		validateTrends(ctx, src, logger),
		validateHealthTotals(ctx, src),
		validateSystemsListing(ctx, src, pageSize, pages),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if len(p.notes) == 0 && p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for _, n := range p.notes {
			fmt.Fprintf(out, "  %s\n", n)
		}
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// ── Phase 1: Violation Trends ──
// Health-based and unaddressed counts are subsets of the yearly total.

func validateTrends(ctx context.Context, src source, logger *slog.Logger) *phase {
	p := &phase{name: "Phase 1: Violation Trends"}

	trends, err := src.ViolationTrends(ctx)
	if err != nil {
		p.errorf("fetch violation trends: %v", err)
		return p
	}
	p.notef("%d years of trend data", len(trends))

	for _, a := range domain.ValidateTrends(trends) {
		logger.Warn("trend anomaly", "year", a.Year, "field", a.Field, "value", a.Value, "total", a.Total)
		p.errorf("year %d: %s %d exceeds total %d", a.Year, a.Field, a.Value, a.Total)
	}
	return p
}

// ── Phase 2: Health Status Totals ──
// Every health row carries one of the three known statuses.

func validateHealthTotals(ctx context.Context, src source) *phase {
	p := &phase{name: "Phase 2: Health Status Totals"}

	var stats domain.HealthStats
	counts := []struct {
		status domain.HealthStatus
		dst    *int
	}{
		{domain.HealthRed, &stats.Red},
		{domain.HealthYellow, &stats.Yellow},
		{domain.HealthGreen, &stats.Green},
	}
	for _, c := range counts {
		n, err := src.CountSystemHealth(ctx, c.status)
		if err != nil {
			p.errorf("count %s systems: %v", c.status, err)
			return p
		}
		*c.dst = n
	}

	total, err := src.CountSystemHealth(ctx, "")
	if err != nil {
		p.errorf("count health rows: %v", err)
		return p
	}

	p.notef("RED=%d YELLOW=%d GREEN=%d total=%d", stats.Red, stats.Yellow, stats.Green, total)
	if stats.Total() != total {
		p.errorf("status counts sum to %d but %d health rows exist (%d rows with an unknown status)",
			stats.Total(), total, total-stats.Total())
	}
	return p
}

// ── Phase 3: Systems Listing ──
// Fan-out duplicates are reported; after collapsing them each page must be
// ordered worst status first.

func validateSystemsListing(ctx context.Context, src source, pageSize, pages int) *phase {
	p := &phase{name: fmt.Sprintf("Phase 3: Systems Listing (%d pages)", pages)}

	for page := 1; page <= pages; page++ {
		rows, err := src.SystemsSorted(ctx, (page-1)*pageSize, pageSize)
		if err != nil {
			p.errorf("page %d: fetch systems: %v", page, err)
			return p
		}
		if len(rows) == 0 {
			p.notef("page %d: empty, stopping", page)
			break
		}

		deduped := domain.DedupeBySeverity(rows)
		if dropped := len(rows) - len(deduped); dropped > 0 {
			p.notef("page %d: %d fan-out duplicates (%s)", page, dropped, strings.Join(duplicateIDs(rows), ", "))
		}

		for i := 1; i < len(deduped); i++ {
			prev, cur := deduped[i-1], deduped[i]
			if cur.HealthStatus.Rank() > prev.HealthStatus.Rank() {
				p.errorf("page %d row %d: %s (%s) listed after %s (%s)",
					page, i+1, cur.PWSID, cur.HealthStatus, prev.PWSID, prev.HealthStatus)
			}
		}
	}
	return p
}

// duplicateIDs returns PWSIDs that appear more than once, in first-seen
// order. IDs are compared exactly, matching domain.DedupeBySeverity.
func duplicateIDs(rows []domain.SystemHealthRecord) []string {
	seen := make(map[string]int, len(rows))
	var ids []string
	for _, r := range rows {
		if strings.TrimSpace(r.PWSID) == "" {
			continue
		}
		seen[r.PWSID]++
		if seen[r.PWSID] == 2 {
			ids = append(ids, r.PWSID)
		}
	}
	return ids
}
