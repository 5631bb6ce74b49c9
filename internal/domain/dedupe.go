package domain

import "strings"

// DedupeBySeverity collapses fan-out duplicates so each PWSID appears once,
// keeping the record with the most severe health status.
//
// Output order is the order of first occurrence. A later duplicate replaces
// the retained record in place only when its rank is strictly greater, so
// ties keep the earlier row. PWSIDs are compared exactly as given, so
// "GA001" and "GA001 " are distinct systems. Records whose PWSID is empty or
// whitespace are never merged; each one is kept as its own entry. The input
// slice is not modified.
func DedupeBySeverity(records []SystemHealthRecord) []SystemHealthRecord {
	out := make([]SystemHealthRecord, 0, len(records))
	index := make(map[string]int, len(records))

	for _, rec := range records {
		if strings.TrimSpace(rec.PWSID) == "" {
			out = append(out, rec)
			continue
		}

		i, seen := index[rec.PWSID]
		if !seen {
			index[rec.PWSID] = len(out)
			out = append(out, rec)
			continue
		}
		if rec.HealthStatus.Rank() > out[i].HealthStatus.Rank() {
			out[i] = rec
		}
	}

	return out
}
