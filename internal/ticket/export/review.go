package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/wastetrack/ticketcore/internal/ticket"
)

var reviewColumns = []string{
	"page_id", "reason", "severity", "file_path", "page_num", "detected_fields", "suggested_fixes", "created_at",
}

// severityRank orders CRITICAL before WARNING before INFO, matching
// review_queue_exporter.py's severity_order map (unknown severities sort
// last, same as the source's dict.get default of 3).
func severityRank(s ticket.Severity) int {
	switch s {
	case ticket.SeverityCritical:
		return 0
	case ticket.SeverityWarning:
		return 1
	case ticket.SeverityInfo:
		return 2
	default:
		return 3
	}
}

func sortReviewEntries(entries []ticket.ReviewQueueEntry) []ticket.ReviewQueueEntry {
	sorted := make([]ticket.ReviewQueueEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		ra, rb := severityRank(a.Severity), severityRank(b.Severity)
		if ra != rb {
			return ra < rb
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return sorted
}

func marshalOrEmpty(v map[string]any) string {
	if len(v) == 0 {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// WriteReviewQueueCSV writes the severity-ordered review queue export of
// spec §4.13, an exact port of ReviewQueueExporter.export.
func WriteReviewQueueCSV(w io.Writer, entries []ticket.ReviewQueueEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reviewColumns); err != nil {
		return fmt.Errorf("export: write review header: %w", err)
	}

	for _, e := range sortReviewEntries(entries) {
		record := []string{
			e.PageID,
			string(e.Reason),
			string(e.Severity),
			e.FilePath,
			fmt.Sprintf("%d", e.PageNum),
			marshalOrEmpty(e.DetectedFields),
			marshalOrEmpty(e.SuggestedFixes),
			e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("export: write review row %s: %w", e.PageID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteReviewQueueJSON writes export_for_gui's severity-ordered JSON
// form, for tooling that wants structured fields rather than a flat CSV.
func WriteReviewQueueJSON(w io.Writer, entries []ticket.ReviewQueueEntry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sortReviewEntries(entries)); err != nil {
		return fmt.Errorf("export: write review json: %w", err)
	}
	return nil
}

// SeverityCounts tallies entries by severity, matching
// _log_severity_summary's counters.
func SeverityCounts(entries []ticket.ReviewQueueEntry) map[ticket.Severity]int {
	counts := map[ticket.Severity]int{
		ticket.SeverityCritical: 0,
		ticket.SeverityWarning:  0,
		ticket.SeverityInfo:     0,
	}
	for _, e := range entries {
		counts[e.Severity]++
	}
	return counts
}

// SplitByReason groups entries by reason for export_by_reason's
// one-CSV-per-reason layout.
func SplitByReason(entries []ticket.ReviewQueueEntry) map[ticket.ReviewReason][]ticket.ReviewQueueEntry {
	out := map[ticket.ReviewReason][]ticket.ReviewQueueEntry{}
	for _, e := range entries {
		out[e.Reason] = append(out[e.Reason], e)
	}
	return out
}

// MissingManifestEntries extracts the compliance-critical subset:
// reviews raised because a contaminated load had no manifest number,
// matching check_missing_manifests.
func MissingManifestEntries(entries []ticket.ReviewQueueEntry) []ticket.ReviewQueueEntry {
	var out []ticket.ReviewQueueEntry
	for _, e := range entries {
		if e.Reason == ticket.ReasonMissingManifest {
			out = append(out, e)
		}
	}
	return out
}
