package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/wastetrack/ticketcore/internal/ticket/repository"
)

var manifestColumns = []string{
	"ticket_number", "manifest_number", "date", "source", "waste_facility", "material", "quantity", "units", "file_ref",
}

// contaminatedOnly filters to the regulated-material subset, matching
// manifest_log_exporter.py's "material == CLASS_2_CONTAMINATED or
// material_class == CONTAMINATED" predicate.
func contaminatedOnly(rows []repository.ExportRow) []repository.ExportRow {
	out := make([]repository.ExportRow, 0, len(rows))
	for _, r := range rows {
		if r.Material == "CLASS_2_CONTAMINATED" || r.MaterialClass == "CONTAMINATED" {
			out = append(out, r)
		}
	}
	return out
}

func sortManifestRows(rows []repository.ExportRow) []repository.ExportRow {
	sorted := make([]repository.ExportRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.TicketDate.Equal(b.TicketDate) {
			return a.TicketDate.Before(b.TicketDate)
		}
		return a.ManifestNumber < b.ManifestNumber
	})
	return sorted
}

// WriteManifestLogCSV writes the chronological contaminated-load log of
// spec §4.13, an exact port of ManifestLogExporter.export.
func WriteManifestLogCSV(w io.Writer, rows []repository.ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(manifestColumns); err != nil {
		return fmt.Errorf("export: write manifest header: %w", err)
	}

	for _, r := range sortManifestRows(contaminatedOnly(rows)) {
		record := []string{
			r.TicketNumber,
			r.ManifestNumber,
			r.TicketDate.Format("2006-01-02"),
			r.Source,
			r.Destination,
			r.Material,
			r.Quantity.StringFixed(1),
			r.QuantityUnit,
			fileRef(r.FileID, r.FilePage),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("export: write manifest row %s: %w", r.TicketNumber, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// MissingManifests returns every contaminated row with no manifest
// number, matching _validate_manifests's warning list.
func MissingManifests(rows []repository.ExportRow) []repository.ExportRow {
	var out []repository.ExportRow
	for _, r := range contaminatedOnly(rows) {
		if r.ManifestNumber == "" {
			out = append(out, r)
		}
	}
	return out
}

// MonthlySummary is one row of generate_monthly_summary: a calendar
// month's load count, tonnage, distinct manifest count, and distinct
// source count.
type MonthlySummary struct {
	Month         string // "YYYY-MM"
	LoadCount     int
	TotalQuantity string
	ManifestCount int
	SourceCount   int
}

// SummarizeManifestsByMonth groups contaminated rows by ticket month.
func SummarizeManifestsByMonth(rows []repository.ExportRow) []MonthlySummary {
	type bucket struct {
		count     int
		total     float64
		manifests map[string]bool
		sources   map[string]bool
	}
	buckets := map[string]*bucket{}
	for _, r := range contaminatedOnly(rows) {
		key := r.TicketDate.Format("2006-01")
		b, ok := buckets[key]
		if !ok {
			b = &bucket{manifests: map[string]bool{}, sources: map[string]bool{}}
			buckets[key] = b
		}
		b.count++
		f, _ := r.Quantity.Float64()
		b.total += f
		if r.ManifestNumber != "" {
			b.manifests[r.ManifestNumber] = true
		}
		if r.Source != "" {
			b.sources[r.Source] = true
		}
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]MonthlySummary, 0, len(keys))
	for _, k := range keys {
		b := buckets[k]
		out = append(out, MonthlySummary{
			Month:         k,
			LoadCount:     b.count,
			TotalQuantity: fmt.Sprintf("%.1f", b.total),
			ManifestCount: len(b.manifests),
			SourceCount:   len(b.sources),
		})
	}
	return out
}

// DuplicateManifest is one reused manifest number and the ticket numbers
// that share it, matching check_duplicate_manifests's result shape.
type DuplicateManifest struct {
	ManifestNumber string
	TicketNumbers  []string
}

// CheckDuplicateManifests finds manifest numbers reused across more than
// one ticket, an export-time advisory distinct from the core's
// write-path duplicate-ticket detection.
func CheckDuplicateManifests(rows []repository.ExportRow) []DuplicateManifest {
	byManifest := map[string][]string{}
	var order []string
	for _, r := range contaminatedOnly(rows) {
		if r.ManifestNumber == "" {
			continue
		}
		if _, seen := byManifest[r.ManifestNumber]; !seen {
			order = append(order, r.ManifestNumber)
		}
		byManifest[r.ManifestNumber] = append(byManifest[r.ManifestNumber], r.TicketNumber)
	}

	var out []DuplicateManifest
	for _, m := range order {
		if len(byManifest[m]) > 1 {
			out = append(out, DuplicateManifest{ManifestNumber: m, TicketNumbers: byManifest[m]})
		}
	}
	return out
}

// SplitBySource groups contaminated rows by source location for
// export_by_source's one-CSV-per-source layout.
func SplitBySource(rows []repository.ExportRow) map[string][]repository.ExportRow {
	out := map[string][]repository.ExportRow{}
	for _, r := range contaminatedOnly(rows) {
		out[r.Source] = append(out[r.Source], r)
	}
	return out
}
