package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"github.com/wastetrack/ticketcore/internal/ticket/repository"
)

// invoiceColumns is the fixed header invoice_csv_exporter.py writes,
// pipe-delimited rather than comma-delimited to match the invoice
// matching system's expected input.
var invoiceColumns = []string{
	"ticket_number", "vendor", "date", "material", "quantity", "units", "truck_number", "file_ref",
}

// sortInvoiceRows orders rows by vendor, then date, then ticket number,
// matching export()'s sort key exactly.
func sortInvoiceRows(rows []repository.ExportRow) []repository.ExportRow {
	sorted := make([]repository.ExportRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Vendor != b.Vendor {
			return a.Vendor < b.Vendor
		}
		if !a.TicketDate.Equal(b.TicketDate) {
			return a.TicketDate.Before(b.TicketDate)
		}
		return a.TicketNumber < b.TicketNumber
	})
	return sorted
}

// fileRef builds the "{file_id}-p{file_page}" reference, matching
// _format_file_ref.
func fileRef(fileID string, filePage int) string {
	return fmt.Sprintf("%s-p%d", fileID, filePage)
}

// WriteInvoiceCSV writes the pipe-delimited invoice-matching export of
// spec §4.13, an exact port of InvoiceMatchingExporter.export.
func WriteInvoiceCSV(w io.Writer, rows []repository.ExportRow) error {
	cw := csv.NewWriter(w)
	cw.Comma = '|'

	if err := cw.Write(invoiceColumns); err != nil {
		return fmt.Errorf("export: write invoice header: %w", err)
	}

	for _, r := range sortInvoiceRows(rows) {
		truckNumber := r.TruckNumber
		record := []string{
			r.TicketNumber,
			r.Vendor,
			r.TicketDate.Format("2006-01-02"),
			r.Material,
			r.Quantity.StringFixed(1),
			r.QuantityUnit,
			truckNumber,
			fileRef(r.FileID, r.FilePage),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("export: write invoice row %s: %w", r.TicketNumber, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// VendorSummary is one row of generate_summary_report: per-vendor
// ticket count, total quantity, and the unit those quantities share.
type VendorSummary struct {
	Vendor        string
	TicketCount   int
	TotalQuantity string
	Unit          string
}

// SummarizeByVendor groups rows by vendor and sums quantity, matching
// generate_summary_report. Mixed units within a vendor keep the first
// unit seen, same as the source's non-unit-aware accumulation.
func SummarizeByVendor(rows []repository.ExportRow) []VendorSummary {
	order := []string{}
	byVendor := map[string]*VendorSummary{}
	for _, r := range rows {
		s, ok := byVendor[r.Vendor]
		if !ok {
			s = &VendorSummary{Vendor: r.Vendor, Unit: r.QuantityUnit}
			byVendor[r.Vendor] = s
			order = append(order, r.Vendor)
		}
		s.TicketCount++
	}
	sort.Strings(order)

	totals := map[string]float64{}
	for _, r := range rows {
		f, _ := r.Quantity.Float64()
		totals[r.Vendor] += f
	}

	out := make([]VendorSummary, 0, len(order))
	for _, vendor := range order {
		s := byVendor[vendor]
		s.TotalQuantity = fmt.Sprintf("%.1f", totals[vendor])
		out = append(out, *s)
	}
	return out
}

// WriteInvoiceSummaryCSV writes the per-vendor summary report.
func WriteInvoiceSummaryCSV(w io.Writer, rows []repository.ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"vendor", "ticket_count", "total_quantity", "units"}); err != nil {
		return fmt.Errorf("export: write invoice summary header: %w", err)
	}
	for _, s := range SummarizeByVendor(rows) {
		record := []string{s.Vendor, fmt.Sprintf("%d", s.TicketCount), s.TotalQuantity, s.Unit}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("export: write invoice summary row %s: %w", s.Vendor, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// SplitByVendor groups rows by vendor for export_by_vendor's one-CSV-
// per-vendor layout. The caller decides file names via OutputFilename or
// its own convention; this just partitions.
func SplitByVendor(rows []repository.ExportRow) map[string][]repository.ExportRow {
	out := map[string][]repository.ExportRow{}
	for _, r := range rows {
		out[r.Vendor] = append(out[r.Vendor], r)
	}
	return out
}
