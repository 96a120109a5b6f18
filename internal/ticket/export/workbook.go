// Tracking-workbook export. Spec §1 rules concrete export file formats
// (XLSX in particular) out of the core's scope, so this writes the five
// sheets excel_exporter.py produces as five CSV files in outputDir
// rather than binding an xlsx library — the sheet layout and job-week/
// job-month annotations are the contract; the container format is not.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/wastetrack/ticketcore/internal/ticket/repository"
)

// WorkbookSheets are excel_exporter.py's five sheet names, kept as the
// output file stems (all_daily.csv, class2_daily.csv, ...).
var WorkbookSheets = []string{"all_daily", "class2_daily", "non_contaminated", "spoils", "import"}

func groupByDate(rows []repository.ExportRow) map[string][]repository.ExportRow {
	out := map[string][]repository.ExportRow{}
	for _, r := range rows {
		key := r.TicketDate.Format("2006-01-02")
		out[key] = append(out[key], r)
	}
	return out
}

func sortedDateKeys(byDate map[string][]repository.ExportRow) []string {
	keys := make([]string, 0, len(byDate))
	for k := range byDate {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// distinctSorted collects the distinct non-empty values f returns across
// rows, sorted for deterministic column order.
func distinctSorted(rows []repository.ExportRow, f func(repository.ExportRow) string) []string {
	seen := map[string]bool{}
	for _, r := range rows {
		v := f(r)
		if v != "" {
			seen[v] = true
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func writeAllDailySheet(path string, rows []repository.ExportRow, jobStart time.Time) error {
	byDate := groupByDate(rows)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	defer f.Close()
	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"date", "day", "job_week", "job_month", "total", "class2", "non_contaminated", "spoils", "notes"}); err != nil {
		return err
	}
	for _, key := range sortedDateKeys(byDate) {
		day := byDate[key]
		metrics := ComputeJobMetrics(day[0].TicketDate, jobStart)
		var class2, nonContam, spoils int
		for _, r := range day {
			switch r.MaterialClass {
			case "CONTAMINATED":
				class2++
			case "CLEAN":
				nonContam++
			case "SPOILS":
				spoils++
			}
		}
		record := []string{key, metrics.Day, metrics.JobWeek, metrics.JobMonth,
			fmt.Sprintf("%d", len(day)), fmt.Sprintf("%d", class2), fmt.Sprintf("%d", nonContam), fmt.Sprintf("%d", spoils), ""}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeClass2DailySheet(path string, rows []repository.ExportRow, jobStart time.Time) error {
	contaminated := contaminatedOnly(rows)
	sources := distinctSorted(contaminated, func(r repository.ExportRow) string { return r.Source })
	byDate := groupByDate(contaminated)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	defer f.Close()
	cw := csv.NewWriter(f)

	header := append([]string{"date", "day", "job_week", "job_month", "total"}, sources...)
	header = append(header, "notes")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, key := range sortedDateKeys(byDate) {
		day := byDate[key]
		metrics := ComputeJobMetrics(day[0].TicketDate, jobStart)
		counts := map[string]int{}
		for _, r := range day {
			counts[r.Source]++
		}
		record := []string{key, metrics.Day, metrics.JobWeek, metrics.JobMonth, fmt.Sprintf("%d", len(day))}
		for _, src := range sources {
			record = append(record, fmt.Sprintf("%d", counts[src]))
		}
		record = append(record, "")
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeNonContaminatedSheet(path string, rows []repository.ExportRow, jobStart time.Time) error {
	var clean []repository.ExportRow
	for _, r := range rows {
		if r.MaterialClass == "CLEAN" {
			clean = append(clean, r)
		}
	}
	byDate := groupByDate(clean)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	defer f.Close()
	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"date", "day", "job_week", "job_month", "total", "destinations"}); err != nil {
		return err
	}
	for _, key := range sortedDateKeys(byDate) {
		day := byDate[key]
		metrics := ComputeJobMetrics(day[0].TicketDate, jobStart)
		destinations := distinctSorted(day, func(r repository.ExportRow) string { return r.Destination })
		record := []string{key, metrics.Day, metrics.JobWeek, metrics.JobMonth, fmt.Sprintf("%d", len(day)), joinNonEmpty(destinations...)}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeSpoilsSheet(path string, rows []repository.ExportRow, jobStart time.Time) error {
	var spoils []repository.ExportRow
	for _, r := range rows {
		if r.MaterialClass == "SPOILS" {
			spoils = append(spoils, r)
		}
	}
	sources := distinctSorted(spoils, func(r repository.ExportRow) string { return r.Source })
	byDate := groupByDate(spoils)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	defer f.Close()
	cw := csv.NewWriter(f)
	header := append([]string{"date", "day", "job_week", "job_month", "total"}, sources...)
	header = append(header, "notes")
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, key := range sortedDateKeys(byDate) {
		day := byDate[key]
		metrics := ComputeJobMetrics(day[0].TicketDate, jobStart)
		counts := map[string]int{}
		for _, r := range day {
			counts[r.Source]++
		}
		record := []string{key, metrics.Day, metrics.JobWeek, metrics.JobMonth, fmt.Sprintf("%d", len(day))}
		for _, src := range sources {
			record = append(record, fmt.Sprintf("%d", counts[src]))
		}
		record = append(record, "")
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeImportSheet(path string, rows []repository.ExportRow) error {
	var imports []repository.ExportRow
	for _, r := range rows {
		if r.TicketType == "IMPORT" {
			imports = append(imports, r)
		}
	}
	materials := distinctSorted(imports, func(r repository.ExportRow) string { return r.Material })
	byDate := groupByDate(imports)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	defer f.Close()
	cw := csv.NewWriter(f)
	header := append([]string{"date"}, materials...)
	header = append(header, "grand_total")
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, key := range sortedDateKeys(byDate) {
		day := byDate[key]
		counts := map[string]int{}
		for _, r := range day {
			counts[r.Material]++
		}
		record := []string{key}
		for _, m := range materials {
			record = append(record, fmt.Sprintf("%d", counts[m]))
		}
		record = append(record, fmt.Sprintf("%d", len(day)))
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTrackingWorkbook writes the five tracking sheets into outputDir,
// one CSV per sheet, and returns the paths written in sheet order.
func WriteTrackingWorkbook(outputDir string, rows []repository.ExportRow, jobStart time.Time) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create output dir %s: %w", outputDir, err)
	}

	paths := make([]string, 0, len(WorkbookSheets))
	for _, sheet := range WorkbookSheets {
		paths = append(paths, filepath.Join(outputDir, sheet+".csv"))
	}

	if err := writeAllDailySheet(paths[0], rows, jobStart); err != nil {
		return nil, err
	}
	if err := writeClass2DailySheet(paths[1], rows, jobStart); err != nil {
		return nil, err
	}
	if err := writeNonContaminatedSheet(paths[2], rows, jobStart); err != nil {
		return nil, err
	}
	if err := writeSpoilsSheet(paths[3], rows, jobStart); err != nil {
		return nil, err
	}
	if err := writeImportSheet(paths[4], rows); err != nil {
		return nil, err
	}
	return paths, nil
}
