// Package extract pulls structured fields out of OCR page text: ticket
// number, ticket date, quantity+unit, manifest number, and truck number.
//
// Every extractor follows the same shape: an ordered list of regex
// patterns, each carrying a priority (lower wins) and a confidence derived
// from that priority, tried against a vendor-specific pattern set before
// falling back to a generic one. Vendor template patterns that match
// return the template's own confidence; fallback matches are penalized.
package extract

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"time"
)

// Pattern is one ranked regex rule. CaptureGroup selects which submatch is
// returned as the field value; 0 means the whole match.
type Pattern struct {
	Regexp        *regexp.Regexp
	Priority      int
	CaptureGroup  int
	Unit          string // only meaningful for quantity patterns
}

// Result is the (value, confidence) pair every extractor returns.
// Confidence is 0 when Value is empty. Unit carries the matched pattern's
// Unit field through for quantity extraction; other extractors ignore it.
type Result struct {
	Value      string
	Confidence float64
	Unit       string
}

func (r Result) Found() bool { return r.Value != "" }

// matchPatterns tries patterns in priority order against text and returns
// the first non-empty capture along with a priority-derived confidence,
// exactly as the source extractor's extract_with_regex: confidence =
// clamp(1.0 - (priority-1)*0.1, 0.5, 1.0).
func matchPatterns(text string, patterns []Pattern) Result {
	sorted := make([]Pattern, len(patterns))
	copy(sorted, patterns)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	for _, p := range sorted {
		matches := p.Regexp.FindAllStringSubmatch(text, -1)
		for _, m := range matches {
			if p.CaptureGroup >= len(m) {
				continue
			}
			value := trimSpace(m[p.CaptureGroup])
			if value == "" {
				continue
			}
			confidence := 1.0 - float64(p.Priority-1)*0.1
			if confidence > 1.0 {
				confidence = 1.0
			}
			if confidence < 0.5 {
				confidence = 0.5
			}
			return Result{Value: value, Confidence: confidence, Unit: p.Unit}
		}
	}
	return Result{}
}

func trimSpace(s string) string {
	for len(s) > 0 && isSpace(s[0]) {
		s = s[1:]
	}
	for len(s) > 0 && isSpace(s[len(s)-1]) {
		s = s[:len(s)-1]
	}
	return s
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }

// VendorTemplate is the per-vendor override set loaded from the template
// YAML (see internal/ticket/vendor). Each field section is optional; a
// nil FieldTemplate means "no vendor override, use fallback patterns".
type VendorTemplate struct {
	TicketNumber   *FieldTemplate
	Date           *FieldTemplate
	Quantity       *FieldTemplate
	ManifestNumber *FieldTemplate
	TruckNumber    *FieldTemplate
}

// FieldTemplate holds a vendor's compiled regex overrides for one field.
type FieldTemplate struct {
	Patterns []Pattern
}

var ticketNumberFallback = []Pattern{
	{Regexp: regexp.MustCompile(`(?i)\bWM-\d{8}\b`), Priority: 1},
	{Regexp: regexp.MustCompile(`\b\d{10}\b`), Priority: 2},
	{Regexp: regexp.MustCompile(`\b\d{7,9}\b`), Priority: 3},
}

// TicketNumber extracts the ticket number, preferring a vendor template
// when supplied. Fallback matches are penalized by 0.8x and rejected
// outright if they look like an 8-digit date (20YYMMDD, 2020-2030).
func TicketNumber(text string, tmpl *VendorTemplate, log *slog.Logger) Result {
	log = orDefault(log)

	if tmpl != nil && tmpl.TicketNumber != nil {
		if r := matchPatterns(text, tmpl.TicketNumber.Patterns); r.Found() {
			return r
		}
	}

	r := matchPatterns(text, ticketNumberFallback)
	if !r.Found() {
		return Result{}
	}
	if isDateLike(r.Value) {
		log.Debug("rejecting date-like ticket number", "value", r.Value)
		return Result{}
	}
	r.Confidence *= 0.8
	return r
}

func isDateLike(value string) bool {
	if len(value) != 8 || value[:2] != "20" {
		return false
	}
	var year int
	if _, err := fmt.Sscanf(value[:4], "%d", &year); err != nil {
		return false
	}
	return year >= 2020 && year <= 2030
}

var dateFormats = []string{
	"01/02/2006",
	"01-02-2006",
	"2006-01-02",
	"01/02/06",
	"02-Jan-2006",
	"02-January-2006",
}

var dateFallback = []Pattern{
	{Regexp: regexp.MustCompile(`\b(\d{1,2}/\d{1,2}/\d{4})\b`), Priority: 1, CaptureGroup: 1},
	{Regexp: regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`), Priority: 2, CaptureGroup: 1},
	{Regexp: regexp.MustCompile(`\b(\d{1,2}-\d{1,2}-\d{4})\b`), Priority: 3, CaptureGroup: 1},
}

// Date extracts the ticket date, returned as YYYY-MM-DD. filenameDate, if
// non-empty, is tried first and always wins with confidence 1.0 — the
// filename convention is considered the most reliable source. now is
// injected so reasonableness checks are deterministic in tests.
func Date(text string, tmpl *VendorTemplate, filenameDate string, now time.Time) Result {
	if filenameDate != "" {
		if d, ok := parseDate(filenameDate); ok {
			return Result{Value: d.Format("2006-01-02"), Confidence: 1.0}
		}
	}

	if tmpl != nil && tmpl.Date != nil {
		if r := matchPatterns(text, tmpl.Date.Patterns); r.Found() {
			if d, ok := parseDate(r.Value); ok {
				return Result{Value: d.Format("2006-01-02"), Confidence: r.Confidence}
			}
		}
	}

	r := matchPatterns(text, dateFallback)
	if !r.Found() {
		return Result{}
	}
	d, ok := parseDate(r.Value)
	if !ok || !isReasonableDate(d, now) {
		return Result{}
	}
	r.Value = d.Format("2006-01-02")
	r.Confidence *= 0.8
	return r
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateFormats {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// isReasonableDate enforces the same window as the source: year in
// [2020,2030], not more than 7 days in the future, not more than 180 days
// in the past relative to now.
func isReasonableDate(d, now time.Time) bool {
	if d.Year() < 2020 || d.Year() > 2030 {
		return false
	}
	if d.After(now.Add(7 * 24 * time.Hour)) {
		return false
	}
	if d.Before(now.Add(-180 * 24 * time.Hour)) {
		return false
	}
	return true
}

// QuantityResult is the three-way return of the quantity extractor: value,
// unit, confidence.
type QuantityResult struct {
	Value      float64
	Unit       string
	Confidence float64
}

func (r QuantityResult) Found() bool { return r.Confidence > 0 }

var quantityFallback = []Pattern{
	{Regexp: regexp.MustCompile(`(?i)(\d+(?:\.\d{1,2})?)\s*TONS?`), Priority: 1, CaptureGroup: 1, Unit: "TONS"},
	{Regexp: regexp.MustCompile(`(?i)(\d+(?:\.\d{1,2})?)\s*(?:CY|CUBIC\s*YARDS?)`), Priority: 2, CaptureGroup: 1, Unit: "CY"},
	{Regexp: regexp.MustCompile(`(?i)(\d+)\s*LOADS?`), Priority: 3, CaptureGroup: 1, Unit: "LOADS"},
}

// Quantity extracts a load quantity and its unit. When nothing matches it
// assumes a single load at confidence 0.5, mirroring the source's
// "no quantity found" default.
func Quantity(text string, tmpl *VendorTemplate, log *slog.Logger) QuantityResult {
	log = orDefault(log)

	if tmpl != nil && tmpl.Quantity != nil {
		if r := quantityWithUnit(text, tmpl.Quantity.Patterns, log); r.Found() {
			return r
		}
	}

	if r := quantityWithUnit(text, quantityFallback, log); r.Found() {
		r.Confidence *= 0.8
		return r
	}

	return QuantityResult{Value: 1.0, Unit: "LOADS", Confidence: 0.5}
}

func quantityWithUnit(text string, patterns []Pattern, log *slog.Logger) QuantityResult {
	r := matchPatterns(text, patterns)
	if !r.Found() {
		return QuantityResult{}
	}

	var quantity float64
	if _, err := fmt.Sscanf(r.Value, "%g", &quantity); err != nil {
		log.Error("failed to parse quantity", "value", r.Value, "error", err)
		return QuantityResult{}
	}
	if quantity <= 0 || quantity > 50 {
		log.Warn("quantity out of valid range", "quantity", quantity)
		return QuantityResult{}
	}

	return QuantityResult{Value: quantity, Unit: r.Unit, Confidence: r.Confidence}
}

var manifestFallback = []Pattern{
	{Regexp: regexp.MustCompile(`(?i)\bMANIFEST\s*#?\s*:?\s*(WM-MAN-\d{4}-\d{6})\b`), Priority: 1, CaptureGroup: 1},
	{Regexp: regexp.MustCompile(`\b(?i:MAN)\s*#?\s*:?\s*([A-Z0-9-]{10,})\b`), Priority: 2, CaptureGroup: 1},
	{Regexp: regexp.MustCompile(`\b(?i:MANIFEST)[:\s]+([A-Z0-9-]{6,20})\b`), Priority: 3, CaptureGroup: 1},
	{Regexp: regexp.MustCompile(`\b(?i:MFST)[:\s]+([A-Z0-9-]{6,20})\b`), Priority: 4, CaptureGroup: 1},
}

// ManifestNumber extracts a manifest number. Failure to find one is not an
// error here — it is surfaced to the review queue by the validator (C5),
// since whether a manifest is required depends on material, which this
// extractor does not know.
func ManifestNumber(text string, tmpl *VendorTemplate, log *slog.Logger) Result {
	log = orDefault(log)

	if tmpl != nil && tmpl.ManifestNumber != nil {
		if r := matchPatterns(text, tmpl.ManifestNumber.Patterns); r.Found() {
			return r
		}
	}

	r := matchPatterns(text, manifestFallback)
	if !r.Found() {
		log.Warn("no manifest number found, may require manual review")
		return Result{}
	}
	r.Confidence *= 0.8
	return r
}

var truckNumberFallback = []Pattern{
	{Regexp: regexp.MustCompile(`(?i)\bTruck\s*#?\s*:?\s*(\d{1,4})\b`), Priority: 1, CaptureGroup: 1},
	{Regexp: regexp.MustCompile(`(?i)\bVehicle\s*#?\s*:?\s*(\d{1,4})\b`), Priority: 2, CaptureGroup: 1},
	{Regexp: regexp.MustCompile(`(?i)\bUnit\s*#?\s*:?\s*(\d{1,4})\b`), Priority: 3, CaptureGroup: 1},
	{Regexp: regexp.MustCompile(`(?i)\bTruck\s+(\d{1,4})\b`), Priority: 4, CaptureGroup: 1},
}

// TruckNumber extracts the hauling truck number. Optional field — absence
// is not logged above debug level.
func TruckNumber(text string, tmpl *VendorTemplate, log *slog.Logger) Result {
	log = orDefault(log)

	if tmpl != nil && tmpl.TruckNumber != nil {
		if r := matchPatterns(text, tmpl.TruckNumber.Patterns); r.Found() {
			return r
		}
	}

	r := matchPatterns(text, truckNumberFallback)
	if !r.Found() {
		log.Debug("no truck number found (optional field)")
		return Result{}
	}
	r.Confidence *= 0.8
	return r
}

func orDefault(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}
