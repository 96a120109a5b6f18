// Package dedupe implements ticket-level duplicate detection over a
// rolling window: two tickets with the same ticket number and vendor,
// dated within WindowDays of each other, are the same physical load
// entered twice.
package dedupe

import (
	"context"
	"fmt"
	"time"
)

// DefaultWindowDays is the rolling-window size from spec §4.6.
const DefaultWindowDays = 120

// Candidate is the minimal shape of an existing ticket the Finder
// returns when searching for a duplicate match.
type Candidate struct {
	TicketID   int64
	TicketDate time.Time
	FileID     string
	FilePage   int
}

// Finder looks up the earliest non-duplicate ticket matching
// ticketNumber (and vendorID, when known) whose TicketDate falls in
// [windowStart, windowEnd]. It returns (nil, nil) when nothing matches.
type Finder interface {
	FindEarliestInWindow(ctx context.Context, ticketNumber string, vendorID *int64, windowStart, windowEnd time.Time) (*Candidate, error)
}

// Detector checks new tickets against a rolling window of prior ones.
type Detector struct {
	finder     Finder
	windowDays int
}

// New constructs a Detector with the given window, defaulting to
// DefaultWindowDays when windowDays <= 0.
func New(finder Finder, windowDays int) *Detector {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return &Detector{finder: finder, windowDays: windowDays}
}

// Result is the outcome of a duplicate check.
type Result struct {
	IsDuplicate        bool
	OriginalTicketID   int64
	OriginalTicketDate time.Time
	OriginalFileID     string
	DaysApart          int
	Confidence         float64
}

// CheckDuplicate searches [ticketDate - windowDays, ticketDate] for an
// earlier non-duplicate ticket sharing ticketNumber and vendorID.
// Confidence is 1.0 when vendorID is known, 0.85 when it is nil — the
// source treats an unknown vendor as a weaker duplicate signal since the
// match key degrades to ticket number alone. Confidence is advisory only:
// callers must not branch on it, only surface it to the review queue.
func (d *Detector) CheckDuplicate(ctx context.Context, ticketNumber string, vendorID *int64, ticketDate time.Time) (Result, error) {
	windowStart := ticketDate.AddDate(0, 0, -d.windowDays)

	candidate, err := d.finder.FindEarliestInWindow(ctx, ticketNumber, vendorID, windowStart, ticketDate)
	if err != nil {
		return Result{}, fmt.Errorf("dedupe: find earliest in window: %w", err)
	}
	if candidate == nil {
		return Result{}, nil
	}

	confidence := 0.85
	if vendorID != nil {
		confidence = 1.0
	}

	daysApart := int(ticketDate.Sub(candidate.TicketDate).Hours() / 24)

	return Result{
		IsDuplicate:        true,
		OriginalTicketID:   candidate.TicketID,
		OriginalTicketDate: candidate.TicketDate,
		OriginalFileID:     candidate.FileID,
		DaysApart:          daysApart,
		Confidence:         confidence,
	}, nil
}

// ReviewPayload builds a detected_fields/suggested_fixes pair for a
// DUPLICATE_TICKET review entry. Pure and DB-free: suggested_fixes
// carries original_ticket_id; neither map carries the new ticket's id.
func ReviewPayload(ticketNumber string, ticketDate time.Time, vendorID *int64, quantity *float64, fileID string, result Result) (detectedFields, suggestedFixes map[string]any) {
	detectedFields = map[string]any{
		"ticket_number": ticketNumber,
		"ticket_date":   ticketDate.Format("2006-01-02"),
		"vendor_id":     vendorID,
		"quantity":      quantity,
		"file_id":       fileID,
	}

	suggestedFixes = map[string]any{
		"original_ticket_id": result.OriginalTicketID,
		"original_date":      result.OriginalTicketDate.Format("2006-01-02"),
		"original_file":      result.OriginalFileID,
		"days_apart":         result.DaysApart,
		"action":             "Verify if re-scan or legitimate duplicate load",
		"note":               fmt.Sprintf("Same ticket number found %d days earlier", result.DaysApart),
	}
	return detectedFields, suggestedFixes
}

// MarkReason formats the review_reason recorded on a ticket flagged as a
// duplicate of result.OriginalTicketID.
func MarkReason(result Result) string {
	return fmt.Sprintf("Duplicate ticket detected (%d days after original)", result.DaysApart)
}

// Statistics summarizes duplicate detection over a set of tickets,
// mirroring the source's get_duplicate_statistics.
type Statistics struct {
	TotalTickets   int
	TotalDuplicates int
	UniqueTickets  int
	DuplicateRate  float64
	WindowDays     int
}

// ComputeStatistics is a pure function over caller-supplied counts; the
// repository runs the underlying COUNT queries.
func ComputeStatistics(totalTickets, totalDuplicates, windowDays int) Statistics {
	rate := 0.0
	if totalTickets > 0 {
		rate = float64(totalDuplicates) / float64(totalTickets)
	}
	return Statistics{
		TotalTickets:    totalTickets,
		TotalDuplicates: totalDuplicates,
		UniqueTickets:   totalTickets - totalDuplicates,
		DuplicateRate:   rate,
		WindowDays:      windowDays,
	}
}
