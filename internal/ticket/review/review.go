// Package review writes the review-queue entries described in spec
// §4.12: one row per page that did not produce a ticket, including pages
// whose write was aborted by a duplicate or manifest finding. Entries are
// write-once from the core; resolution is an external, out-of-pipeline
// operation, so this package exposes no resolve/update surface.
package review

import (
	"context"
	"fmt"

	"github.com/wastetrack/ticketcore/internal/ticket"
)

// Store is the persistence surface this package needs. repository.Store
// implements it.
type Store interface {
	InsertReviewEntry(ctx context.Context, entry ticket.ReviewQueueEntry) (int64, error)
}

// Writer records review-queue entries for the page pipeline and batch
// orchestrator.
type Writer struct {
	store Store
}

// New constructs a Writer over store.
func New(store Store) *Writer {
	return &Writer{store: store}
}

// PageContext is the provenance every review entry carries: which file,
// which page, and the structured detected-field/suggested-fix payloads
// the reviewer sees.
type PageContext struct {
	PageID         string
	FilePath       string
	PageNum        int
	TicketID       *int64
	DetectedFields map[string]any
	SuggestedFixes map[string]any
}

func (w *Writer) write(ctx context.Context, pc PageContext, reason ticket.ReviewReason, severity ticket.Severity) (int64, error) {
	entry := ticket.ReviewQueueEntry{
		TicketID:       pc.TicketID,
		PageID:         pc.PageID,
		Reason:         reason,
		Severity:       severity,
		FilePath:       pc.FilePath,
		PageNum:        pc.PageNum,
		DetectedFields: pc.DetectedFields,
		SuggestedFixes: pc.SuggestedFixes,
	}
	id, err := w.store.InsertReviewEntry(ctx, entry)
	if err != nil {
		return 0, fmt.Errorf("review: write %s entry for %s: %w", reason, pc.PageID, err)
	}
	return id, nil
}

// MissingTicketNumber records the §4.9 step-5 critical completeness gate
// failure: no ticket number could be extracted from the page.
func (w *Writer) MissingTicketNumber(ctx context.Context, pc PageContext) (int64, error) {
	return w.write(ctx, pc, ticket.ReasonMissingTicketNumber, ticket.SeverityCritical)
}

// InvalidDate records the §4.9 step-5 date-gate failure.
func (w *Writer) InvalidDate(ctx context.Context, pc PageContext) (int64, error) {
	return w.write(ctx, pc, ticket.ReasonInvalidDate, ticket.SeverityCritical)
}

// MissingManifest records a C5 MISSING_MANIFEST outcome — the
// 100%-recall-critical path of §4.5/P1.
func (w *Writer) MissingManifest(ctx context.Context, pc PageContext) (int64, error) {
	return w.write(ctx, pc, ticket.ReasonMissingManifest, ticket.SeverityCritical)
}

// InvalidManifestFormat records a C5 present-but-malformed manifest.
func (w *Writer) InvalidManifestFormat(ctx context.Context, pc PageContext) (int64, error) {
	return w.write(ctx, pc, ticket.ReasonInvalidManifestFormat, ticket.SeverityWarning)
}

// ForeignKeyError records a C7 missing-required-reference failure.
func (w *Writer) ForeignKeyError(ctx context.Context, pc PageContext) (int64, error) {
	return w.write(ctx, pc, ticket.ReasonForeignKeyError, ticket.SeverityCritical)
}

// DuplicateTicket records a C6 duplicate finding surfaced through C7.
func (w *Writer) DuplicateTicket(ctx context.Context, pc PageContext) (int64, error) {
	return w.write(ctx, pc, ticket.ReasonDuplicateTicket, ticket.SeverityWarning)
}

// ProcessingError is intentionally unexposed: per §7's propagation
// policy, PROCESSING_ERROR outcomes get no review entry — they are
// counted by the batch orchestrator's run ledger instead (C11).
