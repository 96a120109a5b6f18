package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wastetrack/ticketcore/internal/ticket"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.TempDir()+"/test.db?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	store, err := Open("sqlite", db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedReferenceData(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	_, err := s.db.ExecContext(ctx, `INSERT INTO jobs (code, name, start_date) VALUES ('J1', 'Job One', '2024-01-01')`)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `INSERT INTO materials (name, class, requires_manifest) VALUES ('CLEAN', 'CLEAN', 0)`)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `INSERT INTO ticket_types (name) VALUES ('EXPORT')`)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `INSERT INTO vendors (name, code) VALUES ('Waste Management', 'WM')`)
	require.NoError(t, err)
}

func TestOpenAppliesSchemaIdempotently(t *testing.T) {
	s := newTestStore(t)
	// Applying the schema twice must not error: Open already ran it once,
	// this exercises the IF NOT EXISTS guard directly.
	for _, stmt := range schemaStatements("sqlite") {
		_, err := s.db.ExecContext(context.Background(), stmt)
		require.NoError(t, err)
	}
}

func TestJobByNameRoundTrip(t *testing.T) {
	s := newTestStore(t)
	seedReferenceData(t, s)

	job, err := s.JobByName(context.Background(), "J1")
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, "Job One", job.Name)

	missing, err := s.JobByName(context.Background(), "NOPE")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestCreateTicketInsertsAndFindsNoDuplicateFirstTime(t *testing.T) {
	s := newTestStore(t)
	seedReferenceData(t, s)

	outcome, err := s.CreateTicket(context.Background(), CreateInput{
		TicketNumber:    "WM-12345678",
		TicketDate:      time.Date(2024, 10, 17, 0, 0, 0, 0, time.UTC),
		JobID:           1,
		MaterialID:      1,
		MaterialName:    "CLEAN",
		TicketTypeID:    1,
		Quantity:        decimal.NewFromFloat(12.5),
		QuantityUnit:    "TONS",
		FileID:          "file-1",
		FilePage:        1,
		FileHash:        "abc123",
		RequestGUID:     "req-1",
		ConfidenceScore: 0.95,
		ProcessedBy:     "ticketctl-test",
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Ticket)
	require.False(t, outcome.Duplicate.IsDuplicate)
	require.True(t, outcome.Manifest.IsValid) // CLEAN material, no destination -> not required
	require.False(t, outcome.Ticket.ReviewRequired)
}

func TestCreateTicketSecondInsertDetectsDuplicate(t *testing.T) {
	s := newTestStore(t)
	seedReferenceData(t, s)
	vendorID := int64(1)

	first, err := s.CreateTicket(context.Background(), CreateInput{
		TicketNumber: "WM-99999999",
		TicketDate:   time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		JobID:        1,
		MaterialID:   1,
		MaterialName: "CLEAN",
		TicketTypeID: 1,
		VendorID:     &vendorID,
		Quantity:     decimal.NewFromFloat(5),
		QuantityUnit: "LOADS",
		FileID:       "file-a",
		FilePage:     1,
		FileHash:     "hash-a",
		RequestGUID: "req-2",
	})
	require.NoError(t, err)
	require.False(t, first.Duplicate.IsDuplicate)

	second, err := s.CreateTicket(context.Background(), CreateInput{
		TicketNumber: "WM-99999999",
		TicketDate:   time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC),
		JobID:        1,
		MaterialID:   1,
		MaterialName: "CLEAN",
		TicketTypeID: 1,
		VendorID:     &vendorID,
		Quantity:     decimal.NewFromFloat(5),
		QuantityUnit: "LOADS",
		FileID:       "file-b",
		FilePage:     1,
		FileHash:     "hash-b",
		RequestGUID: "req-3",
	})
	require.NoError(t, err)
	require.True(t, second.Duplicate.IsDuplicate)
	require.Equal(t, first.Ticket.ID, second.Duplicate.OriginalTicketID)
	require.Equal(t, 1.0, second.Duplicate.Confidence)
	// spec §7/S4: the duplicate write is aborted entirely — no second
	// row is persisted.
	require.Nil(t, second.Ticket)
}

func TestCreateTicketMissingManifestFlagsReview(t *testing.T) {
	s := newTestStore(t)
	seedReferenceData(t, s)
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO materials (name, class, requires_manifest) VALUES ('HAZARDOUS', 'CONTAMINATED', 1)`)
	require.NoError(t, err)

	outcome, err := s.CreateTicket(context.Background(), CreateInput{
		TicketNumber:             "WM-55555555",
		TicketDate:               time.Date(2024, 10, 17, 0, 0, 0, 0, time.UTC),
		JobID:                    1,
		MaterialID:               2,
		MaterialName:             "HAZARDOUS",
		MaterialRequiresManifest: true,
		TicketTypeID:             1,
		Quantity:                 decimal.NewFromFloat(3),
		QuantityUnit:             "LOADS",
		FileID:                   "file-c",
		FilePage:                 1,
		FileHash:                 "hash-c",
		RequestGUID:              "req-4",
	})
	require.NoError(t, err)
	require.False(t, outcome.Manifest.IsValid)
	require.Equal(t, ticket.ReasonMissingManifest, ticket.ReviewReason(outcome.Manifest.Reason))
	// spec §7/S2/I1: missing a required manifest aborts the write — no
	// ticket row is persisted, only the review-queue entry the pipeline
	// writes from this outcome.
	require.Nil(t, outcome.Ticket)
}

func TestCreateTicketDestinationOverrideForcesManifest(t *testing.T) {
	s := newTestStore(t)
	seedReferenceData(t, s)
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO destinations (name, requires_manifest) VALUES ('WASTE_MANAGEMENT_LEWISVILLE', 1)`)
	require.NoError(t, err)
	destID := int64(1)

	outcome, err := s.CreateTicket(context.Background(), CreateInput{
		TicketNumber:                "WM-77777777",
		TicketDate:                  time.Date(2024, 10, 17, 0, 0, 0, 0, time.UTC),
		JobID:                       1,
		MaterialID:                  1,
		MaterialName:                "CLEAN",
		DestinationID:               &destID,
		DestinationName:             "WASTE_MANAGEMENT_LEWISVILLE",
		DestinationRequiresManifest: true,
		TicketTypeID:                1,
		Quantity:                    decimal.NewFromFloat(3),
		QuantityUnit:                "LOADS",
		FileID:                      "file-e",
		FilePage:                    1,
		FileHash:                    "hash-e",
		RequestGUID:                 "req-6",
	})
	require.NoError(t, err)
	require.False(t, outcome.Manifest.IsValid)
	require.Equal(t, ticket.ReasonMissingManifest, ticket.ReviewReason(outcome.Manifest.Reason))
}

// spec §4.6's tie-break rule: among candidates within the window sharing
// the earliest ticket_date, the smallest id wins.
func TestFindEarliestInWindowTieBreaksOnSmallestID(t *testing.T) {
	s := newTestStore(t)
	seedReferenceData(t, s)
	ctx := context.Background()

	insertRawTicket := func(fileID string) {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO truck_tickets (
				ticket_number, ticket_date, job_id, material_id, ticket_type_id,
				quantity, quantity_unit, file_id, file_page, file_hash,
				request_guid, confidence_score, processed_by, review_required,
				created_at, updated_at
			) VALUES ('WM-TIEBREAK', '2024-10-17', 1, 1, 1, '1', 'LOADS', ?, 1, ?, ?, 1.0, 'test', 0, ?, ?)`,
			fileID, fileID+"-hash", fileID+"-guid", "2024-10-17T00:00:00Z", "2024-10-17T00:00:00Z")
		require.NoError(t, err)
	}

	// Two rows share the same ticket_date; insertion order gives the
	// first-inserted the smaller id.
	insertRawTicket("file-lower-id")
	insertRawTicket("file-higher-id")

	candidate, err := s.FindEarliestInWindow(ctx, "WM-TIEBREAK", nil,
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 10, 17, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, candidate)
	assert.Equal(t, "file-lower-id", candidate.FileID)
}

func TestInsertReviewEntryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	seedReferenceData(t, s)

	id, err := s.InsertReviewEntry(context.Background(), ticket.ReviewQueueEntry{
		PageID:         "page-1",
		Reason:         ticket.ReasonMissingTicketNumber,
		Severity:       ticket.SeverityCritical,
		FilePath:       "/tmp/a.pdf",
		PageNum:        1,
		DetectedFields: map[string]any{"vendor": "Waste Management"},
		SuggestedFixes: map[string]any{},
	})
	require.NoError(t, err)
	require.Positive(t, id)
}

func TestManifestAndDuplicateStatistics(t *testing.T) {
	s := newTestStore(t)
	seedReferenceData(t, s)

	_, err := s.CreateTicket(context.Background(), CreateInput{
		TicketNumber: "WM-11111111",
		TicketDate:   time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC),
		JobID:        1,
		MaterialID:   1,
		MaterialName: "CLEAN",
		TicketTypeID: 1,
		Quantity:     decimal.NewFromFloat(1),
		QuantityUnit: "LOADS",
		FileID:       "file-d",
		FilePage:     1,
		FileHash:     "hash-d",
		RequestGUID: "req-5",
	})
	require.NoError(t, err)

	manifestStats, err := s.ManifestStatistics(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, manifestStats.TotalTickets)

	dupStats, err := s.DuplicateStatistics(context.Background(), nil, nil, 120)
	require.NoError(t, err)
	require.Equal(t, 1, dupStats.TotalTickets)
	require.Equal(t, 0, dupStats.TotalDuplicates)
}
