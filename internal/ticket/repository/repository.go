// Package repository persists tickets and their reference data. It
// composes the cache, validate, and dedupe packages into a single atomic
// create path and exposes the read surface those packages need
// (cache.Loader, dedupe.Finder) so callers only ever talk to one object.
//
// Two concrete backends are provided: repository/sqlite (embedded,
// default) and repository/mysql (opt-in via DSN), both constructed over
// this package's generic Store — the query strings are driver-neutral,
// so the split lives entirely in connection setup and DDL dialect
// (see schemaFor).
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/wastetrack/ticketcore/internal/ticket"
	"github.com/wastetrack/ticketcore/internal/ticket/dedupe"
	"github.com/wastetrack/ticketcore/internal/ticket/validate"
)

// Store is the generic relational backend shared by the sqlite and mysql
// packages. Construct one via repository/sqlite.Open or
// repository/mysql.Open rather than calling Open directly.
type Store struct {
	db         *sqlx.DB
	driverName string
}

// Open wraps an already-configured *sql.DB, applies the schema for
// driverName, and returns a ready Store. Backend subpackages own DSN
// construction and driver registration; this function is the shared tail
// of both Open paths.
func Open(driverName string, db *sql.DB) (*Store, error) {
	for _, stmt := range schemaStatements(driverName) {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("repository: apply schema: %w", err)
		}
	}
	return &Store{db: sqlx.NewDb(db, driverName), driverName: driverName}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- cache.Loader -----------------------------------------------------

func (s *Store) JobByName(ctx context.Context, code string) (*ticket.Job, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `SELECT id, code, name, start_date, end_date FROM jobs WHERE code = ?`, code)
	return row.toDomainOrNil(err)
}

func (s *Store) MaterialByName(ctx context.Context, name string) (*ticket.Material, error) {
	var row materialRow
	err := s.db.GetContext(ctx, &row, `SELECT id, name, class, requires_manifest FROM materials WHERE name = ?`, name)
	return row.toDomainOrNil(err)
}

func (s *Store) SourceByName(ctx context.Context, name string) (*ticket.Source, error) {
	var row sourceRow
	err := s.db.GetContext(ctx, &row, `SELECT id, name, job_id, description FROM sources WHERE name = ?`, name)
	return row.toDomainOrNil(err)
}

func (s *Store) DestinationByName(ctx context.Context, name string) (*ticket.Destination, error) {
	var row destinationRow
	err := s.db.GetContext(ctx, &row, `SELECT id, name, facility_type, address, requires_manifest FROM destinations WHERE name = ?`, name)
	return row.toDomainOrNil(err)
}

func (s *Store) VendorByName(ctx context.Context, name string) (*ticket.Vendor, error) {
	var row vendorRow
	err := s.db.GetContext(ctx, &row, `SELECT id, name, code, contact_info FROM vendors WHERE name = ?`, name)
	return row.toDomainOrNil(err)
}

func (s *Store) TicketTypeByName(ctx context.Context, name string) (*ticket.TicketType, error) {
	var row ticketTypeRow
	err := s.db.GetContext(ctx, &row, `SELECT id, name FROM ticket_types WHERE name = ?`, name)
	return row.toDomainOrNil(err)
}

func (s *Store) AllJobs(ctx context.Context) ([]*ticket.Job, error) {
	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, code, name, start_date, end_date FROM jobs`); err != nil {
		return nil, fmt.Errorf("repository: list jobs: %w", err)
	}
	out := make([]*ticket.Job, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) AllMaterials(ctx context.Context) ([]*ticket.Material, error) {
	var rows []materialRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, name, class, requires_manifest FROM materials`); err != nil {
		return nil, fmt.Errorf("repository: list materials: %w", err)
	}
	out := make([]*ticket.Material, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) AllSources(ctx context.Context) ([]*ticket.Source, error) {
	var rows []sourceRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, name, job_id, description FROM sources`); err != nil {
		return nil, fmt.Errorf("repository: list sources: %w", err)
	}
	out := make([]*ticket.Source, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) AllDestinations(ctx context.Context) ([]*ticket.Destination, error) {
	var rows []destinationRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, name, facility_type, address, requires_manifest FROM destinations`); err != nil {
		return nil, fmt.Errorf("repository: list destinations: %w", err)
	}
	out := make([]*ticket.Destination, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) AllVendors(ctx context.Context) ([]*ticket.Vendor, error) {
	var rows []vendorRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, name, code, contact_info FROM vendors`); err != nil {
		return nil, fmt.Errorf("repository: list vendors: %w", err)
	}
	out := make([]*ticket.Vendor, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *Store) AllTicketTypes(ctx context.Context) ([]*ticket.TicketType, error) {
	var rows []ticketTypeRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, name FROM ticket_types`); err != nil {
		return nil, fmt.Errorf("repository: list ticket types: %w", err)
	}
	out := make([]*ticket.TicketType, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// --- dedupe.Finder ------------------------------------------------------

// FindEarliestInWindow implements dedupe.Finder over truck_tickets.
func (s *Store) FindEarliestInWindow(ctx context.Context, ticketNumber string, vendorID *int64, windowStart, windowEnd time.Time) (*dedupe.Candidate, error) {
	var row candidateRow
	err := s.db.GetContext(ctx, &row, duplicateQuery(vendorID != nil),
		duplicateQueryArgs(ticketNumber, vendorID, windowStart, windowEnd)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("repository: find earliest in window: %w", err)
	}
	return row.toDomain()
}

// txFinder implements dedupe.Finder scoped to a single transaction, so
// createTicketOnce's duplicate check and the insert it gates observe one
// consistent snapshot and commit or roll back together.
type txFinder struct {
	tx *sqlx.Tx
}

func (f txFinder) FindEarliestInWindow(ctx context.Context, ticketNumber string, vendorID *int64, windowStart, windowEnd time.Time) (*dedupe.Candidate, error) {
	var row candidateRow
	err := f.tx.GetContext(ctx, &row, duplicateQuery(vendorID != nil),
		duplicateQueryArgs(ticketNumber, vendorID, windowStart, windowEnd)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("repository: find earliest in window (tx): %w", err)
	}
	return row.toDomain()
}

// --- ticket create ------------------------------------------------------

// CreateInput is the fully-resolved field set the pipeline hands to
// CreateTicket: all name lookups have already gone through cache, and
// extraction confidence/provenance are attached.
type CreateInput struct {
	TicketNumber                string
	TicketDate                  time.Time
	JobID                       int64
	MaterialID                  int64
	MaterialName                string
	MaterialRequiresManifest    bool
	TicketTypeID                int64
	SourceID                    *int64
	DestinationID               *int64
	DestinationName             string
	DestinationRequiresManifest bool
	VendorID                    *int64
	Quantity                    decimal.Decimal
	QuantityUnit                string
	TruckNumber                 *string
	ManifestNumber              *string
	FileID                      string
	FilePage                    int
	FileHash                    string
	RequestGUID                 string
	ConfidenceScore             float64
	ProcessedBy                 string

	// WindowDays is the C6 rolling-window size (spec §4.6/§6's
	// duplicate_window_days, default 120). Zero defers to
	// dedupe.DefaultWindowDays.
	WindowDays int
}

// CreateOutcome reports what CreateTicket actually did. Ticket is nil
// when the write was aborted by a manifest-validation or duplicate
// finding (spec §7: VALIDATION_ERROR / DUPLICATE_TICKET — no row
// persisted); Manifest and Duplicate are always populated so the caller
// (pipeline) can write the matching review-queue entry either way.
type CreateOutcome struct {
	Ticket    *ticket.TruckTicket
	Manifest  validate.Result
	Duplicate dedupe.Result
}

// retryPolicy applies a short constant backoff (250ms between attempts,
// at most 3 retries) to transient write
// failures (SQLITE_BUSY / MySQL lock wait timeout), grounded on the
// teacher's beginImmediateWithRetry idiom but adapted: the teacher
// retries its own BEGIN IMMEDIATE with exponential backoff, this retries
// the whole transaction attempt with fixed steps per spec §4.7's retry
// contract.
func retryPolicy() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ConstantBackOff{Interval: 250 * time.Millisecond}, 3)
}

// CreateTicket validates the manifest requirement, checks for a
// duplicate, and inserts the ticket, all inside one transaction —
// grounded on the teacher's SQLiteStorage.CreateIssue shape: dedicated
// connection, explicit BEGIN/COMMIT, defer-rollback-unless-committed,
// first-cause error wrapping.
func (s *Store) CreateTicket(ctx context.Context, in CreateInput) (CreateOutcome, error) {
	var outcome CreateOutcome

	err := backoff.Retry(func() error {
		var txErr error
		outcome, txErr = s.createTicketOnce(ctx, in)
		if txErr != nil && isTransient(txErr) {
			return txErr
		}
		if txErr != nil {
			return backoff.Permanent(txErr)
		}
		return nil
	}, retryPolicy())

	if err != nil {
		return CreateOutcome{}, err
	}
	return outcome, nil
}

func (s *Store) createTicketOnce(ctx context.Context, in CreateInput) (CreateOutcome, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return CreateOutcome{}, fmt.Errorf("repository: acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return CreateOutcome{}, fmt.Errorf("repository: begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	requiresManifest := in.MaterialRequiresManifest || in.DestinationRequiresManifest
	manifestResult := validate.ValidateWithRequirement(requiresManifest, deref(in.ManifestNumber), in.MaterialName)

	// C6 runs inside this same transaction so the duplicate check and the
	// insert it gates observe one consistent snapshot and commit (or
	// abort) together — spec §4.7 step 4's "C7 uses ... C6".
	detector := dedupe.New(txFinder{tx: tx}, in.WindowDays)
	duplicateResult, err := detector.CheckDuplicate(ctx, in.TicketNumber, in.VendorID, in.TicketDate)
	if err != nil {
		return CreateOutcome{}, fmt.Errorf("repository: duplicate check: %w", err)
	}

	if !manifestResult.IsValid || duplicateResult.IsDuplicate {
		// spec §7's error table and scenarios S2/S4: VALIDATION_ERROR and
		// DUPLICATE_TICKET abort the write entirely — no row is
		// persisted (I1). The transaction rolls back via the deferred
		// Rollback above since committed stays false; the pipeline
		// records a review-queue entry keyed by the page, not the
		// ticket, for this outcome.
		return CreateOutcome{Manifest: manifestResult, Duplicate: duplicateResult}, nil
	}

	now := time.Now()

	insertRow := truckTicketInsert{
		TicketNumber:    in.TicketNumber,
		TicketDate:      in.TicketDate.Format("2006-01-02"),
		JobID:           in.JobID,
		MaterialID:      in.MaterialID,
		TicketTypeID:    in.TicketTypeID,
		SourceID:        in.SourceID,
		DestinationID:   in.DestinationID,
		VendorID:        in.VendorID,
		Quantity:        in.Quantity.String(),
		QuantityUnit:    in.QuantityUnit,
		TruckNumber:     in.TruckNumber,
		ManifestNumber:  in.ManifestNumber,
		FileID:          in.FileID,
		FilePage:        in.FilePage,
		FileHash:        in.FileHash,
		RequestGUID:     in.RequestGUID,
		ConfidenceScore: in.ConfidenceScore,
		ProcessedBy:     in.ProcessedBy,
		ReviewRequired:  false,
		ReviewReason:    nil,
		DuplicateOf:     nil,
		CreatedAt:       now.Format(time.RFC3339),
		UpdatedAt:       now.Format(time.RFC3339),
	}

	result, err := tx.ExecContext(ctx, insertTicketSQL,
		insertRow.TicketNumber, insertRow.TicketDate, insertRow.JobID, insertRow.MaterialID,
		insertRow.TicketTypeID, insertRow.SourceID, insertRow.DestinationID, insertRow.VendorID,
		insertRow.Quantity, insertRow.QuantityUnit, insertRow.TruckNumber, insertRow.ManifestNumber,
		insertRow.FileID, insertRow.FilePage, insertRow.FileHash, insertRow.RequestGUID,
		insertRow.ConfidenceScore, insertRow.ProcessedBy, insertRow.ReviewRequired, insertRow.ReviewReason,
		insertRow.DuplicateOf, insertRow.CreatedAt, insertRow.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// A concurrent writer won the race and committed first: the
			// unique index idx_truck_tickets_number_vendor_date is the
			// final arbiter spec.md describes. Re-run the duplicate check
			// against the Store directly (this transaction is about to
			// roll back) so the caller gets the same duplicate outcome it
			// would have seen had its own duplicate SELECT run after the
			// winner's commit, instead of a raw constraint error.
			storeDetector := dedupe.New(s, in.WindowDays)
			redone, findErr := storeDetector.CheckDuplicate(ctx, in.TicketNumber, in.VendorID, in.TicketDate)
			if findErr != nil {
				return CreateOutcome{}, fmt.Errorf("repository: insert ticket: re-check duplicate after constraint violation: %w", findErr)
			}
			return CreateOutcome{Manifest: manifestResult, Duplicate: redone}, nil
		}
		return CreateOutcome{}, fmt.Errorf("repository: insert ticket: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return CreateOutcome{}, fmt.Errorf("repository: read inserted id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return CreateOutcome{}, fmt.Errorf("repository: commit: %w", err)
	}
	committed = true

	persisted := &ticket.TruckTicket{
		ID:              id,
		TicketNumber:    in.TicketNumber,
		TicketDate:      in.TicketDate,
		JobID:           in.JobID,
		MaterialID:      in.MaterialID,
		TicketTypeID:    in.TicketTypeID,
		SourceID:        in.SourceID,
		DestinationID:   in.DestinationID,
		VendorID:        in.VendorID,
		Quantity:        in.Quantity,
		QuantityUnit:    in.QuantityUnit,
		TruckNumber:     in.TruckNumber,
		ManifestNumber:  in.ManifestNumber,
		FileID:          in.FileID,
		FilePage:        in.FilePage,
		FileHash:        in.FileHash,
		RequestGUID:     in.RequestGUID,
		ConfidenceScore: in.ConfidenceScore,
		ProcessedBy:     in.ProcessedBy,
		ReviewRequired:  false,
		ReviewReason:    nil,
		DuplicateOf:     nil,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	return CreateOutcome{Ticket: persisted, Manifest: manifestResult, Duplicate: duplicateResult}, nil
}

const insertTicketSQL = `
	INSERT INTO truck_tickets (
		ticket_number, ticket_date, job_id, material_id, ticket_type_id,
		source_id, destination_id, vendor_id, quantity, quantity_unit,
		truck_number, manifest_number, file_id, file_page, file_hash,
		request_guid, confidence_score, processed_by, review_required,
		review_reason, duplicate_of, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func duplicateQuery(hasVendor bool) string {
	q := `SELECT id, ticket_date, file_id, file_page FROM truck_tickets
		WHERE ticket_number = ? AND ticket_date >= ? AND ticket_date <= ? AND duplicate_of IS NULL`
	if hasVendor {
		q += " AND vendor_id = ?"
	}
	return q + " ORDER BY ticket_date ASC, id ASC LIMIT 1"
}

func duplicateQueryArgs(ticketNumber string, vendorID *int64, windowStart, windowEnd time.Time) []any {
	args := []any{ticketNumber, windowStart.Format("2006-01-02"), windowEnd.Format("2006-01-02")}
	if vendorID != nil {
		args = append(args, *vendorID)
	}
	return args
}

// --- review queue --------------------------------------------------------

// InsertReviewEntry writes a review-queue row. Resolution fields are left
// empty; resolving an entry is an external, out-of-pipeline operation
// (spec §4.12).
func (s *Store) InsertReviewEntry(ctx context.Context, entry ticket.ReviewQueueEntry) (int64, error) {
	detected, err := json.Marshal(entry.DetectedFields)
	if err != nil {
		return 0, fmt.Errorf("repository: marshal detected_fields: %w", err)
	}
	suggested, err := json.Marshal(entry.SuggestedFixes)
	if err != nil {
		return 0, fmt.Errorf("repository: marshal suggested_fixes: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO review_queue (
			ticket_id, page_id, reason, severity, file_path, page_num,
			detected_fields, suggested_fixes, resolved, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		entry.TicketID, entry.PageID, string(entry.Reason), string(entry.Severity),
		entry.FilePath, entry.PageNum, string(detected), string(suggested),
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("repository: insert review entry: %w", err)
	}
	return result.LastInsertId()
}

// --- statistics -----------------------------------------------------------

// ManifestStatistics runs the queries validate.ComputeStatistics needs.
func (s *Store) ManifestStatistics(ctx context.Context, start, end *time.Time) (validate.Statistics, error) {
	totalTickets, err := s.countTickets(ctx, start, end, "")
	if err != nil {
		return validate.Statistics{}, err
	}
	withManifests, err := s.countTickets(ctx, start, end, "AND manifest_number IS NOT NULL")
	if err != nil {
		return validate.Statistics{}, err
	}
	missing, err := s.countReviewEntries(ctx, start, end, "MISSING_MANIFEST")
	if err != nil {
		return validate.Statistics{}, err
	}
	return validate.ComputeStatistics(totalTickets, withManifests, missing), nil
}

// DuplicateStatistics runs the queries dedupe.ComputeStatistics needs.
func (s *Store) DuplicateStatistics(ctx context.Context, start, end *time.Time, windowDays int) (dedupe.Statistics, error) {
	totalTickets, err := s.countTickets(ctx, start, end, "")
	if err != nil {
		return dedupe.Statistics{}, err
	}
	duplicates, err := s.countTickets(ctx, start, end, "AND duplicate_of IS NOT NULL")
	if err != nil {
		return dedupe.Statistics{}, err
	}
	return dedupe.ComputeStatistics(totalTickets, duplicates, windowDays), nil
}

func (s *Store) countTickets(ctx context.Context, start, end *time.Time, extraClause string) (int, error) {
	query := "SELECT COUNT(*) FROM truck_tickets WHERE 1=1"
	var args []any
	if start != nil {
		query += " AND ticket_date >= ?"
		args = append(args, start.Format("2006-01-02"))
	}
	if end != nil {
		query += " AND ticket_date <= ?"
		args = append(args, end.Format("2006-01-02"))
	}
	if extraClause != "" {
		query += " " + extraClause
	}
	var count int
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("repository: count tickets: %w", err)
	}
	return count, nil
}

func (s *Store) countReviewEntries(ctx context.Context, start, end *time.Time, reasonLike string) (int, error) {
	query := `
		SELECT COUNT(*) FROM review_queue rq
		JOIN truck_tickets t ON t.id = rq.ticket_id
		WHERE rq.reason LIKE ? AND rq.resolved = 0`
	args := []any{"%" + reasonLike + "%"}
	if start != nil {
		query += " AND t.ticket_date >= ?"
		args = append(args, start.Format("2006-01-02"))
	}
	if end != nil {
		query += " AND t.ticket_date <= ?"
		args = append(args, end.Format("2006-01-02"))
	}
	var count int
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("repository: count review entries: %w", err)
	}
	return count, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("repository: unparseable date %q", s)
}

// isTransient reports whether err looks like a lock-contention error
// worth retrying (SQLITE_BUSY, MySQL lock wait timeout / deadlock). It
// matches on message substrings because both drivers' sentinel error
// types are backend-specific and this package stays driver-agnostic.
func isTransient(err error) bool {
	msg := err.Error()
	for _, marker := range []string{"database is locked", "SQLITE_BUSY", "Lock wait timeout", "Deadlock found"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// isUniqueViolation reports whether err is a unique-constraint failure
// (idx_truck_tickets_number_vendor_date), matching on message substrings
// for the same reason isTransient does: both drivers' sentinel error
// types are backend-specific.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	for _, marker := range []string{"UNIQUE constraint failed", "Duplicate entry", "SQLITE_CONSTRAINT"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
