package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wastetrack/ticketcore/internal/ticket"
	"github.com/wastetrack/ticketcore/internal/ticket/filetrack"
)

const truckTicketColumns = `
	id, ticket_number, ticket_date, job_id, material_id, ticket_type_id,
	source_id, destination_id, vendor_id, quantity, quantity_unit,
	truck_number, manifest_number, file_id, file_page, file_hash,
	request_guid, confidence_score, processed_by, review_required,
	review_reason, duplicate_of, created_at, updated_at`

// GetByID implements the §4.7 get_by_id read operation.
func (s *Store) GetByID(ctx context.Context, id int64) (*ticket.TruckTicket, error) {
	var row truckTicketRow
	err := s.db.GetContext(ctx, &row, `SELECT `+truckTicketColumns+` FROM truck_tickets WHERE id = ?`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("repository: get ticket %d: %w", id, err)
	}
	return row.toDomain()
}

// GetByTicketNumber implements §4.7 get_by_ticket_number, optionally
// narrowed to a vendor.
func (s *Store) GetByTicketNumber(ctx context.Context, ticketNumber string, vendorID *int64) ([]*ticket.TruckTicket, error) {
	query := `SELECT ` + truckTicketColumns + ` FROM truck_tickets WHERE ticket_number = ?`
	args := []any{ticketNumber}
	if vendorID != nil {
		query += " AND vendor_id = ?"
		args = append(args, *vendorID)
	}
	query += " ORDER BY ticket_date ASC"
	return s.selectTickets(ctx, query, args...)
}

// GetByDateRange implements §4.7 get_by_date_range, optionally narrowed
// to a job.
func (s *Store) GetByDateRange(ctx context.Context, start, end time.Time, jobID *int64) ([]*ticket.TruckTicket, error) {
	query := `SELECT ` + truckTicketColumns + ` FROM truck_tickets WHERE ticket_date >= ? AND ticket_date <= ?`
	args := []any{start.Format("2006-01-02"), end.Format("2006-01-02")}
	if jobID != nil {
		query += " AND job_id = ?"
		args = append(args, *jobID)
	}
	query += " ORDER BY ticket_date ASC"
	return s.selectTickets(ctx, query, args...)
}

// CountByJob implements §4.7 count_by_job.
func (s *Store) CountByJob(ctx context.Context, jobID int64) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM truck_tickets WHERE job_id = ?`, jobID); err != nil {
		return 0, fmt.Errorf("repository: count by job %d: %w", jobID, err)
	}
	return count, nil
}

// GetDuplicates implements §4.7 get_duplicates: every ticket row flagged
// as a duplicate of another.
func (s *Store) GetDuplicates(ctx context.Context) ([]*ticket.TruckTicket, error) {
	return s.selectTickets(ctx, `SELECT `+truckTicketColumns+` FROM truck_tickets WHERE duplicate_of IS NOT NULL ORDER BY ticket_date ASC`)
}

// GetRequiringReview implements §4.7 get_requiring_review.
func (s *Store) GetRequiringReview(ctx context.Context) ([]*ticket.TruckTicket, error) {
	return s.selectTickets(ctx, `SELECT `+truckTicketColumns+` FROM truck_tickets WHERE review_required = 1 ORDER BY ticket_date ASC`)
}

// FindByFileHash implements filetrack.Finder: every ticket ever persisted
// against hash, across every run, oldest first. Grounded on
// file_tracker.py's check_duplicate_file query (select * where
// file_hash == hash).
func (s *Store) FindByFileHash(ctx context.Context, hash string) ([]filetrack.Ref, error) {
	var rows []struct {
		TicketID  int64  `db:"id"`
		FileID    string `db:"file_id"`
		CreatedAt string `db:"created_at"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, file_id, created_at FROM truck_tickets
		WHERE file_hash = ? ORDER BY created_at ASC`, hash)
	if err != nil {
		return nil, fmt.Errorf("repository: find by file hash: %w", err)
	}
	out := make([]filetrack.Ref, 0, len(rows))
	for _, r := range rows {
		createdAt, err := parseDate(r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("repository: parse created_at: %w", err)
		}
		out = append(out, filetrack.Ref{TicketID: r.TicketID, FileID: r.FileID, CreatedAt: createdAt})
	}
	return out, nil
}

// SearchFilter is the filterable query shape for §4.7's search operation.
// Zero-valued fields are not applied as filter clauses.
type SearchFilter struct {
	TicketNumberLike string
	JobID            *int64
	MaterialID       *int64
	VendorID         *int64
	DestinationID    *int64
	DateFrom         *time.Time
	DateTo           *time.Time
	HasManifest      *bool
	Limit            int
}

// Search implements §4.7's filterable search: ticket-number LIKE, FK
// filters, date range, manifest-present flag, with a row limit.
func (s *Store) Search(ctx context.Context, f SearchFilter) ([]*ticket.TruckTicket, error) {
	query := `SELECT ` + truckTicketColumns + ` FROM truck_tickets WHERE 1=1`
	var args []any

	if f.TicketNumberLike != "" {
		query += " AND ticket_number LIKE ?"
		args = append(args, "%"+f.TicketNumberLike+"%")
	}
	if f.JobID != nil {
		query += " AND job_id = ?"
		args = append(args, *f.JobID)
	}
	if f.MaterialID != nil {
		query += " AND material_id = ?"
		args = append(args, *f.MaterialID)
	}
	if f.VendorID != nil {
		query += " AND vendor_id = ?"
		args = append(args, *f.VendorID)
	}
	if f.DestinationID != nil {
		query += " AND destination_id = ?"
		args = append(args, *f.DestinationID)
	}
	if f.DateFrom != nil {
		query += " AND ticket_date >= ?"
		args = append(args, f.DateFrom.Format("2006-01-02"))
	}
	if f.DateTo != nil {
		query += " AND ticket_date <= ?"
		args = append(args, f.DateTo.Format("2006-01-02"))
	}
	if f.HasManifest != nil {
		if *f.HasManifest {
			query += " AND manifest_number IS NOT NULL"
		} else {
			query += " AND manifest_number IS NULL"
		}
	}
	query += " ORDER BY ticket_date ASC"

	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}
	query += " LIMIT ?"
	args = append(args, limit)

	return s.selectTickets(ctx, query, args...)
}

func (s *Store) selectTickets(ctx context.Context, query string, args ...any) ([]*ticket.TruckTicket, error) {
	var rows []truckTicketRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("repository: select tickets: %w", err)
	}
	out := make([]*ticket.TruckTicket, 0, len(rows))
	for _, r := range rows {
		t, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Update sets updated_at and the mutable business fields on an existing
// ticket, per §4.7's update semantics.
func (s *Store) Update(ctx context.Context, id int64, truckNumber, manifestNumber *string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE truck_tickets SET truck_number = ?, manifest_number = ?, updated_at = ?
		WHERE id = ?`,
		truckNumber, manifestNumber, time.Now().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("repository: update ticket %d: %w", id, err)
	}
	return checkRowAffectedByID(result, id)
}

// SoftDelete marks a ticket reviewed-out without removing the row,
// per §4.7: "soft_delete is a no-op on row removal and only marks the
// row". It reuses review_required/review_reason since the core has no
// separate status column, recording the administrative intent in the
// reason text.
func (s *Store) SoftDelete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE truck_tickets SET review_required = 1, review_reason = ?, updated_at = ?
		WHERE id = ?`,
		"SOFT_DELETED", time.Now().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("repository: soft delete ticket %d: %w", id, err)
	}
	return checkRowAffectedByID(result, id)
}

// HardDelete removes a ticket row outright. Per §4.7 this is intended for
// administrative tooling only, never the page pipeline.
func (s *Store) HardDelete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM truck_tickets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("repository: hard delete ticket %d: %w", id, err)
	}
	return checkRowAffectedByID(result, id)
}

// ExportRow is the read-only, name-resolved shape the C13 exporters
// consume: every foreign key joined back to its reference-table name so
// export writers never need their own cache.Loader.
type ExportRow struct {
	TicketNumber   string
	TicketDate     time.Time
	JobCode        string
	Material       string
	MaterialClass  string
	TicketType     string
	Source         string
	Destination    string
	Vendor         string
	Quantity       decimal.Decimal
	QuantityUnit   string
	TruckNumber    string
	ManifestNumber string
	FileID         string
	FilePage       int
}

// ListForExport implements the C13 exporters' only read: every ticket,
// joined to its reference names, optionally narrowed to jobCode. Deleted
// (soft-deleted) rows are not filtered out here — review_required rows
// still carry real business data and §4.13 exporters are documented as
// pure reads over "the persisted set", not the clean subset.
func (s *Store) ListForExport(ctx context.Context, jobCode string) ([]ExportRow, error) {
	query := `
		SELECT
			t.ticket_number AS ticket_number,
			t.ticket_date AS ticket_date,
			j.code AS job_code,
			m.name AS material,
			m.class AS material_class,
			tt.name AS ticket_type,
			COALESCE(src.name, '') AS source,
			COALESCE(dst.name, '') AS destination,
			COALESCE(v.name, '') AS vendor,
			t.quantity AS quantity,
			t.quantity_unit AS quantity_unit,
			COALESCE(t.truck_number, '') AS truck_number,
			COALESCE(t.manifest_number, '') AS manifest_number,
			t.file_id AS file_id,
			t.file_page AS file_page
		FROM truck_tickets t
		JOIN jobs j ON j.id = t.job_id
		JOIN materials m ON m.id = t.material_id
		JOIN ticket_types tt ON tt.id = t.ticket_type_id
		LEFT JOIN sources src ON src.id = t.source_id
		LEFT JOIN destinations dst ON dst.id = t.destination_id
		LEFT JOIN vendors v ON v.id = t.vendor_id
		WHERE (? = '' OR j.code = ?)
		ORDER BY t.ticket_date ASC`

	var rows []struct {
		TicketNumber   string `db:"ticket_number"`
		TicketDate     string `db:"ticket_date"`
		JobCode        string `db:"job_code"`
		Material       string `db:"material"`
		MaterialClass  string `db:"material_class"`
		TicketType     string `db:"ticket_type"`
		Source         string `db:"source"`
		Destination    string `db:"destination"`
		Vendor         string `db:"vendor"`
		Quantity       string `db:"quantity"`
		QuantityUnit   string `db:"quantity_unit"`
		TruckNumber    string `db:"truck_number"`
		ManifestNumber string `db:"manifest_number"`
		FileID         string `db:"file_id"`
		FilePage       int    `db:"file_page"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, jobCode, jobCode); err != nil {
		return nil, fmt.Errorf("repository: list for export: %w", err)
	}

	out := make([]ExportRow, 0, len(rows))
	for _, r := range rows {
		ticketDate, err := parseDate(r.TicketDate)
		if err != nil {
			return nil, fmt.Errorf("repository: parse ticket_date: %w", err)
		}
		quantity, err := decimal.NewFromString(r.Quantity)
		if err != nil {
			return nil, fmt.Errorf("repository: parse quantity: %w", err)
		}
		out = append(out, ExportRow{
			TicketNumber:   r.TicketNumber,
			TicketDate:     ticketDate,
			JobCode:        r.JobCode,
			Material:       r.Material,
			MaterialClass:  r.MaterialClass,
			TicketType:     r.TicketType,
			Source:         r.Source,
			Destination:    r.Destination,
			Vendor:         r.Vendor,
			Quantity:       quantity,
			QuantityUnit:   r.QuantityUnit,
			TruckNumber:    r.TruckNumber,
			ManifestNumber: r.ManifestNumber,
			FileID:         r.FileID,
			FilePage:       r.FilePage,
		})
	}
	return out, nil
}

func checkRowAffectedByID(result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("repository: ticket not found: %d", id)
	}
	return nil
}
