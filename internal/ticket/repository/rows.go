package repository

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wastetrack/ticketcore/internal/ticket"
	"github.com/wastetrack/ticketcore/internal/ticket/dedupe"
)

// Row types mirror the sqlx-scanned shape of each table. Nullable SQL
// columns use sql.Null* rather than domain pointers directly so sqlx can
// scan them; toDomain converts to the pointer-shaped domain types.

type jobRow struct {
	ID        int64          `db:"id"`
	Code      string         `db:"code"`
	Name      string         `db:"name"`
	StartDate string         `db:"start_date"`
	EndDate   sql.NullString `db:"end_date"`
}

func (r jobRow) toDomain() *ticket.Job {
	j := &ticket.Job{ID: r.ID, Code: r.Code, Name: r.Name}
	if t, err := parseDate(r.StartDate); err == nil {
		j.StartDate = t
	}
	if r.EndDate.Valid {
		if t, err := parseDate(r.EndDate.String); err == nil {
			j.EndDate = &t
		}
	}
	return j
}

func (r jobRow) toDomainOrNil(err error) (*ticket.Job, error) {
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: lookup job: %w", err)
	}
	return r.toDomain(), nil
}

type materialRow struct {
	ID               int64  `db:"id"`
	Name             string `db:"name"`
	Class            string `db:"class"`
	RequiresManifest bool   `db:"requires_manifest"`
}

func (r materialRow) toDomain() *ticket.Material {
	return &ticket.Material{
		ID:               r.ID,
		Name:             r.Name,
		Class:            ticket.MaterialClass(r.Class),
		RequiresManifest: r.RequiresManifest,
	}
}

func (r materialRow) toDomainOrNil(err error) (*ticket.Material, error) {
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: lookup material: %w", err)
	}
	return r.toDomain(), nil
}

type sourceRow struct {
	ID          int64         `db:"id"`
	Name        string        `db:"name"`
	JobID       sql.NullInt64 `db:"job_id"`
	Description sql.NullString `db:"description"`
}

func (r sourceRow) toDomain() *ticket.Source {
	s := &ticket.Source{ID: r.ID, Name: r.Name}
	if r.JobID.Valid {
		id := r.JobID.Int64
		s.JobID = &id
	}
	if r.Description.Valid {
		s.Description = r.Description.String
	}
	return s
}

func (r sourceRow) toDomainOrNil(err error) (*ticket.Source, error) {
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: lookup source: %w", err)
	}
	return r.toDomain(), nil
}

type destinationRow struct {
	ID               int64          `db:"id"`
	Name             string         `db:"name"`
	FacilityType     sql.NullString `db:"facility_type"`
	Address          sql.NullString `db:"address"`
	RequiresManifest bool           `db:"requires_manifest"`
}

func (r destinationRow) toDomain() *ticket.Destination {
	d := &ticket.Destination{ID: r.ID, Name: r.Name, RequiresManifest: r.RequiresManifest}
	if r.FacilityType.Valid {
		d.FacilityType = r.FacilityType.String
	}
	if r.Address.Valid {
		d.Address = r.Address.String
	}
	return d
}

func (r destinationRow) toDomainOrNil(err error) (*ticket.Destination, error) {
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: lookup destination: %w", err)
	}
	return r.toDomain(), nil
}

type vendorRow struct {
	ID          int64          `db:"id"`
	Name        string         `db:"name"`
	Code        sql.NullString `db:"code"`
	ContactInfo sql.NullString `db:"contact_info"`
}

func (r vendorRow) toDomain() *ticket.Vendor {
	v := &ticket.Vendor{ID: r.ID, Name: r.Name}
	if r.Code.Valid {
		v.Code = r.Code.String
	}
	if r.ContactInfo.Valid {
		v.ContactInfo = r.ContactInfo.String
	}
	return v
}

func (r vendorRow) toDomainOrNil(err error) (*ticket.Vendor, error) {
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: lookup vendor: %w", err)
	}
	return r.toDomain(), nil
}

type ticketTypeRow struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

func (r ticketTypeRow) toDomain() *ticket.TicketType {
	return &ticket.TicketType{ID: r.ID, Name: ticket.TicketTypeName(r.Name)}
}

func (r ticketTypeRow) toDomainOrNil(err error) (*ticket.TicketType, error) {
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: lookup ticket type: %w", err)
	}
	return r.toDomain(), nil
}

type candidateRow struct {
	ID         int64  `db:"id"`
	TicketDate string `db:"ticket_date"`
	FileID     string `db:"file_id"`
	FilePage   int    `db:"file_page"`
}

func (r candidateRow) toDomain() (*dedupe.Candidate, error) {
	t, err := parseDate(r.TicketDate)
	if err != nil {
		return nil, fmt.Errorf("repository: parse candidate date: %w", err)
	}
	return &dedupe.Candidate{
		TicketID:   r.ID,
		TicketDate: t,
		FileID:     r.FileID,
		FilePage:   r.FilePage,
	}, nil
}

type truckTicketRow struct {
	ID              int64          `db:"id"`
	TicketNumber    string         `db:"ticket_number"`
	TicketDate      string         `db:"ticket_date"`
	JobID           int64          `db:"job_id"`
	MaterialID      int64          `db:"material_id"`
	TicketTypeID    int64          `db:"ticket_type_id"`
	SourceID        sql.NullInt64  `db:"source_id"`
	DestinationID   sql.NullInt64  `db:"destination_id"`
	VendorID        sql.NullInt64  `db:"vendor_id"`
	Quantity        string         `db:"quantity"`
	QuantityUnit    string         `db:"quantity_unit"`
	TruckNumber     sql.NullString `db:"truck_number"`
	ManifestNumber  sql.NullString `db:"manifest_number"`
	FileID          string         `db:"file_id"`
	FilePage        int            `db:"file_page"`
	FileHash        sql.NullString `db:"file_hash"`
	RequestGUID     sql.NullString `db:"request_guid"`
	ConfidenceScore sql.NullFloat64 `db:"confidence_score"`
	ProcessedBy     sql.NullString `db:"processed_by"`
	ReviewRequired  bool           `db:"review_required"`
	ReviewReason    sql.NullString `db:"review_reason"`
	DuplicateOf     sql.NullInt64  `db:"duplicate_of"`
	CreatedAt       string         `db:"created_at"`
	UpdatedAt       string         `db:"updated_at"`
}

func (r truckTicketRow) toDomain() (*ticket.TruckTicket, error) {
	ticketDate, err := parseDate(r.TicketDate)
	if err != nil {
		return nil, fmt.Errorf("repository: parse ticket_date: %w", err)
	}
	createdAt, err := parseDate(r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("repository: parse created_at: %w", err)
	}
	updatedAt, err := parseDate(r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("repository: parse updated_at: %w", err)
	}
	quantity, err := decimal.NewFromString(r.Quantity)
	if err != nil {
		return nil, fmt.Errorf("repository: parse quantity: %w", err)
	}

	t := &ticket.TruckTicket{
		ID:              r.ID,
		TicketNumber:    r.TicketNumber,
		TicketDate:      ticketDate,
		JobID:           r.JobID,
		MaterialID:      r.MaterialID,
		TicketTypeID:    r.TicketTypeID,
		Quantity:        quantity,
		QuantityUnit:    r.QuantityUnit,
		FileID:          r.FileID,
		FilePage:        r.FilePage,
		ReviewRequired:  r.ReviewRequired,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}
	if r.SourceID.Valid {
		id := r.SourceID.Int64
		t.SourceID = &id
	}
	if r.DestinationID.Valid {
		id := r.DestinationID.Int64
		t.DestinationID = &id
	}
	if r.VendorID.Valid {
		id := r.VendorID.Int64
		t.VendorID = &id
	}
	if r.TruckNumber.Valid {
		v := r.TruckNumber.String
		t.TruckNumber = &v
	}
	if r.ManifestNumber.Valid {
		v := r.ManifestNumber.String
		t.ManifestNumber = &v
	}
	if r.FileHash.Valid {
		t.FileHash = r.FileHash.String
	}
	if r.RequestGUID.Valid {
		t.RequestGUID = r.RequestGUID.String
	}
	if r.ConfidenceScore.Valid {
		t.ConfidenceScore = r.ConfidenceScore.Float64
	}
	if r.ProcessedBy.Valid {
		t.ProcessedBy = r.ProcessedBy.String
	}
	if r.ReviewReason.Valid {
		v := r.ReviewReason.String
		t.ReviewReason = &v
	}
	if r.DuplicateOf.Valid {
		id := r.DuplicateOf.Int64
		t.DuplicateOf = &id
	}
	return t, nil
}

// truckTicketInsert is the flattened parameter set for insertTicketSQL;
// nullable columns use domain pointers directly since database/sql
// accepts *string/*int64 as driver.Valuer-free nil-able args.
type truckTicketInsert struct {
	TicketNumber    string
	TicketDate      string
	JobID           int64
	MaterialID      int64
	TicketTypeID    int64
	SourceID        *int64
	DestinationID   *int64
	VendorID        *int64
	Quantity        string
	QuantityUnit    string
	TruckNumber     *string
	ManifestNumber  *string
	FileID          string
	FilePage        int
	FileHash        string
	RequestGUID     string
	ConfidenceScore float64
	ProcessedBy     string
	ReviewRequired  bool
	ReviewReason    *string
	DuplicateOf     *int64
	CreatedAt       string
	UpdatedAt       string
}
