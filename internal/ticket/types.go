// Package ticket defines the domain types shared across the extraction,
// validation, and persistence layers of the truck-ticket pipeline.
package ticket

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaterialClass is the controlled vocabulary of material classes.
type MaterialClass string

const (
	MaterialClassContaminated MaterialClass = "CONTAMINATED"
	MaterialClassClean        MaterialClass = "CLEAN"
	MaterialClassWaste        MaterialClass = "WASTE"
	MaterialClassImport       MaterialClass = "IMPORT"
	MaterialClassSpoils       MaterialClass = "SPOILS"
)

// TicketTypeName is the controlled vocabulary for TicketType.Name.
type TicketTypeName string

const (
	TicketTypeExport   TicketTypeName = "EXPORT"
	TicketTypeImport   TicketTypeName = "IMPORT"
	TicketTypeTransfer TicketTypeName = "TRANSFER"
)

// Job is a construction project that tickets are booked against.
type Job struct {
	ID        int64
	Code      string
	Name      string
	StartDate time.Time
	EndDate   *time.Time
}

// Material is a reference row describing a class of hauled material.
type Material struct {
	ID               int64
	Name             string
	Class            MaterialClass
	RequiresManifest bool
}

// Source is an on-site location or originating sub-area.
type Source struct {
	ID          int64
	Name        string
	JobID       *int64
	Description string
}

// Destination is a disposal/receiving facility.
type Destination struct {
	ID               int64
	Name             string
	FacilityType     string
	Address          string
	RequiresManifest bool
}

// Vendor is a hauling/disposal company that issues tickets.
type Vendor struct {
	ID          int64
	Name        string
	Code        string
	ContactInfo string
}

// TicketType is a reference row for EXPORT/IMPORT/TRANSFER.
type TicketType struct {
	ID   int64
	Name TicketTypeName
}

// TruckTicket is the canonical row persisted for one accepted page.
type TruckTicket struct {
	ID int64

	TicketNumber string
	TicketDate   time.Time

	JobID         int64
	MaterialID    int64
	TicketTypeID  int64
	SourceID      *int64
	DestinationID *int64
	VendorID      *int64

	Quantity     decimal.Decimal
	QuantityUnit string
	TruckNumber  *string

	ManifestNumber *string

	FileID          string
	FilePage        int
	FileHash        string
	RequestGUID     string
	ConfidenceScore float64
	ProcessedBy     string

	ReviewRequired bool
	ReviewReason   *string
	DuplicateOf    *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Severity is the review-entry severity scale.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// ReviewReason enumerates the §7 error taxonomy reasons that route a page
// to the review queue instead of persisting a ticket.
type ReviewReason string

const (
	ReasonMissingManifest       ReviewReason = "MISSING_MANIFEST"
	ReasonInvalidManifestFormat ReviewReason = "INVALID_MANIFEST_FORMAT"
	ReasonMissingTicketNumber   ReviewReason = "MISSING_TICKET_NUMBER"
	ReasonInvalidDate           ReviewReason = "INVALID_DATE"
	ReasonDuplicateTicket       ReviewReason = "DUPLICATE_TICKET"
	ReasonForeignKeyError       ReviewReason = "FOREIGN_KEY_ERROR"
	ReasonProcessingError       ReviewReason = "PROCESSING_ERROR"
)

// ReviewQueueEntry records a page that did not produce a ticket, or a
// ticket flagged for human attention.
type ReviewQueueEntry struct {
	ID              int64
	TicketID        *int64
	PageID          string
	Reason          ReviewReason
	Severity        Severity
	FilePath        string
	PageNum         int
	DetectedFields  map[string]any
	SuggestedFixes  map[string]any
	Resolved        bool
	ResolvedBy      *string
	ResolvedAt      *time.Time
	CreatedAt       time.Time
}

// RunStatus is the ProcessingRun lifecycle state (§3 I5).
type RunStatus string

const (
	RunInProgress RunStatus = "IN_PROGRESS"
	RunCompleted  RunStatus = "COMPLETED"
	RunPartial    RunStatus = "PARTIAL"
	RunFailed     RunStatus = "FAILED"
)

// RunCounters accumulates the per-run statistics tracked by the ledger.
type RunCounters struct {
	Files                 int
	Pages                 int
	TicketsCreated        int
	TicketsUpdated        int
	DuplicatesFound       int
	ReviewQueueCount      int
	ErrorCount            int
	DuplicateFilesSkipped int
}

// ProcessingRun is the audit record for one batch invocation.
type ProcessingRun struct {
	ID             int64
	RequestGUID    string
	StartedAt      time.Time
	CompletedAt    *time.Time
	ProcessedBy    string
	Status         RunStatus
	ConfigSnapshot map[string]any
	Counters       RunCounters
}
