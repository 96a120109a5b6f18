package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"

	"github.com/wastetrack/ticketcore/internal/ticket"
	"github.com/wastetrack/ticketcore/internal/ticket/extract"
	"github.com/wastetrack/ticketcore/internal/ticket/normalize"
	"github.com/wastetrack/ticketcore/internal/ticket/repository"
	"github.com/wastetrack/ticketcore/internal/ticket/review"
	"github.com/wastetrack/ticketcore/internal/ticket/vendor"
)

// Resolver is the reference-lookup surface the pipeline needs from C1;
// *cache.Cache implements it.
type Resolver interface {
	JobByCode(ctx context.Context, code string) (*ticket.Job, error)
	MaterialByName(ctx context.Context, name string) (*ticket.Material, error)
	SourceByName(ctx context.Context, name string) (*ticket.Source, error)
	DestinationByName(ctx context.Context, name string) (*ticket.Destination, error)
	VendorByName(ctx context.Context, name string) (*ticket.Vendor, error)
	TicketTypeByName(ctx context.Context, name string) (*ticket.TicketType, error)
}

// Creator is the C7 write surface; *repository.Store implements it.
type Creator interface {
	CreateTicket(ctx context.Context, in repository.CreateInput) (repository.CreateOutcome, error)
}

// ReviewWriter is the C12 write surface; *review.Writer implements it.
type ReviewWriter interface {
	MissingTicketNumber(ctx context.Context, pc review.PageContext) (int64, error)
	InvalidDate(ctx context.Context, pc review.PageContext) (int64, error)
	MissingManifest(ctx context.Context, pc review.PageContext) (int64, error)
	InvalidManifestFormat(ctx context.Context, pc review.PageContext) (int64, error)
	ForeignKeyError(ctx context.Context, pc review.PageContext) (int64, error)
	DuplicateTicket(ctx context.Context, pc review.PageContext) (int64, error)
}

// DefaultUnknownMaterial is the fail-safe material Process falls back to
// when the filename carries no material (OCR text is not consulted for
// material), per spec §4.9 step 6 and the Open Question decision recorded in
// DESIGN.md: unknown material defaults toward the stricter, manifest-
// requiring classification rather than leaving material null.
const DefaultUnknownMaterial = "CLASS_2_CONTAMINATED"

// Config is the per-run configuration the pipeline consults for
// defaults not carried by a given page (spec §6).
type Config struct {
	JobCode        string
	TicketTypeName string
	ProcessedBy    string
	Now            func() time.Time

	// DuplicateWindowDays is spec §6's duplicate_window_days, threaded
	// through to repository.CreateInput.WindowDays on every page. Zero
	// defers to dedupe.DefaultWindowDays.
	DuplicateWindowDays int
}

func (c Config) withDefaults() Config {
	if c.JobCode == "" {
		c.JobCode = "24-105"
	}
	if c.TicketTypeName == "" {
		c.TicketTypeName = string(ticket.TicketTypeExport)
	}
	if c.ProcessedBy == "" {
		c.ProcessedBy = "ticketctl"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Pipeline wires C1/C2/C3/C4/C5(via C7)/C6(via C7)/C7/C12 into the
// per-page orchestration of spec §4.9.
type Pipeline struct {
	resolver   Resolver
	vendorDet  *vendor.Detector
	normalizer *normalize.Normalizer
	creator    Creator
	reviewer   ReviewWriter
	templates  map[string]*extract.VendorTemplate
	config     Config
	log        *slog.Logger
	tracer     trace.Tracer
}

// New constructs a Pipeline. templates may be nil; it maps a canonical
// vendor name to its field-extraction regex overrides (spec §4.3's
// "vendor template regex" precedence tier) when an operator has defined
// one.
func New(resolver Resolver, vendorDet *vendor.Detector, normalizer *normalize.Normalizer, creator Creator, reviewer ReviewWriter, templates map[string]*extract.VendorTemplate, config Config, log *slog.Logger, tracer trace.Tracer) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("pipeline")
	}
	return &Pipeline{
		resolver:   resolver,
		vendorDet:  vendorDet,
		normalizer: normalizer,
		creator:    creator,
		reviewer:   reviewer,
		templates:  templates,
		config:     config.withDefaults(),
		log:        log,
		tracer:     tracer,
	}
}

// PageInput is one OCR'd page ready for extraction.
type PageInput struct {
	FilePath      string // source file path, becomes TruckTicket.FileID
	FilePage      int    // 1-based
	FileHash      string
	Text          string
	OCRConfidence float64
	Image         []byte
	RequestGUID   string // defaults to a fresh UUID when empty
}

// PageResult is the per-page outcome returned to the batch orchestrator
// (§4.9 step 8).
type PageResult struct {
	Success       bool
	TicketID      *int64
	ReviewQueueID *int64
	Outcome       string // tagged outcome per §7's taxonomy, "" on success
	ExtractedData map[string]any
	Confidences   map[string]float64
}

// pageID is the page_id convention used across review entries:
// "<file>#<page>".
func pageID(path string, page int) string {
	return fmt.Sprintf("%s#%d", path, page)
}

// Process runs the full per-page pipeline of spec §4.9.
func (p *Pipeline) Process(ctx context.Context, in PageInput) PageResult {
	ctx, span := p.tracer.Start(ctx, "pipeline.Process")
	defer span.End()

	requestGUID := in.RequestGUID
	if requestGUID == "" {
		requestGUID = uuid.NewString()
	}

	hints := ParseFilePath(in.FilePath)
	now := p.config.Now()

	vendorResult := p.vendorDet.Detect(ctx, in.Text, vendor.DetectOptions{
		FilenameVendor: hints.Vendor,
		Image:          in.Image,
	})

	var tmpl *extract.VendorTemplate
	if vendorResult.Found() && p.templates != nil {
		tmpl = p.templates[vendorResult.Name]
	}

	ticketNumberResult := extract.TicketNumber(in.Text, tmpl, p.log)
	dateResult := extract.Date(in.Text, tmpl, hints.Date, now)
	quantityResult := extract.Quantity(in.Text, tmpl, p.log)
	manifestResult := extract.ManifestNumber(in.Text, tmpl, p.log)
	truckNumberResult := extract.TruckNumber(in.Text, tmpl, p.log)

	extracted := map[string]any{
		"ticket_number":   ticketNumberResult.Value,
		"ticket_date":     dateResult.Value,
		"quantity":        quantityResult.Value,
		"quantity_unit":   quantityResult.Unit,
		"manifest_number": manifestResult.Value,
		"truck_number":    truckNumberResult.Value,
		"vendor":          vendorResult.Name,
		"filename_hints":  hints,
	}
	confidences := map[string]float64{
		"ticket_number": ticketNumberResult.Confidence,
		"date":          dateResult.Confidence,
		"quantity":      quantityResult.Confidence,
		"vendor":        vendorResult.Confidence,
		"ocr":           in.OCRConfidence,
	}

	pid := pageID(in.FilePath, in.FilePage)

	// --- §4.9 step 5: critical completeness gate ---

	if !ticketNumberResult.Found() {
		p.log.Warn("missing ticket number, routing to review", "page", pid)
		id, err := p.reviewer.MissingTicketNumber(ctx, review.PageContext{
			PageID:         pid,
			FilePath:       in.FilePath,
			PageNum:        in.FilePage,
			DetectedFields: extracted,
			SuggestedFixes: map[string]any{"action": "manually enter ticket number from scan"},
		})
		return p.reviewOutcome(pid, string(ticket.ReasonMissingTicketNumber), id, err, extracted, confidences)
	}

	if !dateResult.Found() {
		p.log.Warn("unparseable ticket date, routing to review", "page", pid)
		id, err := p.reviewer.InvalidDate(ctx, review.PageContext{
			PageID:         pid,
			FilePath:       in.FilePath,
			PageNum:        in.FilePage,
			DetectedFields: extracted,
			SuggestedFixes: map[string]any{"action": "manually enter ticket date from scan"},
		})
		return p.reviewOutcome(pid, string(ticket.ReasonInvalidDate), id, err, extracted, confidences)
	}

	ticketDate, err := time.Parse("2006-01-02", dateResult.Value)
	if err != nil {
		p.log.Error("date extractor returned unparseable value", "value", dateResult.Value, "error", err)
		return PageResult{Success: false, Outcome: string(ticket.ReasonProcessingError), ExtractedData: extracted, Confidences: confidences}
	}

	// --- §4.9 step 6: normalization ---

	materialSurface := hints.Material
	materialName := p.normalizer.Material(materialSurface)
	if materialName == "" {
		materialName = DefaultUnknownMaterial
		p.log.Warn("material undetermined, defaulting to fail-safe classification", "page", pid, "default", DefaultUnknownMaterial)
	}

	var sourceName string
	if hints.Source != "" {
		sourceName = p.normalizer.Source(hints.Source)
	}

	ticketTypeName := hints.Type
	if ticketTypeName == "" {
		ticketTypeName = p.config.TicketTypeName
	}

	jobCode := hints.Job
	if jobCode == "" {
		jobCode = p.config.JobCode
	}

	// --- §4.9 step 7: resolve FKs and persist ---

	job, err := p.resolver.JobByCode(ctx, jobCode)
	if err != nil || job == nil {
		return p.foreignKeyFailure(ctx, pid, in, extracted, confidences, "job", jobCode, err)
	}
	material, err := p.resolver.MaterialByName(ctx, materialName)
	if err != nil || material == nil {
		return p.foreignKeyFailure(ctx, pid, in, extracted, confidences, "material", materialName, err)
	}
	ticketType, err := p.resolver.TicketTypeByName(ctx, ticketTypeName)
	if err != nil || ticketType == nil {
		return p.foreignKeyFailure(ctx, pid, in, extracted, confidences, "ticket_type", ticketTypeName, err)
	}

	var sourceID *int64
	if sourceName != "" {
		if src, err := p.resolver.SourceByName(ctx, sourceName); err == nil && src != nil {
			sourceID = &src.ID
		}
	}

	// The filename convention of spec §6 carries no destination component
	// (its final optional slot is a vendor, per worked example S1) and OCR
	// text does not reliably distinguish a destination from a vendor
	// name, so destination resolution stays unset here. Store.Update in
	// internal/ticket/repository does not set destination either.
	var destinationID *int64
	var destinationName string
	var destinationRequiresManifest bool

	var vendorID *int64
	if vendorResult.Found() {
		if v, err := p.resolver.VendorByName(ctx, vendorResult.Name); err == nil && v != nil {
			vendorID = &v.ID
		}
	}

	overallConfidence := mean(ticketNumberResult.Confidence, dateResult.Confidence, quantityResult.Confidence)

	var manifestNumber *string
	if manifestResult.Found() {
		v := strings.ToUpper(strings.TrimSpace(manifestResult.Value))
		manifestNumber = &v
	}
	var truckNumber *string
	if truckNumberResult.Found() {
		v := truckNumberResult.Value
		truckNumber = &v
	}

	outcome, err := p.creator.CreateTicket(ctx, repository.CreateInput{
		TicketNumber:                ticketNumberResult.Value,
		TicketDate:                  ticketDate,
		JobID:                       job.ID,
		MaterialID:                  material.ID,
		MaterialName:                materialName,
		MaterialRequiresManifest:    material.RequiresManifest,
		TicketTypeID:                ticketType.ID,
		SourceID:                    sourceID,
		DestinationID:               destinationID,
		DestinationName:             destinationName,
		DestinationRequiresManifest: destinationRequiresManifest,
		VendorID:                    vendorID,
		Quantity:                    decimal.NewFromFloat(quantityResult.Value).Round(2),
		QuantityUnit:                quantityResult.Unit,
		TruckNumber:                 truckNumber,
		ManifestNumber:              manifestNumber,
		FileID:                      in.FilePath,
		FilePage:                    in.FilePage,
		FileHash:                    in.FileHash,
		RequestGUID:                 requestGUID,
		ConfidenceScore:             overallConfidence,
		ProcessedBy:                 p.config.ProcessedBy,
		WindowDays:                  p.config.DuplicateWindowDays,
	})
	if err != nil {
		p.log.Error("ticket creation failed", "page", pid, "error", err)
		return PageResult{Success: false, Outcome: string(ticket.ReasonProcessingError), ExtractedData: extracted, Confidences: confidences}
	}

	// spec §7 / S2 / S4 / I1: a manifest-validation failure or a detected
	// duplicate aborts the write — repository.CreateTicket leaves
	// outcome.Ticket nil in that case. The page produced no ticket, only
	// a review-queue entry recording why.
	if outcome.Ticket == nil {
		if !outcome.Manifest.IsValid {
			pc := review.PageContext{
				PageID: pid, FilePath: in.FilePath, PageNum: in.FilePage,
				DetectedFields: extracted,
				SuggestedFixes: map[string]any{"action": outcome.Manifest.SuggestedAction},
			}
			var reviewErr error
			var reviewID int64
			if outcome.Manifest.Reason == "INVALID_MANIFEST_FORMAT" {
				reviewID, reviewErr = p.reviewer.InvalidManifestFormat(ctx, pc)
			} else {
				reviewID, reviewErr = p.reviewer.MissingManifest(ctx, pc)
			}
			return p.reviewOutcome(pid, string(outcome.Manifest.Reason), reviewID, reviewErr, extracted, confidences)
		}

		pc := review.PageContext{
			PageID: pid, FilePath: in.FilePath, PageNum: in.FilePage,
			DetectedFields: extracted,
			SuggestedFixes: map[string]any{
				"original_ticket_id": outcome.Duplicate.OriginalTicketID,
				"days_apart":         outcome.Duplicate.DaysApart,
			},
		}
		reviewID, reviewErr := p.reviewer.DuplicateTicket(ctx, pc)
		return p.reviewOutcome(pid, string(ticket.ReasonDuplicateTicket), reviewID, reviewErr, extracted, confidences)
	}

	ticketID := outcome.Ticket.ID
	return PageResult{Success: true, TicketID: &ticketID, ExtractedData: extracted, Confidences: confidences}
}

func (p *Pipeline) foreignKeyFailure(ctx context.Context, pid string, in PageInput, extracted map[string]any, confidences map[string]float64, kind, value string, lookupErr error) PageResult {
	p.log.Warn("foreign key resolution failed, routing to review", "page", pid, "kind", kind, "value", value, "error", lookupErr)
	id, err := p.reviewer.ForeignKeyError(ctx, review.PageContext{
		PageID:         pid,
		FilePath:       in.FilePath,
		PageNum:        in.FilePage,
		DetectedFields: extracted,
		SuggestedFixes: map[string]any{"missing_reference": kind, "value": value},
	})
	return p.reviewOutcome(pid, string(ticket.ReasonForeignKeyError), id, err, extracted, confidences)
}

// reviewOutcome builds the PageResult for an aborted page, logging when
// the review-queue write itself failed so an operator can see that a
// flagged page has no matching review_queue row instead of silently
// undercounting review coverage.
func (p *Pipeline) reviewOutcome(pid, reason string, reviewID int64, err error, extracted map[string]any, confidences map[string]float64) PageResult {
	result := PageResult{Success: false, Outcome: reason, ExtractedData: extracted, Confidences: confidences}
	if err != nil {
		p.log.Error("review queue write failed", "page", pid, "reason", reason, "error", err)
		return result
	}
	result.ReviewQueueID = &reviewID
	return result
}

func mean(values ...float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
