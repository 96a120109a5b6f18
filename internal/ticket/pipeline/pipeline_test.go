package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wastetrack/ticketcore/internal/ticket"
	"github.com/wastetrack/ticketcore/internal/ticket/dedupe"
	"github.com/wastetrack/ticketcore/internal/ticket/normalize"
	"github.com/wastetrack/ticketcore/internal/ticket/repository"
	"github.com/wastetrack/ticketcore/internal/ticket/review"
	"github.com/wastetrack/ticketcore/internal/ticket/validate"
	"github.com/wastetrack/ticketcore/internal/ticket/vendor"
)

func requireResult(isValid bool, reason validate.Reason) validate.Result {
	return validate.Result{IsValid: isValid, RequiresManifest: true, Reason: reason, Severity: validate.SeverityCritical, SuggestedAction: "manually enter manifest number"}
}

func dupeResult() dedupe.Result {
	return dedupe.Result{IsDuplicate: true, OriginalTicketID: 7, OriginalTicketDate: fixedNow().AddDate(0, 0, -3), DaysApart: 3, Confidence: 1.0}
}

// --- fakes ---------------------------------------------------------------

type fakeResolver struct {
	jobs         map[string]*ticket.Job
	materials    map[string]*ticket.Material
	sources      map[string]*ticket.Source
	destinations map[string]*ticket.Destination
	vendors      map[string]*ticket.Vendor
	ticketTypes  map[string]*ticket.TicketType
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		jobs:         map[string]*ticket.Job{"24-105": {ID: 1, Code: "24-105"}},
		materials:    map[string]*ticket.Material{"CLASS_2_CONTAMINATED": {ID: 2, Name: "CLASS_2_CONTAMINATED", RequiresManifest: true}},
		sources:      map[string]*ticket.Source{"SPG": {ID: 3, Name: "SPG"}},
		destinations: map[string]*ticket.Destination{},
		vendors:      map[string]*ticket.Vendor{"WASTE_MANAGEMENT": {ID: 4, Name: "WASTE_MANAGEMENT"}},
		ticketTypes:  map[string]*ticket.TicketType{"EXPORT": {ID: 5, Name: ticket.TicketTypeExport}},
	}
}

func (f *fakeResolver) JobByCode(_ context.Context, code string) (*ticket.Job, error) {
	return f.jobs[code], nil
}
func (f *fakeResolver) MaterialByName(_ context.Context, name string) (*ticket.Material, error) {
	return f.materials[name], nil
}
func (f *fakeResolver) SourceByName(_ context.Context, name string) (*ticket.Source, error) {
	return f.sources[name], nil
}
func (f *fakeResolver) DestinationByName(_ context.Context, name string) (*ticket.Destination, error) {
	return f.destinations[name], nil
}
func (f *fakeResolver) VendorByName(_ context.Context, name string) (*ticket.Vendor, error) {
	return f.vendors[name], nil
}
func (f *fakeResolver) TicketTypeByName(_ context.Context, name string) (*ticket.TicketType, error) {
	return f.ticketTypes[name], nil
}

type fakeCreator struct {
	nextID  int64
	lastIn  repository.CreateInput
	outcome repository.CreateOutcome
	err     error
}

func (f *fakeCreator) CreateTicket(_ context.Context, in repository.CreateInput) (repository.CreateOutcome, error) {
	f.lastIn = in
	if f.err != nil {
		return repository.CreateOutcome{}, f.err
	}
	out := f.outcome
	if !out.Manifest.IsValid || out.Duplicate.IsDuplicate {
		// spec §7/S2/S4/I1: abort the write, matching
		// repository.createTicketOnce leaving Ticket nil on these
		// outcomes.
		return out, nil
	}
	f.nextID++
	out.Ticket = &ticket.TruckTicket{ID: f.nextID, TicketNumber: in.TicketNumber}
	return out, nil
}

type fakeReviewer struct {
	calls []string
}

func (f *fakeReviewer) MissingTicketNumber(context.Context, review.PageContext) (int64, error) {
	f.calls = append(f.calls, "MISSING_TICKET_NUMBER")
	return 1, nil
}
func (f *fakeReviewer) InvalidDate(context.Context, review.PageContext) (int64, error) {
	f.calls = append(f.calls, "INVALID_DATE")
	return 1, nil
}
func (f *fakeReviewer) MissingManifest(context.Context, review.PageContext) (int64, error) {
	f.calls = append(f.calls, "MISSING_MANIFEST")
	return 1, nil
}
func (f *fakeReviewer) InvalidManifestFormat(context.Context, review.PageContext) (int64, error) {
	f.calls = append(f.calls, "INVALID_MANIFEST_FORMAT")
	return 1, nil
}
func (f *fakeReviewer) ForeignKeyError(context.Context, review.PageContext) (int64, error) {
	f.calls = append(f.calls, "FOREIGN_KEY_ERROR")
	return 1, nil
}
func (f *fakeReviewer) DuplicateTicket(context.Context, review.PageContext) (int64, error) {
	f.calls = append(f.calls, "DUPLICATE_TICKET")
	return 1, nil
}

func fixedNow() time.Time { return time.Date(2024, 10, 20, 0, 0, 0, 0, time.UTC) }

func newTestPipeline(creator Creator, reviewer ReviewWriter) *Pipeline {
	norm := normalize.New(nil, nil)
	det := vendor.New(nil, norm, nil, nil)
	return New(newFakeResolver(), det, norm, creator, reviewer, nil, Config{Now: fixedNow}, nil, nil)
}

// --- scenarios -------------------------------------------------------------

// S1: a fully compliant export ticket extracts and persists cleanly.
func TestProcessHappyPath(t *testing.T) {
	creator := &fakeCreator{outcome: repository.CreateOutcome{
		Manifest: validate.Result{IsValid: true, RequiresManifest: true, HasManifest: true, Reason: validate.ReasonValid},
	}}
	reviewer := &fakeReviewer{}
	p := newTestPipeline(creator, reviewer)

	result := p.Process(context.Background(), PageInput{
		FilePath: "/data/24-105__2024-10-17__SPG__EXPORT__CLASS_2_CONTAMINATED__WASTE_MANAGEMENT.pdf",
		FilePage: 1,
		FileHash: "hash-1",
		Text:     "WM-12345678 MANIFEST: WM-MAN-2024-000111 5 TONS Truck #42",
	})

	require.True(t, result.Success)
	require.NotNil(t, result.TicketID)
	assert.Empty(t, result.Outcome)
	assert.Empty(t, reviewer.calls)
	assert.Equal(t, "WM-12345678", creator.lastIn.TicketNumber)
	assert.True(t, creator.lastIn.MaterialRequiresManifest)
	assert.Equal(t, decimal.NewFromFloat(5).Round(2).String(), creator.lastIn.Quantity.String())
}

// S4/§4.9 step 5: no ticket number extractable routes straight to review,
// never reaching the repository.
func TestProcessMissingTicketNumberSkipsCreate(t *testing.T) {
	creator := &fakeCreator{}
	reviewer := &fakeReviewer{}
	p := newTestPipeline(creator, reviewer)

	result := p.Process(context.Background(), PageInput{
		FilePath: "/data/24-105__2024-10-17__SPG__EXPORT.pdf",
		FilePage: 1,
		Text:     "no ticket number printed on this page",
	})

	require.False(t, result.Success)
	assert.Equal(t, string(ticket.ReasonMissingTicketNumber), result.Outcome)
	require.NotNil(t, result.ReviewQueueID)
	assert.Equal(t, []string{"MISSING_TICKET_NUMBER"}, reviewer.calls)
	assert.Equal(t, int64(0), creator.nextID)
}

// S2: a contaminated-material ticket missing its manifest is not
// persisted — only a CRITICAL review entry records it (spec §7, I1).
func TestProcessMissingManifestDoesNotPersist(t *testing.T) {
	creator := &fakeCreator{outcome: repository.CreateOutcome{
		Manifest: requireResult(false, "MISSING_MANIFEST"),
	}}
	reviewer := &fakeReviewer{}
	p := newTestPipeline(creator, reviewer)

	result := p.Process(context.Background(), PageInput{
		FilePath: "/data/24-105__2024-10-17__SPG__EXPORT__CLASS_2_CONTAMINATED.pdf",
		FilePage: 1,
		Text:     "WM-12345678 5 TONS",
	})

	require.False(t, result.Success)
	require.Nil(t, result.TicketID)
	assert.Equal(t, "MISSING_MANIFEST", result.Outcome)
	assert.Equal(t, []string{"MISSING_MANIFEST"}, reviewer.calls)
}

// S4: a detected duplicate is not persisted — only a WARNING review
// entry records it (spec §7, I1).
func TestProcessDuplicateDoesNotPersist(t *testing.T) {
	creator := &fakeCreator{outcome: repository.CreateOutcome{
		Manifest:  validate.Result{IsValid: true, RequiresManifest: true, HasManifest: true, Reason: validate.ReasonValid},
		Duplicate: dupeResult(),
	}}
	reviewer := &fakeReviewer{}
	p := newTestPipeline(creator, reviewer)

	result := p.Process(context.Background(), PageInput{
		FilePath: "/data/24-105__2024-10-17__SPG__EXPORT__CLASS_2_CONTAMINATED.pdf",
		FilePage: 1,
		Text:     "WM-12345678 MANIFEST: WM-MAN-2024-000111 5 TONS",
	})

	require.False(t, result.Success)
	require.Nil(t, result.TicketID)
	assert.Equal(t, string(ticket.ReasonDuplicateTicket), result.Outcome)
	assert.Equal(t, []string{"DUPLICATE_TICKET"}, reviewer.calls)
}

// Unresolvable job code routes to review as a foreign-key failure.
func TestProcessUnknownJobRoutesToForeignKeyReview(t *testing.T) {
	creator := &fakeCreator{}
	reviewer := &fakeReviewer{}
	p := newTestPipeline(creator, reviewer)

	result := p.Process(context.Background(), PageInput{
		FilePath: "/data/99-999__2024-10-17__SPG__EXPORT.pdf",
		FilePage: 1,
		Text:     "WM-12345678 MANIFEST: WM-MAN-2024-000111 5 TONS",
	})

	require.False(t, result.Success)
	assert.Equal(t, string(ticket.ReasonForeignKeyError), result.Outcome)
	assert.Equal(t, []string{"FOREIGN_KEY_ERROR"}, reviewer.calls)
}
