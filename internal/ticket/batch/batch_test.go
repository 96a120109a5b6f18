package batch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wastetrack/ticketcore/internal/ticket"
	"github.com/wastetrack/ticketcore/internal/ticket/filetrack"
	"github.com/wastetrack/ticketcore/internal/ticket/ledger"
	"github.com/wastetrack/ticketcore/internal/ticket/normalize"
	"github.com/wastetrack/ticketcore/internal/ticket/ocr"
	"github.com/wastetrack/ticketcore/internal/ticket/pipeline"
	"github.com/wastetrack/ticketcore/internal/ticket/repository"
	"github.com/wastetrack/ticketcore/internal/ticket/review"
	"github.com/wastetrack/ticketcore/internal/ticket/vendor"
)

// --- ledger fake -----------------------------------------------------------

type fakeRunStore struct {
	mu   sync.Mutex
	runs map[string]*ticket.ProcessingRun
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: map[string]*ticket.ProcessingRun{}}
}

func (s *fakeRunStore) CreateRun(_ context.Context, run ticket.ProcessingRun) (*ticket.ProcessingRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := run
	created.ID = int64(len(s.runs) + 1)
	s.runs[run.RequestGUID] = &created
	return &created, nil
}

func (s *fakeRunStore) UpdateRun(_ context.Context, guid string, counters ticket.RunCounters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[guid].Counters = counters
	return nil
}

func (s *fakeRunStore) CompleteRun(_ context.Context, guid string, status ticket.RunStatus, completedAt time.Time, counters ticket.RunCounters) (*ticket.ProcessingRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run := s.runs[guid]
	run.Status = status
	run.CompletedAt = &completedAt
	run.Counters = counters
	return run, nil
}

func (s *fakeRunStore) RunByGUID(_ context.Context, guid string) (*ticket.ProcessingRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[guid], nil
}

func (s *fakeRunStore) RecentRuns(context.Context, int) ([]*ticket.ProcessingRun, error) { return nil, nil }
func (s *fakeRunStore) RunsByUser(context.Context, string) ([]*ticket.ProcessingRun, error) {
	return nil, nil
}
func (s *fakeRunStore) RunsByStatus(context.Context, ticket.RunStatus) ([]*ticket.ProcessingRun, error) {
	return nil, nil
}
func (s *fakeRunStore) DeleteRunsStartedBefore(context.Context, time.Time) (int, error) { return 0, nil }

// --- pipeline collaborator fakes -------------------------------------------

type fakeResolver struct{}

func (fakeResolver) JobByCode(context.Context, string) (*ticket.Job, error) {
	return &ticket.Job{ID: 1, Code: "24-105"}, nil
}
func (fakeResolver) MaterialByName(context.Context, string) (*ticket.Material, error) {
	return &ticket.Material{ID: 2, Name: "CLASS_2_CONTAMINATED", RequiresManifest: true}, nil
}
func (fakeResolver) SourceByName(context.Context, string) (*ticket.Source, error) { return nil, nil }
func (fakeResolver) DestinationByName(context.Context, string) (*ticket.Destination, error) {
	return nil, nil
}
func (fakeResolver) VendorByName(context.Context, string) (*ticket.Vendor, error) { return nil, nil }
func (fakeResolver) TicketTypeByName(context.Context, string) (*ticket.TicketType, error) {
	return &ticket.TicketType{ID: 5, Name: ticket.TicketTypeExport}, nil
}

type fakeCreator struct {
	mu     sync.Mutex
	nextID int64
}

func (c *fakeCreator) CreateTicket(_ context.Context, in repository.CreateInput) (repository.CreateOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	return repository.CreateOutcome{
		Ticket: &ticket.TruckTicket{ID: c.nextID, TicketNumber: in.TicketNumber},
	}, nil
}

type fakeReviewer struct{}

func (fakeReviewer) MissingTicketNumber(context.Context, review.PageContext) (int64, error) {
	return 1, nil
}
func (fakeReviewer) InvalidDate(context.Context, review.PageContext) (int64, error) { return 1, nil }
func (fakeReviewer) MissingManifest(context.Context, review.PageContext) (int64, error) {
	return 1, nil
}
func (fakeReviewer) InvalidManifestFormat(context.Context, review.PageContext) (int64, error) {
	return 1, nil
}
func (fakeReviewer) ForeignKeyError(context.Context, review.PageContext) (int64, error) {
	return 1, nil
}
func (fakeReviewer) DuplicateTicket(context.Context, review.PageContext) (int64, error) {
	return 1, nil
}

func newTestPipeline() *pipeline.Pipeline {
	norm := normalize.New(nil, nil)
	det := vendor.New(nil, norm, nil, nil)
	now := func() time.Time { return time.Date(2024, 10, 20, 0, 0, 0, 0, time.UTC) }
	return pipeline.New(fakeResolver{}, det, norm, &fakeCreator{}, fakeReviewer{}, nil, pipeline.Config{Now: now}, nil, nil)
}

// --- OCR / rasterizer fakes --------------------------------------------------

type fakeRasterizer struct{ pages int }

func (r fakeRasterizer) Pages(context.Context, string) ([]ocr.Page, error) {
	out := make([]ocr.Page, r.pages)
	for i := range out {
		out[i] = ocr.Page{Number: i + 1, Image: []byte("page")}
	}
	return out, nil
}

type fakeEngine struct{}

func (fakeEngine) EngineName() string { return "fake" }
func (fakeEngine) ProcessImage(context.Context, []byte) (ocr.Result, error) {
	return ocr.Result{Text: "WM-12345678 MANIFEST: WM-MAN-2024-000111 5 TONS", Confidence: 0.95}, nil
}

// --- tests -------------------------------------------------------------------

func writeTestFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("pdf-bytes:"+name), 0o644))
	return path
}

func TestRunProcessesAllFilesAndCompletes(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "24-105__2024-10-17__SPG__EXPORT__CLASS_2_CONTAMINATED.pdf")
	writeTestFile(t, dir, "24-105__2024-10-18__SPG__EXPORT__CLASS_2_CONTAMINATED.pdf")

	runStore := newFakeRunStore()
	orc := New(newTestPipeline(), fakeRasterizer{pages: 1}, fakeEngine{}, ledger.New(runStore), nil, nil, nil, nil)

	var progressCalls int
	result, err := orc.Run(context.Background(), dir, nil, Config{MaxWorkers: 2}, func(ticket.RunCounters) {
		progressCalls++
	})

	require.NoError(t, err)
	assert.Equal(t, ticket.RunCompleted, result.Status)
	assert.Equal(t, 2, result.Run.Counters.Files)
	assert.Equal(t, 2, result.Run.Counters.Pages)
	assert.Equal(t, 2, result.Run.Counters.TicketsCreated)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 2, progressCalls)
}

func TestRunEmptyDirectoryCompletesWithZeroCounters(t *testing.T) {
	dir := t.TempDir()
	runStore := newFakeRunStore()
	orc := New(newTestPipeline(), fakeRasterizer{pages: 1}, fakeEngine{}, ledger.New(runStore), nil, nil, nil, nil)

	result, err := orc.Run(context.Background(), dir, nil, Config{}, nil)

	require.NoError(t, err)
	assert.Equal(t, ticket.RunCompleted, result.Status)
	assert.Equal(t, 0, result.Run.Counters.Files)
}

func TestRunSkipsDuplicateFileContentWithinBatch(t *testing.T) {
	dir := t.TempDir()
	path1 := filepath.Join(dir, "a__2024-10-17__SPG__EXPORT.pdf")
	path2 := filepath.Join(dir, "b__2024-10-17__SPG__EXPORT.pdf")
	require.NoError(t, os.WriteFile(path1, []byte("identical-bytes"), 0o644))
	require.NoError(t, os.WriteFile(path2, []byte("identical-bytes"), 0o644))

	runStore := newFakeRunStore()
	orc := New(newTestPipeline(), fakeRasterizer{pages: 1}, fakeEngine{}, ledger.New(runStore), nil, nil, nil, nil)

	result, err := orc.Run(context.Background(), dir, nil, Config{MaxWorkers: 1}, nil)

	require.NoError(t, err)
	assert.Equal(t, ticket.RunCompleted, result.Status)
	assert.Equal(t, 2, result.Run.Counters.Files)
	assert.Equal(t, 1, result.Run.Counters.Pages)
	assert.Equal(t, 1, result.Run.Counters.TicketsCreated)
}

type fakeFinder struct {
	refs map[string][]filetrack.Ref
}

func (f fakeFinder) FindByFileHash(_ context.Context, hash string) ([]filetrack.Ref, error) {
	return f.refs[hash], nil
}

func TestRunSkipsFileAlreadyPersistedInAnEarlierRun(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "c__2024-10-17__SPG__EXPORT.pdf")
	hash, err := filetrack.Hash(path)
	require.NoError(t, err)

	finder := fakeFinder{refs: map[string][]filetrack.Ref{
		hash: {{TicketID: 9, FileID: "prior-run-file.pdf", CreatedAt: time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)}},
	}}

	runStore := newFakeRunStore()
	orc := New(newTestPipeline(), fakeRasterizer{pages: 1}, fakeEngine{}, ledger.New(runStore), finder, nil, nil, nil)

	result, err := orc.Run(context.Background(), dir, nil, Config{MaxWorkers: 1, CheckDuplicateFiles: true}, nil)

	require.NoError(t, err)
	assert.Equal(t, ticket.RunCompleted, result.Status)
	assert.Equal(t, 1, result.Run.Counters.Files)
	assert.Equal(t, 0, result.Run.Counters.Pages)
	assert.Equal(t, 0, result.Run.Counters.TicketsCreated)
	assert.Equal(t, 1, result.Run.Counters.DuplicateFilesSkipped)
}

func TestGlobMatchesPatternRecursively(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	writeTestFile(t, dir, "top.pdf")
	writeTestFile(t, sub, "deep.pdf")
	writeTestFile(t, dir, "ignore.txt")

	matches, err := Glob(dir, "*.pdf")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}
