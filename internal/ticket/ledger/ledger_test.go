package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wastetrack/ticketcore/internal/ticket"
)

type stubRunStore struct {
	runs map[string]*ticket.ProcessingRun
}

func newStubRunStore() *stubRunStore {
	return &stubRunStore{runs: map[string]*ticket.ProcessingRun{}}
}

func (s *stubRunStore) CreateRun(_ context.Context, run ticket.ProcessingRun) (*ticket.ProcessingRun, error) {
	r := run
	s.runs[r.RequestGUID] = &r
	return &r, nil
}

func (s *stubRunStore) UpdateRun(_ context.Context, requestGUID string, counters ticket.RunCounters) error {
	r, ok := s.runs[requestGUID]
	if !ok {
		return assert.AnError
	}
	r.Counters = counters
	return nil
}

func (s *stubRunStore) CompleteRun(_ context.Context, requestGUID string, status ticket.RunStatus, completedAt time.Time, counters ticket.RunCounters) (*ticket.ProcessingRun, error) {
	r, ok := s.runs[requestGUID]
	if !ok {
		return nil, assert.AnError
	}
	r.Status = status
	r.CompletedAt = &completedAt
	r.Counters = counters
	return r, nil
}

func (s *stubRunStore) RunByGUID(_ context.Context, requestGUID string) (*ticket.ProcessingRun, error) {
	r, ok := s.runs[requestGUID]
	if !ok {
		return nil, assert.AnError
	}
	return r, nil
}

func (s *stubRunStore) RecentRuns(context.Context, int) ([]*ticket.ProcessingRun, error) { return nil, nil }
func (s *stubRunStore) RunsByUser(context.Context, string) ([]*ticket.ProcessingRun, error) {
	return nil, nil
}
func (s *stubRunStore) RunsByStatus(context.Context, ticket.RunStatus) ([]*ticket.ProcessingRun, error) {
	return nil, nil
}
func (s *stubRunStore) DeleteRunsStartedBefore(context.Context, time.Time) (int, error) {
	return 0, nil
}

func TestStartRunGeneratesGUIDWhenEmpty(t *testing.T) {
	l := New(newStubRunStore())
	run, err := l.StartRun(context.Background(), "ticketctl", nil, "")
	require.NoError(t, err)
	assert.NotEmpty(t, run.RequestGUID)
	assert.Equal(t, ticket.RunInProgress, run.Status)
}

func TestCompleteRunSetsStatusAndCounters(t *testing.T) {
	store := newStubRunStore()
	l := New(store)
	run, err := l.StartRun(context.Background(), "ticketctl", nil, "run-1")
	require.NoError(t, err)

	completed, err := l.CompleteRun(context.Background(), run.RequestGUID, ticket.RunCompleted, ticket.RunCounters{Pages: 10, TicketsCreated: 9})
	require.NoError(t, err)
	assert.Equal(t, ticket.RunCompleted, completed.Status)
	assert.Equal(t, 9, completed.Counters.TicketsCreated)
	assert.NotNil(t, completed.CompletedAt)
}

func TestFailRunSetsFailedStatus(t *testing.T) {
	store := newStubRunStore()
	l := New(store)
	_, err := l.StartRun(context.Background(), "ticketctl", nil, "run-2")
	require.NoError(t, err)

	failed, err := l.FailRun(context.Background(), "run-2", ticket.RunCounters{ErrorCount: 3})
	require.NoError(t, err)
	assert.Equal(t, ticket.RunFailed, failed.Status)
}

func TestDurationSecondsZeroWhenIncomplete(t *testing.T) {
	run := ticket.ProcessingRun{StartedAt: time.Now()}
	assert.Equal(t, 0.0, DurationSeconds(run))
}

func TestDurationSecondsComputesElapsed(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	run := ticket.ProcessingRun{StartedAt: start, CompletedAt: &end}
	assert.Equal(t, 90.0, DurationSeconds(run))
}

func TestSuccessRate(t *testing.T) {
	run := ticket.ProcessingRun{Counters: ticket.RunCounters{Pages: 10, TicketsCreated: 7, TicketsUpdated: 1}}
	assert.InDelta(t, 0.8, SuccessRate(run), 1e-9)
}

func TestSuccessRateZeroPages(t *testing.T) {
	assert.Equal(t, 0.0, SuccessRate(ticket.ProcessingRun{}))
}

func TestAggregate(t *testing.T) {
	completed := []ticket.ProcessingRun{
		{Status: ticket.RunCompleted, Counters: ticket.RunCounters{Files: 2, Pages: 10, TicketsCreated: 8, ErrorCount: 1}},
		{Status: ticket.RunCompleted, Counters: ticket.RunCounters{Files: 1, Pages: 5, TicketsCreated: 5}},
	}
	all := append(append([]ticket.ProcessingRun{}, completed...), ticket.ProcessingRun{Status: ticket.RunFailed})

	stats := Aggregate(completed, all)
	assert.Equal(t, 2, stats.TotalRuns)
	assert.Equal(t, 15, stats.TotalPages)
	assert.Equal(t, 13, stats.TotalTicketsCreated)
	assert.Equal(t, 7.5, stats.AvgPagesPerRun)
	assert.Equal(t, 2, stats.StatusCounts[ticket.RunCompleted])
	assert.Equal(t, 1, stats.StatusCounts[ticket.RunFailed])
}
