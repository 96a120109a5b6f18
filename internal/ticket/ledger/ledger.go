// Package ledger tracks the audit trail for batch processing invocations:
// one ProcessingRun row per run, updated as the batch orchestrator works
// through files and completed/failed at the end. Grounded on
// processing_run_ledger.py's method surface, reshaped around an injected
// RunStore so this package stays free of any database import.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wastetrack/ticketcore/internal/ticket"
)

// RunStore is the persistence surface the ledger needs. repository.Store
// implements it.
type RunStore interface {
	CreateRun(ctx context.Context, run ticket.ProcessingRun) (*ticket.ProcessingRun, error)
	UpdateRun(ctx context.Context, requestGUID string, counters ticket.RunCounters) error
	CompleteRun(ctx context.Context, requestGUID string, status ticket.RunStatus, completedAt time.Time, counters ticket.RunCounters) (*ticket.ProcessingRun, error)
	RunByGUID(ctx context.Context, requestGUID string) (*ticket.ProcessingRun, error)
	RecentRuns(ctx context.Context, limit int) ([]*ticket.ProcessingRun, error)
	RunsByUser(ctx context.Context, processedBy string) ([]*ticket.ProcessingRun, error)
	RunsByStatus(ctx context.Context, status ticket.RunStatus) ([]*ticket.ProcessingRun, error)
	DeleteRunsStartedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Ledger wraps a RunStore with the run lifecycle the batch orchestrator
// drives: start, periodic progress updates, then complete or fail.
type Ledger struct {
	store RunStore
}

// New constructs a Ledger over store.
func New(store RunStore) *Ledger {
	return &Ledger{store: store}
}

// StartRun creates a new IN_PROGRESS run. requestGUID is generated via
// uuid.NewString when empty, matching the source's str(uuid.uuid4())
// fallback.
func (l *Ledger) StartRun(ctx context.Context, processedBy string, configSnapshot map[string]any, requestGUID string) (*ticket.ProcessingRun, error) {
	if requestGUID == "" {
		requestGUID = uuid.NewString()
	}
	run := ticket.ProcessingRun{
		RequestGUID:    requestGUID,
		StartedAt:      time.Now(),
		ProcessedBy:    processedBy,
		Status:         ticket.RunInProgress,
		ConfigSnapshot: configSnapshot,
	}
	created, err := l.store.CreateRun(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("ledger: start run: %w", err)
	}
	return created, nil
}

// UpdateProgress overwrites the run's running counters. Mirrors
// update_run_progress's partial-update contract by taking the full
// RunCounters struct — callers pass the latest full snapshot rather than
// deltas, which this package's caller (the batch orchestrator) already
// maintains in memory.
func (l *Ledger) UpdateProgress(ctx context.Context, requestGUID string, counters ticket.RunCounters) error {
	if err := l.store.UpdateRun(ctx, requestGUID, counters); err != nil {
		return fmt.Errorf("ledger: update progress for %s: %w", requestGUID, err)
	}
	return nil
}

// CompleteRun marks a run COMPLETED (or another terminal status) with its
// final counters.
func (l *Ledger) CompleteRun(ctx context.Context, requestGUID string, status ticket.RunStatus, counters ticket.RunCounters) (*ticket.ProcessingRun, error) {
	run, err := l.store.CompleteRun(ctx, requestGUID, status, time.Now(), counters)
	if err != nil {
		return nil, fmt.Errorf("ledger: complete run %s: %w", requestGUID, err)
	}
	return run, nil
}

// FailRun is CompleteRun with status FAILED, matching the source's
// fail_run convenience wrapper.
func (l *Ledger) FailRun(ctx context.Context, requestGUID string, counters ticket.RunCounters) (*ticket.ProcessingRun, error) {
	return l.CompleteRun(ctx, requestGUID, ticket.RunFailed, counters)
}

func (l *Ledger) RunByGUID(ctx context.Context, requestGUID string) (*ticket.ProcessingRun, error) {
	run, err := l.store.RunByGUID(ctx, requestGUID)
	if err != nil {
		return nil, fmt.Errorf("ledger: get run %s: %w", requestGUID, err)
	}
	return run, nil
}

func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]*ticket.ProcessingRun, error) {
	if limit <= 0 {
		limit = 10
	}
	return l.store.RecentRuns(ctx, limit)
}

func (l *Ledger) RunsByUser(ctx context.Context, processedBy string) ([]*ticket.ProcessingRun, error) {
	return l.store.RunsByUser(ctx, processedBy)
}

func (l *Ledger) FailedRuns(ctx context.Context) ([]*ticket.ProcessingRun, error) {
	return l.store.RunsByStatus(ctx, ticket.RunFailed)
}

func (l *Ledger) InProgressRuns(ctx context.Context) ([]*ticket.ProcessingRun, error) {
	return l.store.RunsByStatus(ctx, ticket.RunInProgress)
}

// CleanupOldRuns deletes runs started more than daysToKeep days ago,
// defaulting to 90 days as in the source.
func (l *Ledger) CleanupOldRuns(ctx context.Context, daysToKeep int) (int, error) {
	if daysToKeep <= 0 {
		daysToKeep = 90
	}
	cutoff := time.Now().AddDate(0, 0, -daysToKeep)
	deleted, err := l.store.DeleteRunsStartedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("ledger: cleanup old runs: %w", err)
	}
	return deleted, nil
}

// DurationSeconds mirrors ProcessingRun.duration_seconds: the elapsed
// time between StartedAt and CompletedAt, or 0 when the run hasn't
// completed.
func DurationSeconds(run ticket.ProcessingRun) float64 {
	if run.CompletedAt == nil {
		return 0
	}
	return run.CompletedAt.Sub(run.StartedAt).Seconds()
}

// SuccessRate mirrors ProcessingRun.success_rate: the fraction of
// processed pages that became tickets (created or updated) rather than
// errors, or 0 when no pages were processed.
func SuccessRate(run ticket.ProcessingRun) float64 {
	if run.Counters.Pages == 0 {
		return 0
	}
	successful := run.Counters.TicketsCreated + run.Counters.TicketsUpdated
	return float64(successful) / float64(run.Counters.Pages)
}

// AggregateStatistics is the pure-function counterpart to
// get_processing_statistics, computed over a caller-supplied slice of
// completed runs (the repository layer runs the underlying query).
type AggregateStatistics struct {
	TotalRuns           int
	TotalFiles          int
	TotalPages          int
	TotalTicketsCreated int
	TotalTicketsUpdated int
	TotalDuplicates     int
	TotalDuplicateFiles int
	TotalReviewItems    int
	TotalErrors         int
	AvgPagesPerRun      float64
	StatusCounts        map[ticket.RunStatus]int
}

// Aggregate sums counters across completedRuns and tallies status
// counts across allRuns (not just completed ones), matching the split
// the source makes between the COMPLETED-only numeric aggregates and the
// all-status status_counts tally.
func Aggregate(completedRuns, allRuns []ticket.ProcessingRun) AggregateStatistics {
	stats := AggregateStatistics{StatusCounts: map[ticket.RunStatus]int{}}

	for _, r := range completedRuns {
		stats.TotalRuns++
		stats.TotalFiles += r.Counters.Files
		stats.TotalPages += r.Counters.Pages
		stats.TotalTicketsCreated += r.Counters.TicketsCreated
		stats.TotalTicketsUpdated += r.Counters.TicketsUpdated
		stats.TotalDuplicates += r.Counters.DuplicatesFound
		stats.TotalDuplicateFiles += r.Counters.DuplicateFilesSkipped
		stats.TotalReviewItems += r.Counters.ReviewQueueCount
		stats.TotalErrors += r.Counters.ErrorCount
	}
	if stats.TotalRuns > 0 {
		stats.AvgPagesPerRun = float64(stats.TotalPages) / float64(stats.TotalRuns)
	}

	for _, r := range allRuns {
		stats.StatusCounts[r.Status]++
	}

	return stats
}
