package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wastetrack/ticketcore/internal/ticket"
)

// processingRunRow mirrors the processing_runs table shape for sqlx
// scanning; toDomain converts to ticket.ProcessingRun.
type processingRunRow struct {
	ID               int64          `db:"id"`
	RequestGUID      string         `db:"request_guid"`
	StartedAt        string         `db:"started_at"`
	CompletedAt      sql.NullString `db:"completed_at"`
	ProcessedBy      sql.NullString `db:"processed_by"`
	Status           string         `db:"status"`
	ConfigSnapshot   sql.NullString `db:"config_snapshot"`
	Files            int            `db:"files"`
	Pages            int            `db:"pages"`
	TicketsCreated   int            `db:"tickets_created"`
	TicketsUpdated   int            `db:"tickets_updated"`
	DuplicatesFound  int            `db:"duplicates_found"`
	ReviewQueueCount      int `db:"review_queue_count"`
	ErrorCount            int `db:"error_count"`
	DuplicateFilesSkipped int `db:"duplicate_files_skipped"`
}

func (r processingRunRow) toDomain() (*ticket.ProcessingRun, error) {
	started, err := parseDate(r.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("repository: parse started_at: %w", err)
	}

	run := &ticket.ProcessingRun{
		ID:          r.ID,
		RequestGUID: r.RequestGUID,
		StartedAt:   started,
		Status:      ticket.RunStatus(r.Status),
		Counters: ticket.RunCounters{
			Files:            r.Files,
			Pages:            r.Pages,
			TicketsCreated:   r.TicketsCreated,
			TicketsUpdated:   r.TicketsUpdated,
			DuplicatesFound:  r.DuplicatesFound,
			ReviewQueueCount:      r.ReviewQueueCount,
			ErrorCount:            r.ErrorCount,
			DuplicateFilesSkipped: r.DuplicateFilesSkipped,
		},
	}
	if r.ProcessedBy.Valid {
		run.ProcessedBy = r.ProcessedBy.String
	}
	if r.CompletedAt.Valid {
		completed, err := parseDate(r.CompletedAt.String)
		if err != nil {
			return nil, fmt.Errorf("repository: parse completed_at: %w", err)
		}
		run.CompletedAt = &completed
	}
	if r.ConfigSnapshot.Valid {
		var snapshot map[string]any
		if err := json.Unmarshal([]byte(r.ConfigSnapshot.String), &snapshot); err == nil {
			run.ConfigSnapshot = snapshot
		}
	}
	return run, nil
}

// CreateRun inserts a new processing_runs row, implementing
// ledger.RunStore.
func (s *Store) CreateRun(ctx context.Context, run ticket.ProcessingRun) (*ticket.ProcessingRun, error) {
	var configJSON *string
	if run.ConfigSnapshot != nil {
		b, err := json.Marshal(run.ConfigSnapshot)
		if err != nil {
			return nil, fmt.Errorf("repository: marshal config_snapshot: %w", err)
		}
		s := string(b)
		configJSON = &s
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_runs (
			request_guid, started_at, processed_by, status, config_snapshot
		) VALUES (?, ?, ?, ?, ?)`,
		run.RequestGUID, run.StartedAt.Format(time.RFC3339), run.ProcessedBy, string(run.Status), configJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: insert processing run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("repository: read inserted run id: %w", err)
	}

	created := run
	created.ID = id
	return &created, nil
}

// UpdateRun overwrites the running counters for requestGUID.
func (s *Store) UpdateRun(ctx context.Context, requestGUID string, counters ticket.RunCounters) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE processing_runs SET
			files = ?, pages = ?, tickets_created = ?, tickets_updated = ?,
			duplicates_found = ?, review_queue_count = ?, error_count = ?,
			duplicate_files_skipped = ?
		WHERE request_guid = ?`,
		counters.Files, counters.Pages, counters.TicketsCreated, counters.TicketsUpdated,
		counters.DuplicatesFound, counters.ReviewQueueCount, counters.ErrorCount,
		counters.DuplicateFilesSkipped, requestGUID,
	)
	if err != nil {
		return fmt.Errorf("repository: update processing run: %w", err)
	}
	return checkRowAffected(result, requestGUID)
}

// CompleteRun sets status/completed_at/counters for requestGUID.
func (s *Store) CompleteRun(ctx context.Context, requestGUID string, status ticket.RunStatus, completedAt time.Time, counters ticket.RunCounters) (*ticket.ProcessingRun, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE processing_runs SET
			status = ?, completed_at = ?, files = ?, pages = ?, tickets_created = ?,
			tickets_updated = ?, duplicates_found = ?, review_queue_count = ?, error_count = ?,
			duplicate_files_skipped = ?
		WHERE request_guid = ?`,
		string(status), completedAt.Format(time.RFC3339), counters.Files, counters.Pages,
		counters.TicketsCreated, counters.TicketsUpdated, counters.DuplicatesFound,
		counters.ReviewQueueCount, counters.ErrorCount, counters.DuplicateFilesSkipped, requestGUID,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: complete processing run: %w", err)
	}
	if err := checkRowAffected(result, requestGUID); err != nil {
		return nil, err
	}
	return s.RunByGUID(ctx, requestGUID)
}

func checkRowAffected(result sql.Result, requestGUID string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("repository: processing run not found: %s", requestGUID)
	}
	return nil
}

// RunByGUID implements ledger.RunStore.
func (s *Store) RunByGUID(ctx context.Context, requestGUID string) (*ticket.ProcessingRun, error) {
	var row processingRunRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, request_guid, started_at, completed_at, processed_by, status,
			config_snapshot, files, pages, tickets_created, tickets_updated,
			duplicates_found, review_queue_count, error_count, duplicate_files_skipped
		FROM processing_runs WHERE request_guid = ?`, requestGUID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("repository: processing run not found: %s", requestGUID)
		}
		return nil, fmt.Errorf("repository: get processing run: %w", err)
	}
	return row.toDomain()
}

func (s *Store) selectRuns(ctx context.Context, query string, args ...any) ([]*ticket.ProcessingRun, error) {
	var rows []processingRunRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("repository: list processing runs: %w", err)
	}
	out := make([]*ticket.ProcessingRun, 0, len(rows))
	for _, r := range rows {
		run, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

// RecentRuns implements ledger.RunStore.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]*ticket.ProcessingRun, error) {
	return s.selectRuns(ctx, `
		SELECT id, request_guid, started_at, completed_at, processed_by, status,
			config_snapshot, files, pages, tickets_created, tickets_updated,
			duplicates_found, review_queue_count, error_count, duplicate_files_skipped
		FROM processing_runs ORDER BY started_at DESC LIMIT ?`, limit)
}

// RunsByUser implements ledger.RunStore.
func (s *Store) RunsByUser(ctx context.Context, processedBy string) ([]*ticket.ProcessingRun, error) {
	return s.selectRuns(ctx, `
		SELECT id, request_guid, started_at, completed_at, processed_by, status,
			config_snapshot, files, pages, tickets_created, tickets_updated,
			duplicates_found, review_queue_count, error_count, duplicate_files_skipped
		FROM processing_runs WHERE processed_by = ? ORDER BY started_at DESC`, processedBy)
}

// RunsByStatus implements ledger.RunStore.
func (s *Store) RunsByStatus(ctx context.Context, status ticket.RunStatus) ([]*ticket.ProcessingRun, error) {
	return s.selectRuns(ctx, `
		SELECT id, request_guid, started_at, completed_at, processed_by, status,
			config_snapshot, files, pages, tickets_created, tickets_updated,
			duplicates_found, review_queue_count, error_count, duplicate_files_skipped
		FROM processing_runs WHERE status = ? ORDER BY started_at DESC`, string(status))
}

// DeleteRunsStartedBefore implements ledger.RunStore.
func (s *Store) DeleteRunsStartedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM processing_runs WHERE started_at < ?`, cutoff.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("repository: cleanup processing runs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repository: read rows affected: %w", err)
	}
	return int(n), nil
}

// CompletedRuns returns the runs whose status is COMPLETED, for
// ledger.Aggregate's completedRuns argument.
func (s *Store) CompletedRuns(ctx context.Context) ([]*ticket.ProcessingRun, error) {
	return s.selectRuns(ctx, `
		SELECT id, request_guid, started_at, completed_at, processed_by, status,
			config_snapshot, files, pages, tickets_created, tickets_updated,
			duplicates_found, review_queue_count, error_count, duplicate_files_skipped
		FROM processing_runs WHERE status = ?`,
		string(ticket.RunCompleted))
}

// AllRuns returns every processing run, for ledger.Aggregate's allRuns
// argument.
func (s *Store) AllRuns(ctx context.Context) ([]*ticket.ProcessingRun, error) {
	return s.selectRuns(ctx, `
		SELECT id, request_guid, started_at, completed_at, processed_by, status,
			config_snapshot, files, pages, tickets_created, tickets_updated,
			duplicates_found, review_queue_count, error_count, duplicate_files_skipped
		FROM processing_runs`)
}
