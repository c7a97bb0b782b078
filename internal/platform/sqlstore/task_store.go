package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/platform/logger"
	"github.com/phrazzld/codescope-api/internal/task"
)

const taskColumns = `id, owner_id, input, state, progress, attempt_count, cancel_requested,
	submitted_at, started_at, completed_at, heartbeat_at, next_attempt_at,
	error_summary, result_reference`

// fenceCondition restricts worker-side writes to the attempt that owns the task
const fenceCondition = ` WHERE id = ? AND state = 'in_progress' AND attempt_count = ?`

// TaskStore implements task.Store on a SQL database. Claim is a single
// conditional UPDATE, so any number of workers may race for the same task
// and exactly one receives it.
type TaskStore struct {
	db *DB
}

// Ensure TaskStore implements task.Store
var _ task.Store = (*TaskStore)(nil)

// NewTaskStore creates a TaskStore over db.
func NewTaskStore(db *DB) *TaskStore {
	return &TaskStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		t                                   task.Task
		id, owner, input, state             string
		cancelRequested                     int
		submittedAt, nextAttemptAt          int64
		startedAt, completedAt, heartbeatAt sql.NullInt64
		errorSummary, resultReference       sql.NullString
	)

	err := row.Scan(
		&id, &owner, &input, &state, &t.Progress, &t.AttemptCount, &cancelRequested,
		&submittedAt, &startedAt, &completedAt, &heartbeatAt, &nextAttemptAt,
		&errorSummary, &resultReference,
	)
	if err != nil {
		return nil, err
	}

	if t.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid task id %q: %w", id, err)
	}
	if t.OwnerID, err = uuid.Parse(owner); err != nil {
		return nil, fmt.Errorf("invalid owner id %q: %w", owner, err)
	}
	if err := json.Unmarshal([]byte(input), &t.Input); err != nil {
		return nil, fmt.Errorf("invalid input document for task %s: %w", id, err)
	}

	t.State = task.State(state)
	t.CancelRequested = cancelRequested != 0
	t.SubmittedAt = fromMillis(submittedAt)
	t.StartedAt = fromNullMillis(startedAt)
	t.CompletedAt = fromNullMillis(completedAt)
	t.HeartbeatAt = fromNullMillis(heartbeatAt)
	t.NextAttemptAt = fromMillis(nextAttemptAt)
	t.ErrorSummary = fromNullString(errorSummary)
	t.ResultReference = fromNullString(resultReference)
	return &t, nil
}

// Create implements task.Store.
func (s *TaskStore) Create(ctx context.Context, t *task.Task) error {
	input, err := json.Marshal(t.Input)
	if err != nil {
		return fmt.Errorf("failed to encode task input: %w", err)
	}

	query := s.db.Rebind(`INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = s.db.ExecContext(ctx, query,
		t.ID.String(), t.OwnerID.String(), string(input), string(t.State), t.Progress, t.AttemptCount,
		boolInt(t.CancelRequested),
		millis(t.SubmittedAt), nullMillis(t.StartedAt), nullMillis(t.CompletedAt), nullMillis(t.HeartbeatAt),
		millis(t.NextAttemptAt),
		nullString(t.ErrorSummary), nullString(t.ResultReference),
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to insert task", "task_id", t.ID, "error", err)
		return fmt.Errorf("failed to insert task: %w", MapError(err))
	}
	return nil
}

// Get implements task.Store.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), id.String())
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, task.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", MapError(err))
	}
	return t, nil
}

// ListByOwner implements task.Store.
func (s *TaskStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*task.Task, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT COUNT(*) FROM tasks WHERE owner_id = ?`), ownerID.String(),
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count tasks: %w", MapError(err))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = ? ORDER BY submitted_at DESC, id DESC`
	args := []any{ownerID.String()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	tasks, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// Claim implements task.Store.
func (s *TaskStore) Claim(ctx context.Context, id uuid.UUID, now time.Time) (*task.Task, error) {
	ms := millis(now)
	query := s.db.Rebind(`UPDATE tasks
		SET state = 'in_progress', progress = 0, attempt_count = attempt_count + 1,
			started_at = COALESCE(started_at, ?), heartbeat_at = ?
		WHERE id = ? AND state = 'pending'
		RETURNING ` + taskColumns)

	t, err := scanTask(s.db.QueryRowContext(ctx, query, ms, ms, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.missingOr(ctx, id, task.ErrStateConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", MapError(err))
	}
	return t, nil
}

// UpdateProgress implements task.Store.
func (s *TaskStore) UpdateProgress(ctx context.Context, id uuid.UUID, attempt, progress int, now time.Time) error {
	return s.fenced(ctx, "update progress", id, attempt, "",
		`progress = CASE WHEN progress < ? THEN ? ELSE progress END, heartbeat_at = ?`,
		progress, progress, millis(now))
}

// Heartbeat implements task.Store.
func (s *TaskStore) Heartbeat(ctx context.Context, id uuid.UUID, attempt int, now time.Time) error {
	return s.fenced(ctx, "heartbeat", id, attempt, "", `heartbeat_at = ?`, millis(now))
}

// Complete implements task.Store.
func (s *TaskStore) Complete(ctx context.Context, id uuid.UUID, attempt int, resultRef string, now time.Time) error {
	return s.fenced(ctx, "complete", id, attempt, ` AND cancel_requested = 0`,
		`state = 'completed', progress = 100, result_reference = ?, completed_at = ?`,
		resultRef, millis(now))
}

// Fail implements task.Store.
func (s *TaskStore) Fail(ctx context.Context, id uuid.UUID, attempt int, summary string, now time.Time) error {
	return s.fenced(ctx, "fail", id, attempt, "",
		`state = 'failed', error_summary = ?, completed_at = ?`,
		summary, millis(now))
}

// Requeue implements task.Store.
func (s *TaskStore) Requeue(ctx context.Context, id uuid.UUID, attempt int, nextAttemptAt time.Time) error {
	return s.fenced(ctx, "requeue", id, attempt, "",
		`state = 'pending', progress = 0, heartbeat_at = NULL, next_attempt_at = ?`,
		millis(nextAttemptAt))
}

// MarkCancelled implements task.Store.
func (s *TaskStore) MarkCancelled(ctx context.Context, id uuid.UUID, attempt int, now time.Time) error {
	return s.fenced(ctx, "mark cancelled", id, attempt, "",
		`state = 'cancelled', completed_at = ?`, millis(now))
}

// CancelPending implements task.Store.
func (s *TaskStore) CancelPending(ctx context.Context, id uuid.UUID, now time.Time) error {
	return s.conditional(ctx, "cancel pending task", id,
		`UPDATE tasks SET state = 'cancelled', cancel_requested = 1, completed_at = ?
		WHERE id = ? AND state = 'pending'`,
		millis(now), id.String())
}

// FailPending implements task.Store.
func (s *TaskStore) FailPending(ctx context.Context, id uuid.UUID, summary string, now time.Time) error {
	return s.conditional(ctx, "fail pending task", id,
		`UPDATE tasks SET state = 'failed', error_summary = ?, completed_at = ?
		WHERE id = ? AND state = 'pending'`,
		summary, millis(now), id.String())
}

// RequestCancel implements task.Store.
func (s *TaskStore) RequestCancel(ctx context.Context, id uuid.UUID) error {
	return s.conditional(ctx, "request cancellation", id,
		`UPDATE tasks SET cancel_requested = 1 WHERE id = ? AND state = 'in_progress'`,
		id.String())
}

// TouchPending implements task.Store.
func (s *TaskStore) TouchPending(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time) error {
	return s.conditional(ctx, "touch pending task", id,
		`UPDATE tasks SET next_attempt_at = ? WHERE id = ? AND state = 'pending'`,
		millis(nextAttemptAt), id.String())
}

// ListStale implements task.Store.
func (s *TaskStore) ListStale(ctx context.Context, heartbeatBefore time.Time, limit int) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE state = 'in_progress' AND (heartbeat_at IS NULL OR heartbeat_at < ?)
		ORDER BY heartbeat_at, submitted_at`
	return s.query(ctx, withLimit(query, limit), limitArgs(limit, millis(heartbeatBefore))...)
}

// ListPending implements task.Store.
func (s *TaskStore) ListPending(ctx context.Context, readyBefore time.Time, limit int) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE state = 'pending' AND next_attempt_at < ?
		ORDER BY next_attempt_at, submitted_at`
	return s.query(ctx, withLimit(query, limit), limitArgs(limit, millis(readyBefore))...)
}

// fenced applies set to the task while it is in progress under attempt.
func (s *TaskStore) fenced(ctx context.Context, op string, id uuid.UUID, attempt int, extra, set string, args ...any) error {
	query := s.db.Rebind(`UPDATE tasks SET ` + set + fenceCondition + extra)
	args = append(args, id.String(), attempt)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, MapError(err))
	}
	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return s.missingOr(ctx, id, task.ErrLostOwnership)
	}
	return nil
}

// conditional runs a state-guarded update, reporting ErrStateConflict when the
// guard did not match an existing task.
func (s *TaskStore) conditional(ctx context.Context, op string, id uuid.UUID, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, MapError(err))
	}
	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return s.missingOr(ctx, id, task.ErrStateConflict)
	}
	return nil
}

// missingOr returns task.ErrNotFound when id does not exist and otherwise err.
func (s *TaskStore) missingOr(ctx context.Context, id uuid.UUID, err error) error {
	var one int
	lookupErr := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT 1 FROM tasks WHERE id = ?`), id.String()).Scan(&one)
	switch {
	case errors.Is(lookupErr, sql.ErrNoRows):
		return task.ErrNotFound
	case lookupErr != nil:
		return fmt.Errorf("failed to look up task: %w", MapError(lookupErr))
	default:
		return err
	}
}

func (s *TaskStore) query(ctx context.Context, query string, args ...any) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", MapError(err))
	}
	return tasks, nil
}

func withLimit(query string, limit int) string {
	if limit > 0 {
		return query + ` LIMIT ?`
	}
	return query
}

func limitArgs(limit int, args ...any) []any {
	if limit > 0 {
		return append(args, limit)
	}
	return args
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
