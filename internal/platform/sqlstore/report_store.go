package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/domain"
	"github.com/phrazzld/codescope-api/internal/store"
)

const reportColumns = `id, task_id, owner_id, repository, repository_url, profile, model,
	overall, format, markdown, analysis, created_at`

// ReportStore implements store.ReportStore.
type ReportStore struct {
	db *DB
}

// Ensure ReportStore implements store.ReportStore
var _ store.ReportStore = (*ReportStore)(nil)

// NewReportStore creates a ReportStore over db.
func NewReportStore(db *DB) *ReportStore {
	return &ReportStore{db: db}
}

// Create implements store.ReportStore.
func (s *ReportStore) Create(ctx context.Context, r *domain.Report) error {
	analysis := string(r.Analysis)
	if analysis == "" {
		analysis = "{}"
	}
	format := r.Format
	if format == "" {
		format = "markdown"
	}

	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO reports (`+reportColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ID.String(), r.TaskID.String(), r.OwnerID.String(), r.Repository, r.RepositoryURL,
		r.Profile, r.Model, r.Overall, format, r.Markdown, analysis, millis(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", MapError(err))
	}
	return nil
}

// GetByID implements store.ReportStore.
func (s *ReportStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT `+reportColumns+` FROM reports WHERE id = ?`), id.String())
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", MapError(err))
	}
	return r, nil
}

// ListByOwner implements store.ReportStore.
func (s *ReportStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE owner_id = ? ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(withLimit(query, limit)), limitArgs(limit, ownerID.String())...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var reports []*domain.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", MapError(err))
	}
	return reports, nil
}

// Delete implements store.ReportStore.
func (s *ReportStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM reports WHERE id = ?`), id.String())
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", MapError(err))
	}
	if err := CheckRowsAffected(result, ""); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrReportNotFound
		}
		return err
	}
	return nil
}

// DeleteOlderThan implements store.ReportStore.
func (s *ReportStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM reports WHERE created_at < ?`), millis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired reports: %w", MapError(err))
	}
	return rowsAffected(result)
}

func scanReport(row rowScanner) (*domain.Report, error) {
	var (
		r                   domain.Report
		id, taskID, ownerID string
		analysis            string
		createdAt           int64
	)

	err := row.Scan(&id, &taskID, &ownerID, &r.Repository, &r.RepositoryURL, &r.Profile, &r.Model,
		&r.Overall, &r.Format, &r.Markdown, &analysis, &createdAt)
	if err != nil {
		return nil, err
	}

	for _, f := range []struct {
		raw string
		dst *uuid.UUID
	}{{id, &r.ID}, {taskID, &r.TaskID}, {ownerID, &r.OwnerID}} {
		if *f.dst, err = uuid.Parse(f.raw); err != nil {
			return nil, fmt.Errorf("invalid report identifier %q: %w", f.raw, err)
		}
	}
	r.Analysis = []byte(analysis)
	r.CreatedAt = fromMillis(createdAt)
	return &r, nil
}
