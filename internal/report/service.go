package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/domain"
	"github.com/phrazzld/codescope-api/internal/store"
	"github.com/phrazzld/codescope-api/internal/task"
)

// Service stores and serves analysis reports.
type Service struct {
	store  store.ReportStore
	logger *slog.Logger
	now    func() time.Time
}

// Ensure Service implements task.Reporter
var _ task.Reporter = (*Service)(nil)

// NewService creates a report service over reports.
func NewService(reports store.ReportStore, logger *slog.Logger) *Service {
	return &Service{
		store:  reports,
		logger: logger.With("component", "report_service"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Save implements task.Reporter. The returned reference is the report ID.
func (s *Service) Save(ctx context.Context, t *task.Task, fetched *task.Fetched, analysis *task.Analysis) (string, error) {
	body, err := json.Marshal(analysis)
	if err != nil {
		return "", fmt.Errorf("%w: failed to encode analysis: %v", task.ErrInternal, err)
	}

	format, err := ParseFormat(t.Input.Options.OutputFormat, FormatMarkdown)
	if err != nil {
		format = FormatMarkdown
	}

	r := &domain.Report{
		ID:            uuid.New(),
		TaskID:        t.ID,
		OwnerID:       t.OwnerID,
		Repository:    fetched.Name,
		RepositoryURL: t.Input.PrimaryURL(),
		Profile:       analysis.Profile,
		Model:         analysis.Model,
		Overall:       analysis.Overall,
		Format:        string(format),
		Markdown:      renderMarkdown(t, fetched, analysis),
		Analysis:      body,
		CreatedAt:     s.now(),
	}

	if err := s.store.Create(ctx, r); err != nil {
		return "", fmt.Errorf("%w: failed to save report: %v", task.ErrInternal, err)
	}

	s.logger.InfoContext(ctx, "report saved", "report_id", r.ID, "task_id", t.ID)
	return r.ID.String(), nil
}

// Discard implements task.Reporter. Unknown references are ignored.
func (s *Service) Discard(ctx context.Context, ref string) error {
	id, err := uuid.Parse(ref)
	if err != nil {
		return nil
	}
	if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrReportNotFound) {
		return fmt.Errorf("failed to discard report %s: %w", id, err)
	}
	return nil
}

// Get returns the caller's report. Reports owned by someone else are
// reported as store.ErrReportNotFound.
func (s *Service) Get(ctx context.Context, ownerID, id uuid.UUID) (*domain.Report, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.OwnerID != ownerID {
		return nil, store.ErrReportNotFound
	}
	return r, nil
}

// List returns up to limit of the caller's reports, newest first.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.Report, error) {
	return s.store.ListByOwner(ctx, ownerID, limit)
}

// Delete removes the caller's report. Task records are left untouched.
func (s *Service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	return s.store.Delete(ctx, id)
}

// Purge removes reports older than retention.
func (s *Service) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	removed, err := s.store.DeleteOlderThan(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "purged expired reports", "count", removed, "retention", retention)
	}
	return removed, nil
}

// RunRetention purges expired reports every interval until ctx is done.
// A non-positive retention disables purging.
func (s *Service) RunRetention(ctx context.Context, retention, interval time.Duration) error {
	if retention <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Purge(ctx, retention); err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "report purge failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
