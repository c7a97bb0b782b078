package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/domain"
)

// ReportStore defines the interface for analysis report persistence.
type ReportStore interface {
	// Create saves a new report.
	Create(ctx context.Context, report *domain.Report) error

	// GetByID retrieves a report.
	// Returns ErrReportNotFound if the report does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Report, error)

	// ListByOwner returns up to limit of the owner's reports, newest first.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.Report, error)

	// Delete removes a report.
	// Returns ErrReportNotFound if the report does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteOlderThan removes reports created before cutoff and returns how
	// many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
