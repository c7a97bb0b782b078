package report

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockReportStore mocks the store.ReportStore interface
type MockReportStore struct {
	mock.Mock
}

func (m *MockReportStore) Create(ctx context.Context, r *domain.Report) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockReportStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Report), args.Error(1)
}

func (m *MockReportStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.Report, error) {
	args := m.Called(ctx, ownerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Report), args.Error(1)
}

func (m *MockReportStore) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockReportStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}
