package report

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/domain"
	"github.com/phrazzld/codescope-api/internal/store"
	"github.com/phrazzld/codescope-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(s *MockReportStore) *Service {
	svc := NewService(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func completedAnalysis() (*task.Task, *task.Fetched, *task.Analysis) {
	t := task.NewTask(uuid.New(), task.Input{
		RepositoryLocators: []string{"https://github.com/acme/widgets"},
		Options:            task.Options{OutputFormat: task.OutputFormatJSON},
	}, fixedNow)
	fetched := &task.Fetched{Name: "acme/widgets", URL: "https://github.com/acme/widgets", FileCount: 12}
	analysis := &task.Analysis{
		Profile:     "default",
		Model:       "gemini-2.0-flash",
		Summary:     "Tidy and well tested.",
		Scores:      map[string]float64{"testing": 90, "readability": 70},
		Overall:     80,
		Suggestions: []string{"Document the public API"},
		Raw:         json.RawMessage(`{"summary":"Tidy and well tested."}`),
	}
	return t, fetched, analysis
}

func TestSaveCreatesReport(t *testing.T) {
	t.Parallel()

	s := &MockReportStore{}
	var saved *domain.Report
	s.On("Create", mock.Anything, mock.AnythingOfType("*domain.Report")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*domain.Report) }).
		Return(nil)

	tk, fetched, analysis := completedAnalysis()
	ref, err := newTestService(s).Save(context.Background(), tk, fetched, analysis)
	require.NoError(t, err)

	require.NotNil(t, saved)
	assert.Equal(t, saved.ID.String(), ref)
	assert.Equal(t, tk.ID, saved.TaskID)
	assert.Equal(t, tk.OwnerID, saved.OwnerID)
	assert.Equal(t, "acme/widgets", saved.Repository)
	assert.Equal(t, "https://github.com/acme/widgets", saved.RepositoryURL)
	assert.Equal(t, "json", saved.Format)
	assert.Equal(t, 80.0, saved.Overall)
	assert.Equal(t, fixedNow, saved.CreatedAt)
	assert.Contains(t, saved.Markdown, "# Code Analysis: acme/widgets")
	assert.Contains(t, saved.Markdown, "| Readability | 70 |\n| Testing | 90 |")
	assert.Contains(t, saved.Markdown, "- Document the public API")

	var decoded task.Analysis
	require.NoError(t, json.Unmarshal(saved.Analysis, &decoded))
	assert.Equal(t, analysis.Scores, decoded.Scores)
	s.AssertExpectations(t)
}

func TestSaveWrapsStoreFailureAsInternal(t *testing.T) {
	t.Parallel()

	s := &MockReportStore{}
	s.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	tk, fetched, analysis := completedAnalysis()
	_, err := newTestService(s).Save(context.Background(), tk, fetched, analysis)
	assert.ErrorIs(t, err, task.ErrInternal)
	assert.True(t, task.IsRetryable(err))
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	gone := uuid.New()
	s := &MockReportStore{}
	s.On("Delete", mock.Anything, id).Return(nil)
	s.On("Delete", mock.Anything, gone).Return(store.ErrReportNotFound)

	svc := newTestService(s)
	assert.NoError(t, svc.Discard(context.Background(), id.String()))
	assert.NoError(t, svc.Discard(context.Background(), gone.String()))
	assert.NoError(t, svc.Discard(context.Background(), "not-a-uuid"))
	s.AssertExpectations(t)
}

func TestGetAndDeleteEnforceOwnership(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	r := &domain.Report{ID: uuid.New(), OwnerID: owner}
	s := &MockReportStore{}
	s.On("GetByID", mock.Anything, r.ID).Return(r, nil)
	s.On("Delete", mock.Anything, r.ID).Return(nil).Once()

	svc := newTestService(s)

	got, err := svc.Get(context.Background(), owner, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	_, err = svc.Get(context.Background(), uuid.New(), r.ID)
	assert.ErrorIs(t, err, store.ErrReportNotFound)

	assert.ErrorIs(t, svc.Delete(context.Background(), uuid.New(), r.ID), store.ErrReportNotFound)
	require.NoError(t, svc.Delete(context.Background(), owner, r.ID))
	s.AssertExpectations(t)
}

func TestPurge(t *testing.T) {
	t.Parallel()

	s := &MockReportStore{}
	s.On("DeleteOlderThan", mock.Anything, fixedNow.Add(-48*time.Hour)).Return(int64(3), nil)

	removed, err := newTestService(s).Purge(context.Background(), 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
	s.AssertExpectations(t)
}

func TestRunRetention(t *testing.T) {
	t.Parallel()

	s := &MockReportStore{}
	svc := newTestService(s)

	// Disabled retention returns immediately without touching the store
	require.NoError(t, svc.RunRetention(context.Background(), 0, time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	s.On("DeleteOlderThan", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(int64(0), nil)

	require.NoError(t, svc.RunRetention(ctx, time.Hour, time.Hour))
	s.AssertNumberOfCalls(t, "DeleteOlderThan", 1)
}
