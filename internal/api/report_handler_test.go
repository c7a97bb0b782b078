package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/domain"
	"github.com/phrazzld/codescope-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func sampleReport(owner uuid.UUID) *domain.Report {
	return &domain.Report{
		ID:            uuid.MustParse("1a2b3c4d-0000-4000-8000-000000000001"),
		TaskID:        uuid.New(),
		OwnerID:       owner,
		Repository:    "octocat/hello-world",
		RepositoryURL: "https://github.com/octocat/hello-world",
		Profile:       "default",
		Model:         "gemini-2.0-flash",
		Overall:       72.5,
		Format:        "markdown",
		Markdown:      "# Code Quality Report: octocat/hello-world\n",
		Analysis:      json.RawMessage(`{"overall":72.5}`),
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestReportHandlers(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	rep := sampleReport(owner)

	t.Run("list", func(t *testing.T) {
		env := newTestEnv(t)
		env.reports.On("List", mock.Anything, owner, defaultReportLimit).Return([]*domain.Report{rep}, nil)

		rec := env.do(t, http.MethodGet, "/api/reports", env.token(t, owner), nil)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[ReportListResponse](t, rec)
		require.Len(t, resp.Reports, 1)
		assert.Equal(t, rep.ID, resp.Reports[0].ID)
		assert.Empty(t, resp.Reports[0].Analysis)
	})

	t.Run("list clamps limit", func(t *testing.T) {
		env := newTestEnv(t)
		env.reports.On("List", mock.Anything, owner, maxReportLimit).Return([]*domain.Report{}, nil)

		rec := env.do(t, http.MethodGet, "/api/reports?limit=5000", env.token(t, owner), nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		env.reports.AssertExpectations(t)
	})

	t.Run("get includes analysis", func(t *testing.T) {
		env := newTestEnv(t)
		env.reports.On("Get", mock.Anything, owner, rep.ID).Return(rep, nil)

		rec := env.do(t, http.MethodGet, "/api/reports/"+rep.ID.String(), env.token(t, owner), nil)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[ReportResponse](t, rec)
		assert.Equal(t, 72.5, resp.OverallScore)
		assert.JSONEq(t, `{"overall":72.5}`, string(resp.Analysis))
	})

	t.Run("get missing", func(t *testing.T) {
		env := newTestEnv(t)
		missing := uuid.New()
		env.reports.On("Get", mock.Anything, owner, missing).Return(nil, store.ErrReportNotFound)

		rec := env.do(t, http.MethodGet, "/api/reports/"+missing.String(), env.token(t, owner), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Report not found", decode[map[string]string](t, rec)["error"])
	})

	t.Run("delete", func(t *testing.T) {
		env := newTestEnv(t)
		env.reports.On("Delete", mock.Anything, owner, rep.ID).Return(nil).Once()

		rec := env.do(t, http.MethodDelete, "/api/reports/"+rep.ID.String(), env.token(t, owner), nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		env.reports.AssertExpectations(t)
	})
}

func TestDownloadReport(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	rep := sampleReport(owner)

	tests := []struct {
		name        string
		query       string
		status      int
		contentType string
		filename    string
	}{
		{
			name:        "stored format by default",
			status:      http.StatusOK,
			contentType: "text/markdown; charset=utf-8",
			filename:    `attachment; filename="octocat-hello-world-1a2b3c4d.md"`,
		},
		{
			name:        "json on request",
			query:       "?format=json",
			status:      http.StatusOK,
			contentType: "application/json",
			filename:    `attachment; filename="octocat-hello-world-1a2b3c4d.json"`,
		},
		{
			name:   "unsupported format",
			query:  "?format=pdf",
			status: http.StatusBadRequest,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.reports.On("Get", mock.Anything, owner, rep.ID).Return(rep, nil)

			rec := env.do(t, http.MethodGet, "/api/reports/"+rep.ID.String()+"/download"+tc.query, env.token(t, owner), nil)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.status != http.StatusOK {
				return
			}
			assert.Equal(t, tc.contentType, rec.Header().Get("Content-Type"))
			assert.Equal(t, tc.filename, rec.Header().Get("Content-Disposition"))
		})
	}

	t.Run("json body", func(t *testing.T) {
		env := newTestEnv(t)
		env.reports.On("Get", mock.Anything, owner, rep.ID).Return(rep, nil)

		rec := env.do(t, http.MethodGet, "/api/reports/"+rep.ID.String()+"/download?format=json", env.token(t, owner), nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode[map[string]any](t, rec)
		assert.Equal(t, "octocat/hello-world", body["repository"])
		assert.Equal(t, map[string]any{"overall": 72.5}, body["analysis"])
	})
}
