package api

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/api/shared"
	"github.com/phrazzld/codescope-api/internal/domain"
	"github.com/phrazzld/codescope-api/internal/report"
)

// ReportService exposes the caller's stored reports.
type ReportService interface {
	Get(ctx context.Context, ownerID, id uuid.UUID) (*domain.Report, error)
	List(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.Report, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
}

// Ensure the report service satisfies ReportService
var _ ReportService = (*report.Service)(nil)

// Default and maximum number of reports returned by a list request
const (
	defaultReportLimit = 20
	maxReportLimit     = 100
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ReportHandler serves stored analysis reports.
type ReportHandler struct {
	reports ReportService
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(reports ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// ListReports handles GET /api/reports?limit=N.
func (h *ReportHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	switch {
	case limit == 0:
		limit = defaultReportLimit
	case limit > maxReportLimit:
		limit = maxReportLimit
	}

	reports, err := h.reports.List(r.Context(), userID, limit)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list reports")
		return
	}

	resp := ReportListResponse{Reports: make([]ReportResponse, len(reports))}
	for i, rep := range reports {
		resp.Reports[i] = reportToResponse(rep, false)
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// GetReport handles GET /api/reports/{id}.
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	userID, reportID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	rep, err := h.reports.Get(r.Context(), userID, reportID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get report")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, reportToResponse(rep, true))
}

// DownloadReport handles GET /api/reports/{id}/download?format=md|json. The
// format defaults to the one requested with the task.
func (h *ReportHandler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	userID, reportID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	rep, err := h.reports.Get(r.Context(), userID, reportID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get report")
		return
	}

	fallback, err := report.ParseFormat(rep.Format, report.FormatMarkdown)
	if err != nil {
		fallback = report.FormatMarkdown
	}
	format, err := report.ParseFormat(r.URL.Query().Get("format"), fallback)
	if err != nil {
		HandleAPIError(w, r, fmt.Errorf("%w: %v", domain.ErrValidation, err), "")
		return
	}

	body, err := report.Render(rep, format)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to render report")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, downloadFilename(rep, format)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// DeleteReport handles DELETE /api/reports/{id}. The task that produced the
// report keeps its result reference.
func (h *ReportHandler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	userID, reportID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.reports.Delete(r.Context(), userID, reportID); err != nil {
		HandleAPIError(w, r, err, "Failed to delete report")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// downloadFilename names a download after its repository, e.g. "owner-repo-1a2b3c4d.md".
func downloadFilename(rep *domain.Report, format report.Format) string {
	name := unsafeFilenameChars.ReplaceAllString(strings.ReplaceAll(rep.Repository, "/", "-"), "_")
	name = strings.Trim(name, "._-")
	if name == "" {
		name = "report"
	}
	return fmt.Sprintf("%s-%s.%s", name, rep.ID.String()[:8], format.Extension())
}
