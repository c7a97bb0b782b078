package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/api/shared"
	"github.com/phrazzld/codescope-api/internal/platform/logger"
	"github.com/phrazzld/codescope-api/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJWT struct {
	claims *auth.Claims
	err    error
}

func (s stubJWT) GenerateToken(ctx context.Context, userID uuid.UUID) (string, error) {
	return "token", nil
}

func (s stubJWT) ValidateToken(ctx context.Context, token string) (*auth.Claims, error) {
	return s.claims, s.err
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	tests := []struct {
		name   string
		header string
		query  string
		jwt    stubJWT
		status int
	}{
		{name: "valid", header: "Bearer abc", jwt: stubJWT{claims: &auth.Claims{UserID: userID}}, status: http.StatusOK},
		{name: "lowercase scheme", header: "bearer abc", jwt: stubJWT{claims: &auth.Claims{UserID: userID}}, status: http.StatusOK},
		{name: "query token", query: "?access_token=abc", jwt: stubJWT{claims: &auth.Claims{UserID: userID}}, status: http.StatusOK},
		{name: "missing", status: http.StatusUnauthorized},
		{name: "no token after scheme", header: "Bearer ", status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer abc", jwt: stubJWT{err: auth.ErrExpiredToken}, status: http.StatusUnauthorized},
		{name: "invalid", header: "Bearer abc", jwt: stubJWT{err: auth.ErrInvalidToken}, status: http.StatusUnauthorized},
		{name: "service failure", header: "Bearer abc", jwt: stubJWT{err: assert.AnError}, status: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen uuid.UUID
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = GetUserID(r)
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/tasks"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			NewAuthMiddleware(tc.jwt).Authenticate(next).ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, userID, seen)
			}
		})
	}
}

func TestTraceMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var traceID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = shared.GetTraceID(r.Context())
		logger.FromContext(r.Context()).Info("inside handler")
	})

	rec := httptest.NewRecorder()
	NewTraceMiddleware(base)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.NotEmpty(t, traceID)
	assert.Equal(t, traceID, rec.Header().Get(TraceIDHeader))
	assert.Contains(t, buf.String(), `"msg":"inside handler","trace_id":"`+traceID+`"`)
}

func TestTraceMiddleware_InboundTraceID(t *testing.T) {
	tests := []struct {
		name    string
		inbound string
		kept    bool
	}{
		{"hex id kept", "0123456789abcdef0123456789abcdef", true},
		{"too short replaced", "abc123", false},
		{"non-hex replaced", "zzzzzzzzzzzzzzzzzzzzzzzz", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var traceID string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				traceID = shared.GetTraceID(r.Context())
			})

			req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
			req.Header.Set(TraceIDHeader, tt.inbound)
			rec := httptest.NewRecorder()
			NewTraceMiddleware(slog.New(slog.NewTextHandler(io.Discard, nil)))(next).ServeHTTP(rec, req)

			if tt.kept {
				assert.Equal(t, tt.inbound, traceID)
			} else {
				assert.NotEqual(t, tt.inbound, traceID)
				assert.Len(t, traceID, 2*shared.TraceIDLength)
			}
			assert.Equal(t, traceID, rec.Header().Get(TraceIDHeader))
		})
	}
}
