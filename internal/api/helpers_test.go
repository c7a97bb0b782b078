package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/config"
	"github.com/phrazzld/codescope-api/internal/domain"
	"github.com/phrazzld/codescope-api/internal/events"
	"github.com/phrazzld/codescope-api/internal/service/auth"
	"github.com/phrazzld/codescope-api/internal/task"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-at-least-32-characters"

// MockUserStore is a testify mock of store.UserStore.
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) Create(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*domain.User)
	return user, args.Error(1)
}

func (m *MockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*domain.User)
	return user, args.Error(1)
}

// MockReportService is a testify mock of ReportService.
type MockReportService struct {
	mock.Mock
}

func (m *MockReportService) Get(ctx context.Context, ownerID, id uuid.UUID) (*domain.Report, error) {
	args := m.Called(ctx, ownerID, id)
	r, _ := args.Get(0).(*domain.Report)
	return r, args.Error(1)
}

func (m *MockReportService) List(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.Report, error) {
	args := m.Called(ctx, ownerID, limit)
	r, _ := args.Get(0).([]*domain.Report)
	return r, args.Error(1)
}

func (m *MockReportService) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	return m.Called(ctx, ownerID, id).Error(0)
}

// testEnv is a router over an in-memory task pipeline with no workers, so
// submitted tasks stay pending until a test moves them.
type testEnv struct {
	router      http.Handler
	jwt         auth.JWTService
	users       *MockUserStore
	reports     *MockReportService
	store       *task.MemoryStore
	queue       *task.MemoryQueue
	coordinator *task.Coordinator
	broker      *events.Broker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jwtService, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:            testSecret,
		TokenLifetimeMinutes: 60,
	})
	require.NoError(t, err)

	env := &testEnv{
		jwt:     jwtService,
		users:   &MockUserStore{},
		reports: &MockReportService{},
		store:   task.NewMemoryStore(),
		queue:   task.NewMemoryQueue(100, logger),
		broker:  events.NewBroker(16),
	}
	t.Cleanup(func() { _ = env.queue.Close() })

	emitter := events.NewBus(logger)
	emitter.Subscribe(env.broker)
	env.coordinator = task.NewCoordinator(env.store, env.queue, task.InputPolicy{}, emitter, logger)

	env.router = NewRouter(RouterDeps{
		Logger:           logger,
		JWTService:       jwtService,
		PasswordVerifier: auth.NewBcryptVerifier(),
		UserStore:        env.users,
		Tasks:            env.coordinator,
		Reports:          env.reports,
		Events:           env.broker,
		Health: map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
		},
	})
	return env
}

func (e *testEnv) token(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := e.jwt.GenerateToken(context.Background(), userID)
	require.NoError(t, err)
	return token
}

// do sends a request through the router. A non-nil body is JSON encoded
// unless it is already a string.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func serve(e *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}
