package httpapi

import (
	"StudentVerify/internal/core/domain"
	"StudentVerify/internal/core/services"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testSecret    = "worker-secret"
	testJWTSecret = "jwt-secret"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type MockTriggerer struct{ mock.Mock }

func (m *MockTriggerer) Trigger(ctx context.Context, id *uuid.UUID) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

type MockStatusReader struct{ mock.Mock }

func (m *MockStatusReader) Get(ctx context.Context, userID, requestID uuid.UUID) (*services.StatusView, error) {
	args := m.Called(ctx, userID, requestID)
	if v := args.Get(0); v != nil {
		return v.(*services.StatusView), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockSubmitter struct{ mock.Mock }

func (m *MockSubmitter) Submit(ctx context.Context, userID uuid.UUID, filePath string) (*domain.VerificationRequest, bool, error) {
	args := m.Called(ctx, userID, filePath)
	if v := args.Get(0); v != nil {
		return v.(*domain.VerificationRequest), args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}

func signToken(t *testing.T, secret, subject string, method jwt.SigningMethod, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func do(r http.Handler, method, path, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// --- Worker routes ---

func TestWorkerRouter_ProcessOCR(t *testing.T) {
	logger := zerolog.Nop()
	trig := new(MockTriggerer)
	r := NewWorkerRouter(trig, "w1", testSecret, &logger)

	id := uuid.New()
	trig.On("Trigger", mock.Anything, (*uuid.UUID)(nil)).Return(2, nil).Once()
	trig.On("Trigger", mock.Anything, &id).Return(1, nil).Once()

	w := do(r, http.MethodPost, "/process-ocr", testSecret, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"ok": true, "claimed": float64(2)}, decode(t, w))

	w = do(r, http.MethodPost, "/process-ocr", testSecret, `{"requestId":"`+id.String()+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["claimed"])

	trig.AssertExpectations(t)
}

func TestWorkerRouter_Errors(t *testing.T) {
	logger := zerolog.Nop()
	trig := new(MockTriggerer)
	r := NewWorkerRouter(trig, "w1", testSecret, &logger)

	w := do(r, http.MethodPost, "/process-ocr", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/process-ocr", "wrong", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/process-ocr", testSecret, `{"requestId":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	trig.On("Trigger", mock.Anything, mock.Anything).Return(0, errors.New("db down"))
	w = do(r, http.MethodPost, "/process-ocr", testSecret, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "internal_error", body["error"])

	w = do(r, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "w1", decode(t, w)["worker"])
}

func TestRequireSharedSecret_EmptySecretRejectsAll(t *testing.T) {
	logger := zerolog.Nop()
	r := NewWorkerRouter(new(MockTriggerer), "w1", "", &logger)
	w := do(r, http.MethodPost, "/process-ocr", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// --- App routes ---

func newTestAppRouter(status StatusReader, submit Submitter) *gin.Engine {
	logger := zerolog.Nop()
	return NewAppRouter(status, submit, NewJWTVerifier(testJWTSecret), []string{"http://localhost:3000"}, &logger)
}

func TestAppRouter_VerificationStatus(t *testing.T) {
	status := new(MockStatusReader)
	r := newTestAppRouter(status, new(MockSubmitter))

	user, id := uuid.New(), uuid.New()
	token := signToken(t, testJWTSecret, user.String(), jwt.SigningMethodHS256, time.Now().Add(time.Hour))

	retryAt := time.Date(2025, 3, 1, 10, 5, 0, 0, time.UTC)
	view := services.BuildStatusView(&domain.VerificationRequest{
		ID: id, UserID: user, Status: domain.StatusPendingOCR, AttemptCount: 2,
		NextRetryAt: &retryAt, LastError: func(s string) *string { return &s }("ocr_http_503"),
		Signals: &domain.Signals{OCRProvider: "ocrspace"},
	})
	status.On("Get", mock.Anything, user, id).Return(view, nil)

	w := do(r, http.MethodGet, "/api/verification-status?requestId="+id.String(), token, "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "processing", body["uiState"])
	assert.Equal(t, float64(3000), body["retryAfterMs"])
	assert.NotEmpty(t, body["message"])

	meta := body["meta"].(map[string]any)
	assert.Equal(t, float64(2), meta["attemptCount"])
	assert.Equal(t, "ocr_http_503", meta["lastError"])
	assert.Equal(t, "ocrspace", meta["ocrProvider"])
	assert.Equal(t, "2025-03-01T10:05:00Z", meta["nextRetryAt"])

	req := body["request"].(map[string]any)
	assert.Equal(t, id.String(), req["id"])
	assert.NotContains(t, req, "filePath")
	assert.NotContains(t, req, "ocrTextPreview")
}

func TestAppRouter_VerificationStatusErrors(t *testing.T) {
	status := new(MockStatusReader)
	r := newTestAppRouter(status, new(MockSubmitter))

	user := uuid.New()
	token := signToken(t, testJWTSecret, user.String(), jwt.SigningMethodHS256, time.Now().Add(time.Hour))

	testCases := []struct {
		name     string
		token    string
		query    string
		wantCode int
	}{
		{"no token", "", "?requestId=" + uuid.NewString(), http.StatusUnauthorized},
		{"bad signature", signToken(t, "other", user.String(), jwt.SigningMethodHS256, time.Now().Add(time.Hour)), "?requestId=" + uuid.NewString(), http.StatusUnauthorized},
		{"expired", signToken(t, testJWTSecret, user.String(), jwt.SigningMethodHS256, time.Now().Add(-time.Minute)), "?requestId=" + uuid.NewString(), http.StatusUnauthorized},
		{"wrong alg", signToken(t, testJWTSecret, user.String(), jwt.SigningMethodHS512, time.Now().Add(time.Hour)), "?requestId=" + uuid.NewString(), http.StatusUnauthorized},
		{"subject not uuid", signToken(t, testJWTSecret, "alice", jwt.SigningMethodHS256, time.Now().Add(time.Hour)), "?requestId=" + uuid.NewString(), http.StatusUnauthorized},
		{"bad request id", token, "?requestId=123", http.StatusBadRequest},
		{"missing request id", token, "", http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, http.MethodGet, "/api/verification-status"+tc.query, tc.token, "")
			assert.Equal(t, tc.wantCode, w.Code)
		})
	}

	// Someone else's row looks exactly like a missing one.
	foreign := uuid.New()
	status.On("Get", mock.Anything, user, foreign).Return(nil, domain.ErrNotFound)
	w := do(r, http.MethodGet, "/api/verification-status?requestId="+foreign.String(), token, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, map[string]any{"ok": false, "error": "not_found"}, decode(t, w))
}

func TestAppRouter_VerifyStudent(t *testing.T) {
	submit := new(MockSubmitter)
	r := newTestAppRouter(new(MockStatusReader), submit)

	user := uuid.New()
	token := signToken(t, testJWTSecret, user.String(), jwt.SigningMethodHS256, time.Now().Add(time.Hour))
	path := user.String() + "/card.jpg"

	row := &domain.VerificationRequest{ID: uuid.New(), UserID: user, Status: domain.StatusPendingOCR}
	submit.On("Submit", mock.Anything, user, path).Return(row, true, nil)
	submit.On("Submit", mock.Anything, user, "elsewhere/card.jpg").Return(nil, false, domain.ErrForbiddenPath)

	w := do(r, http.MethodPost, "/api/verify-student", token, `{"filePath":"`+path+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, row.ID.String(), body["requestId"])
	assert.Equal(t, "pending_ocr", body["status"])
	assert.Equal(t, true, body["created"])

	w = do(r, http.MethodPost, "/api/verify-student", token, `{"filePath":"elsewhere/card.jpg"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_file_path", decode(t, w)["error"])

	w = do(r, http.MethodPost, "/api/verify-student", token, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAppRouter_CORSPreflight(t *testing.T) {
	r := newTestAppRouter(new(MockStatusReader), new(MockSubmitter))

	req := httptest.NewRequest(http.MethodOptions, "/api/verify-student", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

// --- Nudger ---

func TestHTTPNudger_CallsWorker(t *testing.T) {
	logger := zerolog.Nop()
	trig := new(MockTriggerer)
	id := uuid.New()
	trig.On("Trigger", mock.Anything, &id).Return(1, nil)

	srv := httptest.NewServer(NewWorkerRouter(trig, "w1", testSecret, &logger))
	defer srv.Close()

	n := NewHTTPNudger(srv.URL, testSecret, time.Second, &logger)
	require.NoError(t, n.Nudge(context.Background(), id))
	trig.AssertExpectations(t)

	bad := NewHTTPNudger(srv.URL, "wrong", time.Second, &logger)
	assert.ErrorContains(t, bad.Nudge(context.Background(), id), "status 401")
}
