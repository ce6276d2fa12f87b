package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"teamline-chat/internal/domain"
	"teamline-chat/internal/testutil"

	"github.com/stretchr/testify/assert"
)

func csrfFixture(t *testing.T) (http.Handler, *domain.Session) {
	t.Helper()

	sessions := testutil.NewMockSessionRepository()
	session := &domain.Session{
		ID:        "sess-1",
		UserID:    "user-1",
		Token:     "tok-1",
		CSRFToken: "expected-csrf-token",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	sessions.Sessions[session.Token] = session

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return Auth(sessions)(CSRF(sessions)(inner)), session
}

func csrfRequest(method, path, token string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "tok-1"})
	if token != "" {
		req.Header.Set("X-CSRF-Token", token)
	}
	return req
}

func TestCSRF_SafeMethodSkipsCheck(t *testing.T) {
	handler, _ := csrfFixture(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, csrfRequest(http.MethodGet, "/api/v1/channels", ""))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCSRF_MissingToken(t *testing.T) {
	handler, _ := csrfFixture(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, csrfRequest(http.MethodPost, "/api/v1/channels", ""))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCSRF_WrongToken(t *testing.T) {
	handler, _ := csrfFixture(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, csrfRequest(http.MethodPost, "/api/v1/channels", "wrong-token"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCSRF_ValidToken(t *testing.T) {
	handler, session := csrfFixture(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, csrfRequest(http.MethodPost, "/api/v1/channels", session.CSRFToken))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCSRF_ExemptPathSkipsCheck(t *testing.T) {
	handler, _ := csrfFixture(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, csrfRequest(http.MethodPost, "/health/ready", ""))

	assert.Equal(t, http.StatusOK, rec.Code)
}
