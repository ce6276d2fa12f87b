package middleware

import (
	"crypto/hmac"
	"log/slog"
	"net/http"
	"strings"

	"teamline-chat/internal/domain"
)

// CSRF validates CSRF tokens for state-changing requests using the
// synchronizer token pattern. The expected token lives on the server-side
// session, which the Auth middleware has already loaded into the context.
//
// Token sources, checked in order:
//   - Form field: csrf_token
//   - Header: X-CSRF-Token
//   - Header: X-XSRF-Token
func CSRF(sessionRepo domain.SessionRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			if isExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			session, ok := GetSession(r.Context())
			if !ok {
				http.Error(w, `{"error":"Not authenticated"}`, http.StatusUnauthorized)
				return
			}

			submittedToken := extractCSRFToken(r)
			if submittedToken == "" {
				logCSRFFailure(r, session.UserID, "missing token")
				http.Error(w, `{"error":"Forbidden"}`, http.StatusForbidden)
				return
			}

			// Constant-time comparison.
			if !hmac.Equal([]byte(session.CSRFToken), []byte(submittedToken)) {
				logCSRFFailure(r, session.UserID, "invalid token")
				http.Error(w, `{"error":"Forbidden"}`, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

func isExemptPath(path string) bool {
	exemptPaths := []string{
		"/health",
		"/metrics",
		"/ws/",
	}

	for _, exemptPath := range exemptPaths {
		if strings.HasPrefix(path, exemptPath) {
			return true
		}
	}
	return false
}

func extractCSRFToken(r *http.Request) string {
	if token := r.FormValue("csrf_token"); token != "" {
		return token
	}
	if token := r.Header.Get("X-CSRF-Token"); token != "" {
		return token
	}
	return r.Header.Get("X-XSRF-Token")
}

func logCSRFFailure(r *http.Request, userID, reason string) {
	slog.Warn("CSRF validation failed",
		slog.String("user_id", userID),
		slog.String("reason", reason),
		slog.String("method", r.Method),
		slog.String("path", r.RequestURI),
		slog.String("remote_addr", r.RemoteAddr),
	)
}
