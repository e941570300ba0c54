package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gosuda/sentinel/internal/domain"
)

// Authorizer validates a bearer token, extends the session, and reports
// whether the session is close to expiring; implemented by the engine.
type Authorizer interface {
	Authorize(ctx context.Context, token string, client domain.ClientContext) (*domain.Session, bool, error)
}

// Auth authenticates requests via bearer token. Each authorized request
// touches the session (rolling expiry); when the session is close to its
// expiry the X-Session-Warning header tells the client to prompt for
// renewal. Expired sessions get 401 with a reason so clients can
// distinguish re-login from bad credentials.
func Auth(authorizer Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				http.Error(w, `{"title":"Unauthorized","status":401,"detail":"missing bearer token"}`, http.StatusUnauthorized)
				return
			}

			session, warning, err := authorizer.Authorize(r.Context(), token, ClientFromRequest(r))
			if err != nil {
				detail := "invalid session"
				if errors.Is(err, domain.ErrSessionExpired) {
					detail = "session expired"
				}
				http.Error(w, `{"title":"Unauthorized","status":401,"detail":"`+detail+`"}`, http.StatusUnauthorized)
				return
			}

			if warning {
				w.Header().Set("X-Session-Warning", "expiring-soon")
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, ContextKeyPrincipalID, session.PrincipalID)
			ctx = context.WithValue(ctx, ContextKeySessionID, session.ID)
			ctx = context.WithValue(ctx, ContextKeyToken, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return auth[7:]
	}
	return ""
}
