package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/gosuda/sentinel/internal/domain"
)

type contextKey string

const (
	ContextKeyPrincipalID contextKey = "principal_id"
	ContextKeySessionID   contextKey = "session_id"
	ContextKeyToken       contextKey = "token"
	ContextKeyClient      contextKey = "client"
)

func PrincipalIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(ContextKeyPrincipalID).(uuid.UUID)
	return v, ok
}

func SessionIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(ContextKeySessionID).(uuid.UUID)
	return v, ok
}

func TokenFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyToken).(string)
	return v, ok
}

func ClientFromContext(ctx context.Context) (domain.ClientContext, bool) {
	v, ok := ctx.Value(ContextKeyClient).(domain.ClientContext)
	return v, ok
}

// Client stores the request's audit client context so huma handlers, which
// never see the raw request, can attach it to ledger entries.
func Client() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), ContextKeyClient, ClientFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientFromRequest assembles the audit client context from the request.
// RealIP middleware has already rewritten RemoteAddr; the country hint comes
// from the upstream geo header when a proxy provides one.
func ClientFromRequest(r *http.Request) domain.ClientContext {
	return domain.ClientContext{
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
		Method:    r.Method,
		Path:      r.URL.Path,
		Country:   r.Header.Get("X-Geo-Country"),
	}
}
