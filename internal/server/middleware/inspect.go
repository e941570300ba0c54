package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/gosuda/sentinel/internal/domain"
)

// maxInspectBytes bounds how much of a request body the inspector reads.
// Signatures past this prefix are the handler's own validation problem.
const maxInspectBytes = 64 << 10

// Inspector screens a request surface for injection signatures; implemented
// by the engine. A true return means the request must be rejected.
type Inspector interface {
	InspectRequest(ctx context.Context, actorID *uuid.UUID, client domain.ClientContext, payload string) bool
}

// Inspect screens the request path, query string, and a bounded prefix of
// the body against the injection signature set before the handler runs.
// Matches are already audited and alerted by the inspector; the middleware
// only rejects. The consumed body prefix is re-seated so handlers still see
// the full stream.
func Inspect(inspector Inspector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var actorID *uuid.UUID
			if id, ok := PrincipalIDFromContext(r.Context()); ok {
				actorID = &id
			}

			// Match both the raw and the decoded query so percent-encoding
			// does not slip a signature past the raw scan.
			payload := r.URL.RawQuery + " " + flattenQuery(r.URL.Query())

			if r.Body != nil && r.Body != http.NoBody {
				prefix, err := io.ReadAll(io.LimitReader(r.Body, maxInspectBytes))
				if err != nil {
					http.Error(w, `{"title":"Bad Request","status":400,"detail":"malformed request body"}`, http.StatusBadRequest)
					return
				}
				payload += " " + string(prefix)
				r.Body = reseatBody{
					Reader: io.MultiReader(bytes.NewReader(prefix), r.Body),
					Closer: r.Body,
				}
			}

			if inspector.InspectRequest(r.Context(), actorID, ClientFromRequest(r), payload) {
				http.Error(w, `{"title":"Bad Request","status":400,"detail":"request rejected"}`, http.StatusBadRequest)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// reseatBody prepends the inspected prefix back onto the remaining body
// stream while keeping the original closer.
type reseatBody struct {
	io.Reader
	io.Closer
}

func flattenQuery(values map[string][]string) string {
	var out string
	for key, vals := range values {
		out += key
		for _, v := range vals {
			out += " " + v
		}
		out += " "
	}
	return out
}
