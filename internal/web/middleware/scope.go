package middleware

import (
	"net/http"
	"strings"

	"github.com/JonMunkholm/memberimport/internal/core"
)

// Header names carrying the import scope.
const (
	HeaderOrganisationID = "X-Organisation-Id"
	HeaderBranchID       = "X-Branch-Id"
)

// RequestScope attaches the client IP and, when the organisation header is
// present, the import scope to the request context.
func RequestScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := core.ContextWithClientIP(r.Context(), ClientIP(r))

		if org := strings.TrimSpace(r.Header.Get(HeaderOrganisationID)); org != "" {
			ctx = core.ContextWithScope(ctx, core.Scope{
				OrganisationID: org,
				BranchID:       strings.TrimSpace(r.Header.Get(HeaderBranchID)),
			})
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
