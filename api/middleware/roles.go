package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// RequireRole admits callers whose token role is one of allowed. It must run
// after Auth; an unauthenticated request is rejected as 401, a wrong role as 403.
func RequireRole(logg *logger.Logger, allowed ...enums.UserRole) func(http.Handler) http.Handler {
	accepted := make(map[enums.UserRole]struct{}, len(allowed))
	names := make([]string, 0, len(allowed))
	for _, role := range allowed {
		accepted[role] = struct{}{}
		names = append(names, role.String())
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := RoleFromContext(r.Context())
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			}
			role, err := enums.ParseUserRole(raw)
			if _, ok := accepted[role]; err != nil || !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "insufficient role").
					WithDetails(map[string]any{"required": strings.Join(names, "|")}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
