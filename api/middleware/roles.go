package middleware

import (
	"net/http"

	"github.com/angelmondragon/gpo-backend/api/responses"
	pkgerrors "github.com/angelmondragon/gpo-backend/pkg/errors"
	"github.com/angelmondragon/gpo-backend/pkg/logger"
)

// RequirePlatformAdmin admits only callers whose token carries the admin role.
func RequirePlatformAdmin(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsPlatformAdmin(r) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "platform admin required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireGroupAdmin admits group admins and platform admins. It must run
// after GroupContext.
func RequireGroupAdmin(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPlatformAdmin(r) {
				next.ServeHTTP(w, r)
				return
			}
			member := MemberFromContext(r.Context())
			if member == nil || !member.IsAdmin() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "group admin required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
