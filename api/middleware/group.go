package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/gpo-backend/api/responses"
	"github.com/angelmondragon/gpo-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gpo-backend/pkg/errors"
	"github.com/angelmondragon/gpo-backend/pkg/logger"
)

// GroupResolver loads a group and the caller's membership in it.
type GroupResolver interface {
	GetBySlug(ctx context.Context, slug string) (*models.GpoGroup, error)
	ResolveMember(ctx context.Context, groupID, userID uuid.UUID) (*models.GpoMember, error)
}

// GroupContext resolves the {slug} path parameter into the group and the
// caller's active member row. Callers without a member row are rejected
// unless they are platform admins.
func GroupContext(resolver GroupResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			slug := strings.TrimSpace(chi.URLParam(r, "slug"))
			if slug == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "group slug required"))
				return
			}
			userID, err := uuid.Parse(UserIDFromContext(ctx))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
				return
			}

			group, err := resolver.GetBySlug(ctx, slug)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			member, err := resolver.ResolveMember(ctx, group.ID, userID)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if member == nil && !IsPlatformAdmin(r) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "not a member of this group"))
				return
			}

			ctx = WithGroup(ctx, group, member)
			if logg != nil {
				ctx = logg.WithGroupID(ctx, group.ID.String())
				if member != nil {
					ctx = logg.WithMemberID(ctx, member.ID.String())
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
