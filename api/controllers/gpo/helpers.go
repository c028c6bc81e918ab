// Package gpo holds the HTTP controllers for groups, intents, demand, group
// orders and savings. Every group-scoped handler expects GroupContext to have
// run.
package gpo

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/gpo-backend/api/middleware"
	"github.com/angelmondragon/gpo-backend/api/validators"
	"github.com/angelmondragon/gpo-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gpo-backend/pkg/errors"
	"github.com/angelmondragon/gpo-backend/pkg/outbox"
)

func currentGroup(r *http.Request) (*models.GpoGroup, error) {
	group := middleware.GroupFromContext(r.Context())
	if group == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "group context missing")
	}
	return group, nil
}

// currentMember returns the caller's member row; platform admins browsing a
// group they do not belong to have none.
func currentMember(r *http.Request) (*models.GpoMember, error) {
	member := middleware.MemberFromContext(r.Context())
	if member == nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "group membership required")
	}
	return member, nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return validators.ParseUUID(chi.URLParam(r, name), name)
}

func actorFrom(r *http.Request) *outbox.ActorRef {
	userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return nil
	}
	actor := &outbox.ActorRef{UserID: userID, Role: middleware.RoleFromContext(r.Context())}
	if member := middleware.MemberFromContext(r.Context()); member != nil {
		id := member.ID
		actor.MemberID = &id
	}
	return actor
}
