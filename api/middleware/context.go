package middleware

import (
	"context"

	"github.com/angelmondragon/gpo-backend/pkg/db/models"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
	ctxGroup  contextKey = "gpo_group"
	ctxMember contextKey = "gpo_member"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// GroupFromContext returns the group resolved from the {slug} path segment.
func GroupFromContext(ctx context.Context) *models.GpoGroup {
	if ctx == nil {
		return nil
	}
	group, _ := ctx.Value(ctxGroup).(*models.GpoGroup)
	return group
}

// MemberFromContext returns the caller's member row in the current group, or
// nil for platform admins who are not members.
func MemberFromContext(ctx context.Context) *models.GpoMember {
	if ctx == nil {
		return nil
	}
	member, _ := ctx.Value(ctxMember).(*models.GpoMember)
	return member
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithRole injects the platform role into the context.
func WithRole(ctx context.Context, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRole, role)
}

// WithGroup injects the resolved group and caller membership.
func WithGroup(ctx context.Context, group *models.GpoGroup, member *models.GpoMember) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxGroup, group)
	return context.WithValue(ctx, ctxMember, member)
}
