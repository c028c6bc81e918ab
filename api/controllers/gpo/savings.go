package gpo

import (
	"net/http"

	"github.com/angelmondragon/gpo-backend/api/responses"
	"github.com/angelmondragon/gpo-backend/internal/savings"
	"github.com/angelmondragon/gpo-backend/pkg/logger"
)

// GroupSavings ranks the group's members by realised savings.
func GroupSavings(svc savings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := currentGroup(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.GroupSummary(r.Context(), group.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if rows == nil {
			rows = []savings.MemberSavings{}
		}
		responses.WriteSuccess(w, rows)
	}
}

func MySavings(svc savings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		member, err := currentMember(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		detail, err := svc.MemberDetail(r.Context(), member.GroupID, member.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toMemberSavingsDTO(detail))
	}
}
