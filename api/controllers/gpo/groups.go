package gpo

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/gpo-backend/api/middleware"
	"github.com/angelmondragon/gpo-backend/api/responses"
	"github.com/angelmondragon/gpo-backend/api/validators"
	"github.com/angelmondragon/gpo-backend/internal/groups"
	"github.com/angelmondragon/gpo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gpo-backend/pkg/errors"
	"github.com/angelmondragon/gpo-backend/pkg/logger"
)

// CreateGroup registers a new buying collective. Platform admins only.
func CreateGroup(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createGroupRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		group, err := svc.CreateGroup(r.Context(), groups.CreateGroupInput{
			Slug:                    req.Slug,
			Name:                    validators.SanitizeString(req.Name, 200),
			Description:             req.Description,
			Tier:                    req.Tier,
			FacilitationFeeRate:     req.FacilitationFeeRate,
			MinAggregationThreshold: req.MinAggregationThreshold,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, toGroupDTO(group))
	}
}

// ListGroups returns every group for platform admins and the caller's
// groups otherwise.
func ListGroups(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var scope *uuid.UUID
		if !middleware.IsPlatformAdmin(r) {
			userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
				return
			}
			scope = &userID
		}
		rows, err := svc.ListGroups(r.Context(), scope)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]groupDTO, 0, len(rows))
		for i := range rows {
			out = append(out, toGroupDTO(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func GetGroup(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := currentGroup(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toGroupDTO(group))
	}
}

func UpdateGroup(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := currentGroup(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req updateGroupRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		updated, err := svc.UpdateGroup(r.Context(), group.ID, groups.UpdateGroupInput{
			Name:                    req.Name,
			Description:             req.Description,
			FacilitationFeeRate:     req.FacilitationFeeRate,
			MinAggregationThreshold: req.MinAggregationThreshold,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toGroupDTO(updated))
	}
}

func ListMembers(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := currentGroup(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListMembers(r.Context(), group.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]memberDTO, 0, len(rows))
		for i := range rows {
			out = append(out, toMemberDTO(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func AddMember(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := currentGroup(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req addMemberRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		member, err := svc.AddMember(r.Context(), group.ID, groups.AddMemberInput{
			UserID:          req.UserID,
			InstitutionName: validators.SanitizeString(req.InstitutionName, 200),
			InstitutionType: enums.InstitutionType(req.InstitutionType),
			Role:            enums.MemberRole(req.Role),
			RUT:             req.RUT,
			ContactName:     req.ContactName,
			ContactEmail:    req.ContactEmail,
			ContactPhone:    req.ContactPhone,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, toMemberDTO(member))
	}
}

// RemoveMember takes a member out of the group and withdraws its open
// intents. Answers 204.
func RemoveMember(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := currentGroup(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		memberID, err := pathUUID(r, "memberId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.RemoveMember(r.Context(), group.ID, memberID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ListThresholds(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := currentGroup(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		table, err := svc.Thresholds(r.Context(), group.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListThresholds(r.Context(), group.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, thresholdsFrom(table, rows))
	}
}

func SetThreshold(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := currentGroup(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req setThresholdRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.SetThreshold(r.Context(), group.ID, req.ProductName, req.Threshold)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toThresholdDTO(row))
	}
}
