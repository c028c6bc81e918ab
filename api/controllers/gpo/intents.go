package gpo

import (
	"net/http"

	"github.com/angelmondragon/gpo-backend/api/responses"
	"github.com/angelmondragon/gpo-backend/api/validators"
	"github.com/angelmondragon/gpo-backend/internal/intents"
	"github.com/angelmondragon/gpo-backend/pkg/logger"
)

// SubmitIntent records the caller's demand for a product in a month.
func SubmitIntent(svc intents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		member, err := currentMember(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req submitIntentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.Notes != nil {
			notes := validators.SanitizeString(*req.Notes, 1000)
			req.Notes = &notes
		}
		intent, err := svc.Submit(r.Context(), member, intents.SubmitInput{
			ProductName:   req.ProductName,
			QuantityUnits: req.QuantityUnits,
			TargetMonth:   req.TargetMonth,
			Notes:         req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, toIntentDTO(intent))
	}
}

// ListIntents returns the caller's intents, newest first, optionally for one month.
func ListIntents(svc intents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		member, err := currentMember(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		month, err := validators.ParseQueryMonth(r, "month")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.List(r.Context(), member, month)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]intentDTO, 0, len(rows))
		for i := range rows {
			out = append(out, toIntentDTO(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// CancelIntent withdraws the caller's submitted intent. It answers 204 with
// no body.
func CancelIntent(svc intents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		member, err := currentMember(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		intentID, err := pathUUID(r, "intentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := svc.Cancel(r.Context(), member, intentID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
