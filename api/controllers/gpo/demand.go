package gpo

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/gpo-backend/api/responses"
	"github.com/angelmondragon/gpo-backend/api/validators"
	"github.com/angelmondragon/gpo-backend/internal/demand"
	"github.com/angelmondragon/gpo-backend/pkg/logger"
	"github.com/angelmondragon/gpo-backend/pkg/types"
)

// GroupDemand projects the live demand of a group for ?month= (default the
// current month). ?product= narrows the projection to one key.
func GroupDemand(svc demand.Service, now func() time.Time, logg *logger.Logger) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := currentGroup(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		month, err := validators.ParseQueryMonth(r, "month")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if month == "" {
			month = types.MonthOf(now()).String()
		}

		if product := strings.TrimSpace(r.URL.Query().Get("product")); product != "" {
			row, err := svc.ForKey(r.Context(), group.ID, product, month)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, []demand.AggregatedDemand{row})
			return
		}

		rows, err := svc.Aggregate(r.Context(), group.ID, month)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if rows == nil {
			rows = []demand.AggregatedDemand{}
		}
		responses.WriteSuccess(w, rows)
	}
}
