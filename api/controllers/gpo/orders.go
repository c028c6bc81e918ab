package gpo

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/gpo-backend/api/responses"
	"github.com/angelmondragon/gpo-backend/api/validators"
	"github.com/angelmondragon/gpo-backend/internal/grouporders"
	"github.com/angelmondragon/gpo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gpo-backend/pkg/errors"
	"github.com/angelmondragon/gpo-backend/pkg/logger"
)

// CreateOrder freezes a met demand key into a group order. Answers 201 for a
// new order and 200 when an active order for the key already existed.
func CreateOrder(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := currentGroup(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, created, err := svc.Create(r.Context(), group.ID, grouporders.CreateInput{
			ProductName:     req.ProductName,
			TargetMonth:     req.TargetMonth,
			UnitPriceGroup:  req.UnitPriceGroup,
			UnitPriceMarket: req.UnitPriceMarket,
			Actor:           actorFrom(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if created {
			responses.WriteCreated(w, toOrderDTO(order))
			return
		}
		responses.WriteSuccess(w, toOrderDTO(order))
	}
}

// ListOrders pages through the group's orders, newest first. Filters:
// ?month=, ?status=, ?limit= and ?cursor=.
func ListOrders(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
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
		limit, err := validators.ParseQueryInt(r, "limit", 0)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := grouporders.ListFilter{
			TargetMonth: month,
			Limit:       limit,
			Cursor:      strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseGroupOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid status").
					WithDetails(map[string]any{"field": "status"}))
				return
			}
			filter.Status = status
		}
		page, err := svc.List(r.Context(), group.ID, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := orderPageDTO{Items: make([]orderDTO, 0, len(page.Items)), Cursor: page.Cursor}
		for i := range page.Items {
			out.Items = append(out.Items, toOrderDTO(&page.Items[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func GetOrder(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := currentGroup(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), group.ID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderDTO(order))
	}
}

func OrderAllocations(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := currentGroup(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.Allocations(r.Context(), group.ID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]allocationDTO, 0, len(rows))
		for i := range rows {
			out = append(out, toAllocationDTO(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// ListFacilitationFees returns the group's fee ledger, newest first.
func ListFacilitationFees(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := currentGroup(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.FacilitationFees(r.Context(), group.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]facilitationFeeDTO, 0, len(rows))
		for i := range rows {
			out = append(out, toFacilitationFeeDTO(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// AdvanceOrder moves an order one step along its lifecycle.
func AdvanceOrder(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := currentGroup(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req advanceOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseGroupOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid status").
				WithDetails(map[string]any{"field": "status"}))
			return
		}
		order, err := svc.Advance(r.Context(), group.ID, orderID, status, actorFrom(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderDTO(order))
	}
}

func SetOrderPricing(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := currentGroup(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req pricingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.SetPricing(r.Context(), group.ID, orderID, grouporders.PricingInput{
			UnitPriceGroup:  *req.UnitPriceGroup,
			UnitPriceMarket: req.UnitPriceMarket,
			Actor:           actorFrom(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderDTO(order))
	}
}

func CancelOrder(svc grouporders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := currentGroup(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Cancel(r.Context(), group.ID, orderID, actorFrom(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderDTO(order))
	}
}
