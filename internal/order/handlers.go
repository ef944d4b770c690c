package order

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/catalog"
	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/events"
)

const maxPerPage = 100

type orderResponse struct {
	Order
	TotalDisplay string `json:"totalDisplay"`
}

func present(o Order) orderResponse {
	return orderResponse{Order: o, TotalDisplay: catalog.MajorString(o.Total)}
}

func presentAll(orders []Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, present(o))
	}
	return out
}

// Handler serves the customer's own orders.
type Handler struct {
	Store Repository
}

// List returns the caller's orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20, maxPerPage)
	orders, total, err := h.Store.ListByUser(r.Context(), userID, perPage, common.Offset(page, perPage))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list orders", nil)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       presentAll(orders),
		"pagination": common.NewPagination(page, perPage, total),
	})
}

// Get returns one of the caller's orders with its items.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	o, err := h.Store.GetForUser(r.Context(), id, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": present(o)})
}

// AdminHandler provides administrative order management endpoints.
type AdminHandler struct {
	Store  Repository
	Events events.Emitter
	Logger zerolog.Logger
}

// List returns all orders, optionally filtered by ?status=.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	var filter Filter
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, ok := ParseStatus(raw)
		if !ok {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unsupported status", nil)
			return
		}
		filter.Status = st
	}
	page, perPage := common.ParsePagination(r, 50, maxPerPage)
	filter.Limit, filter.Offset = perPage, common.Offset(page, perPage)
	orders, total, err := h.Store.ListAll(r.Context(), filter)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list orders", nil)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       presentAll(orders),
		"pagination": common.NewPagination(page, perPage, total),
	})
}

type patchStatusRequest struct {
	Status string `json:"status"`
}

// PatchStatus updates the order status with state-machine validation.
func (h *AdminHandler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	var req patchStatusRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if req.Status == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "status is required", nil)
		return
	}
	target, ok := ParseStatus(req.Status)
	if !ok || !AdminTarget(target) {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unsupported status", nil)
		return
	}
	ctx := r.Context()
	tr, err := h.Store.UpdateStatus(ctx, id, target)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		case errors.Is(err, ErrInvalidTransition):
			common.JSONError(w, http.StatusConflict, "INVALID_STATE", "state transition not allowed",
				map[string]any{"from": tr.From, "to": tr.To})
		default:
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update order status", nil)
		}
		return
	}
	o, err := h.Store.Get(ctx, id)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return
	}
	if h.Events != nil {
		payload := events.OrderPayload{
			OrderID:       o.ID.String(),
			UserID:        o.UserID,
			Status:        string(tr.To),
			PreviousState: string(tr.From),
			TotalMinor:    o.Total,
			Currency:      o.Currency,
			IntentID:      o.PaymentIntentID,
		}
		if _, err := h.Events.Emit(ctx, events.TopicOrderStatusChanged, o.ID, payload); err != nil {
			h.Logger.Warn().Err(err).Str("order_id", o.ID.String()).Msg("emit status change")
		}
	}
	h.Logger.Info().Str("order_id", o.ID.String()).Str("from", string(tr.From)).Str("to", string(tr.To)).Msg("order status updated")
	common.JSON(w, http.StatusOK, map[string]any{"data": present(o)})
}
