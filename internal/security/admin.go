package security

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-resto/internal/common"
)

const (
	defaultAdminPageSize = 50
	maxAdminPageSize     = 200
)

var defaultValidate = validator.New(validator.WithRequiredStructEnabled())

// AdminHandler serves alert triage and IP block management.
type AdminHandler struct {
	Alerts   AlertStore
	Blocks   *Blocklist
	Validate *validator.Validate
	Now      func() time.Time
}

// ListAlerts handles GET /admin/security/alerts?status=open|all.
func (h *AdminHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	if h.Alerts == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "ALERTS_NOT_CONFIGURED", "alert store not configured", nil)
		return
	}
	var filter AlertFilter
	switch r.URL.Query().Get("status") {
	case "", "all":
	case "open":
		filter.OpenOnly = true
	default:
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unsupported status", nil)
		return
	}
	page, perPage := common.ParsePagination(r, defaultAdminPageSize, maxAdminPageSize)
	filter.Limit, filter.Offset = perPage, common.Offset(page, perPage)
	alerts, err := h.Alerts.ListAlerts(r.Context(), filter)
	if err != nil {
		common.WriteError(w, common.NewAppError("INTERNAL", "failed to list alerts", http.StatusInternalServerError, err))
		return
	}
	if alerts == nil {
		alerts = []Alert{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"items": alerts, "page": page, "per_page": perPage})
}

// ResolveAlert handles POST /admin/security/alerts/{id}/resolve.
func (h *AdminHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	if h.Alerts == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "ALERTS_NOT_CONFIGURED", "alert store not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid alert id", nil)
		return
	}
	err = h.Alerts.ResolveAlert(r.Context(), id, actor(r), h.now().UTC())
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "alert not found", nil)
	case err != nil:
		common.WriteError(w, common.NewAppError("INTERNAL", "failed to resolve alert", http.StatusInternalServerError, err))
	default:
		common.JSON(w, http.StatusOK, map[string]any{"id": id, "resolved": true})
	}
}

// ListBlocks handles GET /admin/security/blocked-ips?active=true.
func (h *AdminHandler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	if h.Blocks == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "BLOCKLIST_NOT_CONFIGURED", "blocklist not configured", nil)
		return
	}
	activeOnly := r.URL.Query().Get("active") != "false"
	page, perPage := common.ParsePagination(r, defaultAdminPageSize, maxAdminPageSize)
	blocks, err := h.Blocks.List(r.Context(), activeOnly, perPage, common.Offset(page, perPage))
	if err != nil {
		common.WriteError(w, common.NewAppError("INTERNAL", "failed to list blocked ips", http.StatusInternalServerError, err))
		return
	}
	if blocks == nil {
		blocks = []BlockedIP{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"items": blocks, "page": page, "per_page": perPage})
}

type blockRequest struct {
	IP     string `json:"ip_address" validate:"required,ip"`
	Reason string `json:"reason" validate:"required,max=500"`
}

// BlockIP handles POST /admin/security/blocked-ips.
func (h *AdminHandler) BlockIP(w http.ResponseWriter, r *http.Request) {
	if h.Blocks == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "BLOCKLIST_NOT_CONFIGURED", "blocklist not configured", nil)
		return
	}
	var req blockRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validator().Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "ip_address and reason are required", nil)
		return
	}
	rec, err := h.Blocks.Block(r.Context(), req.IP, req.Reason, actor(r))
	switch {
	case errors.Is(err, ErrInvalidIP):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid ip address", nil)
	case errors.Is(err, ErrAlreadyBlocked):
		common.JSONError(w, http.StatusConflict, "ALREADY_BLOCKED", "ip address already blocked", nil)
	case err != nil:
		common.WriteError(w, common.NewAppError("INTERNAL", "failed to block ip", http.StatusInternalServerError, err))
	default:
		common.JSON(w, http.StatusCreated, rec)
	}
}

// UnblockIP handles DELETE /admin/security/blocked-ips/{id}.
func (h *AdminHandler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	if h.Blocks == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "BLOCKLIST_NOT_CONFIGURED", "blocklist not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid block id", nil)
		return
	}
	err = h.Blocks.Unblock(r.Context(), id, actor(r))
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "active block not found", nil)
	case err != nil:
		common.WriteError(w, common.NewAppError("INTERNAL", "failed to unblock ip", http.StatusInternalServerError, err))
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// actor names the admin for resolved_by and blocked_by. PIN-only admins
// carry no user id, so the caller address stands in.
func actor(r *http.Request) string {
	if id, ok := common.UserID(r.Context()); ok && id != "" {
		return id
	}
	return "admin@" + common.ClientIP(r)
}

func (h *AdminHandler) validator() *validator.Validate {
	if h.Validate != nil {
		return h.Validate
	}
	return defaultValidate
}

func (h *AdminHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
