package checkout

import (
	"net/http"

	"github.com/noah-isme/backend-resto/internal/common"
)

// Handler exposes the order-creation endpoint.
type Handler struct {
	Svc *Service
}

// CreateIntent handles POST /api/v1/payments/intents.
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "please try again later", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
		return
	}
	var payload Request
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_ORDER", "invalid order", nil)
		return
	}
	out, err := h.Svc.CreateIntent(r.Context(), userID, payload)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, out)
}
