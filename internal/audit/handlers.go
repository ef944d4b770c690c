package audit

import (
	"net/http"

	"github.com/noah-isme/backend-resto/internal/common"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Handler serves the admin audit trail.
type Handler struct {
	Store Store
}

type listResponse struct {
	Items   []Entry `json:"items"`
	Page    int     `json:"page"`
	PerPage int     `json:"per_page"`
}

// List handles GET /api/v1/admin/audit?page=&limit=, newest entries first.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "AUDIT_NOT_CONFIGURED", "audit store not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, defaultPageSize, maxPageSize)

	rows, err := h.Store.List(r.Context(), perPage, common.Offset(page, perPage))
	if err != nil {
		common.WriteError(w, common.NewAppError("AUDIT_QUERY_FAILED", "unable to fetch audit logs", http.StatusInternalServerError, err))
		return
	}
	if rows == nil {
		rows = []Entry{}
	}
	common.JSON(w, http.StatusOK, listResponse{Items: rows, Page: page, PerPage: perPage})
}
