package catalog

import (
	"net/http"
	"strings"

	"github.com/noah-isme/backend-resto/internal/common"
)

// Handler exposes the public menu endpoint.
type Handler struct {
	holder *Holder
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Holder *Holder
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{holder: cfg.Holder}
}

// Menu handles GET /api/v1/menu.
func (h *Handler) Menu(w http.ResponseWriter, r *http.Request) {
	c, err := h.holder.Current()
	if err != nil {
		common.JSONError(w, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", "menu is temporarily unavailable", nil)
		return
	}
	etag := `"` + c.Version() + `"`
	if c.Version() != "" {
		w.Header().Set("ETag", etag)
		if match := strings.TrimSpace(r.Header.Get("If-None-Match")); match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"version":    c.Version(),
			"currency":   c.Currency(),
			"categories": c.Categories(),
		},
	})
}
