package audit

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/obs"
)

// HTTPRecorder writes an audit entry after each wrapped request completes,
// whatever its outcome.
type HTTPRecorder struct {
	Service   *Service
	OnError   func(error)
	ActorFunc func(*http.Request) Actor
}

// HTTPConfig describes the audited route.
type HTTPConfig struct {
	Action          string
	ResourceType    string
	ResourceIDParam string
	MetadataFunc    func(*http.Request, int) map[string]any
	ActorFunc       func(*http.Request) Actor
}

func (r HTTPRecorder) Middleware(cfg HTTPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if r.Service == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !r.Service.Enabled {
				next.ServeHTTP(w, req)
				return
			}
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			next.ServeHTTP(ww, req)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if rc := chi.RouteContext(req.Context()); rc != nil && obs.RoutePatternFromContext(req.Context()) == "" {
				req = req.WithContext(obs.WithRoutePattern(req.Context(), rc.RoutePattern()))
			}

			err := r.Service.Record(req.Context(), r.resolveActor(cfg, req), cfg.Action, cfg.ResourceType,
				resourceID(req, cfg.ResourceIDParam), req, status, metadata(cfg, req, status))
			if err != nil && r.OnError != nil {
				r.OnError(err)
			}
		})
	}
}

func (r HTTPRecorder) resolveActor(cfg HTTPConfig, req *http.Request) Actor {
	switch {
	case cfg.ActorFunc != nil:
		return cfg.ActorFunc(req)
	case r.ActorFunc != nil:
		return r.ActorFunc(req)
	}
	ctx := req.Context()
	userID, _ := common.UserID(ctx)
	switch {
	case common.IsAdmin(ctx):
		return Actor{Kind: ActorKindAdmin, UserID: userID}
	case userID != "":
		return Actor{Kind: ActorKindUser, UserID: userID}
	default:
		return Actor{Kind: ActorKindAnonymous}
	}
}

func resourceID(req *http.Request, param string) string {
	if param == "" {
		return ""
	}
	return chi.URLParam(req, param)
}

func metadata(cfg HTTPConfig, req *http.Request, status int) []byte {
	if cfg.MetadataFunc == nil {
		return nil
	}
	payload := cfg.MetadataFunc(req, status)
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}
