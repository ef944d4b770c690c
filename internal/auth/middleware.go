package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/backend-resto/internal/common"
)

var errNoToken = errors.New("auth: token missing")

// Middleware authenticates customers by bearer token.
type Middleware struct {
	Verifier *Verifier
}

// RequireAuth answers 401 unless the request carries a valid bearer token.
// On success the caller's id and email are put on the context.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := m.identify(r)
		if err != nil {
			code, msg := "UNAUTHORIZED", "Authentication required"
			var appErr *common.AppError
			if errors.As(err, &appErr) {
				code, msg = appErr.Code, appErr.Message
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="resto"`)
			common.JSONError(w, http.StatusUnauthorized, code, msg, nil)
			return
		}

		ctx := common.WithUserID(r.Context(), id.UserID)
		if id.Email != "" {
			ctx = common.WithUserEmail(ctx, id.Email)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m Middleware) identify(r *http.Request) (Identity, error) {
	if m.Verifier == nil {
		return Identity{}, errors.New("auth: verifier not configured")
	}
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return Identity{}, unauthorized(errNoToken)
	}
	return m.Verifier.Verify(token)
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
