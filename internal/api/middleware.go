package api

import (
	"net/http"
	"strings"

	"github.com/putto11262002/roomsync/pkg/router"
)

// BearerMiddleware switches the device identity to the bearer token of the request, if any.
// Requests without an Authorization header keep the current identity.
func BearerMiddleware(tokens Tokens) router.Middleware {
	return func(next http.Handler) router.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) error {
			header := r.Header.Get("Authorization")
			if header != "" {
				token, ok := strings.CutPrefix(header, "Bearer ")
				if !ok || token == "" {
					return router.NewJsonError(http.StatusUnauthorized, "malformed authorization header")
				}
				if _, err := tokens.SetToken(token); err != nil {
					return err
				}
			}
			next.ServeHTTP(w, r)
			return nil
		}
	}
}
