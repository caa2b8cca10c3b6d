package web

import (
	"context"
	"crypto/subtle"
	"net/http"
)

type operatorKey struct{}

// operatorFrom returns the operator name authMiddleware stored on the request.
func operatorFrom(ctx context.Context) string {
	name, _ := ctx.Value(operatorKey{}).(string)
	return name
}

// authMiddleware admits requests carrying a valid operator token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, ok := parseAuthToken(requestToken(r), s.adminSecret, s.now())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), operatorKey{}, name)))
	})
}

// triggerGuard checks the shared bearer secret of the trigger and enqueue
// routes. With no secret configured every request is let through.
func (s *Server) triggerGuard(next http.Handler) http.Handler {
	if s.triggerSecret == "" {
		return next
	}
	secret := []byte(s.triggerSecret)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if subtle.ConstantTimeCompare([]byte(bearerToken(r)), secret) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
