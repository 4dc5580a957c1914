package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type contextKey string

const identityContextKey contextKey = "torb.identity"

// ErrNoIdentity is returned when a request reaches a protected handler
// without a resolved uploader identity.
var ErrNoIdentity = errors.New("no identity on request context")

// IdentityHeader carries the caller's resolved username. Authentication
// happens upstream; this service only consumes the resulting identity.
const IdentityHeader = "X-Torb-User"

// corsMiddleware applies permissive CORS headers and answers preflights.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range, "+IdentityHeader)
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// IdentityMiddleware extracts the resolved uploader identity and stores
// it on the request context. Requests without one are rejected.
func (h *APIHandler) IdentityMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := strings.TrimSpace(r.Header.Get(IdentityHeader))
		if username == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), identityContextKey, username)
		next(w, r.WithContext(ctx))
	}
}

// IdentityFromContext returns the resolved username for this request.
func IdentityFromContext(ctx context.Context) (string, error) {
	username, ok := ctx.Value(identityContextKey).(string)
	if !ok || username == "" {
		return "", ErrNoIdentity
	}
	return username, nil
}
