package server

import (
	"context"
	"net/http"
	"strings"
)

type identityKey struct{}

// IdentityMiddleware resolves the caller identity from header, falling back
// to defaultUser when the header is absent. It never rejects a request:
// handlers decide whether an empty identity is acceptable.
func IdentityMiddleware(header, defaultUser string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(header))
			if id == "" {
				id = defaultUser
			}
			AddLogField(r.Context(), "user_id", id)
			ctx := context.WithValue(r.Context(), identityKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Identity returns the caller identity stored by IdentityMiddleware.
func Identity(ctx context.Context) string {
	id, _ := ctx.Value(identityKey{}).(string)
	return id
}
