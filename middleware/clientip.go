package middleware

import (
	"context"
	"net/http"

	"github.com/dmitrymomot/mailbox/pkg/clientip"
)

type clientIPContextKey struct{}

// ClientIP stores the client address, resolved through proxy headers, in the
// request context.
func ClientIP() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientip.GetIP(r)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIPContextKey{}, ip)))
		})
	}
}

// GetClientIP returns the address stored by ClientIP.
func GetClientIP(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(clientIPContextKey{}).(string)
	return ip, ok
}
