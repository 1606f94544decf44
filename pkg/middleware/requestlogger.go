package middleware

import (
	"log/slog"
	"net/http"

	"github.com/riteshshukladev/wrapper/pkg/logger"
)

// RequestLogger stores a logger enriched with the request's correlation, user
// and trace ids in the context. Mount it after RequestLogging and Tracing; Auth
// adds the user id for the protected routes it guards.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
