package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/hugh/voxpopulous/internal/api/dto"
)

// Recovery turns a handler panic into a 500 JSON response.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, dto.CodeInternal, "Internal server error", nil)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
