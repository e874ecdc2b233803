package recovery

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/pion/logging"
)

// RecoveryMiddleware recovers from panics and logs them
func RecoveryMiddleware(logger logging.LeveledLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				// Log the panic with full stack trace
				logger.Errorf("PANIC: %v\nStack trace:\n%s", err, debug.Stack())

				// Send error response if headers haven't been written
				if !isHeaderWritten(w) {
					http.Error(w, fmt.Sprintf("Internal server error: %v", err), http.StatusInternalServerError)
				}
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// isHeaderWritten approximates whether a response has been started
func isHeaderWritten(w http.ResponseWriter) bool {
	// Only the header map is inspected: a set Content-Type or Content-Length
	// counts as started. Whether WriteHeader was actually called is not seen.
	return w.Header().Get("Content-Type") != "" || w.Header().Get("Content-Length") != ""
}
