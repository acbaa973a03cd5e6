package health

import (
	"io"
	"net/http"
)

// Liveness indicates if the service process is running.
// Always returns "ALIVE" with 200 OK. No dependency checks.
//
// Example:
//
//	mux.HandleFunc("GET /health/live", health.Liveness)
func Liveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ALIVE")
}

// NoContent returns HTTP 204 without body. Ideal for high-frequency checks.
func NoContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
