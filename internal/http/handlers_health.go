package httpx

import (
	"context"
	"io"
	"net/http"
	"time"
)

const (
	healthResponse      = `{"status":"ok"}`
	unhealthyResponse   = `{"status":"unavailable"}`
	healthCheckDeadline = 2 * time.Second
)

// HealthCheck reports whether a dependency the service needs is reachable.
type HealthCheck func(ctx context.Context) error

// healthHandler answers readiness/liveness checks. A failing check turns the answer
// into 503.
func healthHandler(check HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, body := http.StatusOK, healthResponse
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckDeadline)
			err := check(ctx)
			cancel()
			if err != nil {
				status, body = http.StatusServiceUnavailable, unhealthyResponse
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := io.WriteString(w, body); err != nil {
			// Nothing more to do if the client connection is gone.
			return
		}
	}
}
