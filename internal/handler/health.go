package handler

import (
	"context"
	"net/http"
)

// Pinger is a dependency the service needs to be reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports healthy when every named dependency answers a ping.
func HealthHandler(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := make(map[string]string, len(deps))
		healthy := true
		for name, p := range deps {
			if err := p.Ping(r.Context()); err != nil {
				checks[name] = err.Error()
				healthy = false
				continue
			}
			checks[name] = "ok"
		}

		if !healthy {
			RespondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"checks": checks,
			})
			return
		}
		RespondJSON(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"checks": checks,
		})
	}
}
