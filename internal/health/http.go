package health

import (
	"encoding/json"
	"net/http"
)

// Handler serves /healthz, answering 200 when ready and 503 otherwise.
func Handler(manager *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail := manager.GetDetailedHealth(r.Context())

		status := http.StatusOK
		if !detail.Overall.Ready {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(detail)
	}
}
