package handlers

import "net/http"

// Healthz reports process liveness for load balancers and probes.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
