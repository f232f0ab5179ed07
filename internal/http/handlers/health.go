package handlers

import "net/http"

// Healthz maneja GET /healthz: liveness sin dependencias.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
