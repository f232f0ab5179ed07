// Package handlers implementa los handlers HTTP de la API v1.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	httperr "github.com/dropDatabas3/authkit/internal/http/errors"
)

const maxJSONBody = 64 << 10 // 64KB

func readStrictJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Type")))
	if !strings.Contains(ct, "application/json") {
		httperr.WriteError(w, httperr.ErrInvalidJSON.WithDetail("se requiere Content-Type: application/json"))
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		msg := "json inválido"
		if err == io.EOF {
			msg = "body vacío"
		}
		httperr.WriteError(w, httperr.ErrInvalidJSON.WithDetail(msg))
		return false
	}

	// No debe haber datos extra
	if dec.More() {
		httperr.WriteError(w, httperr.ErrInvalidJSON.WithDetail("sobran datos en el body"))
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
