package handlers

import (
	"net/http"

	"github.com/dropDatabas3/authkit/internal/auth"
	httperr "github.com/dropDatabas3/authkit/internal/http/errors"
	"github.com/dropDatabas3/authkit/internal/http/middlewares"
)

// MFAHandler agrupa los endpoints de enrolamiento TOTP. Todos requieren un
// access token válido: el userID sale de los claims, nunca del body.
type MFAHandler struct {
	svc *auth.Service
}

func NewMFAHandler(svc *auth.Service) *MFAHandler {
	return &MFAHandler{svc: svc}
}

type enrollResponse struct {
	Secret        string   `json:"secret"`
	EnrollmentURL string   `json:"enrollment_url"`
	BackupCodes   []string `json:"backup_codes"`
}

// Enroll maneja POST /v1/mfa/totp/enroll. El secreto y los backup codes en
// claro solo viajan en esta respuesta; el cliente debe guardarlos ahí.
func (h *MFAHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	userID := middlewares.GetUserID(r.Context())
	if userID == "" {
		httperr.WriteError(w, httperr.ErrUnauthorized)
		return
	}

	res, err := h.svc.SetupMFA(r.Context(), userID)
	if err != nil {
		httperr.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, enrollResponse{
		Secret:        res.Secret,
		EnrollmentURL: res.EnrollmentURL,
		BackupCodes:   res.BackupCodes,
	})
}

type verifyRequest struct {
	Code string `json:"code"`
}

// Verify maneja POST /v1/mfa/totp/verify: el primer código válido activa MFA.
func (h *MFAHandler) Verify(w http.ResponseWriter, r *http.Request) {
	userID := middlewares.GetUserID(r.Context())
	if userID == "" {
		httperr.WriteError(w, httperr.ErrUnauthorized)
		return
	}

	var req verifyRequest
	if !readStrictJSON(w, r, &req) {
		return
	}
	if req.Code == "" {
		httperr.WriteError(w, httperr.ErrMissingFields.WithDetail("code es requerido"))
		return
	}

	ok, err := h.svc.ConfirmMFA(r.Context(), userID, req.Code)
	if err != nil || !ok {
		httperr.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"enabled": true})
}

// Disable maneja POST /v1/mfa/totp/disable.
func (h *MFAHandler) Disable(w http.ResponseWriter, r *http.Request) {
	userID := middlewares.GetUserID(r.Context())
	if userID == "" {
		httperr.WriteError(w, httperr.ErrUnauthorized)
		return
	}

	if err := h.svc.DisableMFA(r.Context(), userID); err != nil {
		httperr.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
