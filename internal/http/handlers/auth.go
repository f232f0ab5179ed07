package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/authkit/internal/auth"
	httperr "github.com/dropDatabas3/authkit/internal/http/errors"
	"github.com/dropDatabas3/authkit/internal/http/middlewares"
	"github.com/dropDatabas3/authkit/internal/token"
)

// AuthHandler agrupa los endpoints de autenticación.
type AuthHandler struct {
	svc *auth.Service
}

func NewAuthHandler(svc *auth.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// ============================================================================
// Register
// ============================================================================

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

type registerResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
}

// Register maneja POST /v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !readStrictJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		httperr.WriteError(w, httperr.ErrMissingFields.WithDetail("email y password son requeridos"))
		return
	}

	u, err := h.svc.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		httperr.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		ID:       u.ID,
		Email:    u.Email,
		Username: u.Username,
	})
}

// ============================================================================
// Login / Refresh / Logout
// ============================================================================

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	MFACode    string `json:"mfa_code,omitempty"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	// ExpiresIn es la vida restante del access token en segundos.
	ExpiresIn int64 `json:"expires_in"`
}

func pairResponse(p *token.Pair) tokenResponse {
	return tokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(p.ExpiresAt).Seconds()),
	}
}

// Login maneja POST /v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !readStrictJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Identifier) == "" || req.Password == "" {
		httperr.WriteError(w, httperr.ErrMissingFields.WithDetail("identifier y password son requeridos"))
		return
	}

	pair, err := h.svc.Login(r.Context(), auth.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
		MFACode:    req.MFACode,
	})
	if err != nil {
		httperr.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pairResponse(pair))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh maneja POST /v1/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !readStrictJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httperr.WriteError(w, httperr.ErrMissingFields.WithDetail("refresh_token es requerido"))
		return
	}

	pair, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httperr.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pairResponse(pair))
}

// Logout maneja POST /v1/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !readStrictJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httperr.WriteError(w, httperr.ErrMissingFields.WithDetail("refresh_token es requerido"))
		return
	}

	if err := h.svc.Logout(r.Context(), req.RefreshToken); err != nil {
		httperr.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// Password
// ============================================================================

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword maneja PUT /v1/auth/password (requiere auth).
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := middlewares.GetUserID(r.Context())
	if userID == "" {
		httperr.WriteError(w, httperr.ErrUnauthorized)
		return
	}

	var req changePasswordRequest
	if !readStrictJSON(w, r, &req) {
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		httperr.WriteError(w, httperr.ErrMissingFields.WithDetail("current_password y new_password son requeridos"))
		return
	}

	if err := h.svc.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		httperr.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Deactivate maneja DELETE /v1/auth/me: desactiva la cuenta propia.
// El registro no se borra; email y username quedan reservados.
func (h *AuthHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	userID := middlewares.GetUserID(r.Context())
	if userID == "" {
		httperr.WriteError(w, httperr.ErrUnauthorized)
		return
	}

	if err := h.svc.Deactivate(r.Context(), userID); err != nil {
		httperr.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
