package handlers

import (
	"net/http"
	"time"

	"github.com/dropDatabas3/authkit/internal/domain/repository"
	httperr "github.com/dropDatabas3/authkit/internal/http/errors"
	"github.com/dropDatabas3/authkit/internal/http/middlewares"
)

// MeHandler expone el perfil del usuario autenticado.
type MeHandler struct {
	users repository.UserRepository
}

func NewMeHandler(users repository.UserRepository) *MeHandler {
	return &MeHandler{users: users}
}

type meResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username,omitempty"`
	Roles       []string  `json:"roles,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	MFAEnabled  bool      `json:"mfa_enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

// Me maneja GET /v1/auth/me.
func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middlewares.GetUserID(r.Context())
	if userID == "" {
		httperr.WriteError(w, httperr.ErrUnauthorized)
		return
	}

	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		httperr.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		Roles:       u.Roles,
		Permissions: u.Permissions,
		MFAEnabled:  u.MFA.Enabled,
		CreatedAt:   u.CreatedAt,
	})
}
