// Package errors define el tipo AppError de la API y el mapeo desde los
// errores de dominio hacia códigos HTTP estables.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dropDatabas3/authkit/internal/domain/repository"
)

// errorResponse estructura interna para la serialización JSON.
// Esto nos permite controlar exactamente qué campos se envían al cliente.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// WriteError escribe una respuesta HTTP basada en el error proporcionado.
// Maneja automáticamente errores de tipo *AppError, errores de dominio y
// errores genéricos.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	resp := errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

// FromError convierte cualquier error en un AppError: primero respeta un
// *AppError explícito, después mapea los sentinels de dominio y por último
// cae en error interno genérico conservando la causa.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if mapped := mapDomain(err); mapped != nil {
		return mapped
	}
	return ErrInternalServerError.WithCause(err)
}

// mapDomain traduce los errores de dominio del engine a su AppError.
// El orden importa: los sentinels más específicos van primero.
func mapDomain(err error) *AppError {
	var policy *repository.PolicyViolationError
	if errors.As(err, &policy) {
		return ErrPolicyViolation.WithDetail(strings.Join(policy.Reasons, ", ")).WithCause(err)
	}

	switch {
	case errors.Is(err, repository.ErrInvalidCredentials):
		return ErrInvalidCredentials.WithCause(err)
	case errors.Is(err, repository.ErrAccountLocked):
		return ErrAccountLocked.WithCause(err)
	case errors.Is(err, repository.ErrUserDisabled):
		return ErrAccountDisabled.WithCause(err)
	case errors.Is(err, repository.ErrMFARequired):
		return ErrMFARequired.WithCause(err)
	case errors.Is(err, repository.ErrInvalidMFACode):
		return ErrInvalidMFACode.WithCause(err)
	case errors.Is(err, repository.ErrTokenReuse):
		return ErrTokenReuse.WithCause(err)
	case errors.Is(err, repository.ErrTokenExpired):
		return ErrTokenExpired.WithCause(err)
	case errors.Is(err, repository.ErrInvalidToken):
		return ErrTokenInvalid.WithCause(err)
	case errors.Is(err, repository.ErrConflict):
		return ErrConflict.WithCause(err)
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound.WithCause(err)
	case errors.Is(err, repository.ErrInvalidInput):
		return ErrBadRequest.WithCause(err)
	}
	return nil
}
