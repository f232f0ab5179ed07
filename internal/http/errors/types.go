package errors

import (
	"fmt"
	"net/http"
)

// AppError define la estructura estándar para errores de la API
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"` // No se serializa, usado para el header
	Err        error  `json:"-"` // Error original (causa), útil para logs, no se expone al cliente
}

// Error implementa la interfaz error
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap permite acceder al error original
func (e *AppError) Unwrap() error {
	return e.Err
}

// New crea un nuevo AppError
func New(status int, code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
	}
}

// WithDetail agrega detalles adicionales al error (útil para validaciones).
// Devuelve una COPIA del error para no mutar las variables globales base.
func (e *AppError) WithDetail(detail string) *AppError {
	newErr := *e
	newErr.Detail = detail
	return &newErr
}

// WithCause agrega el error original (causa). Devuelve una COPIA del error.
func (e *AppError) WithCause(err error) *AppError {
	newErr := *e
	newErr.Err = err
	return &newErr
}

// =================================================================================
// LISTA DE ERRORES PREDEFINIDOS
// =================================================================================

// ---------------------------------------------------------------------------------
// 400 Bad Request - Errores de Cliente / Validación
// ---------------------------------------------------------------------------------

var (
	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "La solicitud contiene sintaxis inválida o parámetros faltantes.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidJSON = &AppError{
		Code:       "INVALID_JSON",
		Message:    "El cuerpo de la solicitud no es un JSON válido.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrMissingFields = &AppError{
		Code:       "MISSING_FIELDS",
		Message:    "Faltan campos requeridos en la solicitud.",
		HTTPStatus: http.StatusBadRequest,
	}
)

// ---------------------------------------------------------------------------------
// 401 Unauthorized - Errores de Autenticación
// ---------------------------------------------------------------------------------

var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "No autorizado. Se requiere autenticación.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidCredentials = &AppError{
		Code:       "INVALID_CREDENTIALS",
		Message:    "Las credenciales proporcionadas son inválidas.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrMFARequired = &AppError{
		Code:       "MFA_REQUIRED",
		Message:    "Se requiere un código de segundo factor para completar el login.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidMFACode = &AppError{
		Code:       "INVALID_MFA_CODE",
		Message:    "El código de segundo factor es inválido.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenExpired = &AppError{
		Code:       "TOKEN_EXPIRED",
		Message:    "El token ha expirado.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenInvalid = &AppError{
		Code:       "TOKEN_INVALID",
		Message:    "El token es inválido o está malformado.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenReuse = &AppError{
		Code:       "TOKEN_REUSE_DETECTED",
		Message:    "El refresh token ya fue usado; la sesión fue revocada por seguridad.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenMissing = &AppError{
		Code:       "TOKEN_MISSING",
		Message:    "No se proporcionó token de autenticación.",
		HTTPStatus: http.StatusUnauthorized,
	}
)

// ---------------------------------------------------------------------------------
// 403 Forbidden - Errores de Estado de Cuenta
// ---------------------------------------------------------------------------------

var (
	ErrAccountLocked = &AppError{
		Code:       "ACCOUNT_LOCKED",
		Message:    "La cuenta está bloqueada temporalmente por intentos fallidos.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrAccountDisabled = &AppError{
		Code:       "ACCOUNT_DISABLED",
		Message:    "La cuenta está desactivada.",
		HTTPStatus: http.StatusForbidden,
	}
)

// ---------------------------------------------------------------------------------
// 404 Not Found
// ---------------------------------------------------------------------------------

var (
	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "El recurso solicitado no fue encontrado.",
		HTTPStatus: http.StatusNotFound,
	}
)

// ---------------------------------------------------------------------------------
// 409 Conflict
// ---------------------------------------------------------------------------------

var (
	ErrConflict = &AppError{
		Code:       "CONFLICT",
		Message:    "El email o nombre de usuario ya está registrado.",
		HTTPStatus: http.StatusConflict,
	}
)

// ---------------------------------------------------------------------------------
// 422 Unprocessable Entity - Errores de Lógica de Negocio
// ---------------------------------------------------------------------------------

var (
	ErrPolicyViolation = &AppError{
		Code:       "POLICY_VIOLATION",
		Message:    "La contraseña no cumple con los requisitos de seguridad.",
		HTTPStatus: http.StatusUnprocessableEntity,
	}
)

// ---------------------------------------------------------------------------------
// 429 Too Many Requests - Rate Limiting
// ---------------------------------------------------------------------------------

var (
	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Ha excedido el límite de solicitudes. Intente más tarde.",
		HTTPStatus: http.StatusTooManyRequests,
	}
)

// ---------------------------------------------------------------------------------
// 500+ Server Errors
// ---------------------------------------------------------------------------------

var (
	ErrInternalServerError = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Ocurrió un error interno en el servidor.",
		HTTPStatus: http.StatusInternalServerError,
	}
)
