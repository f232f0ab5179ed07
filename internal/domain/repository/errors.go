package repository

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indica que el recurso solicitado no existe.
	ErrNotFound = errors.New("not found")

	// ErrConflict indica un conflicto (email o username duplicado).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indica que los datos de entrada son inválidos.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials cubre tanto "usuario desconocido" como "password
	// incorrecto": nunca se distinguen hacia el caller (anti enumeración).
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked indica que la cuenta está bloqueada por intentos fallidos.
	ErrAccountLocked = errors.New("account locked")

	// ErrUserDisabled indica que la cuenta fue desactivada.
	ErrUserDisabled = errors.New("user disabled")

	// ErrMFARequired indica que el login requiere un código MFA y no se envió.
	ErrMFARequired = errors.New("mfa required")

	// ErrInvalidMFACode indica que el código TOTP/backup presentado no es válido.
	ErrInvalidMFACode = errors.New("invalid mfa code")

	// ErrInvalidToken indica un token inexistente, malformado o ya revocado.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired indica que el token ya expiró.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenReuse indica que se presentó un token ya rotado o revocado:
	// señal de robo probable; toda la familia queda revocada como efecto.
	ErrTokenReuse = errors.New("token reuse detected")
)

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict verifica si el error es ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// PolicyViolationError lista todas las reglas de password incumplidas.
// Se reporta completo: el caller ve cada regla que falló, no solo la primera.
type PolicyViolationError struct {
	Reasons []string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("password policy violation: %s", strings.Join(e.Reasons, ", "))
}

// IsPolicyViolation verifica si el error es una violación de política de password.
func IsPolicyViolation(err error) bool {
	var pv *PolicyViolationError
	return errors.As(err, &pv)
}
