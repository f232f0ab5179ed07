package repository

import (
	"context"
	"time"
)

// User representa un usuario del sistema.
type User struct {
	ID           string
	Email        string // siempre lowercased
	Username     string
	PasswordHash string // PHC argon2id, nunca el password en claro
	Roles        []string
	Permissions  []string
	MFA          MFASettings

	// Estado de lockout. lockedUntil en el pasado se trata como desbloqueado
	// (evaluación lazy, sin timers de fondo).
	FailedAttempts int
	LockedUntil    *time.Time

	DisabledAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MFASettings agrupa el estado MFA de un usuario.
// Estados: deshabilitado (sin secreto) -> enrolamiento pendiente (secreto
// generado, no confirmado) -> habilitado (primer TOTP válido confirma).
type MFASettings struct {
	Enabled         bool
	SecretEncrypted string // secreto base32 cifrado en reposo; vacío = sin secreto
	ConfirmedAt     *time.Time
	LastCounter     *int64 // último time-step TOTP aceptado (anti-replay)
	// BackupCodes guarda los digests SHA-256 de los códigos aún no usados,
	// en orden de generación. Consumo one-time.
	BackupCodes []string
}

// Pending indica si hay un enrolamiento iniciado pero no confirmado.
func (m MFASettings) Pending() bool {
	return m.SecretEncrypted != "" && !m.Enabled
}

// Disabled indica si el usuario está desactivado (flag, nunca borrado físico).
func (u *User) Disabled() bool {
	return u.DisabledAt != nil
}

// CreateUserInput contiene los datos para crear un usuario.
// El hash del password ya viene derivado; el store nunca ve el password crudo.
type CreateUserInput struct {
	Email        string
	Username     string
	PasswordHash string
	Roles        []string
	Permissions  []string
}

// UserRepository define operaciones sobre usuarios.
type UserRepository interface {
	// Create crea un nuevo usuario.
	// Retorna ErrConflict si el email o username ya existen.
	Create(ctx context.Context, input CreateUserInput) (*User, error)

	// GetByID busca un usuario por ID.
	// Retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, userID string) (*User, error)

	// GetByEmail busca un usuario por email (case-insensitive).
	// Retorna ErrNotFound si no existe.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByIdentifier busca por email o username indistintamente.
	// Retorna ErrNotFound si no existe.
	GetByIdentifier(ctx context.Context, identifier string) (*User, error)

	// Update aplica el mutator sobre el usuario bajo su sección exclusiva
	// (lock por usuario, no global) y persiste el resultado. El mutator recibe
	// una copia; si retorna error la mutación se descarta.
	// Retorna ErrNotFound si no existe, ErrConflict si el mutator cambió
	// email/username a uno ya tomado.
	Update(ctx context.Context, userID string, mutate func(*User) error) (*User, error)
}
