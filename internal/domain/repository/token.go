package repository

import (
	"context"
	"time"
)

// RefreshToken representa un token de refresco persistido.
// El valor opaco nunca se guarda: solo su hash SHA-256.
type RefreshToken struct {
	ID        string
	UserID    string
	FamilyID  string // linaje de rotaciones desde el login original
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
	// ReplacedBy apunta al hash del token que lo reemplazó en una rotación.
	// Un token con ReplacedBy != nil que vuelve a presentarse señala reuso.
	ReplacedBy *string
}

// Active indica si el token sigue siendo usable a la hora dada.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && t.ReplacedBy == nil && now.Before(t.ExpiresAt)
}

// CreateRefreshTokenInput contiene los datos para crear un refresh token.
type CreateRefreshTokenInput struct {
	UserID    string
	FamilyID  string // vacío = inicia una familia nueva
	TokenHash string
	TTL       time.Duration
}

// TokenRepository define operaciones sobre refresh tokens.
type TokenRepository interface {
	// Create persiste un nuevo refresh token.
	Create(ctx context.Context, input CreateRefreshTokenInput) (*RefreshToken, error)

	// GetByHash busca un token por su hash.
	// Retorna ErrNotFound si no existe.
	GetByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// Replace marca el token como rotado (revocado + ReplacedBy) y crea su
	// sucesor en la misma familia, como una sola operación indivisible: de dos
	// rotaciones concurrentes sobre el mismo token solo una gana.
	// Retorna ErrTokenReuse si el token ya estaba revocado o reemplazado,
	// ErrTokenExpired si venció, ErrNotFound si no existe.
	Replace(ctx context.Context, tokenHash string, successor CreateRefreshTokenInput) (*RefreshToken, error)

	// Revoke revoca un único token (logout), sin tocar al resto de su familia.
	// Retorna ErrNotFound si no existe, ErrInvalidToken si ya estaba revocado.
	Revoke(ctx context.Context, tokenHash string) error

	// RevokeFamily revoca todos los tokens de una familia (reuso detectado).
	// Retorna cuántos tokens quedaron revocados.
	RevokeFamily(ctx context.Context, familyID string) (int, error)

	// RevokeAllByUser revoca todos los tokens de un usuario (logout-all,
	// cambio de password). Retorna cuántos revocó.
	RevokeAllByUser(ctx context.Context, userID string) (int, error)
}
