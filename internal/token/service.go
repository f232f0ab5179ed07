// Package token implementa el servicio de tokens: emisión de access tokens
// firmados y ciclo de vida de refresh tokens (emisión, rotación por familia,
// revocación y detección de reuso).
package token

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/authkit/internal/audit"
	"github.com/dropDatabas3/authkit/internal/domain/repository"
	jwtx "github.com/dropDatabas3/authkit/internal/jwt"
	"github.com/dropDatabas3/authkit/internal/observability/logger"
	tokens "github.com/dropDatabas3/authkit/internal/security/token"
)

const opaqueTokenBytes = 32

// Pair es el resultado de una autenticación exitosa.
type Pair struct {
	AccessToken  string
	RefreshToken string // valor opaco, solo viaja al cliente
	ExpiresAt    time.Time
}

// Deps contiene las dependencias del servicio.
type Deps struct {
	Tokens     repository.TokenRepository
	Users      repository.UserRepository
	Issuer     *jwtx.Issuer
	RefreshTTL time.Duration
	Audit      audit.Sink
}

// Service emite, rota y revoca tokens.
type Service struct {
	deps Deps
}

// New crea el servicio. RefreshTTL no positivo cae a 30 días.
func New(deps Deps) *Service {
	if deps.RefreshTTL <= 0 {
		deps.RefreshTTL = 30 * 24 * time.Hour
	}
	return &Service{deps: deps}
}

// IssuePair emite un access token y un refresh token nuevo para el usuario.
// familyID vacío inicia una familia nueva (primer login).
func (s *Service) IssuePair(ctx context.Context, u *repository.User, familyID string) (*Pair, error) {
	access, exp, err := s.deps.Issuer.IssueAccess(u)
	if err != nil {
		return nil, err
	}

	raw, err := tokens.GenerateOpaqueToken(opaqueTokenBytes)
	if err != nil {
		return nil, err
	}

	_, err = s.deps.Tokens.Create(ctx, repository.CreateRefreshTokenInput{
		UserID:    u.ID,
		FamilyID:  familyID,
		TokenHash: tokens.SHA256Base64URL(raw),
		TTL:       s.deps.RefreshTTL,
	})
	if err != nil {
		return nil, err
	}

	return &Pair{AccessToken: access, RefreshToken: raw, ExpiresAt: exp}, nil
}

// Rotate intercambia un refresh token usable por un par nuevo en la misma
// familia. Un token revocado o ya reemplazado dispara la revocación de toda
// su familia y falla con ErrTokenReuse; vencido falla con ErrTokenExpired.
func (s *Service) Rotate(ctx context.Context, refreshToken string) (*Pair, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("token"), logger.Op("Rotate"))
	hash := tokens.SHA256Base64URL(refreshToken)

	rt, err := s.deps.Tokens.GetByHash(ctx, hash)
	if err != nil {
		return nil, repository.ErrInvalidToken
	}

	u, err := s.deps.Users.GetByID(ctx, rt.UserID)
	if err != nil {
		return nil, repository.ErrInvalidToken
	}
	if u.Disabled() {
		return nil, repository.ErrUserDisabled
	}

	raw, err := tokens.GenerateOpaqueToken(opaqueTokenBytes)
	if err != nil {
		return nil, err
	}

	// Chequeo-y-reemplazo atómico en el store: de dos rotaciones
	// concurrentes solo una gana; la otra cae acá con ErrTokenReuse.
	_, err = s.deps.Tokens.Replace(ctx, hash, repository.CreateRefreshTokenInput{
		TokenHash: tokens.SHA256Base64URL(raw),
		TTL:       s.deps.RefreshTTL,
	})
	switch {
	case errors.Is(err, repository.ErrTokenReuse):
		n, _ := s.deps.Tokens.RevokeFamily(ctx, rt.FamilyID)
		log.Warn("refresh token reuse detected", logger.UserID(rt.UserID), logger.Int("revoked", n))
		audit.Emit(s.deps.Audit, audit.EventTokenReuse, rt.UserID, audit.OutcomeDenied, map[string]any{
			"family_id": rt.FamilyID,
			"revoked":   n,
		})
		return nil, repository.ErrTokenReuse
	case errors.Is(err, repository.ErrTokenExpired):
		return nil, repository.ErrTokenExpired
	case err != nil:
		return nil, repository.ErrInvalidToken
	}

	access, exp, err := s.deps.Issuer.IssueAccess(u)
	if err != nil {
		return nil, err
	}

	audit.Emit(s.deps.Audit, audit.EventTokenRefreshed, u.ID, audit.OutcomeSuccess, map[string]any{
		"family_id": rt.FamilyID,
	})
	return &Pair{AccessToken: access, RefreshToken: raw, ExpiresAt: exp}, nil
}

// Revoke revoca un único refresh token (logout) sin tocar a sus hermanos.
// Un segundo logout del mismo token falla con ErrInvalidToken, sin otros
// efectos que su propia entrada de auditoría.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	hash := tokens.SHA256Base64URL(refreshToken)

	rt, err := s.deps.Tokens.GetByHash(ctx, hash)
	if err != nil {
		audit.Emit(s.deps.Audit, audit.EventLoggedOut, "", audit.OutcomeFailure, nil)
		return repository.ErrInvalidToken
	}
	if err := s.deps.Tokens.Revoke(ctx, hash); err != nil {
		audit.Emit(s.deps.Audit, audit.EventLoggedOut, rt.UserID, audit.OutcomeFailure, nil)
		return repository.ErrInvalidToken
	}

	audit.Emit(s.deps.Audit, audit.EventLoggedOut, rt.UserID, audit.OutcomeSuccess, nil)
	return nil
}

// RevokeAllByUser revoca todos los refresh tokens del usuario (cambio de
// password, desactivación de cuenta).
func (s *Service) RevokeAllByUser(ctx context.Context, userID string) (int, error) {
	return s.deps.Tokens.RevokeAllByUser(ctx, userID)
}

// VerifyAccess valida un access token y retorna sus claims.
func (s *Service) VerifyAccess(tokenStr string) (*jwtx.AccessClaims, error) {
	return s.deps.Issuer.ParseAccess(tokenStr)
}
