// Package auth orquesta los flujos de autenticación: registro, login con
// lockout y MFA, refresh/logout, cambio de password y ciclo de enrolamiento
// MFA. Compone UserStore, LockoutGuard, MFAService y TokenService; toda
// falla relevante de seguridad se audita antes de devolverse.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/authkit/internal/audit"
	"github.com/dropDatabas3/authkit/internal/domain/repository"
	"github.com/dropDatabas3/authkit/internal/lockout"
	"github.com/dropDatabas3/authkit/internal/mfa"
	"github.com/dropDatabas3/authkit/internal/observability/logger"
	"github.com/dropDatabas3/authkit/internal/security/password"
	"github.com/dropDatabas3/authkit/internal/token"
)

// Deps contiene las dependencias del servicio de autenticación.
// Los stores se pasan explícitos por constructor: nada de registries
// globales de proceso.
type Deps struct {
	Users  repository.UserRepository
	Hasher *password.Hasher
	Policy password.Policy
	Guard  lockout.Guard
	MFA    *mfa.Service
	Tokens *token.Service
	Audit  audit.Sink
}

// Service implementa la orquestación de autenticación.
type Service struct {
	deps Deps
}

// New crea el servicio.
func New(deps Deps) *Service {
	return &Service{deps: deps}
}

// RegisterInput contiene los datos de registro.
type RegisterInput struct {
	Email       string
	Username    string
	Password    string
	Roles       []string
	Permissions []string
}

// Register valida la política de password, deriva el hash y crea el usuario.
// Email o username tomados fallan con ErrConflict; política incumplida con
// PolicyViolationError listando todas las reglas violadas.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*repository.User, error) {
	if ok, reasons := s.deps.Policy.Validate(in.Password); !ok {
		return nil, &repository.PolicyViolationError{Reasons: reasons}
	}
	phc, err := s.deps.Hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	u, err := s.deps.Users.Create(ctx, repository.CreateUserInput{
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: phc,
		Roles:        in.Roles,
		Permissions:  in.Permissions,
	})
	if err != nil {
		return nil, err
	}
	audit.Emit(s.deps.Audit, audit.EventUserRegistered, u.ID, audit.OutcomeSuccess, map[string]any{
		"email": u.Email,
	})
	return u, nil
}

// LoginInput contiene las credenciales presentadas.
type LoginInput struct {
	Identifier string // email o username
	Password   string
	MFACode    string // TOTP o backup code; requerido solo si MFA está activo
}

// Login ejecuta el flujo completo: resolución de usuario, lockout, password,
// MFA y emisión de una familia de tokens nueva. Identificador desconocido y
// password incorrecto devuelven el mismo ErrInvalidCredentials (anti
// enumeración); el detalle queda solo en auditoría.
func (s *Service) Login(ctx context.Context, in LoginInput) (*token.Pair, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth"), logger.Op("Login"))
	now := time.Now().UTC()

	u, err := s.deps.Users.GetByIdentifier(ctx, in.Identifier)
	if err != nil {
		audit.Emit(s.deps.Audit, audit.EventLoginFailed, "", audit.OutcomeFailure, map[string]any{
			"reason": "unknown_identifier",
		})
		return nil, repository.ErrInvalidCredentials
	}
	log = log.With(logger.UserID(u.ID))

	if u.Disabled() {
		audit.Emit(s.deps.Audit, audit.EventLoginFailed, u.ID, audit.OutcomeDenied, map[string]any{
			"reason": "user_disabled",
		})
		return nil, repository.ErrUserDisabled
	}

	// Lockout: una cuenta bloqueada no altera contador ni lockedUntil,
	// pero el intento se audita igual.
	if s.deps.Guard.Status(u, now) == lockout.Locked {
		audit.Emit(s.deps.Audit, audit.EventLoginFailed, u.ID, audit.OutcomeDenied, map[string]any{
			"reason":       "account_locked",
			"locked_until": u.LockedUntil,
		})
		return nil, repository.ErrAccountLocked
	}

	if !s.deps.Hasher.Verify(in.Password, u.PasswordHash) {
		locked := s.registerFailure(ctx, u.ID, now)
		audit.Emit(s.deps.Audit, audit.EventLoginFailed, u.ID, audit.OutcomeFailure, map[string]any{
			"reason": "bad_password",
		})
		if locked {
			log.Warn("account locked after failed attempts")
			audit.Emit(s.deps.Audit, audit.EventAccountLocked, u.ID, audit.OutcomeDenied, map[string]any{
				"max_attempts": s.deps.Guard.MaxAttempts,
			})
		}
		return nil, repository.ErrInvalidCredentials
	}

	if u.MFA.Enabled {
		if in.MFACode == "" {
			audit.Emit(s.deps.Audit, audit.EventMFAFailed, u.ID, audit.OutcomeDenied, map[string]any{
				"reason": "code_missing",
			})
			return nil, repository.ErrMFARequired
		}
		if err := s.verifyMFA(ctx, u.ID, in.MFACode, now); err != nil {
			audit.Emit(s.deps.Audit, audit.EventMFAFailed, u.ID, audit.OutcomeFailure, map[string]any{
				"reason": "code_invalid",
			})
			return nil, err
		}
	}

	// Login completo: resetear lockout y emitir familia nueva.
	u, err = s.deps.Users.Update(ctx, u.ID, func(w *repository.User) error {
		s.deps.Guard.OnSuccess(w)
		return nil
	})
	if err != nil {
		return nil, err
	}

	pair, err := s.deps.Tokens.IssuePair(ctx, u, "")
	if err != nil {
		return nil, err
	}

	log.Info("login successful")
	audit.Emit(s.deps.Audit, audit.EventLoginSucceeded, u.ID, audit.OutcomeSuccess, nil)
	return pair, nil
}

// registerFailure incrementa el contador bajo la sección exclusiva del
// usuario y retorna si la cuenta quedó bloqueada en esta transición.
func (s *Service) registerFailure(ctx context.Context, userID string, now time.Time) (locked bool) {
	_, _ = s.deps.Users.Update(ctx, userID, func(w *repository.User) error {
		before := s.deps.Guard.Status(w, now)
		after := s.deps.Guard.OnFailure(w, now)
		locked = before == lockout.Open && after == lockout.Locked
		return nil
	})
	return locked
}

// verifyMFA valida TOTP primero y backup codes después, todo dentro de la
// sección exclusiva del usuario: el avance del contador anti-replay y el
// consumo one-time del backup code son atómicos (CAS sobre el registro).
func (s *Service) verifyMFA(ctx context.Context, userID, code string, now time.Time) error {
	_, err := s.deps.Users.Update(ctx, userID, func(w *repository.User) error {
		secret, err := s.deps.MFA.DecryptSecret(w.MFA.SecretEncrypted)
		if err == nil {
			if ok, counter := s.deps.MFA.VerifyTOTP(secret, code, now, w.MFA.LastCounter); ok {
				w.MFA.LastCounter = &counter
				return nil
			}
		}
		// TOTP no matcheó: probar backup codes (consumo inmediato).
		if ok, remaining := mfa.VerifyBackupCode(w.MFA.BackupCodes, s.deps.MFA.HashBackupCode(code)); ok {
			w.MFA.BackupCodes = remaining
			return nil
		}
		return repository.ErrInvalidMFACode
	})
	return err
}

// Refresh rota el refresh token presentado. Reuso detectado revoca toda la
// familia como efecto, no solo reporta el error.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*token.Pair, error) {
	return s.deps.Tokens.Rotate(ctx, refreshToken)
}

// Logout revoca un único refresh token. Llamarlo dos veces es seguro: la
// segunda falla con ErrInvalidToken sin más efectos que su auditoría.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.deps.Tokens.Revoke(ctx, refreshToken)
}

// EnrollResult es el payload de setup MFA que ve el cliente. El secreto y
// los backup codes en claro solo existen en esta respuesta.
type EnrollResult struct {
	Secret        string
	EnrollmentURL string
	BackupCodes   []string
}

// SetupMFA genera secreto y backup codes y deja al usuario en enrolamiento
// pendiente. Repetir el setup antes de confirmar regenera todo.
func (s *Service) SetupMFA(ctx context.Context, userID string) (*EnrollResult, error) {
	u, err := s.deps.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	secret, err := s.deps.MFA.GenerateSecret()
	if err != nil {
		return nil, err
	}
	codes, err := s.deps.MFA.GenerateBackupCodes()
	if err != nil {
		return nil, err
	}
	enc, err := s.deps.MFA.EncryptSecret(secret)
	if err != nil {
		return nil, err
	}
	hashes := s.deps.MFA.HashBackupCodes(codes)

	if _, err := s.deps.Users.Update(ctx, userID, func(w *repository.User) error {
		w.MFA = repository.MFASettings{
			Enabled:         false,
			SecretEncrypted: enc,
			BackupCodes:     hashes,
		}
		return nil
	}); err != nil {
		return nil, err
	}

	audit.Emit(s.deps.Audit, audit.EventMFAEnrolled, userID, audit.OutcomeSuccess, nil)
	return &EnrollResult{
		Secret:        secret,
		EnrollmentURL: s.deps.MFA.EnrollmentURL(secret, u.Email),
		BackupCodes:   codes,
	}, nil
}

// ConfirmMFA valida el primer TOTP contra el secreto pendiente y activa MFA.
func (s *Service) ConfirmMFA(ctx context.Context, userID, code string) (bool, error) {
	now := time.Now().UTC()
	_, err := s.deps.Users.Update(ctx, userID, func(w *repository.User) error {
		if !w.MFA.Pending() {
			return repository.ErrInvalidMFACode
		}
		secret, err := s.deps.MFA.DecryptSecret(w.MFA.SecretEncrypted)
		if err != nil {
			return repository.ErrInvalidMFACode
		}
		ok, counter := s.deps.MFA.VerifyTOTP(secret, code, now, w.MFA.LastCounter)
		if !ok {
			return repository.ErrInvalidMFACode
		}
		w.MFA.Enabled = true
		w.MFA.ConfirmedAt = &now
		w.MFA.LastCounter = &counter
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrInvalidMFACode) {
			audit.Emit(s.deps.Audit, audit.EventMFAFailed, userID, audit.OutcomeFailure, map[string]any{
				"reason": "confirm_failed",
			})
			return false, repository.ErrInvalidMFACode
		}
		return false, err
	}
	audit.Emit(s.deps.Audit, audit.EventMFAConfirmed, userID, audit.OutcomeSuccess, nil)
	return true, nil
}

// DisableMFA apaga MFA y limpia secreto y backup codes.
func (s *Service) DisableMFA(ctx context.Context, userID string) error {
	if _, err := s.deps.Users.Update(ctx, userID, func(w *repository.User) error {
		w.MFA = repository.MFASettings{}
		return nil
	}); err != nil {
		return err
	}
	audit.Emit(s.deps.Audit, audit.EventMFADisabled, userID, audit.OutcomeSuccess, nil)
	return nil
}

// ChangePassword verifica el password actual, valida la política sobre el
// nuevo y lo aplica. Revoca todos los refresh tokens vigentes del usuario.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	u, err := s.deps.Users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.deps.Hasher.Verify(current, u.PasswordHash) {
		audit.Emit(s.deps.Audit, audit.EventPasswordChanged, userID, audit.OutcomeFailure, map[string]any{
			"reason": "bad_current_password",
		})
		return repository.ErrInvalidCredentials
	}
	return s.setPassword(ctx, userID, next)
}

// ResetPassword fija un password nuevo sin pedir el actual. La autorización
// del reset (token por email, acción de admin) es responsabilidad del caller
// externo; el core solo aplica política y hash.
func (s *Service) ResetPassword(ctx context.Context, userID, next string) error {
	if _, err := s.deps.Users.GetByID(ctx, userID); err != nil {
		return err
	}
	return s.setPassword(ctx, userID, next)
}

func (s *Service) setPassword(ctx context.Context, userID, next string) error {
	if ok, reasons := s.deps.Policy.Validate(next); !ok {
		return &repository.PolicyViolationError{Reasons: reasons}
	}
	phc, err := s.deps.Hasher.Hash(next)
	if err != nil {
		return err
	}
	if _, err := s.deps.Users.Update(ctx, userID, func(w *repository.User) error {
		w.PasswordHash = phc
		return nil
	}); err != nil {
		return err
	}
	revoked, _ := s.deps.Tokens.RevokeAllByUser(ctx, userID)
	audit.Emit(s.deps.Audit, audit.EventPasswordChanged, userID, audit.OutcomeSuccess, map[string]any{
		"tokens_revoked": revoked,
	})
	return nil
}

// Deactivate marca la cuenta como desactivada (flag, nunca borrado físico) y
// revoca sus tokens. El email y username siguen reservados.
func (s *Service) Deactivate(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	if _, err := s.deps.Users.Update(ctx, userID, func(w *repository.User) error {
		if w.DisabledAt == nil {
			w.DisabledAt = &now
		}
		return nil
	}); err != nil {
		return err
	}
	revoked, _ := s.deps.Tokens.RevokeAllByUser(ctx, userID)
	audit.Emit(s.deps.Audit, audit.EventUserDeactivated, userID, audit.OutcomeSuccess, map[string]any{
		"tokens_revoked": revoked,
	})
	return nil
}
