package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authkit/internal/audit"
	"github.com/dropDatabas3/authkit/internal/domain/repository"
	jwtx "github.com/dropDatabas3/authkit/internal/jwt"
	"github.com/dropDatabas3/authkit/internal/lockout"
	"github.com/dropDatabas3/authkit/internal/mfa"
	"github.com/dropDatabas3/authkit/internal/security/password"
	"github.com/dropDatabas3/authkit/internal/security/totp"
	"github.com/dropDatabas3/authkit/internal/store/memory"
	"github.com/dropDatabas3/authkit/internal/token"
)

const testPassword = "Zanahoria42!"

type authFixture struct {
	svc    *Service
	users  *memory.UserStore
	tokens *token.Service
	sink   *audit.MemorySink
	user   *repository.User
}

// newAuthFixture arma el servicio completo con stores en memoria, un hasher
// barato (costos mínimos, los costos reales se prueban en password) y un
// guard de 3 intentos para no inflar los tests de lockout.
func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	users := memory.NewUserStore()
	issuer, err := jwtx.NewIssuer("authkit-test", 15*time.Minute, nil)
	require.NoError(t, err)

	sink := audit.NewMemorySink(0)
	tokenSvc := token.New(token.Deps{
		Tokens:     memory.NewTokenStore(),
		Users:      users,
		Issuer:     issuer,
		RefreshTTL: time.Hour,
		Audit:      sink,
	})

	svc := New(Deps{
		Users:  users,
		Hasher: password.NewHasher(password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}),
		Policy: password.Policy{MinLength: 8, RequireUpper: true, RequireLower: true, RequireDigit: true},
		Guard:  lockout.New(3, 15*time.Minute),
		MFA:    mfa.New("authkit-test", 1, nil),
		Tokens: tokenSvc,
		Audit:  sink,
	})

	u, err := svc.Register(context.Background(), RegisterInput{
		Email:    "ana@example.com",
		Username: "ana",
		Password: testPassword,
		Roles:    []string{"user"},
	})
	require.NoError(t, err)

	return &authFixture{svc: svc, users: users, tokens: tokenSvc, sink: sink, user: u}
}

// totpFor genera el código vigente para el secreto base32 en el instante dado.
func totpFor(t *testing.T, secretB32 string, at time.Time) string {
	t.Helper()
	raw, err := totp.DecodeSecret(secretB32)
	require.NoError(t, err)
	return totp.Code(raw, at)
}

func TestRegister_HashesAndAudits(t *testing.T) {
	f := newAuthFixture(t)

	require.NotEqual(t, testPassword, f.user.PasswordHash)
	assert.Contains(t, f.user.PasswordHash, "$argon2id$")
	require.Len(t, f.sink.ByEvent(audit.EventUserRegistered), 1)
}

func TestRegister_PolicyViolationListsAllReasons(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email: "bob@example.com", Password: "corta",
	})
	var pv *repository.PolicyViolationError
	require.ErrorAs(t, err, &pv)
	assert.Contains(t, pv.Reasons, "too_short")
	assert.Contains(t, pv.Reasons, "missing_upper")
	assert.Contains(t, pv.Reasons, "missing_digit")
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email: "Ana@Example.com", Password: testPassword,
	})
	require.ErrorIs(t, err, repository.ErrConflict)
}

func TestLogin_Success(t *testing.T) {
	f := newAuthFixture(t)

	pair, err := f.svc.Login(context.Background(), LoginInput{
		Identifier: "ana@example.com", Password: testPassword,
	})
	require.NoError(t, err)

	claims, err := f.tokens.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, claims.Subject)
	require.Len(t, f.sink.ByEvent(audit.EventLoginSucceeded), 1)
}

func TestLogin_ByUsername(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Login(context.Background(), LoginInput{
		Identifier: "ana", Password: testPassword,
	})
	require.NoError(t, err)
}

func TestLogin_AntiEnumeration(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	// Identificador inexistente y password incorrecto: mismo error opaco.
	_, errUnknown := f.svc.Login(ctx, LoginInput{Identifier: "nadie@example.com", Password: testPassword})
	_, errBadPass := f.svc.Login(ctx, LoginInput{Identifier: "ana@example.com", Password: "Incorrecta99"})

	require.ErrorIs(t, errUnknown, repository.ErrInvalidCredentials)
	require.ErrorIs(t, errBadPass, repository.ErrInvalidCredentials)

	// El detalle vive solo en auditoría.
	failed := f.sink.ByEvent(audit.EventLoginFailed)
	require.Len(t, failed, 2)
	assert.Equal(t, "unknown_identifier", failed[0].Metadata["reason"])
	assert.Equal(t, "bad_password", failed[1].Metadata["reason"])
}

func TestLogin_LockoutAfterMaxAttempts(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	bad := LoginInput{Identifier: "ana@example.com", Password: "Incorrecta99"}

	for i := 0; i < 3; i++ {
		_, err := f.svc.Login(ctx, bad)
		require.ErrorIs(t, err, repository.ErrInvalidCredentials)
	}
	require.Len(t, f.sink.ByEvent(audit.EventAccountLocked), 1)

	// Con la cuenta bloqueada, el password correcto tampoco entra.
	_, err := f.svc.Login(ctx, LoginInput{Identifier: "ana@example.com", Password: testPassword})
	require.ErrorIs(t, err, repository.ErrAccountLocked)

	// Y los intentos durante el bloqueo no mueven el contador.
	u, _ := f.users.GetByID(ctx, f.user.ID)
	assert.Equal(t, 3, u.FailedAttempts)
}

func TestLogin_LockExpiryResetsCounter(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	bad := LoginInput{Identifier: "ana@example.com", Password: "Incorrecta99"}

	for i := 0; i < 3; i++ {
		_, _ = f.svc.Login(ctx, bad)
	}

	// Simular el paso del tiempo: correr LockedUntil al pasado.
	past := time.Now().UTC().Add(-time.Second)
	_, err := f.users.Update(ctx, f.user.ID, func(w *repository.User) error {
		w.LockedUntil = &past
		return nil
	})
	require.NoError(t, err)

	pair, err := f.svc.Login(ctx, LoginInput{Identifier: "ana@example.com", Password: testPassword})
	require.NoError(t, err)
	require.NotNil(t, pair)

	u, _ := f.users.GetByID(ctx, f.user.ID)
	assert.Equal(t, 0, u.FailedAttempts)
	assert.Nil(t, u.LockedUntil)
}

func TestLogin_DisabledUser(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Deactivate(ctx, f.user.ID))

	_, err := f.svc.Login(ctx, LoginInput{Identifier: "ana@example.com", Password: testPassword})
	require.ErrorIs(t, err, repository.ErrUserDisabled)
}

func TestMFA_EnrollConfirmAndLogin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	enroll, err := f.svc.SetupMFA(ctx, f.user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, enroll.Secret)
	require.Len(t, enroll.BackupCodes, mfa.BackupCodeCount)
	assert.Contains(t, enroll.EnrollmentURL, "otpauth://totp/")

	// Enrolado pero sin confirmar: el login sigue sin exigir código.
	_, err = f.svc.Login(ctx, LoginInput{Identifier: "ana@example.com", Password: testPassword})
	require.NoError(t, err)

	ok, err := f.svc.ConfirmMFA(ctx, f.user.ID, totpFor(t, enroll.Secret, time.Now()))
	require.NoError(t, err)
	require.True(t, ok)

	// MFA activo: sin código el login exige el segundo factor.
	_, err = f.svc.Login(ctx, LoginInput{Identifier: "ana@example.com", Password: testPassword})
	require.ErrorIs(t, err, repository.ErrMFARequired)

	// El código de la confirmación ya se consumió (anti-replay); usar el del
	// paso siguiente, que cae dentro de la ventana de skew.
	next := totpFor(t, enroll.Secret, time.Now().Add(totp.Period*time.Second))
	pair, err := f.svc.Login(ctx, LoginInput{
		Identifier: "ana@example.com", Password: testPassword, MFACode: next,
	})
	require.NoError(t, err)
	require.NotNil(t, pair)
}

func TestMFA_ConfirmRejectsBadCode(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetupMFA(ctx, f.user.ID)
	require.NoError(t, err)

	ok, err := f.svc.ConfirmMFA(ctx, f.user.ID, "000000")
	require.ErrorIs(t, err, repository.ErrInvalidMFACode)
	require.False(t, ok)

	u, _ := f.users.GetByID(ctx, f.user.ID)
	assert.False(t, u.MFA.Enabled)
}

func TestMFA_BackupCodeIsSingleUse(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	enroll, err := f.svc.SetupMFA(ctx, f.user.ID)
	require.NoError(t, err)
	_, err = f.svc.ConfirmMFA(ctx, f.user.ID, totpFor(t, enroll.Secret, time.Now()))
	require.NoError(t, err)

	in := LoginInput{
		Identifier: "ana@example.com", Password: testPassword, MFACode: enroll.BackupCodes[0],
	}
	_, err = f.svc.Login(ctx, in)
	require.NoError(t, err)

	// Mismo backup code otra vez: ya fue consumido.
	_, err = f.svc.Login(ctx, in)
	require.ErrorIs(t, err, repository.ErrInvalidMFACode)

	u, _ := f.users.GetByID(ctx, f.user.ID)
	assert.Len(t, u.MFA.BackupCodes, mfa.BackupCodeCount-1)
}

func TestMFA_SetupRegeneratesWhilePending(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	first, err := f.svc.SetupMFA(ctx, f.user.ID)
	require.NoError(t, err)
	second, err := f.svc.SetupMFA(ctx, f.user.ID)
	require.NoError(t, err)

	require.NotEqual(t, first.Secret, second.Secret)

	// El secreto viejo quedó descartado: confirmarlo falla.
	_, err = f.svc.ConfirmMFA(ctx, f.user.ID, totpFor(t, first.Secret, time.Now()))
	require.ErrorIs(t, err, repository.ErrInvalidMFACode)
}

func TestMFA_Disable(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	enroll, err := f.svc.SetupMFA(ctx, f.user.ID)
	require.NoError(t, err)
	_, err = f.svc.ConfirmMFA(ctx, f.user.ID, totpFor(t, enroll.Secret, time.Now()))
	require.NoError(t, err)

	require.NoError(t, f.svc.DisableMFA(ctx, f.user.ID))

	// Sin MFA, el login vuelve a ser solo password.
	_, err = f.svc.Login(ctx, LoginInput{Identifier: "ana@example.com", Password: testPassword})
	require.NoError(t, err)

	u, _ := f.users.GetByID(ctx, f.user.ID)
	assert.Empty(t, u.MFA.SecretEncrypted)
	assert.Empty(t, u.MFA.BackupCodes)
}

func TestChangePassword_RevokesSessions(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	pair, err := f.svc.Login(ctx, LoginInput{Identifier: "ana@example.com", Password: testPassword})
	require.NoError(t, err)

	const newPassword = "Remolacha77!"
	require.NoError(t, f.svc.ChangePassword(ctx, f.user.ID, testPassword, newPassword))

	// La sesión anterior murió con el cambio.
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	require.Error(t, err)

	// El password viejo ya no sirve; el nuevo sí.
	_, err = f.svc.Login(ctx, LoginInput{Identifier: "ana@example.com", Password: testPassword})
	require.ErrorIs(t, err, repository.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, LoginInput{Identifier: "ana@example.com", Password: newPassword})
	require.NoError(t, err)
}

func TestChangePassword_WrongCurrent(t *testing.T) {
	f := newAuthFixture(t)

	err := f.svc.ChangePassword(context.Background(), f.user.ID, "Incorrecta99", "Remolacha77!")
	require.ErrorIs(t, err, repository.ErrInvalidCredentials)
}

func TestChangePassword_PolicyAppliesToNew(t *testing.T) {
	f := newAuthFixture(t)

	err := f.svc.ChangePassword(context.Background(), f.user.ID, testPassword, "corta")
	var pv *repository.PolicyViolationError
	require.ErrorAs(t, err, &pv)
}

func TestResetPassword_NoCurrentRequired(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	const newPassword = "Remolacha77!"
	require.NoError(t, f.svc.ResetPassword(ctx, f.user.ID, newPassword))

	_, err := f.svc.Login(ctx, LoginInput{Identifier: "ana@example.com", Password: newPassword})
	require.NoError(t, err)
}

func TestDeactivate_RevokesTokensAndKeepsIdentifiers(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	pair, err := f.svc.Login(ctx, LoginInput{Identifier: "ana@example.com", Password: testPassword})
	require.NoError(t, err)

	require.NoError(t, f.svc.Deactivate(ctx, f.user.ID))

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	require.Error(t, err)

	// Desactivación es flag, no borrado: el email sigue reservado.
	_, err = f.svc.Register(ctx, RegisterInput{Email: "ana@example.com", Password: testPassword})
	require.ErrorIs(t, err, repository.ErrConflict)

	require.Len(t, f.sink.ByEvent(audit.EventUserDeactivated), 1)
}
