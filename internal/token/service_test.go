package token

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authkit/internal/audit"
	"github.com/dropDatabas3/authkit/internal/domain/repository"
	jwtx "github.com/dropDatabas3/authkit/internal/jwt"
	"github.com/dropDatabas3/authkit/internal/store/memory"
)

type tokenFixture struct {
	svc   *Service
	users *memory.UserStore
	sink  *audit.MemorySink
	user  *repository.User
}

func newTokenFixture(t *testing.T) *tokenFixture {
	t.Helper()

	users := memory.NewUserStore()
	u, err := users.Create(context.Background(), repository.CreateUserInput{
		Email:        "ana@example.com",
		Username:     "ana",
		PasswordHash: "$argon2id$...",
		Roles:        []string{"user"},
	})
	require.NoError(t, err)

	issuer, err := jwtx.NewIssuer("authkit-test", 15*time.Minute, nil)
	require.NoError(t, err)

	sink := audit.NewMemorySink(0)
	svc := New(Deps{
		Tokens:     memory.NewTokenStore(),
		Users:      users,
		Issuer:     issuer,
		RefreshTTL: time.Hour,
		Audit:      sink,
	})
	return &tokenFixture{svc: svc, users: users, sink: sink, user: u}
}

func TestIssuePair_AccessAndOpaqueRefresh(t *testing.T) {
	f := newTokenFixture(t)

	pair, err := f.svc.IssuePair(context.Background(), f.user, "")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := f.svc.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, claims.Subject)
	assert.Equal(t, []string{"user"}, claims.Roles)
}

func TestRotate_IssuesNewPairSameFamily(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()

	pair, err := f.svc.IssuePair(ctx, f.user, "")
	require.NoError(t, err)

	next, err := f.svc.Rotate(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// El par nuevo sigue rotando con normalidad.
	_, err = f.svc.Rotate(ctx, next.RefreshToken)
	require.NoError(t, err)
}

func TestRotate_ReuseKillsFamily(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()

	pair, err := f.svc.IssuePair(ctx, f.user, "")
	require.NoError(t, err)

	next, err := f.svc.Rotate(ctx, pair.RefreshToken)
	require.NoError(t, err)

	// Replay del token viejo: reuso detectado, toda la familia muere.
	_, err = f.svc.Rotate(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, repository.ErrTokenReuse)
	require.Len(t, f.sink.ByEvent(audit.EventTokenReuse), 1)

	// El sucesor legítimo también quedó revocado.
	_, err = f.svc.Rotate(ctx, next.RefreshToken)
	require.ErrorIs(t, err, repository.ErrTokenReuse)
}

func TestRotate_UnknownToken(t *testing.T) {
	f := newTokenFixture(t)
	_, err := f.svc.Rotate(context.Background(), "token-que-no-existe")
	require.ErrorIs(t, err, repository.ErrInvalidToken)
}

func TestRotate_DisabledUser(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()

	pair, err := f.svc.IssuePair(ctx, f.user, "")
	require.NoError(t, err)

	now := time.Now().UTC()
	_, err = f.users.Update(ctx, f.user.ID, func(w *repository.User) error {
		w.DisabledAt = &now
		return nil
	})
	require.NoError(t, err)

	_, err = f.svc.Rotate(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, repository.ErrUserDisabled)
}

func TestRevoke_DoubleLogout(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()

	pair, err := f.svc.IssuePair(ctx, f.user, "")
	require.NoError(t, err)

	require.NoError(t, f.svc.Revoke(ctx, pair.RefreshToken))

	// Segundo logout del mismo token: falla grácil, sin pánico ni side effects.
	err = f.svc.Revoke(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, repository.ErrInvalidToken)

	entries := f.sink.ByEvent(audit.EventLoggedOut)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.OutcomeSuccess, entries[0].Outcome)
	assert.Equal(t, audit.OutcomeFailure, entries[1].Outcome)
}

func TestRevoke_DoesNotKillSiblings(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()

	a, err := f.svc.IssuePair(ctx, f.user, "")
	require.NoError(t, err)
	b, err := f.svc.IssuePair(ctx, f.user, "")
	require.NoError(t, err)

	require.NoError(t, f.svc.Revoke(ctx, a.RefreshToken))

	// La otra sesión sigue viva.
	_, err = f.svc.Rotate(ctx, b.RefreshToken)
	require.NoError(t, err)
}

func TestRevokeAllByUser(t *testing.T) {
	f := newTokenFixture(t)
	ctx := context.Background()

	a, _ := f.svc.IssuePair(ctx, f.user, "")
	b, _ := f.svc.IssuePair(ctx, f.user, "")

	n, err := f.svc.RevokeAllByUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = f.svc.Rotate(ctx, a.RefreshToken)
	require.Error(t, err)
	_, err = f.svc.Rotate(ctx, b.RefreshToken)
	require.Error(t, err)
}
