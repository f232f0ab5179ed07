package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authkit/internal/audit"
	"github.com/dropDatabas3/authkit/internal/auth"
	"github.com/dropDatabas3/authkit/internal/http/handlers"
	jwtx "github.com/dropDatabas3/authkit/internal/jwt"
	"github.com/dropDatabas3/authkit/internal/lockout"
	"github.com/dropDatabas3/authkit/internal/mfa"
	"github.com/dropDatabas3/authkit/internal/rate"
	"github.com/dropDatabas3/authkit/internal/security/password"
	"github.com/dropDatabas3/authkit/internal/store/memory"
	"github.com/dropDatabas3/authkit/internal/token"
)

// newTestRouter levanta el stack completo en memoria, igual que lo arma el
// main pero con costos argon2 mínimos y sin Redis.
func newTestRouter(t *testing.T, loginLimiter rate.Limiter) http.Handler {
	t.Helper()

	users := memory.NewUserStore()
	issuer, err := jwtx.NewIssuer("authkit-test", 15*time.Minute, nil)
	require.NoError(t, err)

	tokenSvc := token.New(token.Deps{
		Tokens:     memory.NewTokenStore(),
		Users:      users,
		Issuer:     issuer,
		RefreshTTL: time.Hour,
		Audit:      audit.NewMemorySink(0),
	})
	authSvc := auth.New(auth.Deps{
		Users:  users,
		Hasher: password.NewHasher(password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}),
		Policy: password.Policy{MinLength: 8, RequireUpper: true, RequireLower: true, RequireDigit: true},
		Guard:  lockout.New(5, 15*time.Minute),
		MFA:    mfa.New("authkit-test", 1, nil),
		Tokens: tokenSvc,
	})

	return NewRouter(RouterDeps{
		Auth:         handlers.NewAuthHandler(authSvc),
		MFA:          handlers.NewMFAHandler(authSvc),
		Me:           handlers.NewMeHandler(users),
		Verifier:     tokenSvc,
		LoginLimiter: loginLimiter,
	})
}

func doJSON(t *testing.T, h http.Handler, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), "body: %s", rec.Body.String())
}

type tokensBody struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func TestRouter_RegisterLoginMeFlow(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := doJSON(t, h, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"email": "ana@example.com", "username": "ana", "password": "Zanahoria42!",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	// Email duplicado
	rec = doJSON(t, h, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"email": "ana@example.com", "password": "Zanahoria42!",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"identifier": "ana@example.com", "password": "Zanahoria42!",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pair tokensBody
	decodeBody(t, rec, &pair)
	assert.Equal(t, "Bearer", pair.TokenType)

	// /me con y sin token
	rec = doJSON(t, h, http.MethodGet, "/v1/auth/me", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var me struct {
		Email      string `json:"email"`
		MFAEnabled bool   `json:"mfa_enabled"`
	}
	decodeBody(t, rec, &me)
	assert.Equal(t, "ana@example.com", me.Email)
	assert.False(t, me.MFAEnabled)

	rec = doJSON(t, h, http.MethodGet, "/v1/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_RefreshRotationAndReuse(t *testing.T) {
	h := newTestRouter(t, nil)

	doJSON(t, h, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"email": "ana@example.com", "password": "Zanahoria42!",
	})
	rec := doJSON(t, h, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"identifier": "ana@example.com", "password": "Zanahoria42!",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var pair tokensBody
	decodeBody(t, rec, &pair)

	rec = doJSON(t, h, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var next tokensBody
	decodeBody(t, rec, &next)

	// Replay del refresh viejo: 401 con código estable de reuso.
	rec = doJSON(t, h, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var apiErr struct {
		Code string `json:"code"`
	}
	decodeBody(t, rec, &apiErr)
	assert.Equal(t, "TOKEN_REUSE_DETECTED", apiErr.Code)

	// La familia entera murió: el sucesor tampoco sirve.
	rec = doJSON(t, h, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
		"refresh_token": next.RefreshToken,
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_LogoutIsIdempotentish(t *testing.T) {
	h := newTestRouter(t, nil)

	doJSON(t, h, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"email": "ana@example.com", "password": "Zanahoria42!",
	})
	rec := doJSON(t, h, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"identifier": "ana@example.com", "password": "Zanahoria42!",
	})
	var pair tokensBody
	decodeBody(t, rec, &pair)

	rec = doJSON(t, h, http.MethodPost, "/v1/auth/logout", "", map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Segundo logout: falla limpia, no 500.
	rec = doJSON(t, h, http.MethodPost, "/v1/auth/logout", "", map[string]string{
		"refresh_token": pair.RefreshToken,
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_MFAEnrollVerifyFlow(t *testing.T) {
	h := newTestRouter(t, nil)

	doJSON(t, h, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"email": "ana@example.com", "password": "Zanahoria42!",
	})
	rec := doJSON(t, h, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"identifier": "ana@example.com", "password": "Zanahoria42!",
	})
	var pair tokensBody
	decodeBody(t, rec, &pair)

	rec = doJSON(t, h, http.MethodPost, "/v1/mfa/totp/enroll", pair.AccessToken, struct{}{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var enroll struct {
		Secret        string   `json:"secret"`
		EnrollmentURL string   `json:"enrollment_url"`
		BackupCodes   []string `json:"backup_codes"`
	}
	decodeBody(t, rec, &enroll)
	require.NotEmpty(t, enroll.Secret)
	require.Len(t, enroll.BackupCodes, mfa.BackupCodeCount)
	assert.Contains(t, enroll.EnrollmentURL, "otpauth://totp/")

	// Sin token, el enrolamiento está vedado.
	rec = doJSON(t, h, http.MethodPost, "/v1/mfa/totp/enroll", "", struct{}{})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Código incorrecto no activa nada.
	rec = doJSON(t, h, http.MethodPost, "/v1/mfa/totp/verify", pair.AccessToken, map[string]string{
		"code": "000000",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_LoginRateLimited(t *testing.T) {
	h := newTestRouter(t, rate.NewMemoryLimiter(2, time.Minute))
	body := map[string]string{"identifier": "nadie@example.com", "password": "Zanahoria42!"}

	for i := 0; i < 2; i++ {
		rec := doJSON(t, h, http.MethodPost, "/v1/auth/login", "", body)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "hit #%d", i+1)
	}

	rec := doJSON(t, h, http.MethodPost, "/v1/auth/login", "", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	var apiErr struct {
		Code string `json:"code"`
	}
	decodeBody(t, rec, &apiErr)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", apiErr.Code)
}

func TestRouter_MalformedJSON(t *testing.T) {
	h := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewBufferString("{no es json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Healthz(t *testing.T) {
	h := newTestRouter(t, nil)
	rec := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
