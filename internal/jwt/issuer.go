// Package jwt emite y verifica los access tokens firmados del engine.
// Los access tokens son auto-verificables (EdDSA): nunca se persisten y su
// validez se deriva solo de firma y expiry.
package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/authkit/internal/domain/repository"
	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// AccessClaims son los claims del access token: subject + autorización.
type AccessClaims struct {
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"perms,omitempty"`
	jwtv5.RegisteredClaims
}

// Issuer firma access tokens con una clave ed25519 del proceso.
type Issuer struct {
	Iss       string        // "iss"
	AccessTTL time.Duration // TTL del access token (ej: 15m)

	kid  string
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewIssuer crea un issuer. Si seed es nil genera una clave nueva al vuelo;
// con seed (32 bytes) la clave es determinística, útil para verificar tokens
// entre reinicios o desde otros servicios que comparten la clave.
func NewIssuer(iss string, accessTTL time.Duration, seed []byte) (*Issuer, error) {
	if iss == "" {
		return nil, errors.New("issuer vacío")
	}
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}

	var priv ed25519.PrivateKey
	switch {
	case seed == nil:
		var err error
		_, priv, err = ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
	case len(seed) == ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(seed)
	default:
		return nil, fmt.Errorf("seed inválido: se requieren %d bytes", ed25519.SeedSize)
	}

	pub := priv.Public().(ed25519.PublicKey)
	sum := sha256.Sum256(pub)
	return &Issuer{
		Iss:       iss,
		AccessTTL: accessTTL,
		kid:       hex.EncodeToString(sum[:8]),
		priv:      priv,
		pub:       pub,
	}, nil
}

// KID retorna el key ID activo (header "kid" de los tokens emitidos).
func (i *Issuer) KID() string { return i.kid }

// PublicKey expone la clave pública para verificadores externos.
func (i *Issuer) PublicKey() ed25519.PublicKey { return i.pub }

// IssueAccess emite un access token para el usuario con sus roles y permisos.
func (i *Issuer) IssueAccess(u *repository.User) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(i.AccessTTL)

	claims := AccessClaims{
		Roles:       u.Roles,
		Permissions: u.Permissions,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    i.Iss,
			Subject:   u.ID,
			IssuedAt:  jwtv5.NewNumericDate(now),
			NotBefore: jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(exp),
		},
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = i.kid
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(i.priv)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Keyfunc elige la pubkey por 'kid' del header. Un kid desconocido falla.
func (i *Issuer) Keyfunc() jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		if kid, _ := t.Header["kid"].(string); kid != "" && kid != i.kid {
			return nil, errors.New("kid desconocido")
		}
		return i.pub, nil
	}
}

// ParseAccess verifica firma, issuer y expiry, y retorna los claims.
// Expirado -> ErrTokenExpired; firmado mal, alterado o malformado ->
// ErrInvalidToken.
func (i *Issuer) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	tk, err := jwtv5.ParseWithClaims(tokenStr, claims, i.Keyfunc(),
		jwtv5.WithValidMethods([]string{"EdDSA"}),
		jwtv5.WithIssuer(i.Iss),
	)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, repository.ErrTokenExpired
		}
		return nil, repository.ErrInvalidToken
	}
	if !tk.Valid || claims.Subject == "" {
		return nil, repository.ErrInvalidToken
	}
	return claims, nil
}
