package middlewares

import (
	"net/http"
	"strings"

	httperr "github.com/dropDatabas3/authkit/internal/http/errors"
	jwtx "github.com/dropDatabas3/authkit/internal/jwt"
	"github.com/dropDatabas3/authkit/internal/observability/logger"
)

// AccessVerifier valida un access token y retorna sus claims.
type AccessVerifier interface {
	VerifyAccess(tokenStr string) (*jwtx.AccessClaims, error)
}

// WithAuth exige un access token Bearer válido. Los claims quedan en el
// contexto (GetClaims / GetUserID) y el logger scoped gana el user_id.
func WithAuth(verifier AccessVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				httperr.WriteError(w, httperr.ErrTokenMissing)
				return
			}

			claims, err := verifier.VerifyAccess(raw)
			if err != nil {
				httperr.WriteError(w, err)
				return
			}

			ctx := setClaims(r.Context(), claims)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.UserID(claims.Subject)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
