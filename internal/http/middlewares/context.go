package middlewares

import (
	"context"

	jwtx "github.com/dropDatabas3/authkit/internal/jwt"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyClaims
)

func setRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, rid)
}

// GetRequestID retorna el request id inyectado por WithRequestID ("" si no hay).
func GetRequestID(ctx context.Context) string {
	rid, _ := ctx.Value(ctxKeyRequestID).(string)
	return rid
}

func setClaims(ctx context.Context, c *jwtx.AccessClaims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims, c)
}

// GetClaims retorna los claims del access token validado por WithAuth.
func GetClaims(ctx context.Context) *jwtx.AccessClaims {
	c, _ := ctx.Value(ctxKeyClaims).(*jwtx.AccessClaims)
	return c
}

// GetUserID retorna el subject del token autenticado ("" sin auth).
func GetUserID(ctx context.Context) string {
	if c := GetClaims(ctx); c != nil {
		return c.Subject
	}
	return ""
}
