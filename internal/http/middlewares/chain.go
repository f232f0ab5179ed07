// Package middlewares contiene los middlewares HTTP transversales:
// request id, logging estructurado, autenticación bearer y rate limiting.
package middlewares

import "net/http"

// Middleware es la forma estándar de los middlewares del servidor,
// asignable directo a chi.Router.Use / With.
type Middleware func(http.Handler) http.Handler
