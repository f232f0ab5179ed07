// Package lockout implementa el contador de intentos fallidos y el bloqueo
// temporal por usuario. El desbloqueo es lazy: se evalúa al próximo acceso
// comparando timestamps, sin timers de fondo.
package lockout

import (
	"time"

	"github.com/dropDatabas3/authkit/internal/domain/repository"
)

// State es el estado del lockout de una cuenta.
type State int

const (
	Open State = iota
	Locked
)

// Guard evalúa y transiciona el estado de lockout sobre un registro de
// usuario. No guarda estado propio: los campos viven en el User y las
// mutaciones se aplican dentro de la sección exclusiva del store.
type Guard struct {
	MaxAttempts int           // umbral de intentos fallidos
	LockFor     time.Duration // duración del bloqueo
}

// New crea un guard con los parámetros dados; valores no positivos caen a
// 5 intentos / 15 minutos.
func New(maxAttempts int, lockFor time.Duration) Guard {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if lockFor <= 0 {
		lockFor = 15 * time.Minute
	}
	return Guard{MaxAttempts: maxAttempts, LockFor: lockFor}
}

// Status retorna el estado actual. LockedUntil en el pasado cuenta como Open.
func (g Guard) Status(u *repository.User, now time.Time) State {
	if u.LockedUntil != nil && now.Before(*u.LockedUntil) {
		return Locked
	}
	return Open
}

// OnFailure registra un intento fallido y retorna el estado resultante.
// Si el bloqueo anterior ya venció, el contador arranca de nuevo en 1.
// Al alcanzar el umbral setea LockedUntil = now + LockFor.
func (g Guard) OnFailure(u *repository.User, now time.Time) State {
	if g.Status(u, now) == Locked {
		// Un intento durante el bloqueo no altera contador ni LockedUntil.
		return Locked
	}
	if u.LockedUntil != nil {
		// Bloqueo vencido: limpiar antes de contar de nuevo.
		u.LockedUntil = nil
		u.FailedAttempts = 0
	}
	u.FailedAttempts++
	if u.FailedAttempts >= g.MaxAttempts {
		until := now.Add(g.LockFor)
		u.LockedUntil = &until
		return Locked
	}
	return Open
}

// OnSuccess resetea el contador tras un login completo exitoso.
func (g Guard) OnSuccess(u *repository.User) {
	u.FailedAttempts = 0
	u.LockedUntil = nil
}
