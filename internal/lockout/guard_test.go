package lockout

import (
	"testing"
	"time"

	"github.com/dropDatabas3/authkit/internal/domain/repository"
)

func TestGuard_LocksAtThreshold(t *testing.T) {
	g := New(5, 15*time.Minute)
	u := &repository.User{}
	now := time.Now().UTC()

	for i := 0; i < 4; i++ {
		if st := g.OnFailure(u, now); st != Open {
			t.Fatalf("intento %d: estado %v, esperaba Open", i+1, st)
		}
	}
	if st := g.OnFailure(u, now); st != Locked {
		t.Fatalf("quinto intento debería bloquear")
	}
	if u.LockedUntil == nil || !u.LockedUntil.Equal(now.Add(15*time.Minute)) {
		t.Fatalf("LockedUntil = %v, esperaba now+15m", u.LockedUntil)
	}
}

func TestGuard_FailuresDuringLockAreNoOps(t *testing.T) {
	g := New(5, 15*time.Minute)
	u := &repository.User{}
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		g.OnFailure(u, now)
	}
	until := *u.LockedUntil
	attempts := u.FailedAttempts

	g.OnFailure(u, now.Add(time.Minute))
	if u.FailedAttempts != attempts || !u.LockedUntil.Equal(until) {
		t.Fatalf("un intento durante el bloqueo no debe alterar contador ni vencimiento")
	}
}

func TestGuard_ExpiredLockResetsCounter(t *testing.T) {
	g := New(5, 15*time.Minute)
	u := &repository.User{}
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		g.OnFailure(u, now)
	}

	later := now.Add(16 * time.Minute)
	if st := g.Status(u, later); st != Open {
		t.Fatalf("bloqueo vencido debería leerse Open (lazy unlock)")
	}
	if st := g.OnFailure(u, later); st != Open {
		t.Fatalf("primer fallo tras vencer el bloqueo no debe bloquear")
	}
	if u.FailedAttempts != 1 {
		t.Fatalf("contador = %d, esperaba 1 (arranque limpio)", u.FailedAttempts)
	}
}

func TestGuard_OnSuccessClearsState(t *testing.T) {
	g := New(5, 15*time.Minute)
	u := &repository.User{}
	now := time.Now().UTC()

	g.OnFailure(u, now)
	g.OnFailure(u, now)
	g.OnSuccess(u)

	if u.FailedAttempts != 0 || u.LockedUntil != nil {
		t.Fatalf("OnSuccess debe resetear contador y vencimiento")
	}
}

func TestNew_Defaults(t *testing.T) {
	g := New(0, 0)
	if g.MaxAttempts != 5 || g.LockFor != 15*time.Minute {
		t.Fatalf("defaults inesperados: %+v", g)
	}
}
