// Package memory implementa los repositorios del engine sobre memoria de
// proceso. Locking fino: cada usuario y cada familia de tokens tiene su
// propia sección exclusiva; los índices llevan un RWMutex aparte para que
// operaciones sobre usuarios distintos nunca contiendan.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/authkit/internal/domain/repository"
	"github.com/google/uuid"
)

// UserStore es el registro autoritativo de usuarios en memoria.
type UserStore struct {
	mu         sync.RWMutex // protege los mapas, no los registros
	byID       map[string]*userEntry
	byEmail    map[string]string // email (lower) -> id
	byUsername map[string]string // username -> id
}

type userEntry struct {
	mu sync.Mutex // sección exclusiva por usuario
	u  repository.User
}

// NewUserStore crea un store vacío.
func NewUserStore() *UserStore {
	return &UserStore{
		byID:       map[string]*userEntry{},
		byEmail:    map[string]string{},
		byUsername: map[string]string{},
	}
}

// NormalizeEmail aplica la normalización canónica de emails del store.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserStore) Create(ctx context.Context, input repository.CreateUserInput) (*repository.User, error) {
	email := NormalizeEmail(input.Email)
	username := strings.TrimSpace(input.Username)
	if email == "" || input.PasswordHash == "" {
		return nil, repository.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[email]; taken {
		return nil, repository.ErrConflict
	}
	// Username es opcional; solo se indexa (y reserva) si viene.
	if username != "" {
		if _, taken := s.byUsername[username]; taken {
			return nil, repository.ErrConflict
		}
	}

	now := time.Now().UTC()
	u := repository.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: input.PasswordHash,
		Roles:        cloneStrings(input.Roles),
		Permissions:  cloneStrings(input.Permissions),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	entry := &userEntry{u: u}
	s.byID[u.ID] = entry
	s.byEmail[email] = u.ID
	if username != "" {
		s.byUsername[username] = u.ID
	}

	out := cloneUser(&u)
	return &out, nil
}

func (s *UserStore) GetByID(ctx context.Context, userID string) (*repository.User, error) {
	entry := s.lookup(userID)
	if entry == nil {
		return nil, repository.ErrNotFound
	}
	entry.mu.Lock()
	out := cloneUser(&entry.u)
	entry.mu.Unlock()
	return &out, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[NormalizeEmail(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.GetByID(ctx, id)
}

// GetByIdentifier resuelve primero por email y luego por username.
func (s *UserStore) GetByIdentifier(ctx context.Context, identifier string) (*repository.User, error) {
	identifier = strings.TrimSpace(identifier)
	s.mu.RLock()
	id, ok := s.byEmail[strings.ToLower(identifier)]
	if !ok {
		id, ok = s.byUsername[identifier]
	}
	s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.GetByID(ctx, id)
}

// Update aplica el mutator bajo el lock del usuario. El mutator trabaja
// sobre una copia: si falla, el registro queda intacto. Cambios de
// email/username se validan contra los índices antes de publicar.
func (s *UserStore) Update(ctx context.Context, userID string, mutate func(*repository.User) error) (*repository.User, error) {
	entry := s.lookup(userID)
	if entry == nil {
		return nil, repository.ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	work := cloneUser(&entry.u)
	if err := mutate(&work); err != nil {
		return nil, err
	}

	// Campos inmutables
	work.ID = entry.u.ID
	work.CreatedAt = entry.u.CreatedAt
	work.Email = NormalizeEmail(work.Email)
	work.Username = strings.TrimSpace(work.Username)
	work.UpdatedAt = time.Now().UTC()

	if work.Email != entry.u.Email || work.Username != entry.u.Username {
		if err := s.reindex(&entry.u, &work); err != nil {
			return nil, err
		}
	}

	entry.u = cloneUser(&work)
	out := cloneUser(&work)
	return &out, nil
}

// reindex mueve las claves únicas del usuario. Las cuentas desactivadas
// siguen reservando su email/username: un duplicado contra ellas es Conflict.
func (s *UserStore) reindex(old, next *repository.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if next.Email != old.Email {
		if owner, taken := s.byEmail[next.Email]; taken && owner != old.ID {
			return repository.ErrConflict
		}
	}
	if next.Username != old.Username && next.Username != "" {
		if owner, taken := s.byUsername[next.Username]; taken && owner != old.ID {
			return repository.ErrConflict
		}
	}
	delete(s.byEmail, old.Email)
	if old.Username != "" {
		delete(s.byUsername, old.Username)
	}
	s.byEmail[next.Email] = old.ID
	if next.Username != "" {
		s.byUsername[next.Username] = old.ID
	}
	return nil
}

func (s *UserStore) lookup(userID string) *userEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[userID]
}

func cloneUser(u *repository.User) repository.User {
	out := *u
	out.Roles = cloneStrings(u.Roles)
	out.Permissions = cloneStrings(u.Permissions)
	out.MFA.BackupCodes = cloneStrings(u.MFA.BackupCodes)
	out.LockedUntil = cloneTime(u.LockedUntil)
	out.DisabledAt = cloneTime(u.DisabledAt)
	out.MFA.ConfirmedAt = cloneTime(u.MFA.ConfirmedAt)
	out.MFA.LastCounter = cloneInt64(u.MFA.LastCounter)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
