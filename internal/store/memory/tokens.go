package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/authkit/internal/domain/repository"
	"github.com/google/uuid"
)

// TokenStore es la tabla de refresh tokens en memoria, indexada por hash.
// La rotación serializa por familia: dos rotaciones concurrentes del mismo
// token compiten por el lock de su familia y solo una gana; la perdedora
// observa ReplacedBy ya seteado y toma el camino de reuso.
type TokenStore struct {
	mu       sync.RWMutex // protege los índices
	byHash   map[string]*repository.RefreshToken
	families map[string]*familyEntry
}

type familyEntry struct {
	mu     sync.Mutex // sección exclusiva por familia
	hashes []string
}

// NewTokenStore crea una tabla vacía.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		byHash:   map[string]*repository.RefreshToken{},
		families: map[string]*familyEntry{},
	}
}

func (s *TokenStore) Create(ctx context.Context, input repository.CreateRefreshTokenInput) (*repository.RefreshToken, error) {
	if input.UserID == "" || input.TokenHash == "" || input.TTL <= 0 {
		return nil, repository.ErrInvalidInput
	}
	now := time.Now().UTC()
	rt := &repository.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    input.UserID,
		FamilyID:  input.FamilyID,
		TokenHash: input.TokenHash,
		IssuedAt:  now,
		ExpiresAt: now.Add(input.TTL),
	}
	if rt.FamilyID == "" {
		rt.FamilyID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(rt)

	out := *rt
	return &out, nil
}

// insertLocked requiere s.mu tomado en escritura.
func (s *TokenStore) insertLocked(rt *repository.RefreshToken) {
	s.byHash[rt.TokenHash] = rt
	fam := s.families[rt.FamilyID]
	if fam == nil {
		fam = &familyEntry{}
		s.families[rt.FamilyID] = fam
	}
	fam.hashes = append(fam.hashes, rt.TokenHash)
}

func (s *TokenStore) GetByHash(ctx context.Context, tokenHash string) (*repository.RefreshToken, error) {
	rt, fam := s.lookup(tokenHash)
	if rt == nil {
		return nil, repository.ErrNotFound
	}
	fam.mu.Lock()
	out := cloneToken(rt)
	fam.mu.Unlock()
	return &out, nil
}

// Replace es la rotación atómica: bajo el lock de la familia verifica el
// estado del token, lo marca revocado+ReplacedBy y crea al sucesor. El
// chequeo y el reemplazo son indivisibles.
func (s *TokenStore) Replace(ctx context.Context, tokenHash string, successor repository.CreateRefreshTokenInput) (*repository.RefreshToken, error) {
	rt, fam := s.lookup(tokenHash)
	if rt == nil {
		return nil, repository.ErrNotFound
	}

	fam.mu.Lock()
	defer fam.mu.Unlock()

	now := time.Now().UTC()
	if rt.RevokedAt != nil || rt.ReplacedBy != nil {
		return nil, repository.ErrTokenReuse
	}
	if !now.Before(rt.ExpiresAt) {
		return nil, repository.ErrTokenExpired
	}
	if successor.TokenHash == "" {
		return nil, repository.ErrInvalidInput
	}

	next := &repository.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    rt.UserID,
		FamilyID:  rt.FamilyID, // el sucesor hereda la familia
		TokenHash: successor.TokenHash,
		IssuedAt:  now,
		ExpiresAt: now.Add(successor.TTL),
	}

	rt.RevokedAt = &now
	replaced := successor.TokenHash
	rt.ReplacedBy = &replaced

	s.mu.Lock()
	s.byHash[next.TokenHash] = next
	fam.hashes = append(fam.hashes, next.TokenHash)
	s.mu.Unlock()

	out := cloneToken(next)
	return &out, nil
}

// Revoke revoca un único token. Idempotente hacia arriba: revocar un token
// ya revocado retorna ErrInvalidToken para que logout doble falle grácil.
func (s *TokenStore) Revoke(ctx context.Context, tokenHash string) error {
	rt, fam := s.lookup(tokenHash)
	if rt == nil {
		return repository.ErrNotFound
	}
	fam.mu.Lock()
	defer fam.mu.Unlock()
	if rt.RevokedAt != nil {
		return repository.ErrInvalidToken
	}
	now := time.Now().UTC()
	rt.RevokedAt = &now
	return nil
}

func (s *TokenStore) RevokeFamily(ctx context.Context, familyID string) (int, error) {
	s.mu.RLock()
	fam := s.families[familyID]
	s.mu.RUnlock()
	if fam == nil {
		return 0, nil
	}

	fam.mu.Lock()
	defer fam.mu.Unlock()

	now := time.Now().UTC()
	n := 0
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range fam.hashes {
		if rt := s.byHash[h]; rt != nil && rt.RevokedAt == nil {
			rt.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

func (s *TokenStore) RevokeAllByUser(ctx context.Context, userID string) (int, error) {
	// Recolectar familias del usuario primero para respetar el orden de locks
	// (family.mu nunca se toma con s.mu en escritura).
	s.mu.RLock()
	famIDs := map[string]struct{}{}
	for _, rt := range s.byHash {
		if rt.UserID == userID {
			famIDs[rt.FamilyID] = struct{}{}
		}
	}
	s.mu.RUnlock()

	total := 0
	for id := range famIDs {
		n, _ := s.RevokeFamily(ctx, id)
		total += n
	}
	return total, nil
}

func (s *TokenStore) lookup(tokenHash string) (*repository.RefreshToken, *familyEntry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rt := s.byHash[tokenHash]
	if rt == nil {
		return nil, nil
	}
	return rt, s.families[rt.FamilyID]
}

func cloneToken(rt *repository.RefreshToken) repository.RefreshToken {
	out := *rt
	out.RevokedAt = cloneTime(rt.RevokedAt)
	if rt.ReplacedBy != nil {
		v := *rt.ReplacedBy
		out.ReplacedBy = &v
	}
	return out
}
