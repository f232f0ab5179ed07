package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params controla el costo de derivación argon2id.
type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	KeyLen      uint32
}

var Default = Params{Memory: 64 * 1024, Time: 3, Parallelism: 1, KeyLen: 32}

// Hasher deriva y verifica digests de password con parámetros fijos.
type Hasher struct {
	Params Params
}

// NewHasher crea un hasher; params en cero usa Default.
func NewHasher(p Params) *Hasher {
	if p.Memory == 0 || p.Time == 0 || p.Parallelism == 0 || p.KeyLen == 0 {
		p = Default
	}
	return &Hasher{Params: p}
}

// Hash devuelve un PHC string: $argon2id$v=19$m=...,t=...,p=...$<saltB64>$<dkB64>
// El salt es aleatorio por llamada y viaja embebido en la salida.
func (h *Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", fmt.Errorf("empty password")
	}
	p := h.Params
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	dk := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Parallelism, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		p.Memory, p.Time, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(dk),
	), nil
}

// Verify re-deriva con los parámetros embebidos en el PHC y compara en
// tiempo constante. Cualquier PHC malformado retorna false, nunca error.
func (h *Hasher) Verify(plain, phc string) bool {
	// $argon2id$v=19$m=..,t=..,p=..$salt$dk
	parts := strings.Split(phc, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}
	var v int
	if n, _ := fmt.Sscanf(parts[2], "v=%d", &v); n != 1 || v != 19 {
		return false
	}
	var m, t, p int
	if n, _ := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); n != 3 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	dkStored, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}
	key := argon2.IDKey([]byte(plain), salt, uint32(t), uint32(m), uint8(p), uint32(len(dkStored)))
	return subtle.ConstantTimeCompare(key, dkStored) == 1
}
