// Package secretbox cifra secretos en reposo con AES-256-GCM.
// Formato de salida: base64(nonce)|base64(ciphertext).
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	nonceSizeGCM      = 12  // AES-GCM nonce recomendado (96 bits)
	requiredKeyLength = 32  // 32 bytes => AES-256
	sep               = "|" // nonce|ciphertext (ambos en base64)
)

// Box cifra/descifra con una clave maestra fija.
// A diferencia de un singleton por env var, la clave se inyecta explícita
// desde la configuración del proceso.
type Box struct {
	key []byte
}

// New crea un Box desde la clave maestra. Acepta base64 (std o raw),
// hex (64 chars) o los 32 bytes crudos.
func New(masterKey string) (*Box, error) {
	k, err := decodeKey(masterKey)
	if err != nil {
		return nil, err
	}
	b := &Box{key: make([]byte, requiredKeyLength)}
	copy(b.key, k)
	return b, nil
}

func decodeKey(key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("clave maestra vacía; genere una con: openssl rand -base64 32")
	}
	if b, err := base64.StdEncoding.DecodeString(key); err == nil && len(b) == requiredKeyLength {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(key); err == nil && len(b) == requiredKeyLength {
		return b, nil
	}
	if len(key) == 64 {
		if h, err := hex.DecodeString(key); err == nil {
			return h, nil
		}
	}
	if len(key) == requiredKeyLength {
		return []byte(key), nil
	}
	return nil, fmt.Errorf("clave inválida: se requieren %d bytes (base64, hex o raw)", requiredKeyLength)
}

// Encrypt cifra plainText y devuelve base64(nonce)|base64(ciphertext).
func (b *Box) Encrypt(plainText string) (string, error) {
	aesgcm, err := b.gcm()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}
	ct := aesgcm.Seal(nil, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt recibe base64(nonce)|base64(ciphertext) y devuelve el texto plano.
// Falla si el ciphertext fue alterado (autenticación GCM).
func (b *Box) Decrypt(cipherText string) (string, error) {
	parts := strings.Split(cipherText, sep)
	if len(parts) != 2 {
		return "", errors.New("formato inválido: esperado base64(nonce)|base64(ciphertext)")
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(nonce) != nonceSizeGCM {
		return "", fmt.Errorf("nonce inválido: esperado %d bytes, obtuvo %d", nonceSizeGCM, len(nonce))
	}
	aesgcm, err := b.gcm()
	if err != nil {
		return "", err
	}
	pt, err := aesgcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("gcm auth/decrypt: %w", err)
	}
	return string(pt), nil
}

func (b *Box) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	return cipher.NewGCM(block)
}
