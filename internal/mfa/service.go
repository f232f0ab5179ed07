// Package mfa implementa la generación y verificación de segundo factor:
// secretos TOTP, payload de enrolamiento (otpauth://) y backup codes de un
// solo uso. Sin estado propio: lee y escribe los campos MFA del usuario.
package mfa

import (
	"crypto/rand"
	"crypto/subtle"
	"time"

	"github.com/dropDatabas3/authkit/internal/security/secretbox"
	tokens "github.com/dropDatabas3/authkit/internal/security/token"
	"github.com/dropDatabas3/authkit/internal/security/totp"
)

const (
	// BackupCodeCount es la cantidad de códigos generados por tanda.
	BackupCodeCount = 10
	backupCodeLen   = 10
	// backupAlphabet evita caracteres ambiguos (no I, O, 0, 1).
	backupAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Service genera y verifica factores MFA.
type Service struct {
	// Issuer es la etiqueta del emisor en el otpauth:// (lo que muestra la app).
	Issuer string
	// Window son los pasos de tolerancia de clock skew hacia cada lado.
	Window int
	// Box cifra los secretos TOTP en reposo. nil = secretos en claro
	// (solo aceptable en tests).
	Box *secretbox.Box
}

// New crea un servicio MFA. window <= 0 cae a 1 paso.
func New(issuer string, window int, box *secretbox.Box) *Service {
	if issuer == "" {
		issuer = "authkit"
	}
	if window <= 0 {
		window = 1
	}
	return &Service{Issuer: issuer, Window: window, Box: box}
}

// GenerateSecret retorna un secreto base32 nuevo, criptográficamente aleatorio.
func (s *Service) GenerateSecret() (string, error) {
	_, b32, err := totp.GenerateSecret()
	return b32, err
}

// EnrollmentURL construye el payload de enrolamiento (QR-renderable) para la
// cuenta dada, según el esquema estándar otpauth://totp.
func (s *Service) EnrollmentURL(secretB32, accountLabel string) string {
	return totp.OTPAuthURL(s.Issuer, accountLabel, secretB32)
}

// EncryptSecret cifra el secreto para persistirlo.
func (s *Service) EncryptSecret(secretB32 string) (string, error) {
	if s.Box == nil {
		return secretB32, nil
	}
	return s.Box.Encrypt(secretB32)
}

// DecryptSecret recupera el secreto base32 desde su forma cifrada.
func (s *Service) DecryptSecret(enc string) (string, error) {
	if s.Box == nil {
		return enc, nil
	}
	return s.Box.Decrypt(enc)
}

// VerifyTOTP valida el código contra el secreto en la ventana configurada.
// lastCounter (si no es nil) impide re-aceptar un paso ya usado; retorna el
// counter aceptado para que el caller lo persista.
func (s *Service) VerifyTOTP(secretB32, code string, now time.Time, lastCounter *int64) (bool, int64) {
	raw, err := totp.DecodeSecret(secretB32)
	if err != nil {
		return false, 0
	}
	return totp.Verify(raw, code, now, s.Window, lastCounter)
}

// GenerateBackupCodes retorna BackupCodeCount códigos alfanuméricos únicos de
// largo fijo, generados independientemente (la probabilidad de colisión es
// despreciable, no se deduplica contra el historial).
func (s *Service) GenerateBackupCodes() ([]string, error) {
	out := make([]string, BackupCodeCount)
	buf := make([]byte, backupCodeLen)
	for i := range out {
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		code := make([]byte, backupCodeLen)
		for j, b := range buf {
			code[j] = backupAlphabet[int(b)%len(backupAlphabet)]
		}
		out[i] = string(code)
	}
	return out, nil
}

// HashBackupCode deriva la forma persistible de un código (SHA-256 base64url).
func (s *Service) HashBackupCode(code string) string {
	return tokens.SHA256Base64URL(code)
}

// HashBackupCodes aplica HashBackupCode a toda la tanda preservando el orden.
func (s *Service) HashBackupCodes(codes []string) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = s.HashBackupCode(c)
	}
	return out
}

// VerifyBackupCode busca submitted en la lista con comparación constant-time.
// Si matchea retorna la lista sin ese código (uso único, orden preservado);
// si no, retorna la lista original sin cambios. El caller debe persistir la
// lista reducida dentro de la sección exclusiva del usuario.
func VerifyBackupCode(codes []string, submitted string) (valid bool, remaining []string) {
	idx := -1
	for i, c := range codes {
		// Sin short-circuit: se recorren todos para no filtrar posición.
		if subtle.ConstantTimeCompare([]byte(c), []byte(submitted)) == 1 && idx == -1 {
			idx = i
		}
	}
	if idx == -1 {
		return false, codes
	}
	remaining = make([]string, 0, len(codes)-1)
	remaining = append(remaining, codes[:idx]...)
	remaining = append(remaining, codes[idx+1:]...)
	return true, remaining
}
