package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base32"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// Period es el time-step TOTP en segundos (RFC 6238).
	Period = 30
	digits = 6
)

// GenerateSecret retorna 20 bytes base32 sin padding (RFC 3548).
func GenerateSecret() (raw []byte, b32 string, err error) {
	raw = make([]byte, 20)
	_, err = rand.Read(raw)
	if err != nil {
		return nil, "", err
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
	return raw, enc, nil
}

// DecodeSecret decodifica un secreto base32 sin padding.
func DecodeSecret(b32 string) ([]byte, error) {
	return base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(strings.TrimSpace(b32)))
}

// OTPAuthURL construye otpauth:// para QR.
// otpauth://totp/{issuer}:{account}?secret=...&issuer=...&algorithm=SHA1&digits=6&period=30
func OTPAuthURL(issuer, accountName, secretB32 string) string {
	label := url.PathEscape(fmt.Sprintf("%s:%s", issuer, accountName))
	q := url.Values{}
	q.Set("secret", secretB32)
	q.Set("issuer", issuer)
	q.Set("algorithm", "SHA1")
	q.Set("digits", fmt.Sprintf("%d", digits))
	q.Set("period", fmt.Sprintf("%d", Period))
	return fmt.Sprintf("otpauth://totp/%s?%s", label, q.Encode())
}

// Code retorna el código TOTP del time-step que contiene a t.
func Code(secretRaw []byte, t time.Time) string {
	return gen(secretRaw, t.Unix()/Period)
}

// Verify valida un código TOTP en ventana +/- windowSteps (default 1).
// Evita replay: un counter <= lastCounterUsed nunca se acepta de nuevo.
// La comparación es constant-time.
func Verify(secretRaw []byte, code string, t time.Time, windowSteps int, lastCounterUsed *int64) (ok bool, counter int64) {
	code = strings.TrimSpace(code)
	if len(code) != digits {
		return false, 0
	}
	if windowSteps <= 0 {
		windowSteps = 1
	}
	counter = t.Unix() / Period
	start := counter - int64(windowSteps)
	end := counter + int64(windowSteps)
	for c := start; c <= end; c++ {
		if lastCounterUsed != nil && c <= *lastCounterUsed {
			continue // anti-replay
		}
		if hmac.Equal([]byte(gen(secretRaw, c)), []byte(code)) {
			return true, c
		}
	}
	return false, 0
}

// gen implementa HOTP(K, C) con HMAC-SHA1 (RFC 4226 / 6238).
func gen(secretRaw []byte, counter int64) string {
	var msg [8]byte
	for i := 7; i >= 0; i-- {
		msg[i] = byte(counter & 0xff)
		counter >>= 8
	}
	m := hmac.New(sha1.New, secretRaw)
	_, _ = m.Write(msg[:])
	sum := m.Sum(nil)
	offset := int(sum[len(sum)-1] & 0x0f)
	bin := (int(sum[offset])&0x7f)<<24 | int(sum[offset+1])<<16 | int(sum[offset+2])<<8 | int(sum[offset+3])
	return fmt.Sprintf("%06d", bin%1000000)
}
