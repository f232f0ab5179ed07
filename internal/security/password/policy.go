package password

import (
	"strings"
	"unicode"
)

// Policy define las reglas mínimas que debe cumplir un password.
type Policy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool

	// Blacklist opcional de passwords comunes (lowercased).
	Blacklist map[string]struct{}
}

// DefaultPolicy replica los requisitos típicos: 8+ chars, mayúscula,
// minúscula y dígito.
var DefaultPolicy = Policy{
	MinLength:    8,
	RequireUpper: true,
	RequireLower: true,
	RequireDigit: true,
	Blacklist:    commonPasswords,
}

// Validate evalúa TODAS las reglas y retorna cada razón incumplida
// (snake_case), no solo la primera.
func (p Policy) Validate(s string) (ok bool, reasons []string) {
	if len([]rune(s)) < p.MinLength {
		reasons = append(reasons, "too_short")
	}
	var hasU, hasL, hasD, hasS bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			hasU = true
		case unicode.IsLower(r):
			hasL = true
		case unicode.IsDigit(r):
			hasD = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasS = true
		}
	}
	if p.RequireUpper && !hasU {
		reasons = append(reasons, "missing_upper")
	}
	if p.RequireLower && !hasL {
		reasons = append(reasons, "missing_lower")
	}
	if p.RequireDigit && !hasD {
		reasons = append(reasons, "missing_digit")
	}
	if p.RequireSymbol && !hasS {
		reasons = append(reasons, "missing_symbol")
	}
	if p.Blacklist != nil {
		if _, bad := p.Blacklist[strings.ToLower(strings.TrimSpace(s))]; bad {
			reasons = append(reasons, "blacklisted")
		}
	}
	return len(reasons) == 0, reasons
}
