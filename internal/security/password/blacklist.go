package password

// commonPasswords es un corte corto de las listas públicas de passwords más
// usados. Suficiente para frenar lo obvio; listas grandes van por archivo.
var commonPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"123456":      {},
	"12345678":    {},
	"123456789":   {},
	"qwerty":      {},
	"qwerty123":   {},
	"abc123":      {},
	"letmein":     {},
	"iloveyou":    {},
	"admin":       {},
	"welcome":     {},
	"welcome1":    {},
	"monkey":      {},
	"dragon":      {},
	"football":    {},
	"baseball":    {},
	"sunshine":    {},
	"princess":    {},
}
