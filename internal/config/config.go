package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del servicio. Se carga desde YAML y
// cada campo puede pisarse por variable de entorno (ver applyEnvOverrides).
type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda "dev".
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"` // debug | info | warn | error
	} `yaml:"log"`

	JWT struct {
		Issuer     string `yaml:"issuer"`
		AccessTTL  string `yaml:"access_ttl"`
		RefreshTTL string `yaml:"refresh_ttl"`
		// SigningSeed: base64/hex de 32 bytes para clave ed25519
		// determinística. Vacío => clave efímera por proceso.
		SigningSeed string `yaml:"signing_seed"`
	} `yaml:"jwt"`

	Lockout struct {
		MaxAttempts int    `yaml:"max_attempts"`
		Duration    string `yaml:"duration"`
	} `yaml:"lockout"`

	MFA struct {
		Issuer string `yaml:"issuer"` // etiqueta en el otpauth://
		Window int    `yaml:"window"` // pasos de skew hacia cada lado
	} `yaml:"mfa"`

	Security struct {
		SecretBoxMasterKey string `yaml:"secretbox_master_key"` // base64(32 bytes)
		Argon2             struct {
			MemoryKiB   uint32 `yaml:"memory_kib"`
			Time        uint32 `yaml:"time"`
			Parallelism uint8  `yaml:"parallelism"`
		} `yaml:"argon2"`
		PasswordPolicy struct {
			MinLength     int  `yaml:"min_length"`
			RequireUpper  bool `yaml:"require_upper"`
			RequireLower  bool `yaml:"require_lower"`
			RequireDigit  bool `yaml:"require_digit"`
			RequireSymbol bool `yaml:"require_symbol"`
		} `yaml:"password_policy"`
	} `yaml:"security"`

	Rate struct {
		Enabled bool   `yaml:"enabled"`
		Kind    string `yaml:"kind"` // memory | redis
		Redis   struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Login struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"login"`
		Refresh struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"refresh"`
	} `yaml:"rate"`
}

// Load lee el YAML en path (path vacío => solo defaults + env) y aplica
// defaults, overrides por entorno y validación de duraciones.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "authkit"
	}
	if c.JWT.AccessTTL == "" {
		c.JWT.AccessTTL = "15m"
	}
	if c.JWT.RefreshTTL == "" {
		c.JWT.RefreshTTL = "720h" // 30d
	}
	if c.Lockout.MaxAttempts == 0 {
		c.Lockout.MaxAttempts = 5
	}
	if c.Lockout.Duration == "" {
		c.Lockout.Duration = "15m"
	}
	if c.MFA.Issuer == "" {
		c.MFA.Issuer = "authkit"
	}
	if c.MFA.Window == 0 {
		c.MFA.Window = 1
	}
	if c.Security.Argon2.MemoryKiB == 0 {
		c.Security.Argon2.MemoryKiB = 64 * 1024
	}
	if c.Security.Argon2.Time == 0 {
		c.Security.Argon2.Time = 3
	}
	if c.Security.Argon2.Parallelism == 0 {
		c.Security.Argon2.Parallelism = 1
	}
	if c.Security.PasswordPolicy.MinLength == 0 {
		c.Security.PasswordPolicy.MinLength = 8
		c.Security.PasswordPolicy.RequireUpper = true
		c.Security.PasswordPolicy.RequireLower = true
		c.Security.PasswordPolicy.RequireDigit = true
	}
	if c.Rate.Kind == "" {
		c.Rate.Kind = "memory"
	}
	if c.Rate.Login.Limit == 0 {
		c.Rate.Login.Limit = 10
	}
	if c.Rate.Login.Window == "" {
		c.Rate.Login.Window = "1m"
	}
	if c.Rate.Refresh.Limit == 0 {
		c.Rate.Refresh.Limit = 30
	}
	if c.Rate.Refresh.Window == "" {
		c.Rate.Refresh.Window = "1m"
	}

	c.applyEnvOverrides()

	// validate string durations
	for _, s := range []string{
		c.JWT.AccessTTL, c.JWT.RefreshTTL, c.Lockout.Duration,
		c.Rate.Login.Window, c.Rate.Refresh.Window,
	} {
		if _, err := time.ParseDuration(s); err != nil {
			return nil, err
		}
	}

	if c.Rate.Kind != "memory" && c.Rate.Kind != "redis" {
		return nil, errors.New("config: rate.kind debe ser memory o redis")
	}
	if c.Rate.Kind == "redis" && strings.TrimSpace(c.Rate.Redis.Addr) == "" {
		return nil, errors.New("config: rate.redis.addr requerido con kind=redis")
	}

	return &c, nil
}

// AccessTTL retorna la duración ya parseada (Load la validó).
func (c *Config) AccessTTL() time.Duration { return mustDur(c.JWT.AccessTTL) }

// RefreshTTL retorna la duración ya parseada.
func (c *Config) RefreshTTL() time.Duration { return mustDur(c.JWT.RefreshTTL) }

// LockoutDuration retorna la duración ya parseada.
func (c *Config) LockoutDuration() time.Duration { return mustDur(c.Lockout.Duration) }

func mustDur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}

	// JWT
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvStr("JWT_ACCESS_TTL"); ok {
		c.JWT.AccessTTL = v
	}
	if v, ok := getEnvStr("JWT_REFRESH_TTL"); ok {
		c.JWT.RefreshTTL = v
	}
	if v, ok := getEnvStr("JWT_SIGNING_SEED"); ok {
		c.JWT.SigningSeed = v
	}

	// LOCKOUT
	if v, ok := getEnvInt("LOCKOUT_MAX_ATTEMPTS"); ok {
		c.Lockout.MaxAttempts = v
	}
	if v, ok := getEnvStr("LOCKOUT_DURATION"); ok {
		c.Lockout.Duration = v
	}

	// MFA
	if v, ok := getEnvStr("MFA_ISSUER"); ok {
		c.MFA.Issuer = v
	}
	if v, ok := getEnvInt("MFA_WINDOW"); ok {
		c.MFA.Window = v
	}

	// SECURITY
	if v, ok := getEnvStr("SECRETBOX_MASTER_KEY"); ok {
		c.Security.SecretBoxMasterKey = v
	}
	if v, ok := getEnvInt("ARGON2_MEMORY_KIB"); ok {
		c.Security.Argon2.MemoryKiB = uint32(v)
	}
	if v, ok := getEnvInt("ARGON2_TIME"); ok {
		c.Security.Argon2.Time = uint32(v)
	}
	if v, ok := getEnvInt("ARGON2_PARALLELISM"); ok {
		c.Security.Argon2.Parallelism = uint8(v)
	}
	if v, ok := getEnvInt("SECURITY_PASSWORD_POLICY_MIN_LENGTH"); ok {
		c.Security.PasswordPolicy.MinLength = v
	}
	if v, ok := getEnvBool("SECURITY_PASSWORD_POLICY_REQUIRE_UPPER"); ok {
		c.Security.PasswordPolicy.RequireUpper = v
	}
	if v, ok := getEnvBool("SECURITY_PASSWORD_POLICY_REQUIRE_LOWER"); ok {
		c.Security.PasswordPolicy.RequireLower = v
	}
	if v, ok := getEnvBool("SECURITY_PASSWORD_POLICY_REQUIRE_DIGIT"); ok {
		c.Security.PasswordPolicy.RequireDigit = v
	}
	if v, ok := getEnvBool("SECURITY_PASSWORD_POLICY_REQUIRE_SYMBOL"); ok {
		c.Security.PasswordPolicy.RequireSymbol = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvStr("RATE_KIND"); ok {
		c.Rate.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Rate.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Rate.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Rate.Redis.Prefix = v
	}
	if v, ok := getEnvInt("RATE_LOGIN_LIMIT"); ok {
		c.Rate.Login.Limit = v
	}
	if v, ok := getEnvStr("RATE_LOGIN_WINDOW"); ok {
		c.Rate.Login.Window = v
	}
	if v, ok := getEnvInt("RATE_REFRESH_LIMIT"); ok {
		c.Rate.Refresh.Limit = v
	}
	if v, ok := getEnvStr("RATE_REFRESH_WINDOW"); ok {
		c.Rate.Refresh.Window = v
	}
}
