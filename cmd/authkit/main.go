// Command authkit levanta el servicio de autenticación.
package main

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/authkit/internal/audit"
	"github.com/dropDatabas3/authkit/internal/auth"
	"github.com/dropDatabas3/authkit/internal/config"
	httpserver "github.com/dropDatabas3/authkit/internal/http"
	"github.com/dropDatabas3/authkit/internal/http/handlers"
	jwtx "github.com/dropDatabas3/authkit/internal/jwt"
	"github.com/dropDatabas3/authkit/internal/lockout"
	"github.com/dropDatabas3/authkit/internal/mfa"
	"github.com/dropDatabas3/authkit/internal/observability/logger"
	"github.com/dropDatabas3/authkit/internal/rate"
	"github.com/dropDatabas3/authkit/internal/security/password"
	"github.com/dropDatabas3/authkit/internal/security/secretbox"
	"github.com/dropDatabas3/authkit/internal/store/memory"
	"github.com/dropDatabas3/authkit/internal/token"
)

var version = "dev"

func main() {
	// .env primero: sus variables pisan el YAML vía config.Load.
	_ = godotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:   "authkit",
		Short: "Servicio de autenticación: usuarios, tokens, MFA",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "ruta al config.yaml (opcional)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Imprime la versión",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	hashCmd := &cobra.Command{
		Use:   "hash <password>",
		Short: "Deriva el hash argon2id de un password (para seeds o debugging)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			hasher := password.NewHasher(password.Params{
				Memory:      cfg.Security.Argon2.MemoryKiB,
				Time:        cfg.Security.Argon2.Time,
				Parallelism: cfg.Security.Argon2.Parallelism,
				KeyLen:      32,
			})
			phc, err := hasher.Hash(args[0])
			if err != nil {
				return err
			}
			fmt.Println(phc)
			return nil
		},
	}

	root.AddCommand(serveCmd, versionCmd, hashCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "authkit",
		Version:     version,
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	// ── Crypto ──────────────────────────────────────────────────────────
	var box *secretbox.Box
	if cfg.Security.SecretBoxMasterKey != "" {
		box, err = secretbox.New(cfg.Security.SecretBoxMasterKey)
		if err != nil {
			return fmt.Errorf("secretbox: %w", err)
		}
	} else {
		log.Warn("SECRETBOX_MASTER_KEY no configurada: secretos MFA sin cifrar en reposo")
	}

	var seed []byte
	if cfg.JWT.SigningSeed != "" {
		seed, err = decodeSeed(cfg.JWT.SigningSeed)
		if err != nil {
			return fmt.Errorf("signing seed: %w", err)
		}
	} else {
		log.Warn("JWT_SIGNING_SEED no configurada: los access tokens no sobreviven reinicios")
	}

	issuer, err := jwtx.NewIssuer(cfg.JWT.Issuer, cfg.AccessTTL(), seed)
	if err != nil {
		return fmt.Errorf("jwt issuer: %w", err)
	}

	// ── Stores y servicios ──────────────────────────────────────────────
	users := memory.NewUserStore()
	tokensStore := memory.NewTokenStore()

	metricsHandler, err := httpserver.RegisterMetrics(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	promSink, err := audit.NewPromSink(nil)
	if err != nil {
		return fmt.Errorf("audit metrics: %w", err)
	}
	sink := audit.Multi{audit.NewZapSink(log), promSink}

	tokenSvc := token.New(token.Deps{
		Tokens:     tokensStore,
		Users:      users,
		Issuer:     issuer,
		RefreshTTL: cfg.RefreshTTL(),
		Audit:      sink,
	})

	policy := password.Policy{
		MinLength:     cfg.Security.PasswordPolicy.MinLength,
		RequireUpper:  cfg.Security.PasswordPolicy.RequireUpper,
		RequireLower:  cfg.Security.PasswordPolicy.RequireLower,
		RequireDigit:  cfg.Security.PasswordPolicy.RequireDigit,
		RequireSymbol: cfg.Security.PasswordPolicy.RequireSymbol,
		Blacklist:     password.DefaultPolicy.Blacklist,
	}

	authSvc := auth.New(auth.Deps{
		Users: users,
		Hasher: password.NewHasher(password.Params{
			Memory:      cfg.Security.Argon2.MemoryKiB,
			Time:        cfg.Security.Argon2.Time,
			Parallelism: cfg.Security.Argon2.Parallelism,
			KeyLen:      32,
		}),
		Policy: policy,
		Guard:  lockout.New(cfg.Lockout.MaxAttempts, cfg.LockoutDuration()),
		MFA:    mfa.New(cfg.MFA.Issuer, cfg.MFA.Window, box),
		Tokens: tokenSvc,
		Audit:  sink,
	})

	// ── Rate limiting ───────────────────────────────────────────────────
	var loginLimiter, refreshLimiter rate.Limiter
	if cfg.Rate.Enabled {
		loginWindow, _ := time.ParseDuration(cfg.Rate.Login.Window)
		refreshWindow, _ := time.ParseDuration(cfg.Rate.Refresh.Window)

		switch cfg.Rate.Kind {
		case "redis":
			client := rdb.NewClient(&rdb.Options{Addr: cfg.Rate.Redis.Addr, DB: cfg.Rate.Redis.DB})
			prefix := cfg.Rate.Redis.Prefix
			loginLimiter = rate.NewRedisLimiter(client, prefix, cfg.Rate.Login.Limit, loginWindow)
			refreshLimiter = rate.NewRedisLimiter(client, prefix, cfg.Rate.Refresh.Limit, refreshWindow)
			log.Info("rate limiting con redis", logger.String("addr", cfg.Rate.Redis.Addr))
		default:
			loginLimiter = rate.NewMemoryLimiter(cfg.Rate.Login.Limit, loginWindow)
			refreshLimiter = rate.NewMemoryLimiter(cfg.Rate.Refresh.Limit, refreshWindow)
			log.Info("rate limiting en memoria")
		}
	}

	// ── HTTP ────────────────────────────────────────────────────────────
	router := httpserver.NewRouter(httpserver.RouterDeps{
		Auth:           handlers.NewAuthHandler(authSvc),
		MFA:            handlers.NewMFAHandler(authSvc),
		Me:             handlers.NewMeHandler(users),
		Verifier:       tokenSvc,
		LoginLimiter:   loginLimiter,
		RefreshLimiter: refreshLimiter,
		Metrics:        metricsHandler,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return httpserver.Serve(ctx, cfg.Server.Addr, router)
}

// decodeSeed acepta la seed ed25519 en base64 (std o raw) o hex.
func decodeSeed(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	if b, err := hex.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	return nil, fmt.Errorf("se requieren 32 bytes en base64 o hex")
}
