// Package rate implementa rate limiting de ventana fija para los endpoints
// sensibles (login, refresh). Dos backends: memoria para single-node y Redis
// cuando hay varias réplicas detrás de un balanceador.
package rate

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	rdb "github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// ============================================================================
// Redis
// ============================================================================

// RedisLimiter: fixed window sencillo (INCR + EXPIRE)
type RedisLimiter struct {
	Client *rdb.Client
	Prefix string
	Max    int64
	Window time.Duration
}

func NewRedisLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{
		Client: client,
		Prefix: prefix,
		Max:    int64(max),
		Window: window,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now().UTC()
	winStart := now.Truncate(l.Window)
	redisKey := fmt.Sprintf("%s%s:%d", l.Prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())

	pipe := l.Client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return Result{}, err
	}

	// set expiry on first hit
	if incr.Val() == 1 {
		_ = l.Client.Expire(ctx, redisKey, l.Window).Err()
		ttl = l.Client.TTL(ctx, redisKey)
	}

	hits := incr.Val()
	allowed := hits <= l.Max
	remaining := l.Max - hits
	if remaining < 0 {
		remaining = 0
	}

	res := Result{
		Allowed:     allowed,
		Remaining:   remaining,
		CurrentHits: hits,
		WindowTTL:   ttl.Val(),
	}
	if !allowed {
		// Retry after: resto de la ventana
		res.RetryAfter = ttl.Val()
		if res.RetryAfter < 0 {
			res.RetryAfter = time.Duration(math.Ceil(l.Window.Seconds())) * time.Second
		}
	}
	return res, nil
}

// ============================================================================
// Memoria
// ============================================================================

// MemoryLimiter: misma semántica de ventana fija sobre un cache en memoria
// con expiración automática. Solo válido para un proceso.
type MemoryLimiter struct {
	cache  *gocache.Cache
	Max    int64
	Window time.Duration
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		cache:  gocache.New(window, 2*window),
		Max:    int64(max),
		Window: window,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now().UTC()
	winStart := now.Truncate(l.Window)
	winEnd := winStart.Add(l.Window)
	k := fmt.Sprintf("%s:%d", strings.ReplaceAll(key, " ", "_"), winStart.Unix())

	// Add es no-op si la key ya existe; Increment es atómico dentro del cache.
	_ = l.cache.Add(k, int64(0), winEnd.Sub(now))
	hits, err := l.cache.IncrementInt64(k, 1)
	if err != nil {
		// La entrada expiró entre Add e Increment: contar desde cero.
		l.cache.Set(k, int64(1), winEnd.Sub(now))
		hits = 1
	}

	allowed := hits <= l.Max
	remaining := l.Max - hits
	if remaining < 0 {
		remaining = 0
	}

	res := Result{
		Allowed:     allowed,
		Remaining:   remaining,
		CurrentHits: hits,
		WindowTTL:   winEnd.Sub(now),
	}
	if !allowed {
		res.RetryAfter = winEnd.Sub(now)
	}
	return res, nil
}
