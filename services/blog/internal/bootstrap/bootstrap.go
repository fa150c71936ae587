// Package bootstrap turns a loaded config into wired dependencies shared by
// the server and seed commands.
package bootstrap

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"inkpost/internal/ratelimit"
	"inkpost/internal/util"
	"inkpost/pkg/store"
	"inkpost/services/blog/internal/app"
	"inkpost/services/blog/internal/config"
)

// Deps holds the long-lived handles built from config.
type Deps struct {
	App            *app.App
	Store          *store.GormStore
	Redis          *redis.Client
	WriteLimiter   ratelimit.Limiter
	TrustedProxies *util.TrustedProxies
}

// Build opens the database, Redis (when configured), the session store and
// the write limiter.
func Build(cfg config.FileConfig) (*Deps, error) {
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	opTimeout, err := config.ParseRequestTimeout(cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	deps := &Deps{Store: dataStore, TrustedProxies: trusted}
	if cfg.RedisAddr != "" {
		deps.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
	}

	var sessions store.SessionStore
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		sessions = store.NewRedisSessionStore(deps.Redis, sessionTTL)
	default:
		var revoker store.TokenRevoker = store.NewMemoryTokenRevoker()
		if deps.Redis != nil {
			revoker = store.NewRedisTokenRevoker(deps.Redis)
		}
		sessions, err = store.NewJWTSessionStore(cfg.JWTSecret, sessionTTL, revoker, store.JWTOptions{
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		})
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("init jwt sessions: %w", err)
		}
	}

	if cfg.WriteRateLimitPerMinute > 0 {
		if deps.Redis != nil {
			deps.WriteLimiter, err = ratelimit.NewRedisFixedWindowLimiter(deps.Redis, "blog:ratelimit:write", cfg.WriteRateLimitPerMinute, time.Minute)
		} else {
			deps.WriteLimiter, err = ratelimit.NewLocalLimiter(cfg.WriteRateLimitPerMinute)
		}
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("init write limiter: %w", err)
		}
	}

	deps.App, err = app.New(app.Config{
		Store:               dataStore,
		Sessions:            sessions,
		TrustSuppliedAuthor: !cfg.SessionRequired(),
		OperationTimeout:    opTimeout,
	})
	if err != nil {
		deps.Close()
		return nil, err
	}
	return deps, nil
}

// Close releases the database pool and Redis client.
func (d *Deps) Close() {
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.Store != nil {
		_ = d.Store.Close()
	}
}
