package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"inkpost/internal/util"
	"inkpost/pkg/store"
)

// ConfigPath is the default config file, overridable with BLOG_CONFIG.
const ConfigPath = "config.yaml"

const (
	SessionStoreJWT   = "jwt"
	SessionStoreRedis = "redis"

	defaultSessionTTL     = 24 * time.Hour
	defaultRequestTimeout = 5 * time.Second
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                    string   `yaml:"port"`
	LogLevel                string   `yaml:"logLevel"`
	LogFormat               string   `yaml:"logFormat"`
	DatabaseURL             string   `yaml:"databaseURL"`
	RedisAddr               string   `yaml:"redisAddr"`
	RedisPassword           string   `yaml:"redisPassword"`
	SessionStore            string   `yaml:"sessionStore"`
	SessionTTL              string   `yaml:"sessionTTL"`
	JWTSecret               string   `yaml:"jwtSecret"`
	JWTIssuer               string   `yaml:"jwtIssuer"`
	JWTAudience             string   `yaml:"jwtAudience"`
	RequireSession          *bool    `yaml:"requireSession"`
	DevSignIn               bool     `yaml:"devSignIn"`
	RequestTimeout          string   `yaml:"requestTimeout"`
	WriteRateLimitPerMinute int      `yaml:"writeRateLimitPerMinute"`
	TrustedProxyCIDRs       []string `yaml:"trustedProxyCidrs"`
	CORSOrigins             []string `yaml:"corsOrigins"`
}

// Path returns the config file location, honouring BLOG_CONFIG.
func Path() string {
	if v := strings.TrimSpace(os.Getenv("BLOG_CONFIG")); v != "" {
		return v
	}
	return ConfigPath
}

// Load reads config from path (defaults to Path()) and applies env overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = Path()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	cfg.SessionStore = strings.ToLower(strings.TrimSpace(cfg.SessionStore))
	if cfg.SessionStore == "" {
		cfg.SessionStore = SessionStoreJWT
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("BLOG_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("BLOG_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BLOG_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("BLOG_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("BLOG_SESSION_STORE"); v != "" {
		cfg.SessionStore = v
	}
	if v := os.Getenv("BLOG_SESSION_TTL"); v != "" {
		cfg.SessionTTL = v
	}
	if v := os.Getenv("BLOG_REQUIRE_SESSION"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.RequireSession = &b
		}
	}
	if v := os.Getenv("BLOG_DEV_SIGN_IN"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.DevSignIn = b
		}
	}
	if v := os.Getenv("BLOG_REQUEST_TIMEOUT"); v != "" {
		cfg.RequestTimeout = v
	}
	if v := os.Getenv("BLOG_WRITE_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.WriteRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("BLOG_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("BLOG_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitCSV(v)
	}
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("config: port is required (set in config.yaml or BLOG_PORT)")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	switch cfg.SessionStore {
	case SessionStoreJWT:
		if len(cfg.JWTSecret) < store.MinJWTSecretLength {
			return fmt.Errorf("config: jwtSecret must be at least %d bytes for the jwt session store", store.MinJWTSecretLength)
		}
	case SessionStoreRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for the redis session store")
		}
	default:
		return fmt.Errorf("config: sessionStore must be %q or %q", SessionStoreJWT, SessionStoreRedis)
	}
	if _, err := ParseSessionTTL(cfg.SessionTTL); err != nil {
		return err
	}
	if _, err := ParseRequestTimeout(cfg.RequestTimeout); err != nil {
		return err
	}
	if cfg.WriteRateLimitPerMinute < 0 {
		return errors.New("config: writeRateLimitPerMinute must be >= 0")
	}
	if _, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs); err != nil {
		return fmt.Errorf("config: invalid trustedProxyCidrs: %w", err)
	}
	return nil
}

// SessionRequired reports whether mutations need a verified session. Defaults to true.
func (c FileConfig) SessionRequired() bool {
	return c.RequireSession == nil || *c.RequireSession
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseSessionTTL parses the optional session TTL; empty means 24h.
func ParseSessionTTL(ttlStr string) (time.Duration, error) {
	return parsePositiveDuration("sessionTTL", ttlStr, defaultSessionTTL)
}

// ParseRequestTimeout parses the optional per-operation timeout; empty means 5s.
func ParseRequestTimeout(timeoutStr string) (time.Duration, error) {
	return parsePositiveDuration("requestTimeout", timeoutStr, defaultRequestTimeout)
}

func parsePositiveDuration(name, value string, def time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("invalid %s duration: must be positive", name)
	}
	return dur, nil
}
