package authcore

import (
	"os"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
)

const (
	DefaultAccessTokenTTL    = 30 * time.Minute
	DefaultRefreshTokenTTL   = 7 * 24 * time.Hour
	DefaultMaxLoginAttempts  = 5
	DefaultLockoutDuration   = 15 * time.Minute
	DefaultSuspicionLimit    = 5
	DefaultSuspicionWindow   = 10 * time.Minute
	DefaultCollectorPort     = 514
	DefaultForwardTimeout    = 3 * time.Second
	DefaultForwardQueueSize  = 256
	DefaultFallbackLogPath   = "audit_events.log"
	DefaultCollectorProtocol = "tcp"
	DefaultAppTag            = "authcore"
)

// Config carries every tunable the engine needs. Components take it at
// construction so they are independently testable with fixed parameters;
// nothing reads ambient state after startup.
type Config struct {
	// SigningKey is the symmetric MAC secret. Required.
	SigningKey string
	Issuer     string
	Audience   []string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	BcryptCost int

	MaxLoginAttempts int
	LockoutDuration  time.Duration

	SuspicionLimit  int
	SuspicionWindow time.Duration

	// CollectorHost empty disables the network hop; local auditing is
	// unaffected.
	CollectorHost     string
	CollectorPort     int
	CollectorProtocol string
	ForwardTimeout    time.Duration
	ForwardQueueSize  int
	FallbackLogPath   string
	AppTag            string
}

// Validate reports configuration that cannot produce a working engine.
func (c Config) Validate() error {
	if c.SigningKey == "" {
		return goerrors.New("signing key must be configured", goerrors.CategoryBadInput)
	}

	if c.AccessTokenTTL > 0 && c.RefreshTokenTTL > 0 && c.AccessTokenTTL >= c.RefreshTokenTTL {
		return goerrors.New("access token TTL must be shorter than refresh token TTL", goerrors.CategoryBadInput)
	}

	switch strings.ToLower(c.CollectorProtocol) {
	case "", "tcp", "udp":
	default:
		return goerrors.New("collector protocol must be tcp or udp", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"protocol": c.CollectorProtocol})
	}

	return nil
}

// WithDefaults fills every zero field with its default value.
func (c Config) WithDefaults() Config {
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.RefreshTokenTTL <= 0 {
		c.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if c.BcryptCost <= 0 {
		c.BcryptCost = DefaultBcryptCost
	}
	if c.MaxLoginAttempts <= 0 {
		c.MaxLoginAttempts = DefaultMaxLoginAttempts
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = DefaultLockoutDuration
	}
	if c.SuspicionLimit <= 0 {
		c.SuspicionLimit = DefaultSuspicionLimit
	}
	if c.SuspicionWindow <= 0 {
		c.SuspicionWindow = DefaultSuspicionWindow
	}
	if c.CollectorPort <= 0 {
		c.CollectorPort = DefaultCollectorPort
	}
	if c.CollectorProtocol == "" {
		c.CollectorProtocol = DefaultCollectorProtocol
	}
	if c.ForwardTimeout <= 0 {
		c.ForwardTimeout = DefaultForwardTimeout
	}
	if c.ForwardQueueSize <= 0 {
		c.ForwardQueueSize = DefaultForwardQueueSize
	}
	if c.FallbackLogPath == "" {
		c.FallbackLogPath = DefaultFallbackLogPath
	}
	if c.AppTag == "" {
		c.AppTag = DefaultAppTag
	}
	return c
}

// ConfigFromEnv builds a Config from the environment, loading a .env
// file first when one is present.
func ConfigFromEnv() (Config, error) {
	// missing .env is fine, the environment may be set directly
	_ = godotenv.Load()

	cfg := Config{
		SigningKey:        os.Getenv("AUTH_SIGNING_KEY"),
		Issuer:            os.Getenv("AUTH_ISSUER"),
		CollectorHost:     os.Getenv("COLLECTOR_HOST"),
		CollectorProtocol: strings.ToLower(os.Getenv("COLLECTOR_PROTOCOL")),
		FallbackLogPath:   os.Getenv("COLLECTOR_FALLBACK_LOG"),
		AppTag:            os.Getenv("COLLECTOR_APP_TAG"),
	}

	if aud := os.Getenv("AUTH_AUDIENCE"); aud != "" {
		for _, a := range strings.Split(aud, ",") {
			if a = strings.TrimSpace(a); a != "" {
				cfg.Audience = append(cfg.Audience, a)
			}
		}
	}

	var err error
	if cfg.AccessTokenTTL, err = envDuration("AUTH_ACCESS_TOKEN_TTL"); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTokenTTL, err = envDuration("AUTH_REFRESH_TOKEN_TTL"); err != nil {
		return Config{}, err
	}
	if cfg.LockoutDuration, err = envDuration("AUTH_LOCKOUT_DURATION"); err != nil {
		return Config{}, err
	}
	if cfg.SuspicionWindow, err = envDuration("AUTH_SUSPICION_WINDOW"); err != nil {
		return Config{}, err
	}
	if cfg.ForwardTimeout, err = envDuration("COLLECTOR_TIMEOUT"); err != nil {
		return Config{}, err
	}

	if cfg.BcryptCost, err = envInt("AUTH_BCRYPT_COST"); err != nil {
		return Config{}, err
	}
	if cfg.MaxLoginAttempts, err = envInt("AUTH_MAX_LOGIN_ATTEMPTS"); err != nil {
		return Config{}, err
	}
	if cfg.SuspicionLimit, err = envInt("AUTH_SUSPICION_LIMIT"); err != nil {
		return Config{}, err
	}
	if cfg.CollectorPort, err = envInt("COLLECTOR_PORT"); err != nil {
		return Config{}, err
	}
	if cfg.ForwardQueueSize, err = envInt("COLLECTOR_QUEUE_SIZE"); err != nil {
		return Config{}, err
	}

	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envDuration(key string) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid duration in environment").
			WithMetadata(map[string]any{"key": key, "value": raw})
	}

	return d, nil
}

func envInt(key string) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid integer in environment").
			WithMetadata(map[string]any{"key": key, "value": raw})
	}

	return n, nil
}
