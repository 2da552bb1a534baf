package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL    string `default:"redis://localhost:6379/0" usage:"Redis URL for checkout drafts (SHOP_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	JWT         JWTConfig
	Checkout    CheckoutConfig
	Catalog     CatalogConfig
	Session     SessionConfig
	RateLimit   RateLimitConfig
	Graceful    GracefulConfig
}

// JWTConfig controls identity token verification.
type JWTConfig struct {
	Secret string `usage:"HMAC secret for identity tokens (SHOP_JWT_SECRET)" flag:"jwt-secret"`
	Issuer string `default:"storefront" usage:"Expected token issuer, empty accepts any"`
}

// CheckoutConfig controls the checkout workflow.
type CheckoutConfig struct {
	DraftTTL      time.Duration `default:"30m" usage:"How long a checkout draft stays confirmable" flag:"draft-ttl"`
	ShipAfter     time.Duration `default:"72h" usage:"Ship date offset from order placement" flag:"ship-after"`
	CommitTimeout time.Duration `default:"10s" usage:"Upper bound for the order commit transaction" flag:"commit-timeout"`
}

// CatalogConfig controls product listing pages.
type CatalogConfig struct {
	PageSize    int `default:"6"   usage:"Default products per page" flag:"page-size"`
	MaxPageSize int `default:"100" usage:"Largest accepted page size" flag:"max-page-size"`
}

// SessionConfig controls the anonymous cart cookie.
type SessionConfig struct {
	TTL    time.Duration `default:"720h"  usage:"Lifetime of the cart session cookie" flag:"session-ttl"`
	Secure bool          `default:"false" usage:"Send cookies over HTTPS only" flag:"secure-cookies"`
}

// RateLimitConfig controls the sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Args:      args,
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	case c.JWT.Secret == "":
		return errors.New("JWT secret is required: set SHOP_JWT_SECRET")
	case c.Checkout.DraftTTL <= 0:
		return errors.New("checkout draft TTL must be positive")
	case c.Catalog.PageSize <= 0 || c.Catalog.PageSize > c.Catalog.MaxPageSize:
		return errors.Errorf("catalog page size %d must be within 1..%d", c.Catalog.PageSize, c.Catalog.MaxPageSize)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL, REDIS_URL and PORT.
func (c *Config) applyPlatformDefaults() {
	if v := os.Getenv("DATABASE_URL"); v != "" && c.DatabaseURL == "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" && os.Getenv("SHOP_REDIS_URL") == "" {
		c.RedisURL = v
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
