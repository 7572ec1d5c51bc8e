package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (KIOSK_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string        `usage:"PostgreSQL connection URL (KIOSK_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisAddr   string        `default:"" usage:"Redis address for the catalog cache; empty disables caching" flag:"redis-addr"`
	TimeZone    string        `default:"Asia/Tokyo" usage:"Local calendar used for order expiration" flag:"time-zone"`
	ConfirmPath string        `default:"/completed" usage:"Path appended to the caller's origin for the payment confirm redirect" flag:"confirm-path"`
	CacheTTL    time.Duration `default:"5m" usage:"Catalog cache entry lifetime" flag:"cache-ttl"`

	LinePay   LinePayConfig
	Messaging MessagingConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// LinePayConfig holds the payment channel credentials and checkout branding.
type LinePayConfig struct {
	ChannelID       string `usage:"LINE Pay channel id (KIOSK_LINE_PAY_CHANNEL_ID)" flag:"channel-id"`
	ChannelSecret   string `usage:"LINE Pay channel secret" flag:"channel-secret"`
	Sandbox         bool   `default:"true" usage:"Use the LINE Pay sandbox endpoint"`
	StoreName       string `default:"Smart Checkout" usage:"Store name shown on the payment screen" flag:"store-name"`
	ProductImageURL string `default:"" usage:"Image shown for the order on the payment screen" flag:"product-image-url"`
	CancelURL       string `default:"" usage:"Redirect target for an abandoned payment" flag:"cancel-url"`
}

// MessagingConfig holds the push channel used for receipts.
type MessagingConfig struct {
	ChannelAccessToken string `usage:"Messaging channel access token for receipt push" flag:"channel-access-token"`
	DetailsURL         string `default:"" usage:"Order details page linked from the receipt" flag:"details-url"`
	LoginChannelID     string `usage:"Login channel id used to verify id tokens" flag:"login-channel-id"`
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "KIOSK",
		Files:     []string{"config.yaml", "/etc/kiosk/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set KIOSK_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's KIOSK_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.RedisAddr == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.RedisAddr = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
