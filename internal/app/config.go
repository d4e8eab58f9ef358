package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Notification modes.
const (
	NotifyKafka = "kafka"
	NotifyQueue = "queue"
)

// Config holds the complete application configuration, loadable from
// environment variables (KART_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (KART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (KART_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Redis        RedisConfig
	Session      SessionConfig
	Notify       NotifyConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// RedisConfig locates the session store.
type RedisConfig struct {
	Addr     string `default:"localhost:6379" usage:"Redis address (KART_REDIS_ADDR or REDIS_URL)"`
	Password string `default:"" usage:"Redis password"`
	DB       int    `default:"0" usage:"Redis database number"`
}

// SessionConfig controls the session cookie and the cart keys stored in it.
type SessionConfig struct {
	Name   string        `default:"sessionid" usage:"Session cookie name"`
	Secret string        `usage:"Session cookie signing secret (KART_SESSION_SECRET)"`
	MaxAge time.Duration `default:"336h" usage:"Session lifetime" flag:"session-max-age"`
	Secure bool          `default:"false" usage:"Send the session cookie over HTTPS only" flag:"session-secure"`

	CartKey   string `default:"cart" usage:"Session key holding the cart" flag:"cart-session-key"`
	CouponKey string `default:"coupon_id" usage:"Session key holding the applied coupon" flag:"coupon-session-key"`
}

// NotifyConfig selects how order notifications are dispatched.
type NotifyConfig struct {
	Mode      string   `default:"queue" usage:"Dispatch mode: kafka or queue (in process)"`
	Brokers   []string `default:"localhost:9092" usage:"Kafka brokers"`
	Topic     string   `default:"orders.created" usage:"Kafka topic for order events"`
	GroupID   string   `default:"kart-notify" usage:"Kafka consumer group of the notify worker"`
	QueueSize int      `default:"256" usage:"In-process queue capacity"`
	MailFrom  string   `default:"admin@myshop.com" usage:"Sender of confirmation mails"`
}

// RateLimitConfig controls the per-client token bucket.
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

// LoadConfig loads the API server configuration from environment variables
// and YAML config files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWorkerConfig loads the configuration of the notify worker, which
// needs the database and Kafka only.
func LoadWorkerConfig() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set KART_DATABASE_URL or DATABASE_URL")
	}
	if len(cfg.Notify.Brokers) == 0 || cfg.Notify.Topic == "" {
		return nil, errors.New("kafka brokers and topic are required")
	}
	return cfg, nil
}

func load() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "KART",
		Files:     []string{"config.yaml", "/etc/kart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set KART_DATABASE_URL or DATABASE_URL")
	}
	if len(c.Session.Secret) < 32 {
		return errors.New("session secret must be at least 32 bytes: set KART_SESSION_SECRET")
	}
	switch c.Notify.Mode {
	case NotifyKafka, NotifyQueue:
	default:
		return errors.Errorf("unknown notify mode %q", c.Notify.Mode)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's KART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" && c.Redis.Addr == "localhost:6379" {
		c.Redis.Addr = v
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
