package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	JWT     JWTConfig
	Bkash   BkashConfig
	Webhook WebhookConfig
	GCP     GCPConfig
	PubSub  PubSubConfig
	Outbox  OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BAZARLY_APP_ENV" required:"true"`
	Port         string `envconfig:"BAZARLY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BAZARLY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BAZARLY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"BAZARLY_DB_DSN"`

	Host     string `envconfig:"BAZARLY_DB_HOST"`
	Port     int    `envconfig:"BAZARLY_DB_PORT" default:"5432"`
	User     string `envconfig:"BAZARLY_DB_USER"`
	Password string `envconfig:"BAZARLY_DB_PASSWORD"`
	Name     string `envconfig:"BAZARLY_DB_NAME"`
	SSLMode  string `envconfig:"BAZARLY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BAZARLY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BAZARLY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BAZARLY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BAZARLY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("either BAZARLY_DB_DSN or host/user/name parts are required")
	}
	d.DSN = fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"BAZARLY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BAZARLY_REDIS_ADDR"`
	Password     string        `envconfig:"BAZARLY_REDIS_PASSWORD"`
	DB           int           `envconfig:"BAZARLY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BAZARLY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BAZARLY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BAZARLY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BAZARLY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BAZARLY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BAZARLY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BAZARLY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BAZARLY_JWT_EXPIRATION_MINUTES" default:"60"`
}

// BkashConfig holds the tokenized checkout credentials. All four credential
// fields must be present for the gateway to count as configured; the API
// degrades to advisory-only order creation otherwise.
type BkashConfig struct {
	BaseURL     string        `envconfig:"BAZARLY_BKASH_BASE_URL" default:"https://tokenized.sandbox.bka.sh/v1.2.0-beta"`
	AppKey      string        `envconfig:"BAZARLY_BKASH_APP_KEY"`
	AppSecret   string        `envconfig:"BAZARLY_BKASH_APP_SECRET"`
	Username    string        `envconfig:"BAZARLY_BKASH_USERNAME"`
	Password    string        `envconfig:"BAZARLY_BKASH_PASSWORD"`
	CallbackURL string        `envconfig:"BAZARLY_BKASH_CALLBACK_URL"`
	Timeout     time.Duration `envconfig:"BAZARLY_BKASH_TIMEOUT" default:"30s"`
	MockMode    bool          `envconfig:"BAZARLY_BKASH_MOCK_MODE" default:"false"`
}

// IsConfigured reports whether the credential set is complete.
func (b BkashConfig) IsConfigured() bool {
	return b.AppKey != "" && b.AppSecret != "" && b.Username != "" && b.Password != ""
}

type WebhookConfig struct {
	Secret          string        `envconfig:"BAZARLY_WEBHOOK_SECRET"`
	SignatureHeader string        `envconfig:"BAZARLY_WEBHOOK_SIGNATURE_HEADER" default:"X-Signature"`
	ReplayWindow    time.Duration `envconfig:"BAZARLY_WEBHOOK_REPLAY_WINDOW" default:"300s"`
	DedupTTL        time.Duration `envconfig:"BAZARLY_WEBHOOK_DEDUP_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"BAZARLY_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrderEventsTopic        string `envconfig:"BAZARLY_PUBSUB_ORDER_EVENTS_TOPIC" default:"bz-order-events"`
	OrderEventsSubscription string `envconfig:"BAZARLY_PUBSUB_ORDER_EVENTS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	PollInterval time.Duration `envconfig:"BAZARLY_OUTBOX_POLL_INTERVAL" default:"5s"`
	BatchSize    int           `envconfig:"BAZARLY_OUTBOX_BATCH_SIZE" default:"50"`
	MaxAttempts  int           `envconfig:"BAZARLY_OUTBOX_MAX_ATTEMPTS" default:"10"`
}
