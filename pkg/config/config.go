package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Storefront   StorefrontConfig
	Checkout     CheckoutConfig
	Webhook      WebhookConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	err := multierr.Combine(
		cfg.DB.resolveDSN(),
		cfg.Storefront.validate(),
		cfg.Webhook.validate(),
		cfg.Outbox.validate(),
	)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// DBConfig takes either a full DSN or the discrete parts the hosting
// platform injects; Load folds the parts into DSN.
type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"STOREFRONT_DB_HOST"`
	Port     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	User     string `envconfig:"STOREFRONT_DB_USER"`
	Password string `envconfig:"STOREFRONT_DB_PASSWORD"`
	Name     string `envconfig:"STOREFRONT_DB_NAME"`
	SSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig holds the verification settings for tokens minted by the auth provider.
type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type StorefrontConfig struct {
	BaseURL          string        `envconfig:"STOREFRONT_BASE_URL" default:"http://localhost:3000"`
	PlaceholderImage string        `envconfig:"STOREFRONT_PLACEHOLDER_IMAGE" default:"https://via.placeholder.com/300?text=No+image"`
	GuestCookieName  string        `envconfig:"STOREFRONT_GUEST_COOKIE_NAME" default:"guest_cart_id"`
	GuestCookieTTL   time.Duration `envconfig:"STOREFRONT_GUEST_COOKIE_TTL" default:"8760h"`
	SecureCookies    bool          `envconfig:"STOREFRONT_SECURE_COOKIES" default:"false"`
}

// PublicBaseURL returns the base URL without a trailing slash.
func (s StorefrontConfig) PublicBaseURL() string {
	base := strings.TrimSpace(s.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/")
}

func (s StorefrontConfig) validate() error {
	parsed, err := url.Parse(s.PublicBaseURL())
	if err != nil {
		return fmt.Errorf("invalid %s: %w", EnvBaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an absolute http(s) url", EnvBaseURL)
	}
	return nil
}

type CheckoutConfig struct {
	ProviderTimeout         time.Duration `envconfig:"STOREFRONT_CHECKOUT_PROVIDER_TIMEOUT" default:"15s"`
	AllowAnyVariantFallback bool          `envconfig:"STOREFRONT_CHECKOUT_ALLOW_ANY_VARIANT_FALLBACK" default:"true"`
}

// WebhookConfig sizes the Stripe event ledger. EventLease bounds how long an
// in-flight delivery holds its claim; EventTTL is how long a handled event id
// is remembered and must outlive the lease.
type WebhookConfig struct {
	EventTTL   time.Duration `envconfig:"STOREFRONT_WEBHOOK_EVENT_TTL" default:"72h"`
	EventLease time.Duration `envconfig:"STOREFRONT_WEBHOOK_EVENT_LEASE" default:"2m"`
}

func (w WebhookConfig) validate() error {
	if w.EventLease <= 0 || w.EventTTL < w.EventLease {
		return fmt.Errorf("webhook event ttl (%s) must be at least the lease (%s) and the lease positive", w.EventTTL, w.EventLease)
	}
	return nil
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOREFRONT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrderEventsTopic string `envconfig:"STOREFRONT_PUBSUB_ORDER_EVENTS_TOPIC" default:"storefront-order-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	// MetricsPort serves /metrics from the relay when set.
	MetricsPort string `envconfig:"STOREFRONT_OUTBOX_METRICS_PORT"`
}

func (o OutboxConfig) validate() error {
	var err error
	if o.BatchSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("outbox batch size must be positive, got %d", o.BatchSize))
	}
	if o.MaxAttempts <= 0 {
		err = multierr.Append(err, fmt.Errorf("outbox max attempts must be positive, got %d", o.MaxAttempts))
	}
	return err
}

type StripeConfig struct {
	APIKey string `envconfig:"STOREFRONT_STRIPE_API_KEY"`
	Secret string `envconfig:"STOREFRONT_STRIPE_SECRET"`
	Env    string `envconfig:"STOREFRONT_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

func (db *DBConfig) resolveDSN() error {
	if db.DSN != "" {
		return nil
	}
	parts := []struct{ env, value string }{
		{EnvDBHost, db.Host},
		{EnvDBUser, db.User},
		{EnvDBName, db.Name},
	}
	var missing []string
	for _, p := range parts {
		if p.value == "" {
			missing = append(missing, p.env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s is unset and so are %s", EnvDBDSN, strings.Join(missing, ", "))
	}

	user := url.User(db.User)
	if db.Password != "" {
		user = url.UserPassword(db.User, db.Password)
	}
	dsn := url.URL{Scheme: "postgres", User: user, Host: fmt.Sprintf("%s:%d", db.Host, db.Port), Path: db.Name}
	if db.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}
