package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Auth         AuthConfig
	FeatureFlags FeatureFlagsConfig
	Cart         CartConfig
	Checkout     CheckoutConfig
	Points       PointsConfig
	Catalog      CatalogConfig
	Email        EmailConfig
	Eventing     EventingConfig
	Outbox       OutboxConfig
	PubSub       PubSubConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	CORSOrigins  string `envconfig:"STOREFRONT_CORS_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	out := []string{}
	for _, origin := range strings.Split(a.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"STOREFRONT_SQLITE_PATH" default:"storefront.db"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"500ms"`
	TxRetries       int           `envconfig:"STOREFRONT_DB_TX_RETRIES" default:"2"`
}

// RedisConfig is optional; when URL and Address are both empty the services
// fall back to in-process locking and idempotency is disabled.
type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer string        `envconfig:"STOREFRONT_JWT_ISSUER" default:"storefront"`
	TTL    time.Duration `envconfig:"STOREFRONT_JWT_TTL" default:"24h"`
}

type AuthConfig struct {
	AllowGuest  bool   `envconfig:"STOREFRONT_AUTH_ALLOW_GUEST" default:"false"`
	GuestUserID string `envconfig:"STOREFRONT_AUTH_GUEST_USER_ID" default:"user_test_1"`
}

type FeatureFlagsConfig struct {
	UseSQLite        bool `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate      bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
	PointsTestCredit bool `envconfig:"STOREFRONT_FEATURE_POINTS_TEST_CREDIT" default:"false"`
}

type CartConfig struct {
	CookieName   string        `envconfig:"STOREFRONT_CART_COOKIE_NAME" default:"cart_id"`
	CookieMaxAge time.Duration `envconfig:"STOREFRONT_CART_COOKIE_MAX_AGE" default:"720h"`
	LockTTL      time.Duration `envconfig:"STOREFRONT_CART_LOCK_TTL" default:"15s"`
	AbandonAfter time.Duration `envconfig:"STOREFRONT_CART_ABANDON_AFTER" default:"24h"`
	// ClientPricing trusts the price sent with add-to-cart instead of asking
	// the catalog. Local development only.
	ClientPricing bool `envconfig:"STOREFRONT_CART_CLIENT_PRICING" default:"false"`
}

type CheckoutConfig struct {
	Timeout time.Duration `envconfig:"STOREFRONT_CHECKOUT_TIMEOUT" default:"10s"`
}

type PointsConfig struct {
	SeedUserID       string `envconfig:"STOREFRONT_POINTS_SEED_USER_ID" default:"user_test_1"`
	SeedBalance      int64  `envconfig:"STOREFRONT_POINTS_SEED_BALANCE" default:"50000"`
	TestCreditAmount int64  `envconfig:"STOREFRONT_POINTS_TEST_CREDIT_AMOUNT" default:"10000"`
}

type CatalogConfig struct {
	BaseURL        string        `envconfig:"STOREFRONT_MEDUSA_BACKEND_URL" default:"http://localhost:9000"`
	PublishableKey string        `envconfig:"STOREFRONT_MEDUSA_PUBLISHABLE_KEY"`
	Timeout        time.Duration `envconfig:"STOREFRONT_MEDUSA_TIMEOUT" default:"10s"`
	PageLimit      int           `envconfig:"STOREFRONT_MEDUSA_PAGE_LIMIT" default:"100"`
	DefaultStock   int           `envconfig:"STOREFRONT_INVENTORY_DEFAULT_STOCK" default:"999"`
}

type EmailConfig struct {
	ResendAPIKey string        `envconfig:"STOREFRONT_RESEND_API_KEY"`
	ResendURL    string        `envconfig:"STOREFRONT_RESEND_URL" default:"https://api.resend.com"`
	FromAddress  string        `envconfig:"STOREFRONT_RESEND_FROM_EMAIL" default:"onboarding@resend.dev"`
	Timeout      time.Duration `envconfig:"STOREFRONT_RESEND_TIMEOUT" default:"10s"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"STOREFRONT_EVENTING_IDEMPOTENCY_TTL" default:"24h"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"STOREFRONT_OUTBOX_RETENTION" default:"720h"`
}

// PubSubConfig moves outbox events to the email worker through Google Pub/Sub.
// Without a project id the outbox publisher handles events in process.
type PubSubConfig struct {
	ProjectID          string        `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	OrdersTopic        string        `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" default:"storefront-orders"`
	OrdersSubscription string        `envconfig:"STOREFRONT_PUBSUB_ORDERS_SUBSCRIPTION" default:"storefront-order-emails"`
	PublishTimeout     time.Duration `envconfig:"STOREFRONT_PUBSUB_PUBLISH_TIMEOUT" default:"10s"`
}

func (p PubSubConfig) Enabled() bool {
	return strings.TrimSpace(p.ProjectID) != ""
}

type CronConfig struct {
	Tick           time.Duration `envconfig:"STOREFRONT_CRON_TICK" default:"5m"`
	LockTTL        time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"30m"`
	AbandonEvery   time.Duration `envconfig:"STOREFRONT_CRON_ABANDON_EVERY" default:"1h"`
	AbandonBatch   int           `envconfig:"STOREFRONT_CRON_ABANDON_BATCH" default:"200"`
	RetentionEvery time.Duration `envconfig:"STOREFRONT_CRON_RETENTION_EVERY" default:"24h"`
}

type RateLimitConfig struct {
	PerSecond float64 `envconfig:"STOREFRONT_RATE_LIMIT_PER_SECOND" default:"5"`
	Burst     int     `envconfig:"STOREFRONT_RATE_LIMIT_BURST" default:"10"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
