package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	GPO          GPOConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.GPO.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"GPO_APP_ENV" required:"true"`
	Port         string   `envconfig:"GPO_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"GPO_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"GPO_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"GPO_CORS_ALLOWED_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"GPO_SERVICE_KIND" default:"api"`
	// MetricsAddr is where background workers expose /metrics. Empty disables it.
	MetricsAddr string `envconfig:"GPO_WORKER_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"GPO_DB_DSN"`
	Driver string `envconfig:"GPO_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GPO_DB_HOST"`
	LegacyPort     int    `envconfig:"GPO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GPO_DB_USER"`
	LegacyPassword string `envconfig:"GPO_DB_PASSWORD"`
	LegacyName     string `envconfig:"GPO_DB_NAME"`
	LegacySSLMode  string `envconfig:"GPO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GPO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GPO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GPO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GPO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the sqlite driver was selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"GPO_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GPO_REDIS_ADDR"`
	Password     string        `envconfig:"GPO_REDIS_PASSWORD"`
	DB           int           `envconfig:"GPO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GPO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GPO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GPO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GPO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GPO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"GPO_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"GPO_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"GPO_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"GPO_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"GPO_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	GPOEventsTopic        string `envconfig:"GPO_PUBSUB_EVENTS_TOPIC" default:"gpo-events"`
	GPOEventsSubscription string `envconfig:"GPO_PUBSUB_EVENTS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"GPO_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"GPO_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"GPO_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// GPOConfig carries the collective-order engine tunables.
type GPOConfig struct {
	DefaultThreshold       int64         `envconfig:"GPO_DEFAULT_THRESHOLD" default:"100"`
	DefaultFeeRate         string        `envconfig:"GPO_DEFAULT_FEE_RATE" default:"0.02"`
	KeyLockTTL             time.Duration `envconfig:"GPO_KEY_LOCK_TTL" default:"30s"`
	KeyLockWait            time.Duration `envconfig:"GPO_KEY_LOCK_WAIT" default:"5s"`
	AutoPoolEnabled        bool          `envconfig:"GPO_AUTO_POOL_ENABLED" default:"false"`
	PoolInterval           time.Duration `envconfig:"GPO_POOL_INTERVAL" default:"1h"`
	PoolLookaheadMonths    int           `envconfig:"GPO_POOL_LOOKAHEAD_MONTHS" default:"1"`
	IdempotencyTTL         time.Duration `envconfig:"GPO_IDEMPOTENCY_TTL" default:"24h"`
	CriticalIdempotencyTTL time.Duration `envconfig:"GPO_CRITICAL_IDEMPOTENCY_TTL" default:"168h"`
}

// FeeRate parses the configured default facilitation fee rate.
func (g GPOConfig) FeeRate() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(g.DefaultFeeRate))
	if err != nil {
		return decimal.Zero
	}
	return rate
}

func (g GPOConfig) validate() error {
	rate, err := decimal.NewFromString(strings.TrimSpace(g.DefaultFeeRate))
	if err != nil {
		return fmt.Errorf("%s must be a decimal: %w", EnvGPODefaultFeeRate, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be within [0,1]", EnvGPODefaultFeeRate)
	}
	if g.DefaultThreshold <= 0 {
		return fmt.Errorf("%s must be positive", EnvGPODefaultThreshold)
	}
	if g.PoolLookaheadMonths < 0 {
		return fmt.Errorf("%s must not be negative", EnvGPOPoolLookahead)
	}
	return nil
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
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
