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
	HTTP         HTTPConfig
	FeatureFlags FeatureFlagsConfig
	Commission   CommissionConfig
	Jobs         JobsConfig
	Audit        AuditConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Commission.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BROKERLEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"BROKERLEDGER_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"BROKERLEDGER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BROKERLEDGER_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"BROKERLEDGER_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BROKERLEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BROKERLEDGER_DB_DSN"`
	Driver string `envconfig:"BROKERLEDGER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BROKERLEDGER_DB_HOST"`
	LegacyPort     int    `envconfig:"BROKERLEDGER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BROKERLEDGER_DB_USER"`
	LegacyPassword string `envconfig:"BROKERLEDGER_DB_PASSWORD"`
	LegacyName     string `envconfig:"BROKERLEDGER_DB_NAME"`
	LegacySSLMode  string `envconfig:"BROKERLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BROKERLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BROKERLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BROKERLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BROKERLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the embedded driver was selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"BROKERLEDGER_REDIS_URL"`
	Address      string        `envconfig:"BROKERLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"BROKERLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"BROKERLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BROKERLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BROKERLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BROKERLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BROKERLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BROKERLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret string `envconfig:"BROKERLEDGER_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"BROKERLEDGER_JWT_ISSUER" required:"true"`
}

// HTTPConfig tunes the API edge: allowed browser origins and the write
// throttle applied per actor.
type HTTPConfig struct {
	CORSAllowedOrigins []string      `envconfig:"BROKERLEDGER_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	WriteLimit         int           `envconfig:"BROKERLEDGER_RATE_LIMIT_WRITES" default:"120"`
	WriteWindow        time.Duration `envconfig:"BROKERLEDGER_RATE_LIMIT_WINDOW" default:"1m"`
	ShutdownTimeout    time.Duration `envconfig:"BROKERLEDGER_HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BROKERLEDGER_AUTO_MIGRATE" default:"false"`
}

// CommissionConfig seeds the default policy materialized when no version exists.
type CommissionConfig struct {
	DefaultCurrency     string `envconfig:"BROKERLEDGER_COMMISSION_DEFAULT_CURRENCY" default:"USD"`
	DefaultRateBp       int64  `envconfig:"BROKERLEDGER_COMMISSION_DEFAULT_RATE_BP" default:"300"`
	DefaultHunterBp     int64  `envconfig:"BROKERLEDGER_COMMISSION_DEFAULT_HUNTER_BP" default:"1000"`
	DefaultConsultantBp int64  `envconfig:"BROKERLEDGER_COMMISSION_DEFAULT_CONSULTANT_BP" default:"6000"`
	DefaultBrokerBp     int64  `envconfig:"BROKERLEDGER_COMMISSION_DEFAULT_BROKER_BP" default:"2000"`
	DefaultSystemBp     int64  `envconfig:"BROKERLEDGER_COMMISSION_DEFAULT_SYSTEM_BP" default:"1000"`
	DefaultRounding     string `envconfig:"BROKERLEDGER_COMMISSION_DEFAULT_ROUNDING" default:"ROUND_HALF_UP"`
	HierarchyDepth      int    `envconfig:"BROKERLEDGER_COMMISSION_HIERARCHY_DEPTH" default:"10"`
}

func (c CommissionConfig) validate() error {
	if c.DefaultRateBp < 0 || c.DefaultRateBp > 10000 {
		return fmt.Errorf("%s must be between 0 and 10000", EnvCommissionDefaultRateBp)
	}
	sum := c.DefaultHunterBp + c.DefaultConsultantBp + c.DefaultBrokerBp + c.DefaultSystemBp
	if sum != 10000 {
		return fmt.Errorf("default commission split must sum to 10000 bp, got %d", sum)
	}
	if len(strings.TrimSpace(c.DefaultCurrency)) != 3 {
		return fmt.Errorf("%s must be a 3 letter currency code", EnvCommissionDefaultCurrency)
	}
	return nil
}

type JobsConfig struct {
	MaxAttempts int           `envconfig:"BROKERLEDGER_JOBS_MAX_ATTEMPTS" default:"3"`
	BackoffBase time.Duration `envconfig:"BROKERLEDGER_JOBS_BACKOFF_BASE" default:"500ms"`
	BackoffMax  time.Duration `envconfig:"BROKERLEDGER_JOBS_BACKOFF_MAX" default:"30s"`
}

type AuditConfig struct {
	IntegrityWindow    int `envconfig:"BROKERLEDGER_AUDIT_INTEGRITY_WINDOW" default:"5000"`
	IntegrityWindowMax int `envconfig:"BROKERLEDGER_AUDIT_INTEGRITY_WINDOW_MAX" default:"20000"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"BROKERLEDGER_CRON_INTERVAL" default:"1h"`
	LockKey         string        `envconfig:"BROKERLEDGER_CRON_LOCK_KEY" default:"cron"`
	LockTTL         time.Duration `envconfig:"BROKERLEDGER_CRON_LOCK_TTL" default:"55m"`
	SweepLookback   time.Duration `envconfig:"BROKERLEDGER_CRON_SWEEP_LOOKBACK" default:"24h"`
	SweepBatchSize  int           `envconfig:"BROKERLEDGER_CRON_SWEEP_BATCH_SIZE" default:"100"`
	OutboxRetention time.Duration `envconfig:"BROKERLEDGER_CRON_OUTBOX_RETENTION" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"BROKERLEDGER_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	CommissionTopic string `envconfig:"BROKERLEDGER_PUBSUB_COMMISSION_TOPIC" default:"brokerledger-commission-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"BROKERLEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"BROKERLEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"BROKERLEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
	IdempotencyTTL time.Duration `envconfig:"BROKERLEDGER_OUTBOX_IDEMPOTENCY_TTL" default:"72h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file::memory:?cache=shared"
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
