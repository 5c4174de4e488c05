package config

const (
	EnvPrefix = "BROKERLEDGER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "BROKERLEDGER_APP_ENV"
	EnvPort     = "BROKERLEDGER_APP_PORT"
	EnvLogLevel = "BROKERLEDGER_LOG_LEVEL"

	EnvDBDSN    = "BROKERLEDGER_DB_DSN"
	EnvDBDriver = "BROKERLEDGER_DB_DRIVER"
	EnvDBHost   = "BROKERLEDGER_DB_HOST"
	EnvDBUser   = "BROKERLEDGER_DB_USER"
	EnvDBName   = "BROKERLEDGER_DB_NAME"

	EnvRedisURL = "BROKERLEDGER_REDIS_URL"

	EnvJWTSecret = "BROKERLEDGER_JWT_SECRET"
	EnvJWTIssuer = "BROKERLEDGER_JWT_ISSUER"

	EnvCommissionDefaultCurrency = "BROKERLEDGER_COMMISSION_DEFAULT_CURRENCY"
	EnvCommissionDefaultRateBp   = "BROKERLEDGER_COMMISSION_DEFAULT_RATE_BP"
	EnvCommissionDefaultHunterBp = "BROKERLEDGER_COMMISSION_DEFAULT_HUNTER_BP"
	EnvCommissionDefaultSystemBp = "BROKERLEDGER_COMMISSION_DEFAULT_SYSTEM_BP"
	EnvJobsMaxAttempts           = "BROKERLEDGER_JOBS_MAX_ATTEMPTS"
	EnvAuditIntegrityWindow      = "BROKERLEDGER_AUDIT_INTEGRITY_WINDOW"
	EnvPubSubCommissionTopic     = "BROKERLEDGER_PUBSUB_COMMISSION_TOPIC"
	EnvGCPProjectID              = "BROKERLEDGER_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
