package config

// EnvPrefix is passed to envconfig; every field carries an explicit key so it
// only matters for split_words fallbacks.
const EnvPrefix = "GPO"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "GPO_APP_ENV"
	EnvPort     = "GPO_APP_PORT"
	EnvLogLevel = "GPO_LOG_LEVEL"

	EnvDBDSN    = "GPO_DB_DSN"
	EnvDBDriver = "GPO_DB_DRIVER"
	EnvDBHost   = "GPO_DB_HOST"
	EnvDBUser   = "GPO_DB_USER"
	EnvDBName   = "GPO_DB_NAME"

	EnvRedisURL = "GPO_REDIS_URL"

	EnvJWTSecret  = "GPO_JWT_SECRET"
	EnvJWTIssuer  = "GPO_JWT_ISSUER"
	EnvJWTExpMins = "GPO_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID      = "GPO_GCP_PROJECT_ID"
	EnvPubSubEventsTopic = "GPO_PUBSUB_EVENTS_TOPIC"

	EnvGPODefaultThreshold = "GPO_DEFAULT_THRESHOLD"
	EnvGPODefaultFeeRate   = "GPO_DEFAULT_FEE_RATE"
	EnvGPOPoolLookahead    = "GPO_POOL_LOOKAHEAD_MONTHS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
