package config

const (
	EnvPrefix = "ORDERPLANNER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "ORDERPLANNER_APP_ENV"
	EnvPort     = "ORDERPLANNER_APP_PORT"
	EnvLogLevel = "ORDERPLANNER_LOG_LEVEL"
	EnvCORS     = "ORDERPLANNER_CORS_ORIGINS"

	EnvDBDSN    = "ORDERPLANNER_DB_DSN"
	EnvDBDriver = "ORDERPLANNER_DB_DRIVER"
	EnvDBHost   = "ORDERPLANNER_DB_HOST"
	EnvDBUser   = "ORDERPLANNER_DB_USER"
	EnvDBName   = "ORDERPLANNER_DB_NAME"

	EnvRedisURL = "ORDERPLANNER_REDIS_URL"

	EnvImportConsumptionColumn = "ORDERPLANNER_IMPORT_COL_CONSUMPTION"
	EnvPlanningLockWait        = "ORDERPLANNER_PLANNING_LOCK_WAIT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
