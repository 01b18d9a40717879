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
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Planning     PlanningConfig
	Import       ImportConfig
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
	Env             string        `envconfig:"ORDERPLANNER_APP_ENV" required:"true"`
	Port            string        `envconfig:"ORDERPLANNER_APP_PORT" default:"8080"`
	LogLevel        string        `envconfig:"ORDERPLANNER_LOG_LEVEL" default:"info"`
	LogWarnStack    bool          `envconfig:"ORDERPLANNER_LOG_WARN_STACK" default:"false"`
	CORSOrigins     []string      `envconfig:"ORDERPLANNER_CORS_ORIGINS" default:"http://localhost:3000"`
	ShutdownTimeout time.Duration `envconfig:"ORDERPLANNER_APP_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"ORDERPLANNER_DB_DSN"`
	Driver string `envconfig:"ORDERPLANNER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ORDERPLANNER_DB_HOST"`
	LegacyPort     int    `envconfig:"ORDERPLANNER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ORDERPLANNER_DB_USER"`
	LegacyPassword string `envconfig:"ORDERPLANNER_DB_PASSWORD"`
	LegacyName     string `envconfig:"ORDERPLANNER_DB_NAME"`
	LegacySSLMode  string `envconfig:"ORDERPLANNER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ORDERPLANNER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ORDERPLANNER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ORDERPLANNER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ORDERPLANNER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver targets SQLite.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

// RedisConfig is optional: when neither URL nor Address is set, week locks stay in-process.
type RedisConfig struct {
	URL          string        `envconfig:"ORDERPLANNER_REDIS_URL"`
	Address      string        `envconfig:"ORDERPLANNER_REDIS_ADDR"`
	Password     string        `envconfig:"ORDERPLANNER_REDIS_PASSWORD"`
	DB           int           `envconfig:"ORDERPLANNER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ORDERPLANNER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ORDERPLANNER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ORDERPLANNER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ORDERPLANNER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ORDERPLANNER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ORDERPLANNER_AUTO_MIGRATE" default:"false"`
}

type PlanningConfig struct {
	LockTTL          time.Duration `envconfig:"ORDERPLANNER_PLANNING_LOCK_TTL" default:"30s"`
	LockWait         time.Duration `envconfig:"ORDERPLANNER_PLANNING_LOCK_WAIT" default:"10s"`
	LockPollInterval time.Duration `envconfig:"ORDERPLANNER_PLANNING_LOCK_POLL" default:"50ms"`
	OpenWeeksAhead   int           `envconfig:"ORDERPLANNER_PLANNING_OPEN_WEEKS_AHEAD" default:"8"`
}

// ImportConfig describes the consumption export layout. Columns are spreadsheet letters.
type ImportConfig struct {
	MaxUploadMB           int    `envconfig:"ORDERPLANNER_IMPORT_MAX_UPLOAD_MB" default:"20"`
	SheetName             string `envconfig:"ORDERPLANNER_IMPORT_SHEET"`
	HeaderRows            int    `envconfig:"ORDERPLANNER_IMPORT_HEADER_ROWS" default:"1"`
	DestinationCodeColumn string `envconfig:"ORDERPLANNER_IMPORT_COL_DESTINATION" default:"E"`
	ReferenceColumn       string `envconfig:"ORDERPLANNER_IMPORT_COL_REFERENCE" default:"J"`
	NameColumn            string `envconfig:"ORDERPLANNER_IMPORT_COL_NAME" default:"K"`
	StockUnitColumn       string `envconfig:"ORDERPLANNER_IMPORT_COL_STOCK_UNIT" default:"L"`
	ConsumptionColumn     string `envconfig:"ORDERPLANNER_IMPORT_COL_CONSUMPTION" default:"AO"`
}

// MaxUploadBytes returns the upload limit in bytes.
func (i ImportConfig) MaxUploadBytes() int64 {
	if i.MaxUploadMB <= 0 {
		return 20 << 20
	}
	return int64(i.MaxUploadMB) << 20
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
