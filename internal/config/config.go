package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // HOMEOPS_TIMEZONE must resolve in minimal images

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database DatabaseConfig
	Tenant   TenantConfig
	Schedule ScheduleConfig
	Jobs     JobConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Server   ServerConfig
	Log      LogConfig
}

// DatabaseConfig holds PostgreSQL connection settings shared by the control
// database and every house database.
type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string //nolint:gosec // G117: DB connection config
	DBName      string
	AdminDBName string
	SSLMode     string
	MaxConns    int
}

// TenantConfig holds per-house database settings.
type TenantConfig struct {
	DBPrefix   string
	MaxConns   int
	SchemaPath string
}

// ScheduleConfig holds cron specs for the daily jobs.
type ScheduleConfig struct {
	Recurrence string
	Digest     string
	Overdue    string
	Timezone   string
	Location   *time.Location
}

// JobConfig bounds batch job fan-out.
type JobConfig struct {
	Timeout time.Duration
	Workers int
	LockTTL time.Duration
}

// RedisConfig holds Redis connection settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// JWTConfig holds operator API token settings.
type JWTConfig struct {
	Secret string //nolint:gosec // G117: JWT signing secret config
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// LogConfig selects the zerolog level and output format (json or text).
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, DB password) must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("HOMEOPS_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("HOMEOPS_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	tenantMaxConns, err := getEnvInt("HOMEOPS_TENANT_MAX_CONNS", 4)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	jobTimeout, err := getEnvDuration("HOMEOPS_JOB_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	jobWorkers, err := getEnvInt("HOMEOPS_JOB_WORKERS", 8)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	lockTTL, err := getEnvDuration("HOMEOPS_JOB_LOCK_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("HOMEOPS_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("HOMEOPS_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("HOMEOPS_SERVER_WRITE_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("HOMEOPS_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Database: DatabaseConfig{
			Host:        getEnv("HOMEOPS_DB_HOST", "localhost"),
			Port:        dbPort,
			User:        getEnv("HOMEOPS_DB_USER", "homeops"),
			Password:    getEnv("HOMEOPS_DB_PASSWORD", ""),
			DBName:      getEnv("HOMEOPS_DB_NAME", "homeops"),
			AdminDBName: getEnv("HOMEOPS_DB_ADMIN_NAME", "postgres"),
			SSLMode:     getEnv("HOMEOPS_DB_SSLMODE", "disable"),
			MaxConns:    dbMaxConns,
		},
		Tenant: TenantConfig{
			DBPrefix:   getEnv("HOMEOPS_TENANT_DB_PREFIX", "house_"),
			MaxConns:   tenantMaxConns,
			SchemaPath: getEnv("HOMEOPS_SCHEMA_PATH", "db/house_schema.sql"),
		},
		Schedule: ScheduleConfig{
			Recurrence: getEnv("HOMEOPS_SCHEDULE_RECURRENCE", "0 0 * * *"),
			Digest:     getEnv("HOMEOPS_SCHEDULE_DIGEST", "0 7 * * *"),
			Overdue:    getEnv("HOMEOPS_SCHEDULE_OVERDUE", "0 23 * * *"),
			Timezone:   getEnv("HOMEOPS_TIMEZONE", "UTC"),
		},
		Jobs: JobConfig{
			Timeout: jobTimeout,
			Workers: jobWorkers,
			LockTTL: lockTTL,
		},
		Redis: RedisConfig{
			Addr:     getEnv("HOMEOPS_REDIS_ADDR", ""),
			Password: getEnv("HOMEOPS_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret: getEnv("HOMEOPS_JWT_SECRET", ""),
		},
		Server: ServerConfig{
			Addr:         getEnv("HOMEOPS_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  corsOrigins,
		},
		Log: LogConfig{
			Level:  getEnv("HOMEOPS_LOG_LEVEL", "info"),
			Format: getEnv("HOMEOPS_LOG_FORMAT", "json"),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds. It also resolves the
// schedule time zone.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.JWT.Secret == "" {
		return errors.New("HOMEOPS_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("HOMEOPS_JWT_SECRET must be at least 32 characters")
	}

	if c.Database.SSLMode == "disable" && c.Database.Host != "localhost" {
		log.Warn().Msg("HOMEOPS_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("HOMEOPS_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("HOMEOPS_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Database.AdminDBName == "" {
		return errors.New("HOMEOPS_DB_ADMIN_NAME must not be empty")
	}
	if c.Tenant.MaxConns < 1 {
		return fmt.Errorf("HOMEOPS_TENANT_MAX_CONNS must be >= 1, got %d", c.Tenant.MaxConns)
	}
	if c.Tenant.DBPrefix == "" {
		return errors.New("HOMEOPS_TENANT_DB_PREFIX must not be empty")
	}
	if c.Jobs.Workers < 1 {
		return fmt.Errorf("HOMEOPS_JOB_WORKERS must be >= 1, got %d", c.Jobs.Workers)
	}
	if c.Jobs.Timeout <= 0 {
		return fmt.Errorf("HOMEOPS_JOB_TIMEOUT must be positive, got %s", c.Jobs.Timeout)
	}
	// A lock that expires mid-run lets another replica start the same house.
	if c.Jobs.LockTTL < c.Jobs.Timeout {
		return fmt.Errorf("HOMEOPS_JOB_LOCK_TTL must be >= HOMEOPS_JOB_TIMEOUT (%s), got %s", c.Jobs.Timeout, c.Jobs.LockTTL)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("HOMEOPS_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("HOMEOPS_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("HOMEOPS_LOG_LEVEL: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("HOMEOPS_LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}

	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return fmt.Errorf("HOMEOPS_TIMEZONE: %w", err)
	}
	c.Schedule.Location = loc

	return nil
}

// DSN returns the connection string of the control database.
func (c *DatabaseConfig) DSN() string {
	return c.DSNFor(c.DBName)
}

// AdminDSN returns the connection string of the maintenance database used to
// create house databases.
func (c *DatabaseConfig) AdminDSN() string {
	return c.DSNFor(c.AdminDBName)
}

// DSNFor returns the connection string of dbName on the shared server.
func (c *DatabaseConfig) DSNFor(dbName string) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dsnValue(c.Host), c.Port, dsnValue(c.User), dsnValue(c.Password), dsnValue(dbName), dsnValue(c.SSLMode),
	)
}

// dsnValue quotes v for a key/value connection string when it is empty or
// contains whitespace, quotes or backslashes.
func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " \t\n\r'\\") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// Enabled reports whether a Redis address is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Addr != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
