package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application.
type Config struct {
	Server ServerConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Events EventsConfig
	Log    LogConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string `envconfig:"SERVER_PORT" default:"3000"`
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT" default:"30"` // seconds
}

// DBConfig holds database-related configuration.
// WARNING: Default password is for local development only.
// In production, always set DB_PASSWORD via environment variable.
// In production, set DB_SSLMODE to "require" or "verify-full".
type DBConfig struct {
	Host       string `envconfig:"DB_HOST" default:"localhost"`
	Port       int    `envconfig:"DB_PORT" default:"5432"`
	User       string `envconfig:"DB_USER" default:"postgres"`
	Password   string `envconfig:"DB_PASSWORD" default:"postgres"` // CHANGE IN PRODUCTION
	Name       string `envconfig:"DB_NAME" default:"rewards_db"`
	SSLMode    string `envconfig:"DB_SSLMODE" default:"disable"` // Use "require" in production
	MaxConns   int    `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns   int    `envconfig:"DB_MIN_CONNS" default:"5"`
	MaxRetries int    `envconfig:"DB_MAX_RETRIES" default:"5"`
	Migrate    bool   `envconfig:"DB_MIGRATE" default:"true"`
}

// URL returns the plain PostgreSQL connection URL without pool parameters.
func (c DBConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// DSN returns the pgxpool connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("%s&pool_max_conns=%d&pool_min_conns=%d", c.URL(), c.MaxConns, c.MinConns)
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr       string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password   string `envconfig:"REDIS_PASSWORD" default:""`
	DB         int    `envconfig:"REDIS_DB" default:"0"`
	MaxRetries int    `envconfig:"REDIS_MAX_RETRIES" default:"5"`
}

// AuthConfig holds session cookie configuration.
// WARNING: the default child session secret is for local development only.
type AuthConfig struct {
	SessionCookie      string        `envconfig:"SESSION_COOKIE" default:"session"`
	SessionKeyPrefix   string        `envconfig:"SESSION_KEY_PREFIX" default:"session"`
	ChildSessionCookie string        `envconfig:"CHILD_SESSION_COOKIE" default:"child_session"`
	ChildSessionSecret string        `envconfig:"CHILD_SESSION_SECRET" default:"dev-child-session-secret"` // CHANGE IN PRODUCTION
	ChildSessionTTL    time.Duration `envconfig:"CHILD_SESSION_TTL" default:"12h"`
}

// EventsConfig controls ticket event fan-out.
type EventsConfig struct {
	Enabled bool `envconfig:"EVENTS_ENABLED" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// Load parses environment variables into the Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
