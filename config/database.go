package config

import (
	"fmt"
	"strings"
	"time"
)

// StoreDriver selects the repository implementation.
type StoreDriver string

const (
	// StoreDriverPostgres stores everything in PostgreSQL.
	StoreDriverPostgres StoreDriver = "postgres"
	// StoreDriverMemory keeps everything in process memory (development only).
	StoreDriverMemory StoreDriver = "memory"
)

// UnmarshalText implements encoding.TextUnmarshaler for StoreDriver.
func (d *StoreDriver) UnmarshalText(text []byte) error {
	v := StoreDriver(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid StoreDriver: %q (valid options: postgres, memory)", v)
	}
	*d = v
	return nil
}

// Valid returns true if the driver is known.
func (d StoreDriver) Valid() bool {
	return d == StoreDriverPostgres || d == StoreDriverMemory
}

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"judge"`
	Password string `env:"PASSWORD"                envDefault:"judge"`
	Name     string `env:"NAME"                    envDefault:"judge"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// DSN returns the pgx connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	// Enabled turns on the Redis-backed room status cache.
	Enabled  bool   `env:"ENABLED"  envDefault:"false"`
	URI      string `env:"URI"      envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
}

// CacheConfig contains cache configuration (Redis-based).
type CacheConfig struct {
	// KeyPrefix namespaces every cache key.
	KeyPrefix string `env:"CACHE_KEY_PREFIX" envDefault:"judge:"`

	// RoomStatusTTL bounds how stale a cached room status view may be.
	RoomStatusTTL time.Duration `env:"CACHE_ROOM_STATUS_TTL" envDefault:"30s"`
}

// Sanitize applies guardrails to cache configuration values.
func (c *CacheConfig) Sanitize() {
	if c.RoomStatusTTL <= 0 {
		c.RoomStatusTTL = 30 * time.Second
	}
	if c.RoomStatusTTL > 10*time.Minute {
		c.RoomStatusTTL = 10 * time.Minute
	}
}
