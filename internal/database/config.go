package database

import (
	"fmt"

	"stocktracker/internal/config"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Config holds database configuration
type Config struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Path     string
}

// NewConfig builds the database configuration from the application config.
func NewConfig(cfg *config.Config) (*Config, error) {
	c := &Config{
		Driver:   cfg.DBDriver,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
		Path:     cfg.DBPath,
	}
	switch c.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q (use postgres, mysql, or sqlite)", c.Driver)
	}
}

// DSN returns the driver-specific connection string used by GORM.
func (c *Config) DSN() string {
	switch c.Driver {
	case DriverMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.User, c.Password, c.Host, c.Port, c.DBName)
	case DriverSQLite:
		return c.Path
	default:
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
}

// MigrateURL returns the golang-migrate database URL. Only PostgreSQL
// is migrated from SQL files; other drivers return an empty string.
func (c *Config) MigrateURL() string {
	if c.Driver != DriverPostgres {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}
