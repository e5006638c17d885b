package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Server
	Env  string
	Port string

	// Database
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBPath     string // sqlite only

	// JWT
	JWTSecret        string
	JWTExpirationDur time.Duration

	// Pipeline
	PipelineAPIKey string

	// Market data
	PolygonAPIKey   string
	ProviderTimeout time.Duration
	ProviderRetries int
	StaleAfter      time.Duration
	HistoryPeriod   string
	HistoryRetain   time.Duration

	// Coordination and events
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration
	KafkaBrokers  []string
	KafkaTopic    string
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	config := &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "8080"),

		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "stocktracker"),
		DBPassword: getEnv("DB_PASSWORD", "stocktracker"),
		DBName:     getEnv("DB_NAME", "stocktracker"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		DBPath:     getEnv("DB_PATH", "stocktracker.db"),

		JWTSecret: getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),

		PipelineAPIKey: getEnv("PIPELINE_API_KEY", ""),

		PolygonAPIKey: getEnv("POLYGON_API_KEY", ""),
		HistoryPeriod: getEnv("HISTORY_PERIOD", "1mo"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "stock-events"),
	}

	config.JWTExpirationDur = getDuration("JWT_EXPIRES_IN", 24*time.Hour)
	config.ProviderTimeout = getDuration("PROVIDER_TIMEOUT", 10*time.Second)
	config.StaleAfter = getDuration("STALE_AFTER", 15*time.Minute)
	config.HistoryRetain = getDuration("HISTORY_RETENTION", 5*365*24*time.Hour)
	config.LockTTL = getDuration("LOCK_TTL", 30*time.Second)
	config.ProviderRetries = getInt("PROVIDER_RETRIES", 2)
	config.RedisDB = getInt("REDIS_DB", 0)

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				config.KafkaBrokers = append(config.KafkaBrokers, b)
			}
		}
	}

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, raw, defaultValue)
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		log.Printf("Warning: invalid %s value '%s', falling back to %d\n", key, raw, defaultValue)
		return defaultValue
	}
	return n
}
