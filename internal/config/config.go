package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the worker, the ETL scheduler
// and the import tooling. Values come from the environment (optionally via a
// .env file); defaults follow the deployed setup.
type Config struct {
	// Database
	DatabaseURL string

	// YouTube
	YouTubeAPIKey string
	YouTubeURL    string // initial URL; the system_settings row wins if present

	// Worker settings
	PollInterval   int // stats poll cadence in seconds
	EnableBackfill bool

	// Chat buffer
	FlushSize     int
	FlushInterval time.Duration
	DataDir       string // backup files live under <DataDir>/backup/<video_id>/

	// Retry settings
	RetryMaxAttempts    int
	RetryBackoffSeconds int

	// Supervisor
	URLCheckInterval          int // seconds
	ChatWatchdogTimeout       int // seconds
	ChatWatchdogCheckInterval int // seconds

	// ETL
	ETLBatchSize         int
	DiscoveryWindowHours int
	DiscoveryMinCount    int
	DiscoveryEndpoint    string
	DiscoveryAPIKey      string
	DictDir              string

	// Outbound HTTP
	HTTPTimeout time.Duration

	// Database Connection Pool
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxIdleTime int // in minutes
	DBConnMaxLifetime int // in minutes

	// Logging
	LogLevel  string
	LogFormat string
}

var AppConfig *Config

func LoadConfig() {
	// Load .env file if it exists
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	AppConfig = &Config{
		// Database
		DatabaseURL: getEnvOrDefault("DATABASE_URL", ""),

		// YouTube
		YouTubeAPIKey: getEnvOrDefault("YOUTUBE_API_KEY", ""),
		YouTubeURL:    getEnvOrDefault("YOUTUBE_URL", ""),

		// Worker settings
		PollInterval:   getEnvAsInt("POLL_INTERVAL", 60),
		EnableBackfill: getEnvOrDefault("ENABLE_BACKFILL", "false") == "true",

		// Chat buffer
		FlushSize:     getEnvAsInt("FLUSH_SIZE", 100),
		FlushInterval: getEnvAsDuration("FLUSH_INTERVAL", 5*time.Second),
		DataDir:       getEnvOrDefault("DATA_DIR", "/data"),

		// Retry settings
		RetryMaxAttempts:    getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBackoffSeconds: getEnvAsInt("RETRY_BACKOFF_SECONDS", 5),

		// Supervisor
		URLCheckInterval:          getEnvAsInt("URL_CHECK_INTERVAL", 10),
		ChatWatchdogTimeout:       getEnvAsInt("CHAT_WATCHDOG_TIMEOUT", 300),
		ChatWatchdogCheckInterval: getEnvAsInt("CHAT_WATCHDOG_CHECK_INTERVAL", 30),

		// ETL
		ETLBatchSize:         getEnvAsInt("ETL_BATCH_SIZE", 1000),
		DiscoveryWindowHours: getEnvAsInt("DISCOVERY_WINDOW_HOURS", 3),
		DiscoveryMinCount:    getEnvAsInt("DISCOVERY_MIN_COUNT", 3),
		DiscoveryEndpoint:    getEnvOrDefault("DISCOVERY_ENDPOINT", ""),
		DiscoveryAPIKey:      getEnvOrDefault("DISCOVERY_API_KEY", ""),
		DictDir:              getEnvOrDefault("DICT_DIR", "text_analysis"),

		// Outbound HTTP
		HTTPTimeout: getEnvAsDuration("HTTP_TIMEOUT", 10*time.Second),

		// Database Connection Pool
		DBMaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 15),
		DBMaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxIdleTime: getEnvAsInt("DB_CONN_MAX_IDLE_TIME_MINUTES", 1),
		DBConnMaxLifetime: getEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 30),

		// Logging
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

// Validate checks required settings. YOUTUBE_URL is allowed to be empty
// because the system_settings table may carry it instead.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.YouTubeAPIKey == "" {
		return fmt.Errorf("YOUTUBE_API_KEY is required")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as int, using default %d: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as time.Duration, using default %v: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}
