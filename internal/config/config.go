package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Square
	SquareLocationID  string
	SquareAppID       string
	SquareAccessToken string
	SquareBaseURL     string
	SquareAPIVersion  string

	// Transport
	RequestTimeout    time.Duration
	MaxRetries        int
	RequestsPerSecond float64

	// Pricing policy
	TaxRates             string
	TargetMargin         string
	TaxLookupConcurrency int

	// Mutations
	DryRun bool

	// Kafka
	KafkaBrokers string
	KafkaTopic   string

	// Environment
	Env      string
	LogLevel string
}

func Load() (*Config, error) {
	// Load .env file
	godotenv.Load()

	cfg := &Config{
		SquareLocationID:     getEnv("SQUARE_LOCATION_ID", ""),
		SquareAppID:          getEnv("SQUARE_APP_ID", ""),
		SquareAccessToken:    getEnv("SQUARE_ACCESS_TOKEN", ""),
		SquareBaseURL:        getEnv("SQUARE_BASE_URL", "https://connect.squareup.com"),
		SquareAPIVersion:     getEnv("SQUARE_API_VERSION", "2025-10-16"),
		RequestTimeout:       getEnvAsDuration("SQUARE_REQUEST_TIMEOUT", 30*time.Second),
		MaxRetries:           getEnvAsInt("SQUARE_MAX_RETRIES", 3),
		RequestsPerSecond:    getEnvAsFloat("SQUARE_REQUESTS_PER_SECOND", 10),
		TaxRates:             getEnv("SQUARE_TAX_RATES", ""),
		TargetMargin:         getEnv("TARGET_MARGIN", "0.40"),
		TaxLookupConcurrency: getEnvAsInt("TAX_LOOKUP_CONCURRENCY", 4),
		DryRun:               getEnvAsBool("DRY_RUN", false),
		KafkaBrokers:         getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:           getEnv("KAFKA_TOPIC", "catalog-events"),
		Env:                  getEnv("ENV", "development"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every required setting that is missing.
func (c *Config) Validate() error {
	var missing []string
	if c.SquareLocationID == "" {
		missing = append(missing, "SQUARE_LOCATION_ID")
	}
	if c.SquareAppID == "" {
		missing = append(missing, "SQUARE_APP_ID")
	}
	if c.SquareAccessToken == "" {
		missing = append(missing, "SQUARE_ACCESS_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.TaxLookupConcurrency < 1 {
		return fmt.Errorf("TAX_LOOKUP_CONCURRENCY must be at least 1, got %d", c.TaxLookupConcurrency)
	}
	return nil
}

// Brokers splits KafkaBrokers on commas; empty means event publishing is off.
func (c *Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
