package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort string
	Debug      bool

	// Database. Empty disables persistence.
	DatabaseURL string

	// Uconnect account
	Username string
	Password string
	PIN      string
	Brand    string
	Region   string

	// Polling
	ScanInterval time.Duration
	FetchTimeout time.Duration

	// Transport
	RequestTimeout   time.Duration
	DisableTLSVerify bool

	// Expose every known command instead of only the ones the vehicle
	// reports as enabled. Useful when the capability list lags reality.
	AddCommandEntities bool
}

func Load() (*Config, error) {
	// .env file is optional.
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:         getEnv("PORT", "4000"),
		Debug:              getEnvBool("DEBUG", false),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		Username:           getEnv("UCONNECT_USERNAME", ""),
		Password:           getEnv("UCONNECT_PASSWORD", ""),
		PIN:                getEnv("UCONNECT_PIN", ""),
		Brand:              getEnv("UCONNECT_BRAND", "fiat"),
		Region:             getEnv("UCONNECT_REGION", "eu"),
		ScanInterval:       getEnvDuration("SCAN_INTERVAL", 5*time.Minute),
		FetchTimeout:       getEnvDuration("FETCH_TIMEOUT", 60*time.Second),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		DisableTLSVerify:   getEnvBool("DISABLE_TLS_VERIFICATION", false),
		AddCommandEntities: getEnvBool("ADD_COMMAND_ENTITIES", false),
	}

	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("UCONNECT_USERNAME and UCONNECT_PASSWORD are required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
