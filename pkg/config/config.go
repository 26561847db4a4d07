package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all client configuration. It is built once at startup and
// passed by reference to each component constructor; the only mutable part
// is the remotely-sourced ride settings, guarded behind narrow setters.
type Config struct {
	App      AppConfig
	API      APIConfig
	Firebase FirebaseConfig
	Storage  StorageConfig
	Bridge   BridgeConfig
	Sentry   SentryConfig

	mu   sync.RWMutex
	ride RideSettings
}

// AppConfig holds shell-level settings
type AppConfig struct {
	Environment string
	ClientName  string
	Locale      string
}

// APIConfig holds booking API settings
type APIConfig struct {
	BaseURL      string
	GoogleMapKey string
	Timeout      time.Duration
}

// FirebaseConfig holds Firestore connection settings
type FirebaseConfig struct {
	ProjectID       string
	CredentialsPath string
}

// StorageConfig holds the durable local key-value store settings
type StorageConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// BridgeConfig holds the embedded map surface settings
type BridgeConfig struct {
	ListenAddr string
}

// SentryConfig holds crash reporting settings. An empty DSN disables reporting.
type SentryConfig struct {
	DSN string
}

// RideSettings mirrors the platform's remote ride configuration. The server
// is the source of truth; the shell refreshes these on settings fetch.
type RideSettings struct {
	BiddingEnabled      bool
	IncreaseAmountRange float64
	MaxBidPercentage    float64
	FindDriverTimeLimit time.Duration
}

// Load reads configuration from environment variables (and .env if present).
func Load(clientName string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Environment: getEnv("ENVIRONMENT", "development"),
			ClientName:  clientName,
			Locale:      getEnv("LOCALE", "en"),
		},
		API: APIConfig{
			BaseURL:      getEnv("API_BASE_URL", "http://localhost:8080"),
			GoogleMapKey: getEnv("GOOGLE_MAP_KEY", ""),
			Timeout:      time.Duration(getEnvInt("API_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Firebase: FirebaseConfig{
			ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		},
		Storage: StorageConfig{
			RedisAddr:     getEnv("REDIS_HOST", "localhost") + ":" + getEnv("REDIS_PORT", "6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
		},
		Bridge: BridgeConfig{
			ListenAddr: getEnv("BRIDGE_LISTEN_ADDR", "127.0.0.1:7670"),
		},
		Sentry: SentryConfig{
			DSN: getEnv("SENTRY_DSN", ""),
		},
		ride: RideSettings{
			BiddingEnabled:      getEnvInt("RIDE_BIDDING", 0) == 1,
			IncreaseAmountRange: getEnvFloat("RIDE_INCREASE_AMOUNT_RANGE", 10),
			MaxBidPercentage:    getEnvFloat("RIDE_MAX_BIDDING_FARE_DRIVER", 0),
			FindDriverTimeLimit: time.Duration(getEnvInt("RIDE_FIND_DRIVER_TIME_LIMIT", 5)) * time.Minute,
		},
	}

	if cfg.ride.FindDriverTimeLimit <= 0 {
		return nil, fmt.Errorf("RIDE_FIND_DRIVER_TIME_LIMIT must be positive")
	}
	if cfg.ride.IncreaseAmountRange <= 0 {
		return nil, fmt.Errorf("RIDE_INCREASE_AMOUNT_RANGE must be positive")
	}
	if cfg.ride.MaxBidPercentage < 0 {
		return nil, fmt.Errorf("RIDE_MAX_BIDDING_FARE_DRIVER must not be negative")
	}

	return cfg, nil
}

// Ride returns a snapshot of the current ride settings.
func (c *Config) Ride() RideSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ride
}

// UpdateRideSettings replaces the ride settings, typically after a remote
// settings fetch. Zero-valued durations are rejected to keep the countdown sane.
func (c *Config) UpdateRideSettings(rs RideSettings) error {
	if rs.FindDriverTimeLimit <= 0 {
		return fmt.Errorf("find driver time limit must be positive")
	}
	if rs.IncreaseAmountRange <= 0 {
		return fmt.Errorf("increase amount range must be positive")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ride = rs
	return nil
}

// SetLocale updates the display locale.
func (c *Config) SetLocale(locale string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.App.Locale = locale
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}
