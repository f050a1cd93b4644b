package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Version is sent as the Sig-Version header on every API request
const Version = "1.4.0"

// ErrMissingAPIKey is returned when a component needs an API key but none is configured
var ErrMissingAPIKey = errors.New("please provide a SigTech API key (SIGTECH_API_KEY)")

// ErrMissingPlatformToken is returned when dataset/job clients have no token
var ErrMissingPlatformToken = errors.New("SIGTECH_PLATFORM_TOKEN environment variable not set")

// Config holds all configuration for the client and CLI
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	Env string // development, staging, production

	// Framework API
	API APIConfig

	// Ingestion / extraction platform
	Platform PlatformConfig

	// Redis (reference data cache)
	Redis RedisConfig

	// Database (history export)
	Database DatabaseConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// APIConfig holds framework API configuration
type APIConfig struct {
	BaseURL     string
	APIKey      string
	Version     string
	WaitTimeout time.Duration // 객체 상태 대기 최대 시간
	WaitTimer   bool          // 대기 중 진행 로그 출력 여부
}

// PlatformConfig holds dataset ingestion and job extraction configuration
type PlatformConfig struct {
	BaseURL     string
	Token       string
	Workers     int
	MaxPartSize int
	RPS         float64 // 업로드 초당 요청 제한
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Validate checks that the framework API can be reached with these settings
func (c APIConfig) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if c.BaseURL == "" {
		return fmt.Errorf("SIGTECH_API_URL is empty")
	}
	return nil
}

// Validate checks that the platform token is set
func (c PlatformConfig) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return ErrMissingPlatformToken
	}
	return nil
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		API: APIConfig{
			BaseURL:     normalizeURL(getEnv("SIGTECH_API_URL", "https://api.sigtech.com")),
			APIKey:      getEnv("SIGTECH_API_KEY", ""),
			Version:     Version,
			WaitTimeout: getEnvAsSeconds("SIGTECH_API_WAIT_TIMEOUT", 300),
			WaitTimer:   getEnvAsBool("SIGTECH_API_WAIT_TIMER", true),
		},

		Platform: PlatformConfig{
			BaseURL:     normalizeURL(getEnv("SIGTECH_PLATFORM_URL", "https://api.sigtech.com")),
			Token:       getEnv("SIGTECH_PLATFORM_TOKEN", ""),
			Workers:     getEnvAsInt("SIGTECH_UPLOAD_WORKERS", 8),
			MaxPartSize: getEnvAsInt("SIGTECH_UPLOAD_MAX_PART_SIZE", 3_800_000),
			RPS:         getEnvAsFloat("SIGTECH_UPLOAD_RPS", 20),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 4),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 0),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks value ranges; credentials are checked by the component that needs them
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" && c.Env != "test" {
		return fmt.Errorf("ENV must be one of: development, staging, production, test")
	}

	if c.API.WaitTimeout <= 0 {
		return fmt.Errorf("SIGTECH_API_WAIT_TIMEOUT must be > 0")
	}

	if c.Platform.Workers < 1 {
		return fmt.Errorf("SIGTECH_UPLOAD_WORKERS must be >= 1")
	}

	if c.Platform.MaxPartSize < 1 {
		return fmt.Errorf("SIGTECH_UPLOAD_MAX_PART_SIZE must be >= 1")
	}

	return nil
}

// normalizeURL adds a scheme when missing and strips the trailing slash
func normalizeURL(u string) string {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	if u == "" {
		return u
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	return u
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from the working directory and next to the executable
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsSeconds reads an integer number of seconds (the wire convention of SIGTECH_API_WAIT_TIMEOUT)
func getEnvAsSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultSeconds)) * time.Second
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
