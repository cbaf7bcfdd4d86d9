package config

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends understood by the factory.
const (
	StorageLocal = "local"
	StorageAzure = "azure"
	StorageS3    = "s3"
)

// Database drivers understood by the repository.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	LogLevel           string

	// TrustedProxies lists the proxy IPs or CIDRs whose forwarding headers
	// are believed. Empty trusts no proxy.
	TrustedProxies []string

	ScoringWorkers int

	DBDriver string
	DBDSN    string

	Storage StorageConfig
	Events  EventsConfig
	Limit   RateLimitConfig
}

// StorageConfig selects and configures the blob store for originals and
// thumbnails.
type StorageConfig struct {
	Backend string
	Root    string

	AzureAccountName string
	AzureAccountKey  string
	AzureContainer   string

	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
}

// EventsConfig enables the AMQP observer when URL is set. RoutingKey is the
// prefix of "<prefix>.<event_type>" routing keys.
type EventsConfig struct {
	AMQPURL    string
	Exchange   string
	RoutingKey string
}

// RateLimitConfig enables the redis-backed upload limiter when RedisAddr
// is set.
type RateLimitConfig struct {
	RedisAddr string
	RedisDB   int
	Limit     int
	Window    time.Duration
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// Load reads an optional .env file and then the process environment.
// A missing .env file is not an error.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return LoadFromEnv()
}

func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8000"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 50*1024*1024), // 50MB
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		TrustedProxies:     parseListOrDefault("TRUSTED_PROXIES", nil),
		ScoringWorkers:     int(parseIntOrDefault("SCORING_WORKERS", int64(runtime.NumCPU()))),
		DBDriver:           strings.ToLower(getEnvOrDefault("DB_DRIVER", DriverSQLite)),
		DBDSN:              getEnvOrDefault("DB_DSN", "./organoid_qc.db"),
		Storage: StorageConfig{
			Backend:          strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", StorageLocal)),
			Root:             getEnvOrDefault("STORAGE_ROOT", "./uploads"),
			AzureAccountName: os.Getenv("AZURE_STORAGE_ACCOUNT"),
			AzureAccountKey:  os.Getenv("AZURE_STORAGE_KEY"),
			AzureContainer:   getEnvOrDefault("AZURE_STORAGE_CONTAINER", "organoid-qc"),
			S3Endpoint:       os.Getenv("S3_ENDPOINT"),
			S3Bucket:         getEnvOrDefault("S3_BUCKET", "organoid-qc"),
			S3AccessKey:      os.Getenv("S3_ACCESS_KEY"),
			S3SecretKey:      os.Getenv("S3_SECRET_KEY"),
			S3UseSSL:         parseBoolOrDefault("S3_USE_SSL", false),
		},
		Events: EventsConfig{
			AMQPURL:    os.Getenv("AMQP_URL"),
			Exchange:   getEnvOrDefault("AMQP_EXCHANGE", "organoid-qc.events"),
			RoutingKey: getEnvOrDefault("AMQP_ROUTING_KEY", "organoid-qc"),
		},
		Limit: RateLimitConfig{
			RedisAddr: os.Getenv("RATE_LIMIT_REDIS_ADDR"),
			RedisDB:   int(parseIntOrDefault("RATE_LIMIT_REDIS_DB", 0)),
			Limit:     int(parseIntOrDefault("RATE_LIMIT_UPLOADS", 20)),
			Window:    parseDurationOrDefault("RATE_LIMIT_WINDOW", time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be > 0 (got %s)", c.RequestTimeout)
	}
	if c.ScoringWorkers <= 0 {
		return fmt.Errorf("SCORING_WORKERS must be > 0 (got %d)", c.ScoringWorkers)
	}
	for _, p := range c.TrustedProxies {
		if net.ParseIP(p) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(p); err != nil {
			return fmt.Errorf("invalid TRUSTED_PROXIES entry: %q", p)
		}
	}
	switch c.DBDriver {
	case DriverSQLite, DriverMySQL:
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %q", c.DBDriver)
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		return fmt.Errorf("DB_DSN must not be empty")
	}
	switch c.Storage.Backend {
	case StorageLocal:
		if strings.TrimSpace(c.Storage.Root) == "" {
			return fmt.Errorf("STORAGE_ROOT must not be empty for local storage")
		}
	case StorageAzure:
		if c.Storage.AzureAccountName == "" || c.Storage.AzureAccountKey == "" {
			return fmt.Errorf("azure storage requires AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY")
		}
	case StorageS3:
		if c.Storage.S3Endpoint == "" {
			return fmt.Errorf("s3 storage requires S3_ENDPOINT")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND: %q", c.Storage.Backend)
	}
	if c.Limit.RedisAddr != "" && (c.Limit.Limit <= 0 || c.Limit.Window <= 0) {
		return fmt.Errorf("rate limit needs RATE_LIMIT_UPLOADS > 0 and RATE_LIMIT_WINDOW > 0")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
