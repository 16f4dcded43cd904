package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds configuration for the gateway.
type Config struct {
	HTTPPort      string
	JWTSecret     []byte
	Gateway       GatewayConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	Redis         RedisConfig
	Provider      ProviderConfig
	ResponseCache ResponseCacheConfig
	Ledger        LedgerConfig
	Logging       LoggingConfig
	RequestLogger RequestLoggerConfig
	LoggingSink   LoggingSinkConfig
}

// GatewayConfig holds request handling settings
type GatewayConfig struct {
	ServiceKey         string  // shared secret of internal callers
	DefaultMaxTokens   int     // applied when a request names none
	DefaultTemperature float64 // applied when a request names none
	EncryptionKey      string  // hex AES key for provider credentials; empty stores them in plaintext
	ProvidersFile      string  // optional YAML seed file
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // "postgres" or "sqlite"
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	AutoMigrate     bool
}

// CacheConfig holds in-process cache settings
type CacheConfig struct {
	OverrideCacheSize int
	OverrideCacheTTL  time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled      bool // without Redis every shared component falls back to process memory
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ProviderConfig holds provider-related settings
type ProviderConfig struct {
	ReloadInterval time.Duration // How often to reload providers from database
	RequestTimeout time.Duration // Timeout of a single provider call
}

// ResponseCacheConfig holds generation result cache settings
type ResponseCacheConfig struct {
	TTL  time.Duration
	Size int // entries of the in-memory cache used without Redis
}

// LedgerConfig holds usage ledger write settings
type LedgerConfig struct {
	Async        bool // queue entries and insert in batches
	QueueName    string
	BatchSize    int
	BatchTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// LoggingConfig holds process log settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// RequestLoggerConfig holds the local ledger archive settings
type RequestLoggerConfig struct {
	Enabled          bool
	FilePathTemplate string
	MaxSize          int64
	MaxFiles         int
	BufferSize       int
	FlushInterval    time.Duration
}

// LoggingSinkConfig holds configuration for the S3-based ledger archive
type LoggingSinkConfig struct {
	Enabled       bool          // Whether to enable S3 archiving
	BufferSize    int           // In-memory queue size
	FlushSize     int           // Flush to S3 after this many records
	FlushInterval time.Duration // Flush to S3 after this duration
	S3Bucket      string        // S3 bucket name
	S3Region      string        // AWS region
	S3Prefix      string        // Prefix for S3 keys (e.g., "ledger/")
	PodName       string        // Pod identifier for multi-pod deployments
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvFloat(key string, defaultValue float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// Load reads configuration from environment variables, after loading an
// optional .env file from the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// LoadJWTSecret reads only the admin token secret, for tools that mint tokens
// without running the gateway
func LoadJWTSecret() ([]byte, error) {
	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return []byte(secret), nil
}

// FromEnv reads configuration from the process environment only
func FromEnv() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	serviceKey := os.Getenv("GATEWAY_SERVICE_KEY")
	if serviceKey == "" {
		return nil, fmt.Errorf("GATEWAY_SERVICE_KEY is required")
	}

	driver := strings.ToLower(getEnvString("DATABASE_DRIVER", "postgres"))
	if driver == "sqlite3" {
		driver = "sqlite"
	}
	if driver != "postgres" && driver != "sqlite" {
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", driver)
	}

	cfg := &Config{
		HTTPPort:  getEnvString("HTTP_PORT", "8080"),
		JWTSecret: []byte(os.Getenv("JWT_SECRET")),
		Gateway: GatewayConfig{
			ServiceKey:         serviceKey,
			DefaultMaxTokens:   getEnvInt("GATEWAY_DEFAULT_MAX_TOKENS", 1024),
			DefaultTemperature: getEnvFloat("GATEWAY_DEFAULT_TEMPERATURE", 0.7),
			EncryptionKey:      getEnvString("GATEWAY_ENCRYPTION_KEY", ""),
			ProvidersFile:      getEnvString("PROVIDERS_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:          driver,
			URL:             dbURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Cache: CacheConfig{
			OverrideCacheSize: getEnvInt("CACHE_OVERRIDE_SIZE", 10000),
			OverrideCacheTTL:  getEnvDuration("CACHE_OVERRIDE_TTL", 30*time.Second),
		},
		Redis: RedisConfig{
			Enabled:      getEnvBool("REDIS_ENABLED", true),
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Provider: ProviderConfig{
			ReloadInterval: getEnvDuration("PROVIDER_RELOAD_INTERVAL", 1*time.Minute),
			RequestTimeout: getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 30*time.Second),
		},
		ResponseCache: ResponseCacheConfig{
			TTL:  getEnvDuration("RESPONSE_CACHE_TTL", 5*time.Minute),
			Size: getEnvInt("RESPONSE_CACHE_SIZE", 10000),
		},
		Ledger: LedgerConfig{
			Async:        getEnvBool("LEDGER_ASYNC", true),
			QueueName:    getEnvString("LEDGER_QUEUE_NAME", "usage"),
			BatchSize:    getEnvInt("LEDGER_BATCH_SIZE", 100),
			BatchTimeout: getEnvDuration("LEDGER_BATCH_TIMEOUT", 5*time.Second),
			MaxRetries:   getEnvInt("LEDGER_MAX_RETRIES", 3),
			RetryBackoff: getEnvDuration("LEDGER_RETRY_BACKOFF", 1*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "text"),
		},
		RequestLogger: RequestLoggerConfig{
			Enabled:          getEnvBool("REQUEST_LOGGER_ENABLED", false),
			FilePathTemplate: getEnvString("REQUEST_LOGGER_FILE_PATH_TEMPLATE", "/var/log/llm-gateway/usage-%s.jsonl"),
			MaxSize:          getEnvInt64("REQUEST_LOGGER_MAX_SIZE", 10_485_760),              // default 10 MB
			MaxFiles:         getEnvInt("REQUEST_LOGGER_MAX_FILES", 5),                        // default 5
			BufferSize:       getEnvInt("REQUEST_LOGGER_BUFFER_SIZE", 100),                    // default 100
			FlushInterval:    getEnvDuration("REQUEST_LOGGER_FLUSH_INTERVAL", 60*time.Second), // default 60 seconds
		},
		LoggingSink: LoggingSinkConfig{
			Enabled:       getEnvBool("LOGGING_SINK_ENABLED", false),
			BufferSize:    getEnvInt("LOGGING_SINK_BUFFER_SIZE", 10000),
			FlushSize:     getEnvInt("LOGGING_SINK_FLUSH_SIZE", 1000),
			FlushInterval: getEnvDuration("LOGGING_SINK_FLUSH_INTERVAL", 5*time.Minute),
			S3Bucket:      getEnvString("LOGGING_SINK_S3_BUCKET", ""),
			S3Region:      getEnvString("LOGGING_SINK_S3_REGION", "us-east-1"),
			S3Prefix:      getEnvString("LOGGING_SINK_S3_PREFIX", "ledger/"),
			PodName:       getEnvString("POD_NAME", "gateway-0"),
		},
	}

	if cfg.LoggingSink.Enabled && cfg.LoggingSink.S3Bucket == "" {
		return nil, fmt.Errorf("LOGGING_SINK_S3_BUCKET is required when LOGGING_SINK_ENABLED is set")
	}

	return cfg, nil
}
