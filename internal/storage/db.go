package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"   // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DB wraps the database connection and provides health checks
type DB struct {
	conn   *sqlx.DB
	driver string

	// Read-through cache for customer overrides, consulted once per dispatch
	overrideCache *LRUCache
}

// DBConfig holds database configuration
type DBConfig struct {
	// Driver is "postgres" or "sqlite"
	Driver string
	// URL is the driver-specific DSN
	URL string

	// Pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Cache settings
	OverrideCacheSize int
	OverrideCacheTTL  time.Duration
}

// DefaultDBConfig returns default database configuration
func DefaultDBConfig() DBConfig {
	return DBConfig{
		Driver: DriverPostgres,

		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,

		OverrideCacheSize: 10000,
		OverrideCacheTTL:  30 * time.Second,
	}
}

// NewDB opens the database and configures the pool
func NewDB(cfg DBConfig) (*DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "postgresql":
		driver = DriverPostgres
	case DriverPostgres, DriverSQLite:
	case "sqlite3":
		driver = DriverSQLite
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	conn, err := sqlx.Connect(driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		// One connection serializes writers and keeps :memory: databases alive
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		conn.SetConnMaxLifetime(0)
		conn.SetConnMaxIdleTime(0)
	} else {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	cacheSize := cfg.OverrideCacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultDBConfig().OverrideCacheSize
	}

	return &DB{
		conn:          conn,
		driver:        driver,
		overrideCache: NewLRUCache(cacheSize, cfg.OverrideCacheTTL),
	}, nil
}

// Driver returns the normalized driver name
func (db *DB) Driver() string {
	return db.driver
}

// Close closes the database connection and clears caches
func (db *DB) Close() error {
	db.overrideCache.Clear()
	return db.conn.Close()
}

// Ping checks if the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Health returns the health status of the database
func (db *DB) Health(ctx context.Context) error {
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	if err := db.conn.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("health check query failed: %w", err)
	}
	return nil
}

// BeginTx starts a new transaction
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return db.conn.BeginTxx(ctx, opts)
}

// Conn returns the underlying sqlx connection
func (db *DB) Conn() *sqlx.DB {
	return db.conn
}

// rebind converts ? placeholders to the driver's bind style
func (db *DB) rebind(query string) string {
	return db.conn.Rebind(query)
}

// CleanupExpiredCacheEntries drops expired override cache entries
func (db *DB) CleanupExpiredCacheEntries() int {
	return db.overrideCache.CleanupExpired()
}

// Repository factory methods

// NewProviderRepository creates a new provider repository
func (db *DB) NewProviderRepository() *ProviderRepository {
	return NewProviderRepository(db)
}

// NewOverrideRepository creates a new customer override repository
func (db *DB) NewOverrideRepository() *OverrideRepository {
	return NewOverrideRepository(db)
}

// NewUsageRepository creates a new usage repository
func (db *DB) NewUsageRepository() *UsageRepository {
	return NewUsageRepository(db)
}
