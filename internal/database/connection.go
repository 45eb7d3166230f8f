package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/lib/pq"
)

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string
	MaxConns int
	MinConns int
}

// ConnectionPool wraps sql.DB with additional functionality
type ConnectionPool struct {
	db *sql.DB
}

// PoolStats represents connection pool statistics
type PoolStats struct {
	MaxConns  int32
	OpenConns int32
	InUse     int32
	Idle      int32
}

// Transaction wraps sql.Tx with context support
type Transaction struct {
	tx *sql.Tx
}

// validateConfig rejects a Config missing the fields NewConnectionPool needs
// to dial.
func validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if config.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if config.Database == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if config.Username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if config.Password == "" {
		return fmt.Errorf("password cannot be empty")
	}
	if config.MaxConns < 0 {
		return fmt.Errorf("max connections cannot be negative")
	}
	if config.MinConns < 0 {
		return fmt.Errorf("min connections cannot be negative")
	}
	if config.MinConns > config.MaxConns && config.MaxConns > 0 {
		return fmt.Errorf("min connections cannot be greater than max connections")
	}
	return nil
}

// DefaultConfig returns a default database configuration for local
// development.
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		Database: "poolcore_dev",
		Username: "poolcore",
		Password: "dev_password",
		SSLMode:  "disable",
		MaxConns: 25,
		MinConns: 5,
	}
}

// NewConnectionPool creates a new database connection pool
func NewConnectionPool(config *Config) (*ConnectionPool, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}
	// Build connection string
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.Username, config.Password, config.Database, config.SSLMode,
	)

	// Open database connection
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	if config.MaxConns > 0 {
		db.SetMaxOpenConns(config.MaxConns)
	} else {
		db.SetMaxOpenConns(25) // Default
	}

	if config.MinConns > 0 {
		db.SetMaxIdleConns(config.MinConns)
	} else {
		db.SetMaxIdleConns(5) // Default
	}

	// Set connection lifetime
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &ConnectionPool{db: db}, nil
}

// Close closes the database connection pool
func (p *ConnectionPool) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// HealthCheck performs a health check on the database connection
func (p *ConnectionPool) HealthCheck(ctx context.Context) bool {
	if p.db == nil {
		return false
	}

	if err := p.db.PingContext(ctx); err != nil {
		return false
	}

	// Test a simple query
	var result int
	err := p.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
	return err == nil && result == 1
}

// Stats returns connection pool statistics
func (p *ConnectionPool) Stats() PoolStats {
	if p.db == nil {
		return PoolStats{}
	}

	stats := p.db.Stats()
	return PoolStats{
		MaxConns:  int32(stats.MaxOpenConnections),
		OpenConns: int32(stats.OpenConnections),
		InUse:     int32(stats.InUse),
		Idle:      int32(stats.Idle),
	}
}

// DB returns the underlying database connection for testing purposes
func (p *ConnectionPool) DB() *sql.DB {
	return p.db
}

// QueryRow executes a query that is expected to return at most one row
func (p *ConnectionPool) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return p.db.QueryRowContext(ctx, query, args...)
}

// Query executes a query that returns rows
func (p *ConnectionPool) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return p.db.QueryContext(ctx, query, args...)
}

// Exec executes a query without returning any rows
func (p *ConnectionPool) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return p.db.ExecContext(ctx, query, args...)
}

// Begin starts a transaction
func (p *ConnectionPool) Begin(ctx context.Context) (*Transaction, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Transaction{tx: tx}, nil
}

// Rollback rolls back the transaction
func (tx *Transaction) Rollback(ctx context.Context) error {
	return tx.tx.Rollback()
}

// Commit commits the transaction
func (tx *Transaction) Commit(ctx context.Context) error {
	return tx.tx.Commit()
}

// QueryRow executes a query within the transaction
func (tx *Transaction) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return tx.tx.QueryRowContext(ctx, query, args...)
}

// Query executes a query within the transaction
func (tx *Transaction) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return tx.tx.QueryContext(ctx, query, args...)
}

// Exec executes a query within the transaction
func (tx *Transaction) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return tx.tx.ExecContext(ctx, query, args...)
}

// schemaMigrationsTable tracks which schema files have already been applied, in
// a plain table rather than a dedicated migration engine.
const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	filename TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// RunMigrations applies every *.sql file in migrationsPath, in filename
// order, that is not already recorded in schema_migrations. Each file runs
// inside its own transaction.
func RunMigrations(config *Config, migrationsPath string) error {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.Username, config.Password, config.Database, config.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, schemaMigrationsTable); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(migrationsPath, "*.sql"))
	if err != nil {
		return fmt.Errorf("failed to list migration files: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		name := filepath.Base(file)
		var applied bool
		if err := db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)", name,
		).Scan(&applied); err != nil {
			return fmt.Errorf("failed to check migration status for %s: %w", name, err)
		}
		if applied {
			continue
		}

		contents, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES ($1)", name); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", name, err)
		}
	}

	return nil
}

// GetMigrationStatus reports the filenames recorded as applied.
func GetMigrationStatus(config *Config) (interface{}, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.Username, config.Password, config.Database, config.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(schemaMigrationsTable); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	rows, err := db.Query("SELECT filename FROM schema_migrations ORDER BY filename")
	if err != nil {
		return nil, fmt.Errorf("failed to query migration status: %w", err)
	}
	defer rows.Close()

	var applied []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied = append(applied, name)
	}

	return map[string]interface{}{"applied": applied}, nil
}