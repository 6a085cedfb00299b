package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/vaidashi/apparel-order-pipeline/internal/config"
	"github.com/vaidashi/apparel-order-pipeline/pkg/logger"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know
	sqlx.BindDriver(config.DriverSQLite, sqlx.QUESTION)
}

// Database represents a database connection
type Database struct {
	DB     *sqlx.DB
	Driver string
	logger logger.Logger
}

// New creates a new database connection for the configured storage driver
func New(cfg *config.Config, logger logger.Logger) (*Database, error) {
	d, err := Open(cfg.Storage.Driver, cfg.GetDBConnString(), logger)

	if err != nil {
		return nil, err
	}

	if cfg.Storage.Driver == config.DriverPostgres {
		logger.Info("Connected to database", "driver", d.Driver, "host", cfg.DB.Host, "database", cfg.DB.Name)
	} else {
		logger.Info("Connected to database", "driver", d.Driver, "path", cfg.Storage.SQLitePath)
	}

	return d, nil
}

// Open connects with an explicit driver and DSN
func Open(driver, dsn string, logger logger.Logger) (*Database, error) {
	db, err := sqlx.Connect(driver, dsn)

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	switch driver {
	case config.DriverSQLite:
		// one writer; also keeps a ":memory:" database alive across calls
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	default:
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	return Wrap(db, driver, logger), nil
}

// Wrap adopts an existing connection, e.g. one backed by sqlmock
func Wrap(db *sqlx.DB, driver string, logger logger.Logger) *Database {
	return &Database{
		DB:     db,
		Driver: driver,
		logger: logger,
	}
}

// Ping checks the database connection
func (d *Database) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.DB.Close()
}

// RunMigrations creates the orders and outbox tables if they do not exist
func (d *Database) RunMigrations() error {
	statements := postgresSchema
	if d.Driver == config.DriverSQLite {
		statements = sqliteSchema
	}

	for _, stmt := range statements {
		if _, err := d.DB.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	d.logger.Info("Database migrations completed successfully", "driver", d.Driver)
	return nil
}

// Orders are stored whole as a JSON document; the scalar columns exist for
// indexing and the optimistic version check.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(50) PRIMARY KEY,
		order_number VARCHAR(32) NOT NULL,
		status VARCHAR(32) NOT NULL,
		is_archived BOOLEAN NOT NULL DEFAULT FALSE,
		version INT NOT NULL,
		document JSONB NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_order_number ON orders(order_number)`,
	`CREATE TABLE IF NOT EXISTS outbox_messages (
		id SERIAL PRIMARY KEY,
		aggregate_type VARCHAR(50) NOT NULL,
		aggregate_id VARCHAR(50) NOT NULL,
		event_type VARCHAR(50) NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMP,
		processing_attempts INT NOT NULL DEFAULT 0,
		last_error TEXT,
		status VARCHAR(20) NOT NULL DEFAULT 'pending'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_messages(status)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_aggregate ON outbox_messages(aggregate_type, aggregate_id)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		order_number TEXT NOT NULL,
		status TEXT NOT NULL,
		is_archived BOOLEAN NOT NULL DEFAULT 0,
		version INTEGER NOT NULL,
		document TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_order_number ON orders(order_number)`,
	`CREATE TABLE IF NOT EXISTS outbox_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP,
		processing_attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		status TEXT NOT NULL DEFAULT 'pending'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_messages(status)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_aggregate ON outbox_messages(aggregate_type, aggregate_id)`,
}
