package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/meetbot/platform/internal/circuitbreaker"
)

// Config holds database connection configuration.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxConnections  int
	IdleConnections int
	MaxLifetime     time.Duration
	SSLMode         string
}

// Client manages the relational store connection. Every query runs through
// a circuit breaker, which already tracks liveness between calls; segment
// batches run in a single transaction per inbound message rather than
// through an async write queue, since the core has no background-
// aggregation workload to amortize one over. There is deliberately no
// second background poller here — the circuit breaker IS the liveness
// tracker, matching internal/health's on-demand (not ticker-driven) checks.
type Client struct {
	db     *circuitbreaker.DatabaseWrapper
	logger *zap.Logger
	config *Config
}

// NewClient opens a pooled connection to Postgres and wraps it with a
// circuit breaker, pinging once at startup so unreachable stores fail fast.
func NewClient(config *Config, logger *zap.Logger) (*Client, error) {
	if config.MaxConnections == 0 {
		config.MaxConnections = 25
	}
	if config.IdleConnections == 0 {
		config.IdleConnections = 5
	}
	if config.MaxLifetime == 0 {
		config.MaxLifetime = 5 * time.Minute
	}
	if config.SSLMode == "" {
		config.SSLMode = "require"
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Database, config.SSLMode,
	)

	rawDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	rawDB.SetMaxOpenConns(config.MaxConnections)
	rawDB.SetMaxIdleConns(config.IdleConnections)
	rawDB.SetConnMaxLifetime(config.MaxLifetime)

	client, err := NewClientWithDB(rawDB, logger)
	if err != nil {
		rawDB.Close()
		return nil, err
	}
	client.config = config

	logger.Info("database client initialized",
		zap.String("host", config.Host),
		zap.Int("max_connections", config.MaxConnections),
	)

	return client, nil
}

// NewClientWithDB wraps an already-open *sql.DB with the circuit breaker,
// skipping DSN construction and pool tuning. Callers that already hold a
// handle — a sqlmock-backed test double, or a connection pool built
// elsewhere — use this instead of NewClient.
func NewClientWithDB(rawDB *sql.DB, logger *zap.Logger) (*Client, error) {
	wrapped := circuitbreaker.NewDatabaseWrapper(rawDB, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wrapped.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Client{db: wrapped, logger: logger}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	c.logger.Info("database client closed")
	return nil
}

// GetDB returns the underlying *sql.DB for call sites (e.g. sqlx.NewDb) that
// need the raw handle rather than the circuit-breaker-wrapped one.
func (c *Client) GetDB() *sql.DB {
	return c.db.GetDB()
}

// WithTransaction runs fn inside a circuit-breaker-protected transaction,
// committing on success and rolling back on any error or panic. This is the
// single-transaction-per-message shape the segment processor batches into.
func (c *Client) WithTransaction(ctx context.Context, fn func(*circuitbreaker.TxWrapper) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v, original error: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}

	return nil
}

// Wrapper returns the underlying DatabaseWrapper for health checks.
func (c *Client) Wrapper() *circuitbreaker.DatabaseWrapper {
	return c.db
}
