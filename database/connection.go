package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"paytr-payment-api/logger"
)

type DatabaseConfig struct {
	Host     string
	User     string
	Password string
	DBName   string
}

// DSN builds a go-sql-driver/mysql data source name.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true",
		c.User, c.Password, c.Host, c.DBName)
}

type Connection struct {
	db  *sql.DB
	log *zap.Logger
}

// NewConnection opens the pool and waits for the server to answer.
func NewConnection(config DatabaseConfig) (*Connection, error) {
	db, err := sql.Open("mysql", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	conn := NewConnectionFromDB(db)

	if err := conn.ensureConnection(); err != nil {
		db.Close()
		return nil, err
	}

	return conn, nil
}

// NewConnectionFromDB wraps an already opened pool.
func NewConnectionFromDB(db *sql.DB) *Connection {
	return &Connection{db: db, log: logger.Named("database")}
}

func (c *Connection) ensureConnection() error {
	for retries := 0; retries < 3; retries++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := c.db.PingContext(ctx)
		cancel()

		if err == nil {
			return nil
		}

		c.log.Warn("database ping failed", zap.Int("attempt", retries+1), zap.Error(err))
		time.Sleep(time.Second * time.Duration(retries+1))
	}
	return fmt.Errorf("failed to establish database connection after 3 attempts")
}

func (c *Connection) Close() error {
	return c.db.Close()
}

// PingContext checks the server once without retrying.
func (c *Connection) PingContext(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Connection) BeginTransaction(ctx context.Context) (*Transaction, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %v", err)
	}
	return &Transaction{tx: tx}, nil
}

const createAttemptsTable = `
    CREATE TABLE IF NOT EXISTS payment_attempts (
        merchant_oid VARCHAR(64) NOT NULL PRIMARY KEY,
        operation    VARCHAR(16) NOT NULL,
        state        VARCHAR(16) NOT NULL,
        simulated    TINYINT(1)  NOT NULL DEFAULT 0,
        amount       BIGINT      NOT NULL DEFAULT 0,
        currency     VARCHAR(8)  NOT NULL DEFAULT '',
        error_kind   VARCHAR(32) NOT NULL DEFAULT '',
        created_at   DATETIME(6) NOT NULL,
        updated_at   DATETIME(6) NOT NULL,
        KEY idx_payment_attempts_state (state, updated_at)
    )
`

// EnsureSchema creates the attempt journal table when missing.
func (c *Connection) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := c.db.ExecContext(ctx, createAttemptsTable); err != nil {
		return fmt.Errorf("error creating payment_attempts: %v", err)
	}
	return nil
}
