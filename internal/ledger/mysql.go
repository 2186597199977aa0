package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/cashflow/payment-gateway/internal/event"
	"github.com/cashflow/payment-gateway/internal/stream"
)

const defaultTable = "transaction_log"

// The storage identity is the only index; lookups by transaction id scan.
const schemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id BIGINT NOT NULL AUTO_INCREMENT,
	transaction_id CHAR(36) NOT NULL,
	order_id VARCHAR(128) NOT NULL,
	status VARCHAR(16) NOT NULL,
	reason VARCHAR(1024) NULL,
	request JSON NOT NULL,
	created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	PRIMARY KEY (id)
);`

// Schema returns the transaction log schema for the given table.
func Schema(table string) (string, error) {
	name, err := sanitizeTableName(table)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(schemaTemplate, name), nil
}

// Config defines MySQL store behavior.
type Config struct {
	Table string
	Clock stream.Clock
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.Clock == nil {
		c.Clock = stream.SystemClock{}
	}

	return c
}

// Option configures the MySQL store.
type Option func(*Config)

// WithTable sets the transaction log table name.
func WithTable(table string) Option {
	return func(c *Config) {
		c.Table = table
	}
}

// WithClock sets the store clock.
func WithClock(clock stream.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

type queries struct {
	insert             string
	countByTransaction string
}

func newQueries(table string) queries {
	return queries{
		insert: fmt.Sprintf(
			"INSERT INTO %s (transaction_id, order_id, status, reason, request, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			table,
		),
		countByTransaction: fmt.Sprintf(
			"SELECT COUNT(*) FROM %s WHERE transaction_id = ?",
			table,
		),
	}
}

// MySQLStore implements Store on a MySQL transaction log table.
type MySQLStore struct {
	db      *sql.DB
	cfg     Config
	queries queries
}

var _ Store = (*MySQLStore)(nil)

// NewMySQLStore constructs a MySQL store with validated configuration.
func NewMySQLStore(db *sql.DB, opts ...Option) (*MySQLStore, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	table, err := sanitizeTableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	cfg.Table = table

	return &MySQLStore{db: db, cfg: cfg, queries: newQueries(table)}, nil
}

// Insert implements Store.
func (s *MySQLStore) Insert(ctx context.Context, rec Record) (int64, error) {
	if err := validateRecord(rec); err != nil {
		return 0, err
	}

	request, err := json.Marshal(rec.Request)
	if err != nil {
		return 0, fmt.Errorf("ledger: marshal request failed: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.cfg.Clock.Now()
	}

	res, err := s.db.ExecContext(
		ctx,
		s.queries.insert,
		rec.TransactionID.String(),
		rec.OrderID,
		string(rec.Status),
		nullable(rec.Reason),
		request,
		createdAt,
	)
	if err != nil {
		return 0, fmt.Errorf("ledger: insert failed: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ledger: resolve insert id failed: %w", err)
	}

	return id, nil
}

// CountByTransaction implements Store.
func (s *MySQLStore) CountByTransaction(ctx context.Context, transactionID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.queries.countByTransaction, transactionID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ledger: count failed: %w", err)
	}

	return count, nil
}

func validateRecord(rec Record) error {
	if rec.TransactionID == uuid.Nil {
		return ErrTransactionIDRequired
	}
	if rec.Status != event.StatusSuccess && rec.Status != event.StatusFailure {
		return ErrStatusRequired
	}

	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}

	return s
}

func sanitizeTableName(name string) (string, error) {
	if name == "" {
		return "", ErrTableNameRequired
	}
	parts := strings.Split(name, ".")
	for _, part := range parts {
		if part == "" {
			return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
		}
		for _, r := range part {
			if r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				continue
			}

			return "", fmt.Errorf("%w: %s", ErrInvalidTableName, name)
		}
	}

	return name, nil
}
