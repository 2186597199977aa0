package ledger

import "errors"

var (
	// ErrDBRequired is returned when a nil *sql.DB is provided.
	ErrDBRequired = errors.New("ledger: db is required")
	// ErrTableNameRequired is returned when the table name is empty.
	ErrTableNameRequired = errors.New("ledger: table name is required")
	// ErrInvalidTableName is returned when the table name has disallowed characters.
	ErrInvalidTableName = errors.New("ledger: invalid table name")
	// ErrTransactionIDRequired is returned when a record lacks a transaction id.
	ErrTransactionIDRequired = errors.New("ledger: transaction id is required")
	// ErrStatusRequired is returned when a record lacks a status.
	ErrStatusRequired = errors.New("ledger: status is required")
)
