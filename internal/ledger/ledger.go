// Package ledger persists the immutable audit record of every processed
// transaction.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cashflow/payment-gateway/internal/event"
)

// Record is one append-only transaction log entry. The authorization worker
// is the sole writer; records are never mutated or deleted. No uniqueness is
// enforced on TransactionID, so a redelivered request produces a duplicate
// record.
type Record struct {
	// ID is the server-assigned storage identity.
	ID int64
	// TransactionID is the identity minted at ingress.
	TransactionID uuid.UUID
	OrderID       string
	Status        event.Status
	// Reason is the authorization note or failure reason.
	Reason string
	// CreatedAt is assigned by the store on insert.
	CreatedAt time.Time
	// Request embeds the original payment request for audit.
	Request event.PaymentRequest
}

// Store appends and inspects transaction records.
type Store interface {
	// Insert appends a record and returns its storage identity.
	Insert(ctx context.Context, rec Record) (int64, error)
	// CountByTransaction returns the number of records carrying the
	// transaction id. More than one indicates a redelivered request.
	CountByTransaction(ctx context.Context, transactionID uuid.UUID) (int, error)
}
