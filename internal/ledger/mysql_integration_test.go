//go:build integration

package ledger_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cashflow/payment-gateway/internal/event"
	"github.com/cashflow/payment-gateway/internal/ledger"
)

func startMySQLContainer(t *testing.T, ctx context.Context) (testcontainers.Container, *sql.DB) {
	t.Helper()
	port := nat.Port("3306/tcp")
	req := testcontainers.ContainerRequest{
		Image:        "mysql:8.0.36",
		ExposedPorts: []string{string(port)},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "secret",
			"MYSQL_DATABASE":      "payments",
		},
		WaitingFor: wait.ForSQL(port, "mysql", func(host string, port nat.Port) string {
			return fmt.Sprintf("root:secret@tcp(%s:%s)/payments?parseTime=true", host, port.Port())
		}).WithStartupTimeout(2 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("start mysql container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("resolve host: %v", err)
	}
	mappedPort, err := container.MappedPort(ctx, port)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("resolve port: %v", err)
	}

	dsn := fmt.Sprintf("root:secret@tcp(%s:%s)/payments?parseTime=true", host, mappedPort.Port())
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("open db: %v", err)
	}

	return container, db
}

func TestMySQLStoreInsertIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startMySQLContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	schema, err := ledger.Schema("transaction_log")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, schema)
	require.NoError(t, err)

	store, err := ledger.NewMySQLStore(db)
	require.NoError(t, err)

	txID := uuid.New()
	rec := ledger.Record{
		TransactionID: txID,
		OrderID:       "ORD-1",
		Status:        event.StatusSuccess,
		Reason:        "payment authorized",
		Request: event.PaymentRequest{
			TransactionID: txID,
			OrderID:       "ORD-1",
			Amount:        decimal.NewFromFloat(100.00),
			Currency:      "USD",
			CardNumber:    "4111-1111-1111-1111",
			WebhookURL:    "https://merchant.test/hook",
			APIKey:        "key123",
		},
	}

	first, err := store.Insert(ctx, rec)
	require.NoError(t, err)
	require.Positive(t, first)

	// The log is append-only with no uniqueness on transaction_id, so a
	// redelivered request accumulates a duplicate row.
	second, err := store.Insert(ctx, rec)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	count, err := store.CountByTransaction(ctx, txID)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	var embedded []byte
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT request FROM transaction_log WHERE id = ?", first).Scan(&embedded))
	var got event.PaymentRequest
	require.NoError(t, json.Unmarshal(embedded, &got))
	require.Equal(t, txID, got.TransactionID)
	require.Equal(t, "key123", got.APIKey)
}

func TestMySQLStoreCountUnknownIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startMySQLContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	schema, err := ledger.Schema("transaction_log")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, schema)
	require.NoError(t, err)

	store, err := ledger.NewMySQLStore(db)
	require.NoError(t, err)

	count, err := store.CountByTransaction(ctx, uuid.New())
	require.NoError(t, err)
	require.Zero(t, count)
}
