// Command authworker consumes payment requests, authorizes them, persists
// the transaction log record, and publishes the outcome event.
//
// Instances share one consumer group, so requests are load-balanced between
// them. The read position is committed on a timer independent of processing:
// a crash mid-batch redelivers already-processed requests, which is accepted
// in exchange for never needing a commit per message.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"

	"github.com/cashflow/payment-gateway/cmd/internal/cliutil"
	"github.com/cashflow/payment-gateway/internal/authorize"
	"github.com/cashflow/payment-gateway/internal/event"
	"github.com/cashflow/payment-gateway/internal/ledger"
	"github.com/cashflow/payment-gateway/internal/stream"
	redisstream "github.com/cashflow/payment-gateway/internal/stream/redis"
)

const exitUsage = 2

func main() {
	var (
		redisAddr    string
		dsn          string
		table        string
		groupName    string
		maxRetries   int
		latency      time.Duration
		failureRate  float64
		autoAckEvery time.Duration
		claimMinIdle time.Duration
		initSchema   bool
		verbose      bool
	)

	flag.StringVar(&redisAddr, "redis-addr", cliutil.Env("REDIS_ADDR", "localhost:6379"), "Redis address")
	flag.StringVar(&dsn, "dsn", cliutil.Env("MYSQL_DSN", ""), "MySQL DSN, e.g. user:pass@tcp(host:3306)/payments?parseTime=true")
	flag.StringVar(&table, "table", "transaction_log", "Transaction log table name")
	flag.StringVar(&groupName, "group", "payment-processor-group", "Shared consumer group name")
	flag.IntVar(&maxRetries, "max-retries", 3, "Authorization retries after the first attempt")
	flag.DurationVar(&latency, "authorizer-latency", time.Second, "Simulated authorization latency")
	flag.Float64Var(&failureRate, "authorizer-failure-rate", 0.25, "Simulated authorization failure probability")
	flag.DurationVar(&autoAckEvery, "auto-ack-every", 5*time.Second, "Read position commit interval")
	flag.DurationVar(&claimMinIdle, "claim-min-idle", time.Minute, "Idle time before unacked deliveries are reclaimed")
	flag.BoolVar(&initSchema, "init-schema", false, "Create the transaction log table and exit")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	if dsn == "" {
		fmt.Fprintln(os.Stderr, "dsn is required")
		flag.Usage()
		os.Exit(exitUsage)
	}

	if err := run(redisAddr, dsn, table, groupName, maxRetries, latency, failureRate,
		autoAckEvery, claimMinIdle, initSchema, verbose); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

func run(
	redisAddr, dsn, table, groupName string,
	maxRetries int,
	latency time.Duration,
	failureRate float64,
	autoAckEvery, claimMinIdle time.Duration,
	initSchema, verbose bool,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := cliutil.NewStdLogger(verbose)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	if initSchema {
		schema, err := ledger.Schema(table)
		if err != nil {
			return fmt.Errorf("render schema: %w", err)
		}
		if _, err := db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
		logger.Info("schema created", "table", table)

		return nil
	}

	store, err := ledger.NewMySQLStore(db, ledger.WithTable(table))
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	client := goredis.NewClient(&goredis.Options{Addr: redisAddr})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	consumer, err := redisstream.NewConsumer(ctx, client, event.TopicPaymentRequests,
		stream.SharedGroup(groupName),
		stream.WithBatchSize(1),
		stream.WithAutoAck(autoAckEvery),
		stream.WithClaimMinIdle(claimMinIdle),
		stream.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("init consumer: %w", err)
	}
	defer consumer.Close()

	publisher, err := redisstream.NewPublisher(client, redisstream.WithPublisherLogger(logger))
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}

	authorizer := authorize.NewSimulator(
		authorize.WithLatency(latency),
		authorize.WithFailureRate(failureRate))

	worker := authorize.NewWorker(consumer, publisher, store, authorizer,
		authorize.WithMaxRetries(maxRetries),
		authorize.WithLogger(logger))

	return worker.Run(ctx)
}
