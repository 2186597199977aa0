// Command gateway serves the payment submission API.
//
// It authenticates callers against the Redis key store, mints a transaction
// id per submission, and publishes the request to the payment-requests
// stream before acknowledging with 202.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"

	"github.com/cashflow/payment-gateway/cmd/internal/cliutil"
	"github.com/cashflow/payment-gateway/internal/apikeys"
	"github.com/cashflow/payment-gateway/internal/gateway"
	redisstream "github.com/cashflow/payment-gateway/internal/stream/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var (
		listen    string
		redisAddr string
		verbose   bool
	)

	flag.StringVar(&listen, "listen", cliutil.Env("GATEWAY_LISTEN", ":8080"), "HTTP listen address")
	flag.StringVar(&redisAddr, "redis-addr", cliutil.Env("REDIS_ADDR", "localhost:6379"), "Redis address")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	if err := run(listen, redisAddr, verbose); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

func run(listen, redisAddr string, verbose bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := cliutil.NewStdLogger(verbose)

	client := goredis.NewClient(&goredis.Options{Addr: redisAddr})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	keys, err := apikeys.NewRedisStore(client)
	if err != nil {
		return fmt.Errorf("init key store: %w", err)
	}
	publisher, err := redisstream.NewPublisher(client, redisstream.WithPublisherLogger(logger))
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}

	handler := gateway.NewHandler(keys, publisher, gateway.WithLogger(logger))
	server := &http.Server{Addr: listen, Handler: handler.Routes()}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("gateway listening", "addr", listen)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}

		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("gateway shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
