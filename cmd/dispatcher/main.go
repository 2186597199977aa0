// Command dispatcher delivers payment outcomes to merchant webhook URLs.
//
// Every instance subscribes with a freshly minted consumer group, so each
// one observes the full outcome topic. Delivery runs in a goroutine per
// outcome; by default the read position is committed as soon as the
// goroutine is launched (-commit-mode after-delivery holds the commit until
// the webhook call resolves).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/cashflow/payment-gateway/cmd/internal/cliutil"
	"github.com/cashflow/payment-gateway/internal/dispatch"
	"github.com/cashflow/payment-gateway/internal/event"
	"github.com/cashflow/payment-gateway/internal/stream"
	redisstream "github.com/cashflow/payment-gateway/internal/stream/redis"
)

const exitUsage = 2

func main() {
	var (
		redisAddr   string
		groupPrefix string
		commitMode  string
		sendRetries int
		httpTimeout time.Duration
		verbose     bool
	)

	flag.StringVar(&redisAddr, "redis-addr", cliutil.Env("REDIS_ADDR", "localhost:6379"), "Redis address")
	flag.StringVar(&groupPrefix, "group-prefix", "webhook-dispatcher", "Prefix for this instance's consumer group")
	flag.StringVar(&commitMode, "commit-mode", "on-dispatch", "When to commit deliveries: on-dispatch or after-delivery")
	flag.IntVar(&sendRetries, "send-retries", 5, "Webhook delivery retries after the first attempt")
	flag.DurationVar(&httpTimeout, "http-timeout", 30*time.Second, "Per-attempt webhook request timeout")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	policy, err := parseCommitMode(commitMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(exitUsage)
	}

	if err := run(redisAddr, groupPrefix, policy, sendRetries, httpTimeout, verbose); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

func parseCommitMode(mode string) (dispatch.CommitPolicy, error) {
	switch mode {
	case "on-dispatch":
		return dispatch.CommitOnDispatch, nil
	case "after-delivery":
		return dispatch.CommitAfterDelivery, nil
	default:
		return 0, fmt.Errorf("unknown commit mode %q", mode)
	}
}

func run(
	redisAddr, groupPrefix string,
	policy dispatch.CommitPolicy,
	sendRetries int,
	httpTimeout time.Duration,
	verbose bool,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := cliutil.NewStdLogger(verbose)

	client := goredis.NewClient(&goredis.Options{Addr: redisAddr})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	consumer, err := redisstream.NewConsumer(ctx, client, event.TopicPaymentOutcomes,
		stream.BroadcastGroup(groupPrefix),
		stream.WithPollInterval(time.Second),
		stream.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("init consumer: %w", err)
	}
	defer consumer.Close()

	sender, err := dispatch.NewHTTPSender(&http.Client{Timeout: httpTimeout},
		dispatch.WithSendRetries(sendRetries),
		dispatch.WithSenderLogger(logger))
	if err != nil {
		return fmt.Errorf("init sender: %w", err)
	}

	dispatcher := dispatch.NewDispatcher(consumer, sender,
		dispatch.WithCommitPolicy(policy),
		dispatch.WithLogger(logger))

	return dispatcher.Run(ctx)
}
