package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sparecart/order-engine/internal/messaging"
	"github.com/sparecart/order-engine/internal/telemetry"
	"github.com/sparecart/order-engine/internal/worker"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "worker", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}

	emailServiceURL := os.Getenv("EMAIL_SERVICE_URL")
	if emailServiceURL == "" {
		logger.Error("EMAIL_SERVICE_URL environment variable is required")
		os.Exit(1)
	}

	ordersServiceURL := os.Getenv("ORDERS_SERVICE_URL")
	if ordersServiceURL == "" {
		logger.Error("ORDERS_SERVICE_URL environment variable is required")
		os.Exit(1)
	}

	catalogServiceURL := os.Getenv("CATALOG_SERVICE_URL")
	if catalogServiceURL == "" {
		logger.Error("CATALOG_SERVICE_URL environment variable is required")
		os.Exit(1)
	}

	alertRecipient := os.Getenv("RESTOCK_ALERT_EMAIL")
	if alertRecipient == "" {
		alertRecipient = "ops@example.com"
	}

	brokers := strings.Split(kafkaBrokers, ",")

	placedConsumer := messaging.NewConsumer(brokers, messaging.TopicOrderPlaced, "notification-worker", logger)
	defer func() { _ = placedConsumer.Close() }()

	cancelledConsumer := messaging.NewConsumer(brokers, messaging.TopicOrderCancelled, "notification-worker", logger)
	defer func() { _ = cancelledConsumer.Close() }()

	httpClient := &http.Client{
		Timeout: 10 * time.Second,
	}

	handler := worker.NewNotificationHandler(emailServiceURL, ordersServiceURL, catalogServiceURL,
		alertRecipient, httpClient, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting notification worker", "brokers", brokers)

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return placedConsumer.Consume(groupCtx, handler.HandleOrderPlaced)
	})
	group.Go(func() error {
		return cancelledConsumer.Consume(groupCtx, handler.HandleOrderCancelled)
	})

	if err := group.Wait(); err != nil {
		if runCtx.Err() == context.Canceled {
			logger.Info("consumers stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
