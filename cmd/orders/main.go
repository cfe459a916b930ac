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

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sparecart/order-engine/internal/catalog"
	"github.com/sparecart/order-engine/internal/messaging"
	"github.com/sparecart/order-engine/internal/orders"
	"github.com/sparecart/order-engine/internal/pricing"
	"github.com/sparecart/order-engine/internal/stock"
	"github.com/sparecart/order-engine/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "orders", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("orders", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	orderMetrics, err := telemetry.NewOrderMetrics()
	if err != nil {
		logger.Error("failed to create order metrics", "error", err)
		os.Exit(1)
	}

	var (
		repo   orders.Repository
		ledger stock.Ledger
		lookup catalog.Lookup
	)

	backend := os.Getenv("ORDER_BACKEND")
	if backend == "" {
		backend = "postgres"
	}

	switch backend {
	case "postgres":
		postgresURL := os.Getenv("POSTGRES_URL")
		if postgresURL == "" {
			logger.Error("POSTGRES_URL environment variable is required")
			os.Exit(1)
		}

		db, err := telemetry.OpenPostgres(ctx, postgresURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()

		repo = orders.NewPostgresRepository(db)
		ledger = stock.NewPostgresLedger(db)
		lookup = catalog.NewPostgresStore(db)

	case "firestore":
		projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
		if projectID == "" {
			logger.Error("GOOGLE_CLOUD_PROJECT environment variable is required")
			os.Exit(1)
		}

		client, err := firestore.NewClient(ctx, projectID)
		if err != nil {
			logger.Error("failed to create firestore client", "error", err)
			os.Exit(1)
		}
		defer func() { _ = client.Close() }()

		repo = orders.NewFirestoreRepository(client)
		ledger = stock.NewFirestoreLedger(client)
		lookup = catalog.NewFirestoreStore(client)

	default:
		logger.Error("unknown backend", "backend", backend)
		os.Exit(1)
	}

	opts := []orders.ServiceOption{orders.WithMetrics(orderMetrics)}

	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers != "" {
		events := messaging.NewOrderEvents(strings.Split(kafkaBrokers, ","))
		defer func() { _ = events.Close() }()
		opts = append(opts, orders.WithEventPublisher(events))
	}

	service := orders.NewService(repo, ledger, lookup, pricingConfig(logger), logger, opts...)
	handler := orders.NewHandler(service, logger)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("GET /metrics", metricsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "orders",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting orders service", "port", port, "backend", backend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func pricingConfig(logger *slog.Logger) pricing.Config {
	cfg := pricing.Config{
		TaxRate:           decimal.RequireFromString("0.08"),
		ShippingFee:       decimal.RequireFromString("5.00"),
		FreeShippingAbove: decimal.RequireFromString("100.00"),
	}

	if raw := os.Getenv("TAX_RATE"); raw != "" {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			logger.Warn("invalid TAX_RATE, using default", "value", raw)
		} else {
			cfg.TaxRate = rate
		}
	}
	if raw := os.Getenv("SHIPPING_FEE"); raw != "" {
		fee, err := decimal.NewFromString(raw)
		if err != nil {
			logger.Warn("invalid SHIPPING_FEE, using default", "value", raw)
		} else {
			cfg.ShippingFee = fee
		}
	}
	if raw := os.Getenv("FREE_SHIPPING_ABOVE"); raw != "" {
		threshold, err := decimal.NewFromString(raw)
		if err != nil {
			logger.Warn("invalid FREE_SHIPPING_ABOVE, using default", "value", raw)
		} else {
			cfg.FreeShippingAbove = threshold
		}
	}

	return cfg
}
