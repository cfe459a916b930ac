package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/sparecart/order-engine/internal/catalog"
	"github.com/sparecart/order-engine/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	var store catalog.Store

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

		store = catalog.NewPostgresStore(db)

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

		store = catalog.NewFirestoreStore(client)

	default:
		logger.Error("unknown backend", "backend", backend)
		os.Exit(1)
	}

	handler := catalog.NewHandler(store, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /catalog/products/{id}", handler.HandleGetProduct)
	mux.HandleFunc("GET /catalog/low-stock", handler.HandleListLowStock)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting catalog service", "port", port, "backend", backend)
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
