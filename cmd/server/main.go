package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"stock-sim-go/internal/api"
	"stock-sim-go/internal/auth"
	"stock-sim-go/internal/config"
	"stock-sim-go/internal/database"
	"stock-sim-go/internal/events"
	"stock-sim-go/internal/logger"
	"stock-sim-go/internal/quote"
	"stock-sim-go/internal/trader"
	"stock-sim-go/internal/yahoo"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Connect to the database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	calendar, err := quote.NewCalendar(cfg.Market)
	if err != nil {
		log.Fatal("Invalid market calendar", zap.Error(err))
	}

	// The provider may be briefly unreachable at boot; quotes fail per request until it recovers.
	restClient := yahoo.NewRestClient(&cfg.Provider, log)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	if err := restClient.Ping(pingCtx); err != nil {
		log.Warn("Market data provider is not reachable", zap.Error(err))
	} else {
		log.Info("Successfully connected to market data provider.")
	}
	cancelPing()

	normalizer := quote.NewNormalizer(restClient, calendar, cfg.Trading.Currency, log)

	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Info("Publishing trade events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	defer publisher.Close()

	svc := trader.NewService(log, &cfg.Trading, db, normalizer, publisher)
	accounts := auth.NewService(log, &cfg, db)
	handler := api.NewHandler(log, svc, accounts, normalizer, cfg.Trading.Currency)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.SetupRoutes(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Setup context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("Starting web server", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("Web server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down web server", zap.Error(err))
	}
	log.Info("Server has been shut down.")
}
