package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/SumonaSupto/AgriBusket-sub001/config"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/database"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/eventbus"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/gateway"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/handlers"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/inventory"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/ledger"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/processor"
	"github.com/SumonaSupto/AgriBusket-sub001/internal/reservation"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set log level from config
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().Str("appName", cfg.AppName).Msg("Application starting")

	// --- Storage ---
	var (
		store   inventory.Store
		resRepo reservation.Repo
		ordRepo ledger.OrderRepo
		txns    ledger.TxnRefStore
	)
	switch cfg.StoreDriver {
	case "memory":
		log.Warn().Msg("Using in-memory storage; state will not survive restarts")
		store = inventory.NewMemoryStore()
		resRepo = reservation.NewMemoryRepo()
		ordRepo = ledger.NewMemoryOrderRepo()
		txns = ledger.NewMemoryTxnRefStore()
	default:
		db, err := database.New(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Database")
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
		store = inventory.NewPostgresStore(db.SQL)
		resRepo = reservation.NewPostgresRepo(db.SQL)
		ordRepo = ledger.NewPostgresOrderRepo(db.SQL)
		txns = ledger.NewPostgresTxnRefStore(db.SQL)
	}

	// Redis takes over the processed-transaction set when configured, so
	// multiple instances share one idempotency view.
	if cfg.RedisURL != "" {
		redisTxns, err := ledger.NewRedisTxnRefStore(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Redis transaction store")
		}
		defer redisTxns.Close()
		txns = redisTxns
	}

	// --- Event bus ---
	var bus eventbus.Publisher = eventbus.NopPublisher{}
	var rmqManager *eventbus.RabbitMQManager
	if cfg.RabbitMQURL != "" {
		rmqManager, err = eventbus.NewRabbitMQManager(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize RabbitMQ Manager")
		}
		defer rmqManager.Close()
		bus = rmqManager
	} else {
		log.Warn().Msg("RABBITMQ_URL not set; events disabled and no fulfillment consumer")
	}

	// --- Services ---
	resManager := reservation.NewManager(store, resRepo, cfg.ReservationTTL)
	orderLedger := ledger.New(ordRepo, resManager, store, txns, bus, cfg.LowStockThreshold)
	adjuster := inventory.NewAdjuster(store, bus)
	gatewayAdapter := gateway.NewAdapter(orderLedger, cfg.StorePassword)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reservation expiry sweep
	sweeper := reservation.NewSweeper(resManager, cfg.SweepInterval, orderLedger.FailExpired)
	go sweeper.Run(ctx)

	// Fulfillment consumer
	if rmqManager != nil {
		fulfillment := processor.New(orderLedger)
		if err := rmqManager.StartConsuming(ctx, fulfillment.MessageHandler); err != nil {
			log.Fatal().Err(err).Msg("Failed to start fulfillment consumer")
		}
	}

	// --- HTTP server ---
	h := handlers.New(store, adjuster, orderLedger, gatewayAdapter)
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      h.Router(cfg.AdminToken),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	log.Info().Msg("Application setup complete. Running.")

	// --- Wait for shutdown signal ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// --- Graceful Shutdown ---
	log.Info().Msg("Application shutting down...")
	cancel() // Signal context cancellation to the sweeper and consumer

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shutdown")
	}
	// Deferred calls close the database, Redis and RabbitMQ here.
}
