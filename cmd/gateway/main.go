package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"giveaway-overlay-backend/internal/dbconfig"
	"giveaway-overlay-backend/internal/gateway"
	"giveaway-overlay-backend/internal/giveaway"
	"giveaway-overlay-backend/internal/ingest"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Get configuration
	port := getEnv("GATEWAY_PORT", "8080")
	natsURL := getEnv("NATS_URL", "nats://localhost:4222")
	configPath := getEnv("CONFIG_PATH", "")

	fileConfig, err := loadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config file")
	}

	// Database configuration
	dbCfg := dbconfig.NewConfigFromEnv()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	pool, err := pgxpool.New(ctx, dbCfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}

	repo := giveaway.NewRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure schema")
	}

	log.Info().
		Str("database", dbCfg.Database).
		Str("nats_url", natsURL).
		Str("port", port).
		Msg("starting giveaway gateway")

	// Broadcast hub
	hub := gateway.NewHub(gateway.DefaultConnectionConfig())

	// Giveaway state machine
	service := giveaway.NewService(clockwork.NewRealClock(), repo, hub, fileConfig.serviceConfig())

	// New clients get the current snapshot pushed immediately on join.
	hub.OnJoin(service.HandleClientJoin)
	hub.OnLeave(service.HandleClientLeave)

	go hub.Start(ctx)
	go service.Run(ctx)

	// Contribution feed and auth notifications
	ingestCfg := ingest.DefaultConfig()
	ingestCfg.URL = natsURL
	consumer, err := ingest.NewConsumer(ingestCfg, service, service)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	if err := consumer.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start ingest consumer")
	}

	// HTTP surface: operator commands, WebSocket upgrade, health
	mux := http.NewServeMux()

	wsHandler := gateway.NewWebSocketHandler(hub)
	wsHandler.RegisterRoutes(mux)

	commandHandler := gateway.NewCommandHandler(service)
	commandHandler.RegisterRoutes(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet, http.MethodPost},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      c.Handler(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	consumer.Stop()
	cancel()

	// Give the hub and service loops time to drain
	time.Sleep(1 * time.Second)

	log.Info().Msg("giveaway gateway shutdown complete")
}
