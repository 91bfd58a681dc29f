package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geostrike/internal/achievement"
	"github.com/geostrike/internal/config"
	"github.com/geostrike/internal/domain"
	"github.com/geostrike/internal/entity"
	"github.com/geostrike/internal/game"
	"github.com/geostrike/internal/handler"
	"github.com/geostrike/internal/kafka"
	"github.com/geostrike/internal/postgres"
	"github.com/geostrike/internal/redis"
	"github.com/geostrike/internal/service"
	"github.com/geostrike/internal/websocket"
	"github.com/geostrike/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize the optional hall of fame
	var hallOfFame *redis.HallOfFame
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		hallOfFame, err = redis.NewHallOfFame(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, continuing without hall of fame", "error", err)
			hallOfFame = nil
		} else {
			defer hallOfFame.Close()
			logger.Info("connected to Redis")
		}
	}

	// Connection registry and ephemeral entity managers
	registry := websocket.NewRegistry(logger)
	drones := entity.NewDroneManager(cfg.Game.Drones, cfg.Game.Tokens.Drone, repo, logger)
	pickups := entity.NewPickupManager(cfg.Game.GeoObjects, map[string]int64{
		domain.PickupWeapon:  cfg.Game.Tokens.Weapon,
		domain.PickupTarget:  cfg.Game.Tokens.Target,
		domain.PickupPowerup: cfg.Game.Tokens.Powerup,
	}, repo, logger)

	// Reward ledger with achievement engine
	engine := achievement.NewEngine(cfg.Game.Achievements)
	ledger := service.NewLedger(repo, engine, logger)

	// Optional Kafka reward event stream
	var publisher *kafka.Publisher
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka producer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		publisher, err = kafka.NewPublisher(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka producer, continuing without event stream", "error", err)
		} else {
			ledger.SetPublisher(publisher)
			logger.Info("Kafka producer started")
		}
	}

	// Message dispatcher
	dispatcher := game.NewDispatcher(registry, repo, ledger, drones, pickups, cfg.Game, logger)
	if hallOfFame != nil {
		dispatcher.SetScoreboard(hallOfFame)
	}

	// Background loops
	sweeper := worker.NewSweeper(dispatcher, &cfg.Sweep, logger)
	if err := sweeper.Start(ctx); err != nil {
		logger.Error("failed to start sweeper", "error", err)
		os.Exit(1)
	}

	spawner := worker.NewSpawner(dispatcher, cfg.Game.Drones.SpawnInterval, logger)
	if err := spawner.Start(ctx); err != nil {
		logger.Error("failed to start drone spawner", "error", err)
		os.Exit(1)
	}

	// HTTP handler
	httpHandler := handler.NewHandler(dispatcher, repo, ledger, hallOfFame, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		logger.Info("WebSocket endpoint available at /ws")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop background loops
	if err := spawner.Stop(); err != nil {
		logger.Error("failed to stop drone spawner", "error", err)
	}
	if err := sweeper.Stop(); err != nil {
		logger.Error("failed to stop sweeper", "error", err)
	}

	// Stop Kafka producer
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("failed to close Kafka producer", "error", err)
		}
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
