package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/reward-ticket-service/internal/auth"
	"github.com/fairyhunter13/reward-ticket-service/internal/config"
	"github.com/fairyhunter13/reward-ticket-service/internal/events"
	"github.com/fairyhunter13/reward-ticket-service/internal/handler"
	"github.com/fairyhunter13/reward-ticket-service/internal/repository"
	"github.com/fairyhunter13/reward-ticket-service/internal/service"
	"github.com/fairyhunter13/reward-ticket-service/internal/validator"
	"github.com/fairyhunter13/reward-ticket-service/pkg/cache"
	"github.com/fairyhunter13/reward-ticket-service/pkg/database"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize zerolog based on configuration
	initLogger(cfg)

	// Create context for startup
	ctx := context.Background()

	// Initialize database pool with retry
	pool, err := database.NewPool(ctx, cfg.DB.DSN(), cfg.DB.MaxRetries)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	if cfg.DB.Migrate {
		if err := database.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("failed to run database migrations")
		}
	}

	// Redis backs parent sessions and ticket events
	rdb, err := cache.NewClient(ctx, cache.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cfg.Redis.MaxRetries)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	// Initialize Fiber with production-ready configuration
	app := fiber.New(fiber.Config{
		AppName:      "Reward Ticket Service",
		ReadTimeout:  30 * time.Second,  // Max time to read request
		WriteTimeout: 30 * time.Second,  // Max time to write response
		IdleTimeout:  120 * time.Second, // Max time for keep-alive connections
		BodyLimit:    1 * 1024 * 1024,   // 1MB body limit (explicit, prevents large payloads)
		ErrorHandler: handler.ErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New()) // Adds X-Request-ID header to all requests
	app.Use(logger.New())

	// Initialize validator
	validate := validator.New()

	// Identity
	sessions := auth.NewRedisSessionStore(rdb, cfg.Auth.SessionKeyPrefix)
	childTokens := auth.NewChildTokens(cfg.Auth.ChildSessionSecret, cfg.Auth.ChildSessionTTL)
	resolver := auth.NewResolver(sessions, childTokens, cfg.Auth.SessionCookie, cfg.Auth.ChildSessionCookie)

	// Ticket components (layered architecture)
	var publisher service.EventPublisher = events.NoopPublisher{}
	if cfg.Events.Enabled {
		publisher = events.NewRedisPublisher(rdb)
	}
	ticketRepo := repository.NewTicketRepository(pool)
	ticketService := service.NewTicketService(pool, ticketRepo, publisher)
	ticketHandler := handler.NewTicketHandler(ticketService, validate)
	queryHandler := handler.NewTicketQueryHandler(ticketService, validate)

	// Health handler
	healthHandler := handler.NewHealthHandler(pool, handler.PingFunc(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}))
	app.Get("/health", healthHandler.Check)

	// Ticket routes. Child edges check the child session after body validation.
	tickets := app.Group("/tickets", resolver.Authenticate())
	tickets.Get("/:id", resolver.RequireAny(), queryHandler.GetTicket)
	tickets.Post("/:id/request-use", ticketHandler.RequestUse)
	tickets.Post("/:id/approve", resolver.RequireParent(), ticketHandler.Approve)
	tickets.Post("/:id/fulfill", resolver.RequireParent(), ticketHandler.Fulfill)
	tickets.Post("/:id/pause", ticketHandler.Pause)
	tickets.Post("/:id/resume", ticketHandler.Resume)
	tickets.Post("/:id/save-progress", ticketHandler.SaveProgress)
	tickets.Post("/:id/complete", ticketHandler.Complete)

	app.Get("/children/:childId/tickets", resolver.Authenticate(), resolver.RequireAny(), queryHandler.ListChildTickets)

	// Start server with graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	log.Info().Int("timeout_seconds", cfg.Server.ShutdownTimeout).Msg("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// Shutdown server (waits for in-flight requests)
	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	// Close stores AFTER server shutdown (even if shutdown timed out)
	log.Info().Msg("closing redis connections...")
	if err := rdb.Close(); err != nil {
		log.Error().Err(err).Msg("error closing redis")
	}
	log.Info().Msg("closing database connections...")
	pool.Close()
	log.Info().Msg("database connections closed")
	log.Info().Msg("server stopped")
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure output format
	if cfg.Log.Pretty {
		// Human-readable output for development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
