package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Pinger is an interface for health check ping operations.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler handles health check requests.
type HealthHandler struct {
	pool  Pinger
	redis Pinger
}

// NewHealthHandler creates a new HealthHandler with the given database pool
// and Redis client. redis may be nil.
func NewHealthHandler(pool Pinger, redis Pinger) *HealthHandler {
	return &HealthHandler{pool: pool, redis: redis}
}

// Check performs a health check by pinging the database and Redis.
// Returns 200 OK with {"status": "healthy"} when both are reachable.
// Returns 503 Service Unavailable with {"status": "unhealthy", "error": "..."} otherwise.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	if err := h.pool.Ping(c.Context()); err != nil {
		log.Error().Err(err).Msg("health check failed: database unreachable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  "database connection failed",
		})
	}
	if h.redis != nil {
		if err := h.redis.Ping(c.Context()); err != nil {
			log.Error().Err(err).Msg("health check failed: redis unreachable")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unhealthy",
				"error":  "redis connection failed",
			})
		}
	}
	return c.JSON(fiber.Map{
		"status": "healthy",
	})
}
