package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"labreserve/internal/metrics"
)

const (
	headerRequestID = "X-Request-ID"
	localsRequestID = "request_id"
)

// RequestID reuses the caller's X-Request-ID or assigns a new one.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(headerRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(headerRequestID, id)
		c.Locals(localsRequestID, id)
		return c.Next()
	}
}

// AccessLog logs one line per request and feeds the request histogram.
func AccessLog(logger *zerolog.Logger, service string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// Render now so the logged status is the one sent.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		elapsed := time.Since(start)
		metrics.ObserveHTTPRequest(service, c.Method(), strconv.Itoa(status), elapsed.Seconds())

		event := logger.Info()
		if status >= fiber.StatusInternalServerError {
			event = logger.Warn()
		}
		event.
			Interface("request_id", c.Locals(localsRequestID)).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("latency", elapsed).
			Msg("http request")
		return nil
	}
}

func Recover() fiber.Handler {
	return recover.New(recover.Config{EnableStackTrace: true})
}

// CORS allows the given origins, or any origin when the list is empty.
func CORS(origins []string) fiber.Handler {
	cfg := cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}
	if len(origins) > 0 {
		cfg.AllowOrigins = strings.Join(origins, ", ")
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// RateLimit allows max requests per IP per window. A non-positive max
// disables it.
func RateLimit(max int, window time.Duration, message string) fiber.Handler {
	if max <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return Error(c, fiber.StatusTooManyRequests, message)
		},
	})
}
