package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// Options configures NewApp.
type Options struct {
	Service     string
	CORSOrigins []string
	Logger      *zerolog.Logger
}

// NewApp creates a fiber app with the shared middleware stack and a
// /health probe. Service routes are mounted by the caller.
func NewApp(opts Options) *fiber.App {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	app := fiber.New(fiber.Config{
		AppName:               "labreserve-" + opts.Service,
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler(logger),
	})

	app.Use(RequestID())
	app.Use(AccessLog(logger, opts.Service))
	app.Use(Recover())
	app.Use(CORS(opts.CORSOrigins))

	app.Get("/health", func(c *fiber.Ctx) error {
		return Success(c, "ok", fiber.Map{"service": opts.Service})
	})
	return app
}
