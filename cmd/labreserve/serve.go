package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"labreserve/internal/api"
	inventoryapi "labreserve/internal/api/inventory"
	reservationsapi "labreserve/internal/api/reservations"
	usersapi "labreserve/internal/api/users"
	"labreserve/internal/audit"
	"labreserve/internal/auth"
	"labreserve/internal/availability"
	"labreserve/internal/booking"
	"labreserve/internal/cache"
	"labreserve/internal/calendar"
	"labreserve/internal/events"
	"labreserve/internal/inventory"
	"labreserve/internal/metrics"
	"labreserve/internal/model"
	"labreserve/internal/schedule"
	"labreserve/internal/svcclient"
	"labreserve/internal/users"
)

type ServeCmd struct {
	Service     string `arg:"" enum:"users,inventory,reservations" help:"Service to run (users, inventory, reservations)."`
	HealthPort  int    `help:"Overrides monitoring.health_check_port."`
	MetricsPort int    `help:"Overrides monitoring.prometheus_port."`
}

func (c *ServeCmd) Run(app *App) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := app.Config
	logger := app.Logger.With().Str("service", c.Service).Logger()

	db, err := app.openDB(&logger)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.TokenTTL())
	web := api.NewApp(api.Options{Service: c.Service, CORSOrigins: cfg.Services.CORSOrigins, Logger: &logger})

	var addr string
	switch c.Service {
	case "users":
		addr = cfg.Services.UsersAddr
		svc := users.NewService(db, tokens, cfg.Auth.BcryptCost, &logger)
		if cfg.Auth.AdminPassword != "" {
			if _, err := svc.SeedAdmin(ctx, cfg.Auth.AdminPassword); err != nil {
				return err
			}
		}
		usersapi.NewHandler(svc, tokens).Register(web, usersapi.Options{
			InternalAPIKey:    cfg.Services.InternalAPIKey,
			LoginPerMinute:    cfg.Auth.LoginPerMinute,
			RegisterPerMinute: cfg.Auth.RegisterPerMinute,
		})

	case "inventory":
		addr = cfg.Services.InventoryAddr
		facilities := cache.NewFacilityCache(db, rdb, cfg.FacilityCacheTTL())
		bus := events.NewBus(&logger)
		invalidate := func(ctx context.Context, e events.Event) error {
			facilities.Invalidate(ctx, e.FacilityID)
			return nil
		}
		bus.Subscribe(events.FacilityChanged, invalidate)
		bus.Subscribe(events.FacilityDeleted, invalidate)

		svc := inventory.NewService(db,
			svcclient.NewReservationsClient(app.peerOptions(cfg.Services.ReservationsURL)),
			svcclient.NewUsersClient(app.peerOptions(cfg.Services.UsersURL)),
			bus, &logger)
		inventoryapi.NewHandler(svc, tokens).Register(web)

	case "reservations":
		addr = cfg.Services.ReservationsAddr
		cal, err := app.calendar(ctx, &logger)
		if err != nil {
			return err
		}
		bus := events.NewBus(&logger)
		logEvent := func(_ context.Context, e events.Event) error {
			logger.Debug().Str("event", e.Type).Int64("booking_id", e.BookingID).Int64("facility_id", e.FacilityID).Msg("booking event")
			return nil
		}
		bus.Subscribe(events.BookingCreated, logEvent)
		bus.Subscribe(events.BookingCancelled, logEvent)

		facilities := cache.NewFacilityCache(db, rdb, cfg.FacilityCacheTTL())
		bookings := booking.NewService(db, facilities,
			svcclient.NewUsersClient(app.peerOptions(cfg.Services.UsersURL)),
			cal, bus, availability.NewEvaluator(cfg.Location()), &logger)
		reservationsapi.NewHandler(bookings, schedule.NewService(db, db, &logger), audit.NewExporter(db), tokens,
			reservationsapi.Options{
				InternalAPIKey: cfg.Services.InternalAPIKey,
				MaxRangeDays:   cfg.Schedule.MaxRangeDays,
				CreatorRoles:   creatorRoles(cfg.Booking.CreatorRoles, &logger),
			}).Register(web)

		go app.backupService(db, &logger).Start(ctx)
	}

	healthPort, metricsPort := cfg.Monitoring.HealthCheckPort, cfg.Monitoring.PrometheusPort
	if c.HealthPort > 0 {
		healthPort = c.HealthPort
	}
	if c.MetricsPort > 0 {
		metricsPort = c.MetricsPort
	}
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, metricsPort, &logger)
	}
	go startHealthServer(ctx, healthPort, db, rdb, &logger)
	if cfg.Monitoring.GRPCHealthPort > 0 {
		go startGRPCHealth(ctx, cfg.Monitoring.GRPCHealthPort, "labreserve."+c.Service, &logger)
	}

	return listen(ctx, web, addr, &logger)
}

// listen serves until ctx is done, then drains in-flight requests.
func listen(ctx context.Context, web *fiber.App, addr string, logger *zerolog.Logger) error {
	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("http server started")
		errc <- web.Listen(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	if err := web.ShutdownWithTimeout(10 * time.Second); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) peerOptions(baseURL string) svcclient.Options {
	return svcclient.Options{
		BaseURL:       baseURL,
		APIKey:        a.Config.Services.InternalAPIKey,
		Timeout:       a.Config.ClientTimeout(),
		RatePerSecond: a.Config.Services.RatePerSecond,
		Burst:         a.Config.Services.RateBurst,
	}
}

// calendar returns the Google Calendar client, or a no-op when sync is off.
func (a *App) calendar(ctx context.Context, logger *zerolog.Logger) (booking.Calendar, error) {
	cc := a.Config.Calendar
	if !cc.Enabled {
		logger.Info().Msg("calendar sync disabled")
		return calendar.Noop{}, nil
	}
	client, err := calendar.NewGoogleClient(ctx, cc.CredentialsFile, cc.CalendarID, a.Config.CalendarTimeout())
	if err != nil {
		return nil, err
	}
	logger.Info().Str("calendar_id", cc.CalendarID).Msg("calendar sync enabled")
	return client, nil
}

func creatorRoles(names []string, logger *zerolog.Logger) []model.Role {
	roles := make([]model.Role, 0, len(names))
	for _, name := range names {
		role := model.Role(name)
		if !role.Valid() {
			logger.Warn().Str("role", name).Msg("ignoring unknown booking creator role")
			continue
		}
		roles = append(roles, role)
	}
	return roles
}
