package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"labreserve/internal/config"
	"labreserve/internal/database"
	"labreserve/internal/logging"
)

var CLI struct {
	Config string `help:"Config file path." type:"path" env:"LABRESERVE_CONFIG_PATH"`

	Serve     ServeCmd     `cmd:"" help:"Run one of the HTTP services."`
	Migrate   MigrateCmd   `cmd:"" help:"Create or update the database schema."`
	SeedAdmin SeedAdminCmd `cmd:"" name:"seed-admin" help:"Create the admin account when missing."`
	Export    struct {
		Bookings ExportBookingsCmd `cmd:"" help:"Write bookings in a date range to an xlsx file."`
	} `cmd:"" help:"Export data."`
	Backup BackupCmd `cmd:"" help:"Snapshot the sqlite database and prune old snapshots."`
}

// App carries what every command needs.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("labreserve"),
		kong.Description("Laboratory and equipment reservation services"),
		kong.UsageOnError(),
	)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: init logger: %v\n", err)
		os.Exit(1)
	}

	if err := kctx.Run(&App{Config: cfg, Logger: logger}); err != nil {
		logger.Error().Err(err).Str("command", kctx.Command()).Msg("command failed")
		os.Exit(1)
	}
}

func (a *App) openDB(logger *zerolog.Logger) (*database.DB, error) {
	return database.Open(database.Options{
		Driver:          a.Config.Database.Driver,
		DSN:             a.Config.Database.DSN,
		Path:            a.Config.Database.Path,
		MaxOpenConns:    a.Config.Database.MaxOpenConns,
		MaxIdleConns:    a.Config.Database.MaxIdleConns,
		ConnMaxLifetime: a.Config.ConnMaxLifetime(),
	}, logger)
}

func (a *App) backupService(db *database.DB, logger *zerolog.Logger) *database.BackupService {
	return database.NewBackupService(db, database.BackupOptions{
		Enabled:   a.Config.Backup.Enabled,
		Dir:       a.Config.Backup.Path,
		Interval:  a.Config.BackupInterval(),
		Retention: a.Config.BackupRetention(),
	}, logger)
}
