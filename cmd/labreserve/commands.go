package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"labreserve/internal/audit"
	"labreserve/internal/auth"
	"labreserve/internal/availability"
	"labreserve/internal/model"
	"labreserve/internal/users"
)

// maxExportDays caps the CLI export range.
const maxExportDays = 366

type MigrateCmd struct{}

func (c *MigrateCmd) Run(app *App) error {
	db, err := app.openDB(&app.Logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		return err
	}
	app.Logger.Info().Str("driver", db.Driver()).Msg("schema migrated")
	return nil
}

type SeedAdminCmd struct {
	Password string `help:"Admin password. Defaults to auth.admin_password." env:"LABRESERVE_ADMIN_PASSWORD"`
}

func (c *SeedAdminCmd) Run(app *App) error {
	password := c.Password
	if password == "" {
		password = app.Config.Auth.AdminPassword
	}
	if password == "" {
		return errors.New("no admin password: set auth.admin_password or --password")
	}

	db, err := app.openDB(&app.Logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	tokens := auth.NewTokenManager(app.Config.Auth.JWTSecret, app.Config.TokenTTL())
	created, err := users.NewService(db, tokens, app.Config.Auth.BcryptCost, &app.Logger).SeedAdmin(ctx, password)
	if err != nil {
		return err
	}
	if !created {
		app.Logger.Info().Msg("admin account already exists")
	}
	return nil
}

type ExportBookingsCmd struct {
	From string `required:"" help:"First day, YYYY-MM-DD."`
	To   string `required:"" help:"Last day, YYYY-MM-DD."`
	Out  string `help:"Output file. Defaults to bookings_<from>_<to>.xlsx." type:"path"`
}

func (c *ExportBookingsCmd) Run(app *App) error {
	from, to, err := availability.ParseRange(c.From, c.To, maxExportDays)
	if err != nil {
		return err
	}
	out := c.Out
	if out == "" {
		out = fmt.Sprintf("bookings_%s_%s.xlsx", from.Format(model.DateLayout), to.Format(model.DateLayout))
	}

	db, err := app.openDB(&app.Logger)
	if err != nil {
		return err
	}
	defer db.Close()

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	n, err := audit.NewExporter(db).Export(context.Background(), from, to.AddDate(0, 0, 1), f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(out)
		return fmt.Errorf("export bookings: %w", err)
	}

	app.Logger.Info().Str("file", out).Int("bookings", n).Msg("bookings exported")
	return nil
}

type BackupCmd struct{}

func (c *BackupCmd) Run(app *App) error {
	db, err := app.openDB(&app.Logger)
	if err != nil {
		return err
	}
	defer db.Close()

	backups := app.backupService(db, &app.Logger)
	if _, err := backups.PerformBackup(context.Background()); err != nil {
		return err
	}
	if removed := backups.CleanupOldBackups(); removed > 0 {
		app.Logger.Info().Int("removed", removed).Msg("old backups pruned")
	}
	return nil
}
