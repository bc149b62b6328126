package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	dir := t.TempDir()
	raw := []byte(`
auth:
  jwt_secret: secret
database:
  path: ` + filepath.Join(dir, "db", "test.db") + `
`)

	cfg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, time.Hour, cfg.TokenTTL())
	assert.Equal(t, 5*time.Second, cfg.ClientTimeout())
	assert.Equal(t, 5*time.Minute, cfg.FacilityCacheTTL())
	assert.Equal(t, 90, cfg.Schedule.MaxRangeDays)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.Equal(t, []string{"admin", "teacher"}, cfg.Booking.CreatorRoles)
	assert.Equal(t, "http://localhost:8001", cfg.Services.UsersURL)
	assert.DirExists(t, filepath.Join(dir, "db"))
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("LABRESERVE_TEST_SECRET", "from-env")
	t.Setenv("LABRESERVE_TEST_USERS", "http://users:8001/")

	cfg, err := Parse([]byte(`
auth:
  jwt_secret: ${LABRESERVE_TEST_SECRET}
database:
  path: ":memory:"
services:
  users_url: ${LABRESERVE_TEST_USERS}
schedule:
  timezone: America/Mexico_City
`))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "http://users:8001", cfg.Services.UsersURL)
	assert.Equal(t, "America/Mexico_City", cfg.Location().String())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{
			name:    "missing secret",
			raw:     "database:\n  path: \":memory:\"\n",
			wantErr: "auth.jwt_secret: required",
		},
		{
			name:    "postgres without dsn",
			raw:     "auth:\n  jwt_secret: s\ndatabase:\n  driver: postgres\n",
			wantErr: "database.dsn: required for postgres",
		},
		{
			name:    "unknown driver",
			raw:     "auth:\n  jwt_secret: s\ndatabase:\n  driver: oracle\n",
			wantErr: `database.driver: unsupported "oracle"`,
		},
		{
			name:    "calendar without credentials",
			raw:     "auth:\n  jwt_secret: s\ndatabase:\n  path: \":memory:\"\ncalendar:\n  enabled: true\n",
			wantErr: "calendar.credentials_file: required when calendar is enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			assert.EqualError(t, err, tt.wantErr)
		})
	}

	_, err := Parse([]byte("auth:\n  jwt_secret: s\ndatabase:\n  path: \":memory:\"\nschedule:\n  timezone: Mars/Olympus\n"))
	assert.ErrorContains(t, err, "schedule.timezone")
}

func TestLoad_FromEnvPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  jwt_secret: s\ndatabase:\n  path: \":memory:\"\n"), 0o600))
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "s", cfg.Auth.JWTSecret)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
