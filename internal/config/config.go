package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable consulted when no path is given.
const EnvConfigPath = "LABRESERVE_CONFIG_PATH"

type Config struct {
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`

	Database struct {
		Driver          string `yaml:"driver"` // sqlite or postgres
		DSN             string `yaml:"dsn"`
		Path            string `yaml:"path"`
		MaxOpenConns    int    `yaml:"max_open_conns"`
		MaxIdleConns    int    `yaml:"max_idle_conns"`
		ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
	} `yaml:"database"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Cache struct {
		FacilityTTLSeconds int `yaml:"facility_ttl_seconds"`
	} `yaml:"cache"`

	Auth struct {
		JWTSecret         string `yaml:"jwt_secret"`
		TokenTTLMinutes   int    `yaml:"token_ttl_minutes"`
		AdminPassword     string `yaml:"admin_password"`
		BcryptCost        int    `yaml:"bcrypt_cost"`
		LoginPerMinute    int    `yaml:"login_per_minute"`
		RegisterPerMinute int    `yaml:"register_per_minute"`
	} `yaml:"auth"`

	Services struct {
		InternalAPIKey   string   `yaml:"internal_api_key"`
		UsersAddr        string   `yaml:"users_addr"`
		InventoryAddr    string   `yaml:"inventory_addr"`
		ReservationsAddr string   `yaml:"reservations_addr"`
		UsersURL         string   `yaml:"users_url"`
		ReservationsURL  string   `yaml:"reservations_url"`
		TimeoutSeconds   int      `yaml:"timeout_seconds"`
		RatePerSecond    float64  `yaml:"rate_per_second"`
		RateBurst        int      `yaml:"rate_burst"`
		CORSOrigins      []string `yaml:"cors_origins"`
	} `yaml:"services"`

	Calendar struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsFile string `yaml:"credentials_file"`
		CalendarID      string `yaml:"calendar_id"`
		TimeoutSeconds  int    `yaml:"timeout_seconds"`
	} `yaml:"calendar"`

	Schedule struct {
		Timezone     string `yaml:"timezone"`
		MaxRangeDays int    `yaml:"max_range_days"`
	} `yaml:"schedule"`

	Booking struct {
		CreatorRoles []string `yaml:"creator_roles"`
	} `yaml:"booking"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
		GRPCHealthPort    int  `yaml:"grpc_health_port"`
	} `yaml:"monitoring"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`
}

// Load reads the YAML file at path (or $LABRESERVE_CONFIG_PATH, or
// configs/config.yaml), expanding ${ENV} placeholders after loading .env.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	// A missing .env is fine; the environment may already be populated.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes raw YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Database.Driver == "sqlite" && cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = 28
	}

	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "data/labreserve.db"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = 10
	}

	if c.Cache.FacilityTTLSeconds <= 0 {
		c.Cache.FacilityTTLSeconds = 300
	}

	if c.Auth.TokenTTLMinutes <= 0 {
		c.Auth.TokenTTLMinutes = 60
	}
	if c.Auth.LoginPerMinute <= 0 {
		c.Auth.LoginPerMinute = 5
	}
	if c.Auth.RegisterPerMinute <= 0 {
		c.Auth.RegisterPerMinute = 3
	}

	if c.Services.UsersAddr == "" {
		c.Services.UsersAddr = ":8001"
	}
	if c.Services.ReservationsAddr == "" {
		c.Services.ReservationsAddr = ":8002"
	}
	if c.Services.InventoryAddr == "" {
		c.Services.InventoryAddr = ":8003"
	}
	if c.Services.UsersURL == "" {
		c.Services.UsersURL = "http://localhost:8001"
	}
	if c.Services.ReservationsURL == "" {
		c.Services.ReservationsURL = "http://localhost:8002"
	}
	c.Services.UsersURL = strings.TrimRight(c.Services.UsersURL, "/")
	c.Services.ReservationsURL = strings.TrimRight(c.Services.ReservationsURL, "/")
	if c.Services.TimeoutSeconds <= 0 {
		c.Services.TimeoutSeconds = 5
	}
	if c.Services.RatePerSecond <= 0 {
		c.Services.RatePerSecond = 50
	}
	if c.Services.RateBurst <= 0 {
		c.Services.RateBurst = 100
	}

	if c.Calendar.CalendarID == "" {
		c.Calendar.CalendarID = "primary"
	}
	if c.Calendar.TimeoutSeconds <= 0 {
		c.Calendar.TimeoutSeconds = 5
	}

	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "UTC"
	}
	if c.Schedule.MaxRangeDays <= 0 {
		c.Schedule.MaxRangeDays = 90
	}

	if len(c.Booking.CreatorRoles) == 0 {
		c.Booking.CreatorRoles = []string{"admin", "teacher"}
	}

	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Backup.Path == "" {
		c.Backup.Path = "backups"
	}
	if c.Backup.IntervalHours <= 0 {
		c.Backup.IntervalHours = 24
	}
	if c.Backup.RetentionDays <= 0 {
		c.Backup.RetentionDays = 14
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn: required for postgres")
		}
	default:
		return fmt.Errorf("database.driver: unsupported %q", c.Database.Driver)
	}

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret: required")
	}

	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}

	if c.Calendar.Enabled && c.Calendar.CredentialsFile == "" {
		return fmt.Errorf("calendar.credentials_file: required when calendar is enabled")
	}

	return nil
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}

func (c *Config) FacilityCacheTTL() time.Duration {
	return time.Duration(c.Cache.FacilityTTLSeconds) * time.Second
}

func (c *Config) ClientTimeout() time.Duration {
	return time.Duration(c.Services.TimeoutSeconds) * time.Second
}

func (c *Config) CalendarTimeout() time.Duration {
	return time.Duration(c.Calendar.TimeoutSeconds) * time.Second
}

func (c *Config) ConnMaxLifetime() time.Duration {
	return time.Duration(c.Database.ConnMaxLifetime) * time.Minute
}

func (c *Config) BackupInterval() time.Duration {
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) BackupRetention() time.Duration {
	return time.Duration(c.Backup.RetentionDays) * 24 * time.Hour
}

// Location returns the schedule timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
