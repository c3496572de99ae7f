package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/freshbasket/forecast/internal/forecast"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"72h"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	ForecastMode         string `envconfig:"FORECAST_MODE" default:"horizon"`
	ForecastColumns      []int  `envconfig:"FORECAST_COLUMNS" default:"1,3,5"`
	ForecastHorizons     []int  `envconfig:"FORECAST_HORIZONS"`
	ForecastDaysPerMonth int    `envconfig:"FORECAST_DAYS_PER_MONTH" default:"30"`

	Branches []string `envconfig:"BRANCHES" default:"Shahbaz,Clifton,Badar,DHA Ecom,BHD Ecom,BHD,Head Office"`

	InvoiceIncludeZeros bool   `envconfig:"INVOICE_INCLUDE_ZEROS" default:"false"`
	InvoiceTimezone     string `envconfig:"INVOICE_TIMEZONE" default:"Local"`
	ShareURL            string `envconfig:"SHARE_URL" default:"https://api.whatsapp.com/send"`

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"300"`
	UploadsPerMinute   int `envconfig:"UPLOADS_PER_MINUTE" default:"10"`

	UploadMaxBytes  int64         `envconfig:"UPLOAD_MAX_BYTES" default:"10485760"`
	WorkspaceTTL    time.Duration `envconfig:"WORKSPACE_TTL" default:"72h"`
	CatalogCacheTTL time.Duration `envconfig:"CATALOG_CACHE_TTL" default:"1h"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("session secret must be provided")
	}
	if cfg.CSRFSecret == "" {
		return nil, errors.New("csrf secret must be provided")
	}
	cfg.Branches = trimAll(cfg.Branches)
	if len(cfg.Branches) == 0 {
		return nil, errors.New("at least one branch must be configured")
	}
	if cfg.UploadMaxBytes <= 0 {
		return nil, fmt.Errorf("upload limit must be positive, got %d", cfg.UploadMaxBytes)
	}
	if _, err := cfg.Layout(); err != nil {
		return nil, err
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// Layout builds the workbook layout from the FORECAST_* variables.
func (c *Config) Layout() (forecast.Layout, error) {
	return forecast.NewLayout(strings.ToLower(c.ForecastMode), c.ForecastColumns, c.ForecastHorizons, c.ForecastDaysPerMonth)
}

// Location resolves the zone used for invoice timestamps.
func (c *Config) Location() (*time.Location, error) {
	if c.InvoiceTimezone == "" || c.InvoiceTimezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.InvoiceTimezone)
	if err != nil {
		return nil, fmt.Errorf("invoice timezone: %w", err)
	}
	return loc, nil
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
