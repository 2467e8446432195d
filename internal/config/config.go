package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL"` // public URL of this service, used for notification_url

	Database    Database    `envPrefix:"DATABASE_"`
	MercadoPago MercadoPago `envPrefix:"MP_"`
	Fee         Fee         `envPrefix:"FEE_"`
	Queue       Queue       `envPrefix:"QUEUE_"`
	Auth        Auth        `envPrefix:"AUTH_"`
	Vault       Vault       `envPrefix:"VAULT_"`
}

type MercadoPago struct {
	AuthBaseURL   string `env:"AUTH_BASE_URL" envDefault:"https://auth.mercadopago.com"`
	BaseApiURL    string `env:"BASE_API_URL" envDefault:"https://api.mercadopago.com"`
	ClientID      string `env:"CLIENT_ID"`
	ClientSecret  string `env:"CLIENT_SECRET"`
	RedirectURL   string `env:"REDIRECT_URL"` // oauth callback, defaults to BASE_URL + callback route
	WebhookSecret string `env:"WEBHOOK_SECRET"`
	// PlatformAccessToken is used to read payments from webhooks. When empty a
	// client_credentials token is requested per call.
	PlatformAccessToken string        `env:"PLATFORM_ACCESS_TOKEN"`
	SponsorID           int64         `env:"SPONSOR_ID"`
	RequestTimeout      time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	StateTTL            time.Duration `env:"STATE_TTL" envDefault:"10m"`
}

type Fee struct {
	AppointmentMode    string  `env:"APPOINTMENT_MODE" envDefault:"flat"` // flat | percentage
	AppointmentAmount  string  `env:"APPOINTMENT_AMOUNT" envDefault:"1.00"`
	AppointmentPercent float64 `env:"APPOINTMENT_PERCENT" envDefault:"0"`
	MarketplacePercent float64 `env:"MARKETPLACE_PERCENT" envDefault:"10"`
}

type Queue struct {
	Capacity int           `env:"CAPACITY" envDefault:"5"`
	TimeZone string        `env:"TIME_ZONE" envDefault:"America/Sao_Paulo"`
	HoldTTL  time.Duration `env:"HOLD_TTL" envDefault:"30m"`
}

type Auth struct {
	JWTSecret string `env:"JWT_SECRET"`
}

type Vault struct {
	Secret string `env:"SECRET"`
}

type Database struct {
	Driver string `env:"DRIVER" envDefault:"mysql"` // mysql | sqlite
	URL    string `env:"URL"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

// Load reads .env when present and parses the process environment.
func Load() (*Config, error) {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// OAuthRedirectURL is the callback registered with the processor.
func (c *Config) OAuthRedirectURL() string {
	if c.MercadoPago.RedirectURL != "" {
		return c.MercadoPago.RedirectURL
	}
	return c.BaseURL + "/api/mp/oauth/callback"
}

// WebhookURL is sent as notification_url on every preference.
func (c *Config) WebhookURL() string {
	return c.BaseURL + "/api/mp/webhook"
}
