package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultJWTSecret = "change-me"

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Backup     BackupConfig     `yaml:"backup"`
	Redis      RedisConfig      `yaml:"redis"`
	API        APIConfig        `yaml:"api"`
	Auth       AuthConfig       `yaml:"auth"`
	Booking    BookingConfig    `yaml:"booking"`
	Payments   PaymentsConfig   `yaml:"payments"`
	Events     EventsConfig     `yaml:"events"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Google     GoogleConfig     `yaml:"google"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Seed       SeedConfig       `yaml:"seed"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	Timezone    string `yaml:"timezone"`
}

// IsProduction reports whether internal error details must be hidden from clients.
func (a AppConfig) IsProduction() bool {
	return strings.EqualFold(a.Environment, "production")
}

// Location resolves the operating time zone used for travel dates and departures.
func (a AppConfig) Location() (*time.Location, error) {
	return time.LoadLocation(a.Timezone)
}

type DatabaseConfig struct {
	Path          string        `yaml:"path"`
	FileStorePath string        `yaml:"file_store_path"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type APIConfig struct {
	HTTP        APIHTTPConfig      `yaml:"http"`
	CORSOrigins []string           `yaml:"cors_origins"`
	RateLimit   APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"requests_per_second"`
	Burst int     `yaml:"burst"`
}

type AuthConfig struct {
	JWTSecret      string               `yaml:"jwt_secret"`
	TokenTTL       time.Duration        `yaml:"token_ttl"`
	BootstrapAdmin BootstrapAdminConfig `yaml:"bootstrap_admin"`
}

type BootstrapAdminConfig struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type BookingConfig struct {
	CancellationWindow time.Duration `yaml:"cancellation_window"`
	LockWait           time.Duration `yaml:"lock_wait"`
}

type PaymentsConfig struct {
	Currency string         `yaml:"currency"`
	Razorpay RazorpayConfig `yaml:"razorpay"`
	PayHere  PayHereConfig  `yaml:"payhere"`
}

type RazorpayConfig struct {
	KeyID     string `yaml:"key_id"`
	KeySecret string `yaml:"key_secret"`
}

type PayHereConfig struct {
	MerchantID     string        `yaml:"merchant_id"`
	MerchantSecret string        `yaml:"merchant_secret"`
	CheckoutURL    string        `yaml:"checkout_url"`
	ReturnURL      string        `yaml:"return_url"`
	CancelURL      string        `yaml:"cancel_url"`
	NotifyURL      string        `yaml:"notify_url"`
	Timeout        time.Duration `yaml:"timeout"`
}

// Enabled reports whether online checkout can be initiated.
func (p PayHereConfig) Enabled() bool {
	return p.MerchantID != "" && p.MerchantSecret != "" && p.CheckoutURL != ""
}

type EventsConfig struct {
	QueueSize int         `yaml:"queue_size"`
	Retry     RetryConfig `yaml:"retry"`
	Kafka     KafkaConfig `yaml:"kafka"`
	AMQP      AMQPConfig  `yaml:"amqp"`
}

// RetryConfig controls redelivery of events to a failing sink.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type TelegramConfig struct {
	BotToken     string  `yaml:"bot_token"`
	AdminChatIDs []int64 `yaml:"admin_chat_ids"`
	Debug        bool    `yaml:"debug"`
}

type GoogleConfig struct {
	CredentialsFile     string `yaml:"credentials_file"`
	LedgerSpreadsheetID string `yaml:"ledger_spreadsheet_id"`
	// LedgerRange names the sheet (tab) the ledger writes to.
	LedgerRange         string `yaml:"ledger_range"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type SeedConfig struct {
	VehiclesFile string `yaml:"vehicles_file"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth jwt secret is required")
	}
	if c.App.IsProduction() && c.Auth.JWTSecret == defaultJWTSecret {
		return errors.New("auth jwt secret must be changed in production")
	}
	if _, err := c.App.Location(); err != nil {
		return fmt.Errorf("invalid app timezone %q: %w", c.App.Timezone, err)
	}
	if c.API.HTTP.Port <= 0 || c.API.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port %d", c.API.HTTP.Port)
	}
	if c.Booking.CancellationWindow <= 0 {
		return errors.New("booking cancellation window must be positive")
	}
	if c.Events.Kafka.Topic != "" && len(c.Events.Kafka.Brokers) == 0 {
		return errors.New("events.kafka.brokers is required when a topic is set")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "busticket"
	}
	if c.App.Environment == "" {
		c.App.Environment = "development"
	}
	if c.App.Timezone == "" {
		c.App.Timezone = "Asia/Colombo"
	}
	if c.Database.FileStorePath == "" {
		c.Database.FileStorePath = "data/localdb.json"
	}
	if c.Database.ProbeTimeout == 0 {
		c.Database.ProbeTimeout = 3 * time.Second
	}
	if c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 10 * time.Second
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 5000
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 20
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 40
	}
	// Development runs with a placeholder secret; Validate rejects it in production.
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = defaultJWTSecret
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 7 * 24 * time.Hour
	}
	if c.Booking.CancellationWindow == 0 {
		c.Booking.CancellationWindow = 2 * time.Hour
	}
	if c.Booking.LockWait == 0 {
		c.Booking.LockWait = 5 * time.Second
	}
	if c.Payments.Currency == "" {
		c.Payments.Currency = "LKR"
	}
	if c.Payments.PayHere.Timeout == 0 {
		c.Payments.PayHere.Timeout = 10 * time.Second
	}
	if c.Events.QueueSize == 0 {
		c.Events.QueueSize = 256
	}
	if c.Events.Retry.MaxAttempts == 0 {
		c.Events.Retry.MaxAttempts = 5
	}
	if c.Events.Retry.InitialDelay == 0 {
		c.Events.Retry.InitialDelay = time.Second
	}
	if c.Events.Retry.MaxDelay == 0 {
		c.Events.Retry.MaxDelay = 30 * time.Second
	}
	if c.Google.LedgerRange == "" {
		c.Google.LedgerRange = "Bookings"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}
