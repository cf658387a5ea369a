package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
app:
  environment: test
database:
  path: "test.db"
auth:
  jwt_secret: "${BUSTICKET_TEST_SECRET}"
payments:
  payhere:
    merchant_id: "1211149"
    merchant_secret: "secret"
    checkout_url: "https://sandbox.payhere.lk/pay/checkout"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))
	t.Setenv("BUSTICKET_TEST_SECRET", "from-env")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "Asia/Colombo", cfg.App.Timezone)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 2*time.Hour, cfg.Booking.CancellationWindow)
	assert.Equal(t, "LKR", cfg.Payments.Currency)
	assert.True(t, cfg.Payments.PayHere.Enabled())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func validConfig() Config {
	cfg := Config{
		Database: DatabaseConfig{Path: "path"},
		Auth:     AuthConfig{JWTSecret: "secret"},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "missing jwt secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, wantErr: true},
		{
			name: "default secret in production",
			mutate: func(c *Config) {
				c.App.Environment = "production"
				c.Auth.JWTSecret = defaultJWTSecret
			},
			wantErr: true,
		},
		{name: "unknown timezone", mutate: func(c *Config) { c.App.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.API.HTTP.Port = 70000 }, wantErr: true},
		{name: "kafka topic without brokers", mutate: func(c *Config) { c.Events.Kafka.Topic = "bookings" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{Monitoring: MonitoringConfig{PrometheusEnabled: true}}
	cfg.applyDefaults()

	assert.Equal(t, 5000, cfg.API.HTTP.Port)
	assert.Equal(t, 9090, cfg.Monitoring.PrometheusPort)
	assert.Equal(t, "data/localdb.json", cfg.Database.FileStorePath)
	assert.Equal(t, 5*time.Second, cfg.Booking.LockWait)
	assert.False(t, cfg.App.IsProduction())

	loc, err := cfg.App.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Colombo", loc.String())
}
