package config

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Claims   ClaimsConfig   `yaml:"claims"`
	Notify   NotifyConfig   `yaml:"notify"`
	SES      SESConfig      `yaml:"ses"`
	Report   ReportConfig   `yaml:"report"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                int      `yaml:"port"`
	Host                string   `yaml:"host"`
	CORSOrigins         []string `yaml:"cors_origins"`
	ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr is host:port for net/http.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds the notification queue connection.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// ClaimsConfig tunes claim transactions.
type ClaimsConfig struct {
	TxTimeoutMs    int    `yaml:"tx_timeout_ms"`
	MaxRetries     int    `yaml:"max_retries"`
	RetryBackoffMs int    `yaml:"retry_backoff_ms"`
	Isolation      string `yaml:"isolation"` // read_committed or serializable
	LockTimeoutMs  int    `yaml:"lock_timeout_ms"`
}

// TxTimeout returns the per-attempt transaction timeout.
func (c ClaimsConfig) TxTimeout() time.Duration {
	return time.Duration(c.TxTimeoutMs) * time.Millisecond
}

// RetryBackoff returns the base delay between retries.
func (c ClaimsConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}

// LockTimeout returns how long a transaction waits on a row lock.
func (c ClaimsConfig) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMs) * time.Millisecond
}

// IsolationLevel maps the configured name onto database/sql.
func (c ClaimsConfig) IsolationLevel() (sql.IsolationLevel, error) {
	switch strings.ToLower(strings.TrimSpace(c.Isolation)) {
	case "", "read_committed", "read-committed":
		return sql.LevelReadCommitted, nil
	case "repeatable_read", "repeatable-read":
		return sql.LevelRepeatableRead, nil
	case "serializable":
		return sql.LevelSerializable, nil
	default:
		return 0, fmt.Errorf("unknown claims.isolation %q", c.Isolation)
	}
}

// NotifyConfig holds donor and admin email settings.
type NotifyConfig struct {
	Enabled                 bool   `yaml:"enabled"`
	From                    string `yaml:"from"`
	AdminEmail              string `yaml:"admin_email"`
	QueueKey                string `yaml:"queue_key"`
	MaxAttempts             int    `yaml:"max_attempts"`
	RetryBackoffSeconds     int    `yaml:"retry_backoff_seconds"`
	ReminderLeadDays        int    `yaml:"reminder_lead_days"`
	ReminderIntervalMinutes int    `yaml:"reminder_interval_minutes"`
	// TemplateDir optionally overrides built-in templates with
	// <name>.subject.liquid / <name>.body.liquid files.
	TemplateDir string `yaml:"template_dir"`
}

// ReminderLead is how far ahead of the deadline reminders go out.
func (c NotifyConfig) ReminderLead() time.Duration {
	return time.Duration(c.ReminderLeadDays) * 24 * time.Hour
}

// RetryBackoff is the delay before the first retry of a failed send.
// Later retries wait a multiple of it.
func (c NotifyConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffSeconds) * time.Second
}

// ReminderInterval is how often the sweep runs.
func (c NotifyConfig) ReminderInterval() time.Duration {
	return time.Duration(c.ReminderIntervalMinutes) * time.Minute
}

// SESConfig holds AWS SES configuration
type SESConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// ReportConfig holds manifest archive settings.
type ReportConfig struct {
	S3Bucket string `yaml:"s3_bucket"`
	S3Region string `yaml:"s3_region"`
	S3Prefix string `yaml:"s3_prefix"`
}

// AuthConfig holds admin API credentials and the donor link signing key.
type AuthConfig struct {
	AdminToken string `yaml:"admin_token"`
	// DonorLinkSecret signs the claims links emailed to donors. The donor
	// claims lookup is disabled without it.
	DonorLinkSecret  string `yaml:"donor_link_secret"`
	DonorLinkTTLDays int    `yaml:"donor_link_ttl_days"`
	// PublicURL is the origin donor links point at.
	PublicURL string `yaml:"public_url"`
}

// DonorLinkTTL is how long a donor link stays valid.
func (c AuthConfig) DonorLinkTTL() time.Duration {
	return time.Duration(c.DonorLinkTTLDays) * 24 * time.Hour
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
	File      string `yaml:"file"`
}

// Redact reports whether PII should be masked; defaults to true.
func (c LoggingConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 30
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 5
	}
	if cfg.Claims.TxTimeoutMs == 0 {
		cfg.Claims.TxTimeoutMs = 5000
	}
	if cfg.Claims.MaxRetries == 0 {
		cfg.Claims.MaxRetries = 3
	}
	if cfg.Claims.RetryBackoffMs == 0 {
		cfg.Claims.RetryBackoffMs = 20
	}
	if cfg.Claims.LockTimeoutMs == 0 {
		cfg.Claims.LockTimeoutMs = 2000
	}
	if cfg.Notify.QueueKey == "" {
		cfg.Notify.QueueKey = "giftdrive:notify"
	}
	if cfg.Notify.MaxAttempts == 0 {
		cfg.Notify.MaxAttempts = 5
	}
	if cfg.Notify.RetryBackoffSeconds == 0 {
		cfg.Notify.RetryBackoffSeconds = 30
	}
	if cfg.Notify.ReminderLeadDays == 0 {
		cfg.Notify.ReminderLeadDays = 3
	}
	if cfg.Notify.ReminderIntervalMinutes == 0 {
		cfg.Notify.ReminderIntervalMinutes = 60
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	if cfg.Report.S3Region == "" {
		cfg.Report.S3Region = cfg.SES.Region
	}
	if cfg.Auth.DonorLinkTTLDays == 0 {
		cfg.Auth.DonorLinkTTLDays = 90
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
// An empty path skips the file and starts from defaults.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		var err error
		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	}

	// Override with environment variables if present
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		cfg.Auth.AdminToken = v
	}
	if v := os.Getenv("DONOR_LINK_SECRET"); v != "" {
		cfg.Auth.DonorLinkSecret = v
	}
	if v := os.Getenv("PUBLIC_URL"); v != "" {
		cfg.Auth.PublicURL = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("NOTIFY_FROM"); v != "" {
		cfg.Notify.From = v
	}
	if v := os.Getenv("NOTIFY_ADMIN_EMAIL"); v != "" {
		cfg.Notify.AdminEmail = v
	}
	if v := os.Getenv("MANIFEST_S3_BUCKET"); v != "" {
		cfg.Report.S3Bucket = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}

// Validate checks settings that would otherwise fail at first use.
func (cfg *Config) Validate() error {
	if _, err := cfg.Claims.IsolationLevel(); err != nil {
		return err
	}
	if cfg.Claims.MaxRetries < 0 {
		return fmt.Errorf("claims.max_retries must be >= 0")
	}
	if cfg.Notify.Enabled && cfg.Notify.From == "" {
		return fmt.Errorf("notify.from is required when notify is enabled")
	}
	if s := cfg.Auth.DonorLinkSecret; s != "" && len(s) < 32 {
		return fmt.Errorf("auth.donor_link_secret must be at least 32 bytes")
	}
	return nil
}
