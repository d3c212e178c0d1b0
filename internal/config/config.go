package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/studio-automation/internal/domain"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Database  DatabaseConfig    `yaml:"database"`
	Redis     RedisConfig       `yaml:"redis"`
	Log       LogConfig         `yaml:"log"`
	Sentry    SentryConfig      `yaml:"sentry"`
	Studio    domain.StudioInfo `yaml:"studio"`
	AWS       AWSConfig         `yaml:"aws"`
	Tracking  TrackingConfig    `yaml:"tracking"`
	Email     EmailConfig       `yaml:"email"`
	SMS       SMSConfig         `yaml:"sms"`
	Dispatch  DispatchConfig    `yaml:"dispatch"`
	Triggers  TriggersConfig    `yaml:"triggers"`
	Reconcile ReconcileConfig   `yaml:"reconcile"`
	Archive   ArchiveConfig     `yaml:"archive"`
	Stripe    StripeConfig      `yaml:"stripe"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	TrackingPort   int      `yaml:"tracking_port"`
	MetricsPort    int      `yaml:"metrics_port"` // worker /metrics listener
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds the Postgres connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
	MigrationsDir   string `yaml:"migrations_dir"`
}

// RedisConfig holds Redis settings. An empty address disables Redis and
// locks fall back to Postgres advisory locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII bool   `yaml:"redact_pii"`
}

// SentryConfig holds error reporting settings
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// AWSConfig holds the shared AWS credentials. Empty keys use the default
// credential chain (IAM role on ECS).
type AWSConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// TrackingConfig holds open/click tracking settings
type TrackingConfig struct {
	BaseURL  string `yaml:"base_url"`
	QueueURL string `yaml:"queue_url"` // SQS queue for edge-collected events; empty records inline
	Timezone string `yaml:"timezone"`
}

// Email providers.
const (
	EmailProviderSES      = "ses"
	EmailProviderSMTP     = "smtp"
	EmailProviderSendGrid = "sendgrid"
	EmailProviderLog      = "log"
)

// EmailConfig holds email transport settings
type EmailConfig struct {
	Provider       string `yaml:"provider"`
	FromName       string `yaml:"from_name"`
	FromEmail      string `yaml:"from_email"`
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	SMTPHost       string `yaml:"smtp_host"`
	SMTPPort       int    `yaml:"smtp_port"`
	SMTPUsername   string `yaml:"smtp_username"`
	SMTPPassword   string `yaml:"smtp_password"`
	ConfigSet      string `yaml:"ses_configuration_set"`
}

// SMS providers.
const (
	SMSProviderTwilio = "twilio"
	SMSProviderSNS    = "sns"
	SMSProviderLog    = "log"
)

// SMSConfig holds SMS transport settings. An empty provider disables SMS.
type SMSConfig struct {
	Provider         string `yaml:"provider"`
	DefaultRegion    string `yaml:"default_region"`
	TwilioAccountSID string `yaml:"twilio_account_sid"`
	TwilioAuthToken  string `yaml:"twilio_auth_token"`
	TwilioFromNumber string `yaml:"twilio_from_number"`
	TwilioBaseURL    string `yaml:"twilio_base_url"`
	SNSSenderID      string `yaml:"sns_sender_id"`
}

// DispatchConfig holds the delivery loop settings
type DispatchConfig struct {
	IntervalSeconds    int `yaml:"interval_seconds"`
	BatchSize          int `yaml:"batch_size"`
	Concurrency        int `yaml:"concurrency"`
	SendTimeoutSeconds int `yaml:"send_timeout_seconds"`
}

// Interval returns the dispatch tick interval as a duration
func (c DispatchConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// SendTimeout returns the per-send timeout as a duration
func (c DispatchConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// TriggersConfig holds cron specs for trigger scans, keyed by trigger
// kind. Kinds left out use the built-in schedule; an empty spec disables
// the kind.
type TriggersConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Schedules      map[string]string `yaml:"schedules"`
	TimeoutMinutes int               `yaml:"timeout_minutes"`
}

// Specs converts Schedules to trigger kinds, dropping unknown kinds.
func (c TriggersConfig) Specs() map[domain.TriggerKind]string {
	out := make(map[domain.TriggerKind]string, len(c.Schedules))
	for k, v := range c.Schedules {
		if kind := domain.TriggerKind(k); kind.Valid() {
			out[kind] = v
		}
	}
	return out
}

// ReconcileConfig holds the stats reconciler schedule
type ReconcileConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// ArchiveConfig holds S3 archive-before-delete settings
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
}

// StripeConfig holds the payment webhook secret
type StripeConfig struct {
	WebhookSecret string `yaml:"webhook_secret"`
}

// Load loads configuration from a YAML file
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
	if cfg.Server.TrackingPort == 0 {
		cfg.Server.TrackingPort = 8081
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 300
	}
	if cfg.Database.MigrationsDir == "" {
		cfg.Database.MigrationsDir = "migrations"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-east-1"
	}
	if cfg.Tracking.Timezone == "" {
		cfg.Tracking.Timezone = "UTC"
	}
	if cfg.Email.Provider == "" {
		cfg.Email.Provider = EmailProviderLog
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = 587
	}
	if cfg.SMS.DefaultRegion == "" {
		cfg.SMS.DefaultRegion = "US"
	}
	if cfg.SMS.TwilioBaseURL == "" {
		cfg.SMS.TwilioBaseURL = "https://api.twilio.com"
	}
	if cfg.Dispatch.IntervalSeconds == 0 {
		cfg.Dispatch.IntervalSeconds = 60
	}
	if cfg.Dispatch.BatchSize == 0 {
		cfg.Dispatch.BatchSize = 200
	}
	if cfg.Dispatch.Concurrency == 0 {
		cfg.Dispatch.Concurrency = 8
	}
	if cfg.Dispatch.SendTimeoutSeconds == 0 {
		cfg.Dispatch.SendTimeoutSeconds = 30
	}
	if cfg.Triggers.TimeoutMinutes == 0 {
		cfg.Triggers.TimeoutMinutes = 10
	}
	if cfg.Reconcile.Schedule == "" {
		cfg.Reconcile.Schedule = "30 3 * * *"
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = "campaigns"
	}
}

// Location resolves the studio time zone used for dates in templates.
func (c TrackingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Sentry.DSN, "SENTRY_DSN")
	setString(&cfg.Sentry.Environment, "SENTRY_ENVIRONMENT")
	setString(&cfg.AWS.Region, "AWS_REGION")
	setString(&cfg.AWS.AccessKey, "AWS_ACCESS_KEY_ID")
	setString(&cfg.AWS.SecretKey, "AWS_SECRET_ACCESS_KEY")
	setString(&cfg.Tracking.BaseURL, "TRACKING_BASE_URL")
	setString(&cfg.Tracking.QueueURL, "TRACKING_QUEUE_URL")
	setString(&cfg.Email.Provider, "EMAIL_PROVIDER")
	setString(&cfg.Email.SendGridAPIKey, "SENDGRID_API_KEY")
	setString(&cfg.Email.SMTPPassword, "SMTP_PASSWORD")
	setString(&cfg.SMS.Provider, "SMS_PROVIDER")
	setString(&cfg.SMS.TwilioAccountSID, "TWILIO_ACCOUNT_SID")
	setString(&cfg.SMS.TwilioAuthToken, "TWILIO_AUTH_TOKEN")
	setString(&cfg.SMS.TwilioFromNumber, "TWILIO_FROM_NUMBER")
	setString(&cfg.Archive.Bucket, "ARCHIVE_BUCKET")
	setString(&cfg.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
