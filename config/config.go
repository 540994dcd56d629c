package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. MAINT_DATABASE_DSN.
const EnvPrefix = "MAINT"

// Config represents the overall application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server" envconfig:"server"`
	Database     DatabaseConfig     `yaml:"database" envconfig:"database"`
	Predictor    PredictorConfig    `yaml:"predictor" envconfig:"predictor"`
	Analysis     AnalysisConfig     `yaml:"analysis" envconfig:"analysis"`
	Reports      ReportsConfig      `yaml:"reports" envconfig:"reports"`
	Notification NotificationConfig `yaml:"notification" envconfig:"notification"`
	MQTT         MQTTConfig         `yaml:"mqtt" envconfig:"mqtt"`
	Auth         AuthConfig         `yaml:"auth" envconfig:"auth"`
	Log          LogConfig          `yaml:"log" envconfig:"log"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port" envconfig:"port"`
	RequestIPHeader string  `yaml:"request_ip_header" envconfig:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" envconfig:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst" envconfig:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds" envconfig:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn" envconfig:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns" envconfig:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns" envconfig:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" envconfig:"conn_max_lifetime_minutes"`
	EnableTimescale        bool   `yaml:"enable_timescale" envconfig:"enable_timescale"`
}

// PredictorConfig points at the external risk prediction service.
type PredictorConfig struct {
	BaseURL             string        `yaml:"base_url" envconfig:"base_url"`
	TimeoutSeconds      int           `yaml:"timeout_seconds" envconfig:"timeout_seconds"`
	ProbeTimeoutSeconds int           `yaml:"probe_timeout_seconds" envconfig:"probe_timeout_seconds"`
	ConsultOnReading    bool          `yaml:"consult_on_reading" envconfig:"consult_on_reading"`
	Timeout             time.Duration `yaml:"-" ignored:"true"`
	ProbeTimeout        time.Duration `yaml:"-" ignored:"true"`
}

// AnalysisConfig controls the scheduled batch analysis.
type AnalysisConfig struct {
	Enabled         bool          `yaml:"enabled" envconfig:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds" envconfig:"interval_seconds"`
	Interval        time.Duration `yaml:"-" ignored:"true"`
	MinSensorKinds  int           `yaml:"min_sensor_kinds" envconfig:"min_sensor_kinds"`
	GenerateAlerts  *bool         `yaml:"generate_alerts" ignored:"true"`
	Type            string        `yaml:"type" envconfig:"type"`
}

// ReportsConfig controls the scheduled maintenance report.
type ReportsConfig struct {
	Enabled    bool     `yaml:"enabled" envconfig:"enabled"`
	Type       string   `yaml:"type" envconfig:"type"`
	SendHour   int      `yaml:"send_hour" envconfig:"send_hour"`
	Timezone   string   `yaml:"timezone" envconfig:"timezone"`
	Recipients []string `yaml:"recipients" envconfig:"recipients"`
	BaseURL    string   `yaml:"base_url" envconfig:"base_url"`
}

// NotificationConfig holds the outbound notification channels.
type NotificationConfig struct {
	WorkerPoolSize     int           `yaml:"worker_pool_size" envconfig:"worker_pool_size"`
	QueueSize          int           `yaml:"queue_size" envconfig:"queue_size"`
	CooldownMinutes    int           `yaml:"cooldown_minutes" envconfig:"cooldown_minutes"`
	CooldownExpiryMins int           `yaml:"cooldown_expiry_minutes" envconfig:"cooldown_expiry_minutes"`
	DedupWindowMinutes int           `yaml:"dedup_window_minutes" envconfig:"dedup_window_minutes"`
	SMTP               SMTPConfig    `yaml:"smtp" envconfig:"smtp"`
	Slack              SlackConfig   `yaml:"slack" envconfig:"slack"`
	Push               PushConfig    `yaml:"push" envconfig:"push"`
	Cooldown           time.Duration `yaml:"-" ignored:"true"`
	CooldownExpiry     time.Duration `yaml:"-" ignored:"true"`
	DedupWindow        time.Duration `yaml:"-" ignored:"true"`
}

// SMTPConfig configures the e-mail notifier.
type SMTPConfig struct {
	Host     string `yaml:"host" envconfig:"host"`
	Port     int    `yaml:"port" envconfig:"port"`
	Username string `yaml:"username" envconfig:"username"`
	Password string `yaml:"password" envconfig:"password"`
	From     string `yaml:"from" envconfig:"from"`
}

// SlackConfig configures the chat webhook notifier.
type SlackConfig struct {
	WebhookURL string  `yaml:"webhook_url" envconfig:"webhook_url"`
	Channel    string  `yaml:"channel" envconfig:"channel"`
	RatePerSec float64 `yaml:"rate_per_sec" envconfig:"rate_per_sec"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key" envconfig:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key" envconfig:"vapid_private_key"`
	Subject    string `yaml:"subject" envconfig:"subject"`
	TTL        int    `yaml:"ttl" envconfig:"ttl"`
}

// MQTTConfig configures the embedded broker used for reading ingestion.
type MQTTConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"enabled"`
	Address string `yaml:"address" envconfig:"address"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" envconfig:"jwt_secret"`
	Issuer    string `yaml:"issuer" envconfig:"issuer"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level" envconfig:"level"`
	Development bool   `yaml:"development" envconfig:"development"`
}

// Load reads the configuration from the given path and applies environment overrides.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset values and derives durations.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}

	if cfg.Predictor.BaseURL == "" {
		cfg.Predictor.BaseURL = "http://127.0.0.1:8001"
	}
	if cfg.Predictor.TimeoutSeconds <= 0 {
		cfg.Predictor.TimeoutSeconds = 5
	}
	if cfg.Predictor.ProbeTimeoutSeconds <= 0 {
		cfg.Predictor.ProbeTimeoutSeconds = 3
	}
	cfg.Predictor.Timeout = time.Duration(cfg.Predictor.TimeoutSeconds) * time.Second
	cfg.Predictor.ProbeTimeout = time.Duration(cfg.Predictor.ProbeTimeoutSeconds) * time.Second

	if cfg.Analysis.IntervalSeconds <= 0 {
		cfg.Analysis.IntervalSeconds = 3600
	}
	cfg.Analysis.Interval = time.Duration(cfg.Analysis.IntervalSeconds) * time.Second
	if cfg.Analysis.MinSensorKinds <= 0 {
		cfg.Analysis.MinSensorKinds = 3
	}
	if cfg.Analysis.GenerateAlerts == nil {
		enabled := true
		cfg.Analysis.GenerateAlerts = &enabled
	}
	if cfg.Analysis.Type == "" {
		cfg.Analysis.Type = "completo"
	}

	if cfg.Reports.Type == "" {
		cfg.Reports.Type = "diario"
	}
	if cfg.Reports.SendHour < 0 || cfg.Reports.SendHour > 23 {
		cfg.Reports.SendHour = 7
	}
	if cfg.Reports.Timezone == "" {
		cfg.Reports.Timezone = "UTC"
	}

	n := &cfg.Notification
	if n.WorkerPoolSize <= 0 {
		n.WorkerPoolSize = 1
	}
	if n.QueueSize <= 0 {
		n.QueueSize = 100
	}
	if n.CooldownMinutes <= 0 {
		n.CooldownMinutes = 5
	}
	if n.CooldownExpiryMins <= 0 {
		n.CooldownExpiryMins = 10
	}
	if n.DedupWindowMinutes <= 0 {
		n.DedupWindowMinutes = 60
	}
	n.Cooldown = time.Duration(n.CooldownMinutes) * time.Minute
	n.CooldownExpiry = time.Duration(n.CooldownExpiryMins) * time.Minute
	n.DedupWindow = time.Duration(n.DedupWindowMinutes) * time.Minute
	if n.SMTP.Port <= 0 {
		n.SMTP.Port = 587
	}
	if n.Slack.Channel == "" {
		n.Slack.Channel = "#mantenimiento"
	}
	if n.Slack.RatePerSec <= 0 {
		n.Slack.RatePerSec = 1
	}
	if n.Push.TTL <= 0 {
		n.Push.TTL = 3600
	}

	if cfg.MQTT.Address == "" {
		cfg.MQTT.Address = ":1883"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
