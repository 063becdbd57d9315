package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AuthSecret string `mapstructure:"AUTH_SECRET"`

	// Report matcher routing policy. Scores are percentages 0-100.
	MatchAutoThreshold   int `mapstructure:"MATCH_AUTO_THRESHOLD"`
	MatchReviewThreshold int `mapstructure:"MATCH_REVIEW_THRESHOLD"`

	// Settlement provider.
	ProviderBaseURL string        `mapstructure:"PROVIDER_BASE_URL"`
	ProviderToken   string        `mapstructure:"PROVIDER_TOKEN"`
	ProviderTimeout time.Duration `mapstructure:"PROVIDER_TIMEOUT"`

	// Mailbox extraction service. Ingestion is disabled when the URL is empty.
	ReportSourceURL     string        `mapstructure:"REPORT_SOURCE_URL"`
	ReportSourceToken   string        `mapstructure:"REPORT_SOURCE_TOKEN"`
	ReportSourceTimeout time.Duration `mapstructure:"REPORT_SOURCE_TIMEOUT"`

	// Background jobs.
	IngestInterval      time.Duration `mapstructure:"INGEST_INTERVAL"`
	PayoutSyncInterval  time.Duration `mapstructure:"PAYOUT_SYNC_INTERVAL"`
	IngestBatchSize     int           `mapstructure:"INGEST_BATCH_SIZE"`
	PayoutSyncBatchSize int           `mapstructure:"PAYOUT_SYNC_BATCH_SIZE"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("MATCH_AUTO_THRESHOLD", 85)
	v.SetDefault("MATCH_REVIEW_THRESHOLD", 60)
	v.SetDefault("PROVIDER_TIMEOUT", "30s")
	v.SetDefault("REPORT_SOURCE_TIMEOUT", "30s")
	v.SetDefault("INGEST_INTERVAL", "3m")
	v.SetDefault("PAYOUT_SYNC_INTERVAL", "5m")
	v.SetDefault("INGEST_BATCH_SIZE", 50)
	v.SetDefault("PAYOUT_SYNC_BATCH_SIZE", 100)
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("MATCH_AUTO_THRESHOLD")
	v.BindEnv("MATCH_REVIEW_THRESHOLD")
	v.BindEnv("PROVIDER_BASE_URL")
	v.BindEnv("PROVIDER_TOKEN")
	v.BindEnv("PROVIDER_TIMEOUT")
	v.BindEnv("REPORT_SOURCE_URL")
	v.BindEnv("REPORT_SOURCE_TOKEN")
	v.BindEnv("REPORT_SOURCE_TIMEOUT")
	v.BindEnv("INGEST_INTERVAL")
	v.BindEnv("PAYOUT_SYNC_INTERVAL")
	v.BindEnv("INGEST_BATCH_SIZE")
	v.BindEnv("PAYOUT_SYNC_BATCH_SIZE")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Outside development
// mode AUTH_SECRET must be set so real JWT authentication is enforced.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required when ENV=%q", c.Env)
	}
	if c.MatchReviewThreshold < 0 || c.MatchAutoThreshold > 100 ||
		c.MatchReviewThreshold > c.MatchAutoThreshold {
		return fmt.Errorf("match thresholds must satisfy 0 <= review <= auto <= 100, got %d/%d",
			c.MatchReviewThreshold, c.MatchAutoThreshold)
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive, got %s", c.ProviderTimeout)
	}
	if c.IngestInterval <= 0 {
		return fmt.Errorf("INGEST_INTERVAL must be positive, got %s", c.IngestInterval)
	}
	if c.PayoutSyncInterval <= 0 {
		return fmt.Errorf("PAYOUT_SYNC_INTERVAL must be positive, got %s", c.PayoutSyncInterval)
	}
	if c.IngestBatchSize <= 0 {
		return fmt.Errorf("INGEST_BATCH_SIZE must be positive, got %d", c.IngestBatchSize)
	}
	if c.PayoutSyncBatchSize <= 0 {
		return fmt.Errorf("PAYOUT_SYNC_BATCH_SIZE must be positive, got %d", c.PayoutSyncBatchSize)
	}
	return nil
}
