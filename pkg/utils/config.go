package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Processor ProcessorConfig
	Broker    BrokerConfig
	Billing   BillingConfig
	Scheduler SchedulerConfig
}

type AppConfig struct {
	Name            string
	Port            string
	Debug           bool
	LogPath         string
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type DatabaseConfig struct {
	Host        string
	Port        string
	Name        string
	User        string
	Password    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	AutoMigrate bool
}

// DSN builds the pgx connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type JWTConfig struct {
	Secret string
	Issuer string
}

// ProcessorConfig points at the payment processor gateway.
type ProcessorConfig struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

type BrokerConfig struct {
	URL      string
	Exchange string
}

type BillingConfig struct {
	PlatformFeeBps int64
	ReleaseDelay   time.Duration
	Currency       string
}

type SchedulerConfig struct {
	Enabled              bool
	ReleaseSweepSchedule string
	BatchSize            int
	MaxAttempts          int
	StaleClaimAfter      time.Duration
}

func LoadConfig() (*Config, error) {
	// .env is optional; real deployments inject the environment directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	viper.AutomaticEnv()

	viper.SetDefault("APP_NAME", "vivaly-settlement")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DEBUG", false)
	viper.SetDefault("LOG_PATH", "logs/")
	viper.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "https://*,http://*")

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_MAX_CONNS", 10)
	viper.SetDefault("DB_MIN_CONNS", 2)
	viper.SetDefault("DB_AUTO_MIGRATE", false)

	viper.SetDefault("JWT_ISSUER", "vivaly")

	viper.SetDefault("PROCESSOR_TIMEOUT", "10s")
	viper.SetDefault("PROCESSOR_MAX_ATTEMPTS", 4)
	viper.SetDefault("PROCESSOR_BASE_BACKOFF", "500ms")
	viper.SetDefault("PROCESSOR_MAX_BACKOFF", "8s")

	viper.SetDefault("BROKER_EXCHANGE", "vivaly.settlement")

	viper.SetDefault("PLATFORM_FEE_BPS", 1000)
	viper.SetDefault("RELEASE_DELAY", "24h")
	viper.SetDefault("CURRENCY", "aud")

	viper.SetDefault("SCHEDULER_ENABLED", true)
	viper.SetDefault("RELEASE_SWEEP_SCHEDULE", "@every 1m")
	viper.SetDefault("RELEASE_BATCH_SIZE", 50)
	viper.SetDefault("RELEASE_MAX_ATTEMPTS", 10)
	viper.SetDefault("RELEASE_STALE_CLAIM_AFTER", "10m")

	config := &Config{
		App: AppConfig{
			Name:            viper.GetString("APP_NAME"),
			Port:            viper.GetString("PORT"),
			Debug:           viper.GetBool("DEBUG"),
			LogPath:         viper.GetString("LOG_PATH"),
			ShutdownTimeout: viper.GetDuration("SHUTDOWN_TIMEOUT"),
			AllowedOrigins:  splitList(viper.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:        viper.GetString("DB_HOST"),
			Port:        viper.GetString("DB_PORT"),
			Name:        viper.GetString("DB_NAME"),
			User:        viper.GetString("DB_USER"),
			Password:    viper.GetString("DB_PASS"),
			SSLMode:     viper.GetString("DB_SSLMODE"),
			MaxConns:    viper.GetInt32("DB_MAX_CONNS"),
			MinConns:    viper.GetInt32("DB_MIN_CONNS"),
			AutoMigrate: viper.GetBool("DB_AUTO_MIGRATE"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("JWT_SECRET"),
			Issuer: viper.GetString("JWT_ISSUER"),
		},
		Processor: ProcessorConfig{
			BaseURL:     viper.GetString("PROCESSOR_BASE_URL"),
			APIKey:      viper.GetString("PROCESSOR_API_KEY"),
			Timeout:     viper.GetDuration("PROCESSOR_TIMEOUT"),
			MaxAttempts: viper.GetInt("PROCESSOR_MAX_ATTEMPTS"),
			BaseBackoff: viper.GetDuration("PROCESSOR_BASE_BACKOFF"),
			MaxBackoff:  viper.GetDuration("PROCESSOR_MAX_BACKOFF"),
		},
		Broker: BrokerConfig{
			URL:      viper.GetString("BROKER_URL"),
			Exchange: viper.GetString("BROKER_EXCHANGE"),
		},
		Billing: BillingConfig{
			PlatformFeeBps: viper.GetInt64("PLATFORM_FEE_BPS"),
			ReleaseDelay:   viper.GetDuration("RELEASE_DELAY"),
			Currency:       viper.GetString("CURRENCY"),
		},
		Scheduler: SchedulerConfig{
			Enabled:              viper.GetBool("SCHEDULER_ENABLED"),
			ReleaseSweepSchedule: viper.GetString("RELEASE_SWEEP_SCHEDULE"),
			BatchSize:            viper.GetInt("RELEASE_BATCH_SIZE"),
			MaxAttempts:          viper.GetInt("RELEASE_MAX_ATTEMPTS"),
			StaleClaimAfter:      viper.GetDuration("RELEASE_STALE_CLAIM_AFTER"),
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Database.Name == "" || c.Database.User == "" {
		return errors.New("DB_NAME and DB_USER are required")
	}
	if c.Processor.BaseURL == "" {
		return errors.New("PROCESSOR_BASE_URL is required")
	}
	if c.Billing.PlatformFeeBps < 0 || c.Billing.PlatformFeeBps > 10000 {
		return fmt.Errorf("PLATFORM_FEE_BPS must be between 0 and 10000, got %d", c.Billing.PlatformFeeBps)
	}
	if c.Billing.ReleaseDelay < 0 {
		return errors.New("RELEASE_DELAY must not be negative")
	}
	if c.Processor.MaxAttempts < 1 {
		return errors.New("PROCESSOR_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
