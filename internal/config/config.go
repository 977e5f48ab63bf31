package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
)

type Config struct {
	AppEnv   string
	HTTPAddr string

	SnowflakeNode int64

	DB       DBConfig
	Redis    RedisConfig
	Provider PaymentProviderConfig
	Callback CallbackConfig

	PendingIntentTTL  time.Duration
	SessionStoreSize  int
	SchedulerInterval time.Duration
	// PaymentRawRetentionDays is how long raw provider verifications are
	// kept on payment rows. Zero disables the purge.
	PaymentRawRetentionDays int

	OTLPEndpoint string
}

type DBConfig struct {
	Driver       string
	DSN          string
	MaxOpenConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PaymentProviderConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// CallbackConfig holds the URL the provider returns payers to and the
// redirect targets used once the callback has been reconciled.
type CallbackConfig struct {
	ReturnURL  string
	SuccessURL string
	FailureURL string
}

func (c Config) IsDev() bool {
	return strings.EqualFold(c.AppEnv, "dev")
}

// Load reads configuration from an optional .env file and the process
// environment. Environment variables always win over .env entries.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "prod")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("SNOWFLAKE_NODE", 1)
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_DSN", "host=localhost user=gymstack password=gymstack dbname=gymstack sslmode=disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 20)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("PAYMENT_PROVIDER_NAME", "hosted")
	v.SetDefault("PAYMENT_PROVIDER_BASE_URL", "https://api.payments.local/v1")
	v.SetDefault("PAYMENT_PROVIDER_TIMEOUT", "10s")
	v.SetDefault("PENDING_INTENT_TTL", "2h")
	v.SetDefault("SESSION_STORE_SIZE", 4096)
	v.SetDefault("CALLBACK_RETURN_URL", "http://localhost:8080/payments/callback")
	v.SetDefault("CALLBACK_SUCCESS_URL", "/memberships/payment/success")
	v.SetDefault("CALLBACK_FAILURE_URL", "/memberships/payment/failed")
	v.SetDefault("SCHEDULER_INTERVAL", "15m")
	v.SetDefault("PAYMENT_RAW_RETENTION_DAYS", 90)

	cfg := Config{
		AppEnv:        v.GetString("APP_ENV"),
		HTTPAddr:      v.GetString("HTTP_ADDR"),
		SnowflakeNode: v.GetInt64("SNOWFLAKE_NODE"),
		DB: DBConfig{
			Driver:       strings.ToLower(strings.TrimSpace(v.GetString("DB_DRIVER"))),
			DSN:          v.GetString("DB_DSN"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Provider: PaymentProviderConfig{
			Name:    v.GetString("PAYMENT_PROVIDER_NAME"),
			BaseURL: strings.TrimRight(v.GetString("PAYMENT_PROVIDER_BASE_URL"), "/"),
			APIKey:  v.GetString("PAYMENT_PROVIDER_API_KEY"),
			Timeout: v.GetDuration("PAYMENT_PROVIDER_TIMEOUT"),
		},
		Callback: CallbackConfig{
			ReturnURL:  v.GetString("CALLBACK_RETURN_URL"),
			SuccessURL: v.GetString("CALLBACK_SUCCESS_URL"),
			FailureURL: v.GetString("CALLBACK_FAILURE_URL"),
		},
		PendingIntentTTL:        v.GetDuration("PENDING_INTENT_TTL"),
		SessionStoreSize:        v.GetInt("SESSION_STORE_SIZE"),
		SchedulerInterval:       v.GetDuration("SCHEDULER_INTERVAL"),
		PaymentRawRetentionDays: v.GetInt("PAYMENT_RAW_RETENTION_DAYS"),
		OTLPEndpoint:            v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	return cfg, nil
}
