package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Provider Provider `mapstructure:"provider"`
	Market   Market   `mapstructure:"market"`
	Trading  Trading  `mapstructure:"trading"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Kafka    Kafka    `mapstructure:"kafka"`
}

// Provider holds the configuration for the market-data provider.
type Provider struct {
	BaseURL        string  `mapstructure:"base_url"`
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxRetries     int     `mapstructure:"max_retries"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Market describes the exchange trading calendar.
// Dates are "2006-01-02" strings, times are "15:04" in the exchange timezone.
type Market struct {
	Timezone    string   `mapstructure:"timezone"`
	Open        string   `mapstructure:"open"`
	Close       string   `mapstructure:"close"`
	EarlyClose  string   `mapstructure:"early_close"`
	Holidays    []string `mapstructure:"holidays"`
	EarlyCloses []string `mapstructure:"early_closes"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port              int `mapstructure:"port"`
	SessionTTLMinutes int `mapstructure:"session_ttl_minutes"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Trading holds the configuration for the simulated brokerage.
type Trading struct {
	InitialCash      float64 `mapstructure:"initial_cash"`
	Currency         string  `mapstructure:"currency"`
	QuoteConcurrency int     `mapstructure:"quote_concurrency"`
}

// Kafka holds the trade event stream configuration. No brokers disables publishing.
type Kafka struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	err = v.ReadInConfig()
	if err != nil {
		return
	}

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("provider.user_agent", "stock-sim-go/1.0")
	v.SetDefault("provider.timeout_seconds", 8)
	v.SetDefault("provider.max_retries", 3)
	v.SetDefault("provider.rate_limit", 5) // requests per second
	v.SetDefault("provider.rate_limit_burst", 5)

	v.SetDefault("market.timezone", "America/New_York")
	v.SetDefault("market.open", "09:30")
	v.SetDefault("market.close", "16:00")
	v.SetDefault("market.early_close", "13:00")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.session_ttl_minutes", 24*60)
	v.SetDefault("database.dsn", "finance.db")

	v.SetDefault("trading.initial_cash", 10000)
	v.SetDefault("trading.currency", "USD")
	v.SetDefault("trading.quote_concurrency", 4)

	v.SetDefault("kafka.topic", "trade-events")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
}
