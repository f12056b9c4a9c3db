package config

import (
	"time"

	"github.com/spf13/viper"
)

// LedgerConfig holds tunables for the balance engine and transfer
// coordinator.
type LedgerConfig struct {
	DefaultCurrency     string
	MaxRetries          int           // optimistic-lock retry budget per operation
	CompensationRetries int           // reversal attempts before manual reconciliation
	CompensationBackoff time.Duration // delay between reversal attempts
	PendingTTL          time.Duration // age after which a pending entry is sweepable
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Init points viper at the .env file and binds environment variables.
// Call once at startup before any config reads.
func Init() {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	viper.ReadInConfig()

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("ledger.default_currency", "LEDGER_DEFAULT_CURRENCY")
	viper.BindEnv("ledger.max_retries", "LEDGER_MAX_RETRIES")
	viper.BindEnv("ledger.compensation_retries", "LEDGER_COMPENSATION_RETRIES")
	viper.BindEnv("ledger.pending_ttl", "LEDGER_PENDING_TTL")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("log.pretty", "LOG_PRETTY")
	viper.BindEnv("server.port", "PORT")
}

// LoadLedgerConfig returns ledger tunables with defaults.
func LoadLedgerConfig() *LedgerConfig {
	viper.SetDefault("ledger.default_currency", "USD")
	viper.SetDefault("ledger.max_retries", 3)
	viper.SetDefault("ledger.compensation_retries", 5)
	viper.SetDefault("ledger.compensation_backoff", 100*time.Millisecond)
	viper.SetDefault("ledger.pending_ttl", 24*time.Hour)

	return &LedgerConfig{
		DefaultCurrency:     viper.GetString("ledger.default_currency"),
		MaxRetries:          viper.GetInt("ledger.max_retries"),
		CompensationRetries: viper.GetInt("ledger.compensation_retries"),
		CompensationBackoff: viper.GetDuration("ledger.compensation_backoff"),
		PendingTTL:          viper.GetDuration("ledger.pending_ttl"),
	}
}

// LoadServerConfig returns HTTP server settings with defaults.
func LoadServerConfig() *ServerConfig {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 15*time.Second)
	viper.SetDefault("server.idle_timeout", 60*time.Second)

	return &ServerConfig{
		Port:         viper.GetString("server.port"),
		ReadTimeout:  viper.GetDuration("server.read_timeout"),
		WriteTimeout: viper.GetDuration("server.write_timeout"),
		IdleTimeout:  viper.GetDuration("server.idle_timeout"),
	}
}
