package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// New builds the service logger from config. Defaults to structured
// JSON on stdout; set log.pretty for human-readable console output
// during development.
func New() zerolog.Logger {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.pretty", false)

	level, err := zerolog.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if viper.GetBool("log.pretty") {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}

	return logger.With().
		Timestamp().
		Str("service", "walletd").
		Logger()
}
