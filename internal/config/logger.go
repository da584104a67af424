package config

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger from LogLevel and LogFormat.
// Unknown levels fall back to info; any format other than "console" is JSON.
func (c Config) NewLogger(out io.Writer, service string) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if c.LogFormat == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true})
	} else {
		log = zerolog.New(out)
	}
	return log.Level(level).With().Timestamp().Str("service", service).Logger()
}
