// Package logging configures zerolog for the service.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Simplici0/meshquote/internal/config"
)

// Options controls logger construction.
type Options struct {
	Environment config.Environment
	Writer      io.Writer
}

// New builds a logger. Production writes JSON at info level; every other
// environment writes a console format at debug level with caller info.
func New(opts Options) zerolog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	if opts.Environment.IsProduction() {
		return zerolog.New(w).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	}

	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	return zerolog.New(console).Level(zerolog.DebugLevel).With().Timestamp().Caller().Logger()
}

// Init installs New(opts) as the global logger and returns it.
func Init(opts Options) zerolog.Logger {
	zerolog.DurationFieldUnit = time.Millisecond
	log.Logger = New(opts)
	return log.Logger
}
