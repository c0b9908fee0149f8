package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger. Pretty output is meant for a
// terminal; otherwise lines are JSON.
func Setup(level string, pretty bool, out io.Writer) error {
	if out == nil {
		out = os.Stderr
	}

	parsed := zerolog.InfoLevel
	if strings.TrimSpace(level) != "" {
		var err error
		parsed, err = zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
		if err != nil {
			return fmt.Errorf("parse log level %q: %w", level, err)
		}
	}

	zerolog.SetGlobalLevel(parsed)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return nil
}
