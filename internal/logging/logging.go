// Package logging configures the process-wide zerolog logger and hands out
// module-scoped child loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Format selects how log lines are rendered.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Config controls logger initialisation.
type Config struct {
	Level  string    // debug, info, warn, error (default: info)
	Format Format    // console or json (default: console)
	Out    io.Writer // defaults to os.Stderr so stdout stays free for results
}

var (
	mu   sync.RWMutex
	base = newLogger(os.Stderr, FormatConsole, zerolog.InfoLevel)
)

// Init replaces the base logger. Loggers handed out by For before Init keep
// their old settings, so call it once at startup.
func Init(cfg Config) error {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	format := cfg.Format
	if format == "" {
		format = FormatConsole
	}
	if format != FormatConsole && format != FormatJSON {
		return fmt.Errorf("unsupported log format: %s (use console or json)", format)
	}

	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}

	mu.Lock()
	base = newLogger(out, format, level)
	mu.Unlock()
	return nil
}

func newLogger(out io.Writer, format Format, level zerolog.Level) zerolog.Logger {
	w := out
	if format == FormatConsole {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		}
	}
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// For returns a child logger tagged with module=<name>.
func For(module string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.With().Str("module", module).Logger()
}

// Timer measures one operation and logs its duration when it ends.
type Timer struct {
	log       zerolog.Logger
	operation string
	start     time.Time
}

// Start begins timing an operation on the given logger.
func Start(log zerolog.Logger, operation string) *Timer {
	return &Timer{log: log, operation: operation, start: time.Now()}
}

// End logs the elapsed time at debug level, or at error level when err is set.
func (t *Timer) End(err error) {
	elapsed := time.Since(t.start)
	if err != nil {
		t.log.Error().Err(err).Str("operation", t.operation).Dur("duration", elapsed).Msg("operation failed")
		return
	}
	t.log.Debug().Str("operation", t.operation).Dur("duration", elapsed).Msg("operation completed")
}
