package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/arsound/arsound/internal/pkg/env"
)

var (
	Logger      *slog.Logger
	atomicLevel = new(slog.LevelVar)
)

// Init configures the process-wide logger from LOG_LEVEL and LOG_FORMAT.
func Init() {
	Logger = New(os.Stdout, env.GetEnv("LOG_LEVEL", "info"), env.GetEnv("LOG_FORMAT", "text"))
	slog.SetDefault(Logger)
}

// New builds a logger writing to w. format "json" selects the JSON handler,
// anything else the tint console handler.
func New(w io.Writer, level, format string) *slog.Logger {
	atomicLevel.Set(ParseLevel(level))

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: atomicLevel}))
	}

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      atomicLevel,
		TimeFormat: time.DateTime,
		NoColor:    !env.IsDev(),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" && a.Value.Kind() == slog.KindAny {
				if err, ok := a.Value.Any().(error); ok {
					return tint.Err(err)
				}
			}
			return a
		},
	}))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func SetLevel(level slog.Level) {
	atomicLevel.Set(level)
}

// Get returns the configured logger, falling back to slog's default.
func Get() *slog.Logger {
	if Logger == nil {
		return slog.Default()
	}
	return Logger
}
