package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds host configuration loaded from environment variables.
type Config struct {
	ListenAddr string `env:"GODOT_HOST_LISTEN_ADDR" envDefault:":8080"`
	DBPath     string `env:"GODOT_HOST_DB_PATH" envDefault:"godot-host.db"`
	LogLevel   string `env:"GODOT_HOST_LOG_LEVEL" envDefault:"info"`

	// Driver names the runtime factory to resolve from the registry.
	Driver string `env:"GODOT_HOST_DRIVER" envDefault:"auto"`

	// QueueSize bounds the number of tasks waiting for the engine thread.
	QueueSize int `env:"GODOT_HOST_QUEUE_SIZE" envDefault:"256"`

	// FrameInterval is the delay between engine iterations while running.
	FrameInterval time.Duration `env:"GODOT_HOST_FRAME_INTERVAL" envDefault:"16ms"`

	// EnableCrash exposes the crash hook over HTTP. Diagnostics only.
	EnableCrash bool `env:"GODOT_HOST_ENABLE_CRASH" envDefault:"false"`

	// OTelEndpoint enables trace export when set.
	OTelEndpoint string `env:"GODOT_HOST_OTEL_ENDPOINT"`
}

// Load reads configuration from the environment, applying defaults for
// unset variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.QueueSize <= 0 {
		return Config{}, fmt.Errorf("queue size must be positive, got %d", cfg.QueueSize)
	}
	if cfg.FrameInterval <= 0 {
		return Config{}, fmt.Errorf("frame interval must be positive, got %s", cfg.FrameInterval)
	}
	return cfg, nil
}

// Level returns the configured log level.
func (c Config) Level() slog.Level {
	return parseLogLevel(c.LogLevel)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
