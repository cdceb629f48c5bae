package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the path to the log file. Empty means no file logging.
	FilePath string
	// MaxSizeMB is the maximum size in MB before rotation.
	MaxSizeMB int
	// MaxFiles is the maximum number of rotated files to keep.
	MaxFiles int
	// WriteToStderr also writes to stderr.
	WriteToStderr bool
	// Format is "json" or "text". Only applies to stderr; files are always JSON.
	Format string
}

// DefaultConfig returns the configuration used for batch runs: warnings
// and above on stderr, no file.
func DefaultConfig() Config {
	return Config{
		Level:         "warn",
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
		Format:        "text",
	}
}

// DebugConfig returns configuration for --debug: everything, to file and stderr.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	cfg.FilePath = DefaultLogPath()
	return cfg
}

// StdioConfig returns file-only configuration for the MCP stdio server.
// Nothing may be written to stdout or stderr while the protocol is running.
func StdioConfig(level string) Config {
	cfg := DefaultConfig()
	cfg.Level = level
	cfg.FilePath = DefaultLogPath()
	cfg.WriteToStderr = false
	return cfg
}

// Setup builds a logger for cfg and returns it with a cleanup function
// that flushes and closes the log file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	return setup(cfg, os.Stderr)
}

func setup(cfg Config, stderr io.Writer) (*slog.Logger, func(), error) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	cleanup := func() {}

	var handlers []slog.Handler

	if cfg.FilePath != "" {
		writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, slog.NewJSONHandler(writer, opts))
		cleanup = func() {
			_ = writer.Sync()
			_ = writer.Close()
		}
	}

	if cfg.WriteToStderr {
		if strings.EqualFold(cfg.Format, "json") {
			handlers = append(handlers, slog.NewJSONHandler(stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(stderr, opts))
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = fanout(handlers)
	}

	return slog.New(handler), cleanup, nil
}

// SetupDefault configures logging and installs it as the slog default.
func SetupDefault(cfg Config) (func(), error) {
	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelFromString converts string level to slog.Level.
func LevelFromString(level string) slog.Level {
	return parseLevel(level)
}
