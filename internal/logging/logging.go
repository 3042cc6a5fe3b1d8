package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/afero"
)

// Setup configures the global slog logger.
// Console output goes to stderr so it never mixes with file contents written
// to stdout. If logFile is non-empty, logs are also appended to it as JSON.
// The returned function closes the log file.
func Setup(levelStr, logFile string, fs afero.Fs) (func() error, error) {
	level := parseLogLevel(levelStr)

	if logFile == "" {
		slog.SetDefault(New(level, os.Stderr, nil))
		return func() error { return nil }, nil
	}

	logFile = os.ExpandEnv(logFile)
	if err := fs.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := fs.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	slog.SetDefault(New(level, os.Stderr, f))

	return f.Close, nil
}

// New returns a logger writing coloured text to console and, when file is
// not nil, JSON records to file.
func New(level slog.Level, console io.Writer, file io.Writer) *slog.Logger {
	consoleHandler := tint.NewHandler(console, &tint.Options{Level: level})
	if file == nil {
		return slog.New(consoleHandler)
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})

	return slog.New(slogmulti.Fanout(consoleHandler, fileHandler))
}

// parseLogLevel converts a string log level to slog.Level
func parseLogLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
