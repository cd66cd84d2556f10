// Package logging provides structured logging for the trap receiver using
// the standard log/slog package.
//
// Loggers are built from a Config (level, format, output) and handed to
// components through the Logger interface, so the receive loop never owns
// log file creation or formatting:
//
//	logger, closer, err := logging.NewLogger(logging.Config{
//		Level:  "debug",
//		Format: logging.FormatJSON,
//		Output: "/var/log/traplistener/listener.log",
//	})
//	if err != nil {
//		return err
//	}
//	defer closer.Close()
//
//	logger.Info("listener started", "address", "0.0.0.0:1062")
//
// A process-wide logger is also available through Init, Get and the
// package-level Debug/Info/Warn/Error helpers.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels accepted in Config.Level.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Output formats accepted in Config.Format.
const (
	// FormatLogfmt writes key=value lines through slog.TextHandler.
	FormatLogfmt = "logfmt"

	// FormatJSON writes one JSON object per line.
	FormatJSON = "json"
)

// Config configures a logger.
type Config struct {
	// Level is one of debug, info, warn, error. Default: info.
	Level string `json:"level" yaml:"level"`

	// Format is logfmt or json. Default: logfmt.
	Format string `json:"format" yaml:"format"`

	// Output is "stdout", "stderr" or a file path. Parent directories of a
	// file path are created.
	Output string `json:"output" yaml:"output"`

	// AddSource includes file:line in every record.
	AddSource bool `json:"add_source" yaml:"add_source"`
}

// DefaultConfig returns info-level logfmt output on stdout.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatLogfmt,
		Output: "stdout",
	}
}

var (
	globalMu       sync.RWMutex
	globalLogger   *slog.Logger
	globalCloser   io.Closer
	globalLevelVar *slog.LevelVar
)

// New builds a slog.Logger from config. The returned closer is non-nil only
// when output goes to a file.
func New(config Config) (*slog.Logger, io.Closer, error) {
	logger, _, closer, err := build(config)
	return logger, closer, err
}

func build(config Config) (*slog.Logger, *slog.LevelVar, io.Closer, error) {
	if config.Level == "" {
		config.Level = LevelInfo
	}
	if config.Format == "" {
		config.Format = FormatLogfmt
	}

	if !ValidateLevel(config.Level) {
		return nil, nil, nil, fmt.Errorf("invalid log level: %q, must be one of: %s, %s, %s, %s",
			config.Level, LevelDebug, LevelInfo, LevelWarn, LevelError)
	}
	if !ValidateFormat(config.Format) {
		return nil, nil, nil, fmt.Errorf("invalid log format: %q, must be one of: %s, %s",
			config.Format, FormatLogfmt, FormatJSON)
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(parseLevel(config.Level))

	var writer io.Writer
	var closer io.Closer
	switch strings.ToLower(config.Output) {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		file, err := openLogFile(config.Output)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open log file %s: %w", config.Output, err)
		}
		writer = file
		closer = file
	}

	opts := &slog.HandlerOptions{
		Level:     levelVar,
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if strings.ToLower(config.Format) == FormatJSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	return slog.New(handler), levelVar, closer, nil
}

// Init replaces the process-wide logger and makes it the slog default.
// A previously opened log file is closed.
func Init(config Config) error {
	logger, levelVar, closer, err := build(config)
	if err != nil {
		return err
	}

	globalMu.Lock()
	old := globalCloser
	globalLogger = logger
	globalCloser = closer
	globalLevelVar = levelVar
	globalMu.Unlock()

	slog.SetDefault(logger)

	if old != nil {
		return old.Close()
	}
	return nil
}

// InitWithDefaults is Init(DefaultConfig()).
func InitWithDefaults() error {
	return Init(DefaultConfig())
}

// Shutdown closes the global log file, if any. Safe to call repeatedly.
func Shutdown() error {
	globalMu.Lock()
	closer := globalCloser
	globalCloser = nil
	globalMu.Unlock()

	if closer != nil {
		return closer.Close()
	}
	return nil
}

// SetLevel changes the global logger level at runtime.
func SetLevel(level string) error {
	if !ValidateLevel(level) {
		return fmt.Errorf("invalid log level: %q, must be one of: %s, %s, %s, %s",
			level, LevelDebug, LevelInfo, LevelWarn, LevelError)
	}

	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLevelVar != nil {
		globalLevelVar.Set(parseLevel(level))
	}
	return nil
}

// Get returns the global logger, initializing it with defaults on first use.
func Get() *slog.Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()
	if logger != nil {
		return logger
	}

	if err := InitWithDefaults(); err != nil {
		return slog.Default()
	}

	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// Debug logs at debug level on the global logger.
func Debug(msg string, args ...any) { Get().Debug(msg, args...) }

// Info logs at info level on the global logger.
func Info(msg string, args ...any) { Get().Info(msg, args...) }

// Warn logs at warn level on the global logger.
func Warn(msg string, args ...any) { Get().Warn(msg, args...) }

// Error logs at error level on the global logger.
func Error(msg string, args ...any) { Get().Error(msg, args...) }

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn, "warning":
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidateLevel reports whether level is a known level name.
func ValidateLevel(level string) bool {
	switch strings.ToLower(level) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return true
	default:
		return false
	}
}

// ValidateFormat reports whether format is a known output format.
func ValidateFormat(format string) bool {
	switch strings.ToLower(format) {
	case FormatLogfmt, FormatJSON:
		return true
	default:
		return false
	}
}

// openLogFile opens path for appending after refusing traversal, system
// directories, symlinks and non-regular files.
func openLogFile(path string) (*os.File, error) {
	if path == "" {
		return nil, errors.New("log file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return nil, fmt.Errorf("invalid log file path: contains directory traversal: %s", cleanPath)
	}

	if filepath.IsAbs(cleanPath) {
		for _, p := range []string{"/etc/", "/proc/", "/sys/", "/dev/", "/run/secrets"} {
			if strings.HasPrefix(cleanPath+"/", p) || cleanPath == strings.TrimSuffix(p, "/") {
				return nil, fmt.Errorf("log file path not allowed: %s", cleanPath)
			}
		}
	}

	dir := filepath.Dir(cleanPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	if info, err := os.Lstat(cleanPath); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return nil, fmt.Errorf("refusing to open symlink for log file: %s", cleanPath)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("log path must be a regular file: %s", cleanPath)
		}
	}

	file, err := os.OpenFile(cleanPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", cleanPath, err)
	}
	return file, nil
}
