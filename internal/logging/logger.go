// Package logging provides structured logging with file and console output.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level represents logging levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is a single log entry retained in memory, served to operators
// through the widget logs endpoint.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
}

// Logger wraps zerolog with file output and a bounded in-memory history.
type Logger struct {
	zlog    zerolog.Logger
	file    *os.File
	logPath string

	mu      sync.RWMutex
	history []Entry
	maxHist int
}

// Config holds logger configuration.
type Config struct {
	LogDir     string // directory for log files (default: ~/.ganochat/logs)
	Level      Level  // minimum log level (default: debug)
	MaxHistory int    // max entries kept in memory (default: 500)
	Console    bool   // also log to console (default: true)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		LogDir:     filepath.Join(home, ".ganochat", "logs"),
		Level:      LevelDebug,
		MaxHistory: 500,
		Console:    true,
	}
}

// New creates a Logger with file and console output.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(cfg.LogDir, fmt.Sprintf("ganochat_%s.log", time.Now().Format("2006-01-02")))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	writers := []io.Writer{file}
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}

	level := zerolog.DebugLevel
	switch cfg.Level {
	case LevelInfo:
		level = zerolog.InfoLevel
	case LevelWarn:
		level = zerolog.WarnLevel
	case LevelError:
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	zlog := zerolog.New(io.MultiWriter(writers...)).With().
		Timestamp().
		Str("app", "ganochat").
		Logger()

	l := &Logger{
		zlog:    zlog,
		file:    file,
		logPath: logPath,
		history: make([]Entry, 0, cfg.MaxHistory),
		maxHist: cfg.MaxHistory,
	}

	l.Info("logging", "Logger initialized")
	return l, nil
}

func (l *Logger) addToHistory(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.history = append(l.history, entry)
	if len(l.history) > l.maxHist {
		l.history = l.history[len(l.history)-l.maxHist:]
	}
}

// History returns up to limit recent entries, newest last.
func (l *Logger) History(limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.history) {
		limit = len(l.history)
	}
	start := len(l.history) - limit

	out := make([]Entry, limit)
	copy(out, l.history[start:])
	return out
}

// Path returns the current log file path.
func (l *Logger) Path() string {
	return l.logPath
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.Info("logging", "Logger shutting down")
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Debug logs a debug message.
func (l *Logger) Debug(component, msg string) {
	l.zlog.Debug().Str("component", component).Msg(msg)
	l.addToHistory(newEntry("debug", component, msg))
}

// Info logs an info message.
func (l *Logger) Info(component, msg string) {
	l.zlog.Info().Str("component", component).Msg(msg)
	l.addToHistory(newEntry("info", component, msg))
}

// Warn logs a warning message.
func (l *Logger) Warn(component, msg string) {
	l.zlog.Warn().Str("component", component).Msg(msg)
	l.addToHistory(newEntry("warn", component, msg))
}

// Error logs an error message.
func (l *Logger) Error(component, msg string, err error) {
	event := l.zlog.Error().Str("component", component)
	if err != nil {
		event = event.Err(err)
	}
	event.Msg(msg)

	if err != nil {
		msg = msg + ": " + err.Error()
	}
	l.addToHistory(newEntry("error", component, msg))
}

// Component returns a zerolog.Logger with the component field set, for code
// that logs structured fields directly.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

func newEntry(level, component, msg string) Entry {
	return Entry{
		Timestamp: time.Now().Format("15:04:05.000"),
		Level:     level,
		Component: component,
		Message:   msg,
	}
}
