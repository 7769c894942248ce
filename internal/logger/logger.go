package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level represents a log level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

const (
	envLevel = "MESHWIZ_LOG_LEVEL"
	envFile  = "MESHWIZ_LOG_FILE"
)

// String returns the string representation of a log level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a log level string
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level: %s", s)
	}
}

// Logger is a leveled logger. Output is discarded until a sink is set so
// that the preview TUI never gets interleaved log lines.
type Logger struct {
	mu        sync.Mutex
	level     Level
	component string
	logger    *log.Logger
	file      *os.File
	parent    *Logger
}

// Default is the process-wide logger.
var Default *Logger

func init() {
	Default = New()
}

// New creates a new logger from MESHWIZ_LOG_LEVEL and MESHWIZ_LOG_FILE.
func New() *Logger {
	l := &Logger{
		level:  LevelInfo,
		logger: log.New(io.Discard, "", log.LstdFlags),
	}
	if levelStr := os.Getenv(envLevel); levelStr != "" {
		if level, err := ParseLevel(levelStr); err == nil {
			l.level = level
		}
	}
	if path := os.Getenv(envFile); path != "" {
		_ = l.openFile(path)
	}
	return l
}

// Configure applies a level and file sink coming from the config layer.
// Empty values leave the current setting alone.
func (l *Logger) Configure(level, file string) error {
	if level != "" {
		lv, err := ParseLevel(level)
		if err != nil {
			return err
		}
		l.SetLevel(lv)
	}
	if file != "" {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.file != nil && l.file.Name() == file {
			return nil
		}
		return l.openFile(file)
	}
	return nil
}

// openFile must be called with mu held or before the logger is shared.
func (l *Logger) openFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	if l.file != nil {
		_ = l.file.Close()
	}
	l.file = f
	l.logger = log.New(f, "", log.LstdFlags)
	return nil
}

// With returns a child logger that tags every line with component and shares
// the parent's sink and level.
func (l *Logger) With(component string) *Logger {
	return &Logger{component: component, parent: l.root()}
}

func (l *Logger) root() *Logger {
	if l.parent != nil {
		return l.parent
	}
	return l
}

// Close closes the logger and any open file handles
func (l *Logger) Close() error {
	r := l.root()
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		r.logger.SetOutput(io.Discard)
		return err
	}
	return nil
}

// SetLevel sets the log level
func (l *Logger) SetLevel(level Level) {
	r := l.root()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.level = level
}

// SetOutput sets the output writer
func (l *Logger) SetOutput(w io.Writer) {
	r := l.root()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger.SetOutput(w)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.log(LevelDebug, format, v...)
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.log(LevelInfo, format, v...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.log(LevelWarn, format, v...)
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.log(LevelError, format, v...)
}

func (l *Logger) log(level Level, format string, v ...interface{}) {
	r := l.root()
	r.mu.Lock()
	defer r.mu.Unlock()

	if level < r.level {
		return
	}

	msg := fmt.Sprintf(format, v...)
	if l.component != "" {
		r.logger.Printf("[%s] %s: %s", level, l.component, msg)
		return
	}
	r.logger.Printf("[%s] %s", level, msg)
}

// Package-level functions that use the default logger

// Debug logs a debug message using the default logger
func Debug(format string, v ...interface{}) {
	Default.Debug(format, v...)
}

// Info logs an info message using the default logger
func Info(format string, v ...interface{}) {
	Default.Info(format, v...)
}

// Warn logs a warning message using the default logger
func Warn(format string, v ...interface{}) {
	Default.Warn(format, v...)
}

// Error logs an error message using the default logger
func Error(format string, v ...interface{}) {
	Default.Error(format, v...)
}

// With returns a component logger derived from the default logger.
func With(component string) *Logger {
	return Default.With(component)
}

// Configure applies level and file to the default logger.
func Configure(level, file string) error {
	return Default.Configure(level, file)
}

// Close closes the default logger
func Close() error {
	return Default.Close()
}
