// Package log provides structured logging for noajax.
// Entries carry a level, a category and key=value fields. Logging is off until
// Init or InitWriter is called, so library code can log unconditionally.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

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

// ParseLevel maps a level name to a Level. Unknown names yield LevelInfo.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Category groups related log messages.
type Category string

const (
	CatNoAjax  Category = "noajax"  // Rerouting and intercepted dispatch
	CatRewrite Category = "rewrite" // Rewrite table registration and flushes
	CatStore   Category = "store"   // Rewrite table persistence
	CatConfig  Category = "config"  // Configuration loading
	CatHTTP    Category = "http"    // Server lifecycle and request pipeline
	CatWatch   Category = "watch"   // Config file watcher events
	CatAuth    Category = "auth"    // Session lookups
)

// Logger provides structured logging.
type Logger struct {
	mu       sync.Mutex
	file     *os.File
	writer   io.Writer
	enabled  bool
	minLevel Level
}

var defaultLogger *Logger

// Init opens (or creates) the log file at path and makes it the log sink.
// Returns a cleanup function to close the log file.
func Init(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644) //nolint:gosec // G304: path is the user-supplied log path
	if err != nil {
		return nil, err
	}

	defaultLogger = &Logger{
		file:     f,
		writer:   f,
		enabled:  true,
		minLevel: LevelInfo,
	}
	return func() { _ = f.Close() }, nil
}

// InitWriter logs to w, typically os.Stderr.
func InitWriter(w io.Writer) {
	defaultLogger = &Logger{
		writer:   w,
		enabled:  true,
		minLevel: LevelInfo,
	}
}

// SetEnabled toggles logging on/off.
func SetEnabled(enabled bool) {
	if defaultLogger != nil {
		defaultLogger.mu.Lock()
		defaultLogger.enabled = enabled
		defaultLogger.mu.Unlock()
	}
}

// SetMinLevel sets the minimum log level.
func SetMinLevel(level Level) {
	if defaultLogger != nil {
		defaultLogger.mu.Lock()
		defaultLogger.minLevel = level
		defaultLogger.mu.Unlock()
	}
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	log(LevelDebug, cat, msg, fields...)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	log(LevelInfo, cat, msg, fields...)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	log(LevelWarn, cat, msg, fields...)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	log(LevelError, cat, msg, fields...)
}

// ErrorErr logs an error with the error value.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	} else {
		fields = append(fields, "error", "<nil>")
	}
	log(LevelError, cat, msg, fields...)
}

func log(level Level, cat Category, msg string, fields ...any) {
	l := defaultLogger
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled || level < l.minLevel || l.writer == nil {
		return
	}

	// 2026-10-19T10:45:00 [WARN] [noajax] message key=value key2=value2
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] [%s] %s", time.Now().Format("2006-01-02T15:04:05"), level, cat, msg)
	for i := 0; i+1 < len(fields); i += 2 {
		fmt.Fprintf(&b, " %v=%v", fields[i], fields[i+1])
	}
	if len(fields)%2 != 0 {
		fmt.Fprintf(&b, " %v=<missing>", fields[len(fields)-1])
	}
	b.WriteByte('\n')

	_, _ = io.WriteString(l.writer, b.String())
}
