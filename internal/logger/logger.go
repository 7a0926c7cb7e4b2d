// Package logger provides the process-wide leveled logger used by every
// DittoSync component.
//
// The package keeps the familiar printf-style API (Debug, Info, Warn, Error)
// so call sites stay terse, while the actual encoding is delegated to
// zerolog. Two output formats are supported:
//   - text: human readable console output with RFC3339 timestamps
//   - json: one JSON object per line, suitable for log shippers
//
// Components that want structured fields (session IDs, remote addresses) can
// obtain a scoped zerolog.Logger via With().
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu           sync.RWMutex
	currentLevel = LevelInfo
	format       = "text"
	output       io.Writer = os.Stdout
	base         = newZerolog(output, format)

	// closer is set when Output points to a file we opened ourselves
	closer io.Closer
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

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel converts a case-insensitive level name into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// SetLevel sets the minimum level. Unknown names are ignored.
func SetLevel(level string) {
	l, err := ParseLevel(level)
	if err != nil {
		return
	}

	mu.Lock()
	currentLevel = l
	mu.Unlock()
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// SetFormat switches between "text" and "json" output.
func SetFormat(f string) {
	f = strings.ToLower(f)
	if f != "text" && f != "json" {
		return
	}

	mu.Lock()
	defer mu.Unlock()
	format = f
	base = newZerolog(output, format)
}

// SetOutput redirects log output to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	closeOwnedOutput()
	output = w
	base = newZerolog(output, format)
}

// Init configures level, format and destination in one call.
//
// The destination may be "stdout", "stderr" or a file path. Files are opened
// in append mode and closed by Close or by a subsequent Init/SetOutput.
func Init(level, logFormat, destination string) error {
	l, err := ParseLevel(level)
	if err != nil {
		return err
	}

	var w io.Writer
	var c io.Closer
	switch strings.ToLower(destination) {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(destination, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", destination, err)
		}
		w, c = f, f
	}

	logFormat = strings.ToLower(logFormat)
	if logFormat == "" {
		logFormat = "text"
	}
	if logFormat != "text" && logFormat != "json" {
		if c != nil {
			_ = c.Close()
		}
		return fmt.Errorf("unknown log format %q", logFormat)
	}

	mu.Lock()
	defer mu.Unlock()
	closeOwnedOutput()
	currentLevel = l
	format = logFormat
	output = w
	closer = c
	base = newZerolog(output, format)
	return nil
}

// Close releases the log file opened by Init, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	output = os.Stdout
	base = newZerolog(output, format)
	return err
}

// must be called with mu held
func closeOwnedOutput() {
	if closer != nil {
		_ = closer.Close()
		closer = nil
	}
}

func newZerolog(w io.Writer, f string) zerolog.Logger {
	if f == "text" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// With returns a zerolog.Logger tagged with the given component name.
//
// The returned logger honours the level configured at the time of the call.
func With(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.Level(currentLevel.zerolog()).With().Str("component", component).Logger()
}

func log(level Level, format string, v ...any) {
	mu.RLock()
	if level < currentLevel {
		mu.RUnlock()
		return
	}
	l := base
	mu.RUnlock()

	l.WithLevel(level.zerolog()).Msgf(format, v...)
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
