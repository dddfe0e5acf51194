// Package logger provides a leveled, colored logger on top of the standard log package.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Level is a log severity threshold.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	OffLevel
)

// String returns the lowercase level name.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "off"
	}
}

// ParseLevel converts a level name to a Level. Unknown names map to InfoLevel.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "off", "none":
		return OffLevel
	default:
		return InfoLevel
	}
}

// core is shared between a logger and all loggers derived from it via With.
type core struct {
	mu     sync.Mutex
	out    *log.Logger
	level  Level
	colors map[Level]*color.Color
}

// Logger writes leveled messages. A nil *Logger discards everything.
type Logger struct {
	core   *core
	prefix string
}

// New creates a logger writing to w. Colors are enabled only for stdout and stderr.
func New(w io.Writer, level Level) *Logger {
	colored := false
	if f, ok := w.(*os.File); ok && (f == os.Stdout || f == os.Stderr) {
		colored = true
	}

	colors := map[Level]*color.Color{
		DebugLevel: color.New(color.FgCyan),
		InfoLevel:  color.New(color.FgGreen),
		WarnLevel:  color.New(color.FgYellow),
		ErrorLevel: color.New(color.FgRed),
	}
	for _, c := range colors {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return &Logger{
		core: &core{
			out:    log.New(w, "", log.LstdFlags),
			level:  level,
			colors: colors,
		},
	}
}

// Discard returns a logger that writes nothing.
func Discard() *Logger {
	return New(io.Discard, OffLevel)
}

// With returns a logger that prefixes every message with "[component] ".
func (l *Logger) With(component string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{core: l.core, prefix: "[" + component + "] "}
}

// SetLevel changes the threshold for this logger and every logger derived from it.
func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.core.mu.Lock()
	l.core.level = level
	l.core.mu.Unlock()
}

// Level returns the current threshold.
func (l *Logger) Level() Level {
	if l == nil {
		return OffLevel
	}
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	return l.core.level
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, v ...interface{}) { l.logf(DebugLevel, "[DEBUG] ", format, v) }

// Infof logs at info level.
func (l *Logger) Infof(format string, v ...interface{}) { l.logf(InfoLevel, "[INFO] ", format, v) }

// Warnf logs at warn level.
func (l *Logger) Warnf(format string, v ...interface{}) { l.logf(WarnLevel, "[WARN] ", format, v) }

// Errorf logs at error level.
func (l *Logger) Errorf(format string, v ...interface{}) { l.logf(ErrorLevel, "[ERROR] ", format, v) }

// Printf logs at info level so the logger can stand in for *log.Logger.
func (l *Logger) Printf(format string, v ...interface{}) { l.Infof(format, v...) }

// Print logs at debug level. It backs chi's request logger.
func (l *Logger) Print(v ...interface{}) {
	l.logf(DebugLevel, "[DEBUG] ", "%s", []interface{}{strings.TrimRight(fmt.Sprint(v...), "\n")})
}

// StdLogger returns a *log.Logger that writes through this logger at error level.
// Used for http.Server.ErrorLog.
func (l *Logger) StdLogger() *log.Logger {
	return log.New(writerFunc(func(p []byte) (int, error) {
		l.Errorf("%s", strings.TrimRight(string(p), "\n"))
		return len(p), nil
	}), "", 0)
}

func (l *Logger) logf(level Level, tag, format string, v []interface{}) {
	if l == nil {
		return
	}

	c := l.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if level < c.level {
		return
	}
	msg := c.colors[level].Sprintf(tag+l.prefix+format, v...)
	c.out.Print(msg)
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
