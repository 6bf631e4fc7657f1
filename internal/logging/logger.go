package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level enumerates severity tiers.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	OFF
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "OFF"}

func (l Level) String() string {
	if int(l) >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "UNKNOWN"
}

// ParseLevel maps a level name (case insensitive) to a Level.
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i), nil
		}
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

// Logger is a concurrency-safe, levelled logger.
// A nil *Logger discards everything.
type Logger struct {
	mu     sync.Mutex
	level  Level
	prefix string
	inner  *log.Logger
}

// New creates a logger writing lines at or above minLevel to w.
func New(w io.Writer, minLevel Level) *Logger {
	return &Logger{
		level: minLevel,
		inner: log.New(w, "", 0),
	}
}

// Stdout is a convenience for New(os.Stdout, minLevel).
func Stdout(minLevel Level) *Logger {
	return New(os.Stdout, minLevel)
}

// Discard returns a logger that drops every message.
func Discard() *Logger {
	return New(io.Discard, OFF)
}

// With returns a logger sharing the output and level, tagging every line
// with component.
func (l *Logger) With(component string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{
		level:  l.level,
		prefix: l.prefix + component + ": ",
		inner:  l.inner,
	}
}

// Enabled reports whether messages at lvl would be written.
func (l *Logger) Enabled(lvl Level) bool {
	return l != nil && lvl >= l.level && l.level < OFF
}

func (l *Logger) log(lvl Level, format string, args ...any) {
	if !l.Enabled(lvl) {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	l.inner.Printf("[%s] %s  %s%s", lvl, ts, l.prefix, msg)
	l.mu.Unlock()
}

func (l *Logger) Debug(f string, a ...any) { l.log(DEBUG, f, a...) }
func (l *Logger) Info(f string, a ...any)  { l.log(INFO, f, a...) }
func (l *Logger) Warn(f string, a ...any)  { l.log(WARN, f, a...) }
func (l *Logger) Error(f string, a ...any) { l.log(ERROR, f, a...) }
