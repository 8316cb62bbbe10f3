package tgengine

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

type Logger interface {
	DebugEnabled() bool
	SetLevel(level LogLevel)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
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

// ParseLogLevel accepts debug, info, warn/warning and error, in any case.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

type DefaultLogger struct {
	mu     sync.Mutex
	level  LogLevel
	prefix string
	out    *log.Logger
	err    *log.Logger
}

func NewDefaultLogger(prefix string, level LogLevel) *DefaultLogger {
	flags := log.LstdFlags | log.Lmicroseconds
	return &DefaultLogger{
		level:  level,
		prefix: prefix,
		out:    log.New(os.Stdout, "", flags),
		err:    log.New(os.Stderr, "", flags),
	}
}

func (l *DefaultLogger) DebugEnabled() bool {
	return l.enabled(LevelDebug)
}

func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *DefaultLogger) enabled(level LogLevel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.level
}

func (l *DefaultLogger) prefixf(level LogLevel, format string, args ...any) string {
	if l.prefix != "" {
		return fmt.Sprintf("[%s] %s: %s", l.prefix, level, fmt.Sprintf(format, args...))
	}
	return fmt.Sprintf("%s: %s", level, fmt.Sprintf(format, args...))
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	if l.enabled(LevelDebug) {
		l.out.Print(l.prefixf(LevelDebug, format, args...))
	}
}

func (l *DefaultLogger) Infof(format string, args ...any) {
	if l.enabled(LevelInfo) {
		l.out.Print(l.prefixf(LevelInfo, format, args...))
	}
}

func (l *DefaultLogger) Warnf(format string, args ...any) {
	if l.enabled(LevelWarn) {
		l.err.Print(l.prefixf(LevelWarn, format, args...))
	}
}

func (l *DefaultLogger) Errorf(format string, args ...any) {
	l.err.Print(l.prefixf(LevelError, format, args...))
}

// LogEnv overrides LoggingModule.Level when set.
const LogEnv = "TG_LOG"

// LoggingModule installs a DefaultLogger as a resource.
type LoggingModule struct {
	Prefix string
	Level  LogLevel
}

func (m LoggingModule) Install(app *App, cmd *Commands) {
	level := m.Level
	var envErr error
	if v, ok := os.LookupEnv(LogEnv); ok {
		if parsed, err := ParseLogLevel(v); err != nil {
			envErr = err
		} else {
			level = parsed
		}
	}
	logger := NewDefaultLogger(m.Prefix, level)
	if envErr != nil {
		logger.Warnf("%s: %v, using %s", LogEnv, envErr, level)
	}
	cmd.AddResources(logger)
}

type nopLogger struct{}

func NewNopLogger() Logger { return &nopLogger{} }
func (n *nopLogger) DebugEnabled() bool                { return false }
func (n *nopLogger) SetLevel(level LogLevel)           {}
func (n *nopLogger) Debugf(format string, args ...any) {}
func (n *nopLogger) Infof(format string, args ...any)  {}
func (n *nopLogger) Warnf(format string, args ...any)  {}
func (n *nopLogger) Errorf(format string, args ...any) {}

// Logger returns the first Logger resource if present, otherwise a no-op logger.
// Safe to call at any time; never returns nil.
func (app *App) Logger() Logger {
	if app == nil {
		return NewNopLogger()
	}
	for _, r := range app.resources {
		if l, ok := r.(Logger); ok {
			return l
		}
	}
	return NewNopLogger()
}
