package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is an app-logger severity, ordered low to high.
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

// ParseLevel maps a config string to a Level, defaulting to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
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

// AppLogger adds level filtering, a timestamp prefix, and an optional
// synchronous console mirror on top of an async Sink.
type AppLogger struct {
	sink    *Sink
	minimum Level
	mirror  bool
}

// NewAppLogger wraps sink with level filtering at minimum and, if mirror is
// true, echoes INFO/DEBUG to stdout and WARN/ERROR to stderr synchronously.
func NewAppLogger(sink *Sink, minimum Level, mirror bool) *AppLogger {
	return &AppLogger{sink: sink, minimum: minimum, mirror: mirror}
}

func (l *AppLogger) log(level Level, format string, args ...any) {
	if level < l.minimum {
		return
	}
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] [%s] %s", time.Now().UTC().Format("2006-01-02 15:04:05.000"), level, msg)
	l.sink.AddLog(line)
	if l.mirror {
		if level == LevelWarn || level == LevelError {
			fmt.Fprintln(os.Stderr, line)
		} else {
			fmt.Fprintln(os.Stdout, line)
		}
	}
}

func (l *AppLogger) Debug(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *AppLogger) Info(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *AppLogger) Warn(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *AppLogger) Error(format string, args ...any) { l.log(LevelError, format, args...) }

// NewZapLogger builds the operational JSON logger used by the rest of the
// engine for structured, queryable output (distinct from the file-backed
// AppLogger above, which exists to satisfy the async-durability contract of
// C1/C2 with a human-readable line format).
func NewZapLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		zapLevel,
	)

	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
