package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

type Field struct {
	Key   string
	Value any
}

type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
	Enabled(level Level) bool
}

// Config controls how New builds the underlying zerolog logger.
type Config struct {
	Level  string
	Pretty bool
	Output io.Writer
}

type zeroLogger struct {
	zl    zerolog.Logger
	level Level
}

func New(cfg Config) Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		}
	}
	level := ParseLevel(cfg.Level)
	zl := zerolog.New(out).Level(zeroLevel(level)).With().Timestamp().Logger()
	return &zeroLogger{zl: zl, level: level}
}

// NewComponent is New with a component field attached.
func NewComponent(cfg Config, component string) Logger {
	return New(cfg).With(F("component", component))
}

func Nop() Logger {
	return &zeroLogger{zl: zerolog.Nop(), level: Error + 1}
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}

func (l *zeroLogger) Enabled(level Level) bool {
	if l == nil {
		return false
	}
	return level >= l.level
}

func (l *zeroLogger) With(fields ...Field) Logger {
	if l == nil {
		return Nop()
	}
	ctx := l.zl.With()
	for _, field := range fields {
		ctx = ctx.Interface(field.Key, normalizeValue(field.Value))
	}
	return &zeroLogger{zl: ctx.Logger(), level: l.level}
}

func (l *zeroLogger) Debug(msg string, fields ...Field) { l.log(Debug, msg, fields...) }
func (l *zeroLogger) Info(msg string, fields ...Field)  { l.log(Info, msg, fields...) }
func (l *zeroLogger) Warn(msg string, fields ...Field)  { l.log(Warn, msg, fields...) }
func (l *zeroLogger) Error(msg string, fields ...Field) { l.log(Error, msg, fields...) }

func (l *zeroLogger) log(level Level, msg string, fields ...Field) {
	if l == nil || level < l.level {
		return
	}
	var event *zerolog.Event
	switch level {
	case Debug:
		event = l.zl.Debug()
	case Warn:
		event = l.zl.Warn()
	case Error:
		event = l.zl.Error()
	default:
		event = l.zl.Info()
	}
	for _, field := range fields {
		if err, ok := field.Value.(error); ok {
			event = event.AnErr(field.Key, err)
			continue
		}
		event = event.Interface(field.Key, normalizeValue(field.Value))
	}
	event.Msg(msg)
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case time.Duration:
		return v.String()
	case []byte:
		return string(v)
	case error:
		if v == nil {
			return nil
		}
		return v.Error()
	default:
		return v
	}
}

func zeroLevel(level Level) zerolog.Level {
	switch level {
	case Debug:
		return zerolog.DebugLevel
	case Warn:
		return zerolog.WarnLevel
	case Error:
		return zerolog.ErrorLevel
	case Info:
		return zerolog.InfoLevel
	default:
		return zerolog.Disabled
	}
}

func ParseLevel(raw string) Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return Debug
	case "warn", "warning":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

func NewRequestID() string {
	return uuid.NewString()
}

func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}
