package logger

import (
	"strings"

	"go.uber.org/zap"
)

// Logger wraps a zap SugaredLogger with key/value redaction. A nil *Logger
// discards everything.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

// New builds a logger for mode: "production" is JSON at info, "test" is
// console at warn, anything else is console at debug.
func New(mode string) (*Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	level := zap.DebugLevel
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
		level = zap.InfoLevel
	case "test":
		level = zap.WarnLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: z.Sugar()}, nil
}

func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) Sync() {
	if l != nil {
		_ = l.SugaredLogger.Sync()
	}
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	if l != nil {
		l.SugaredLogger.Debugw(msg, sanitizeKVs(keysAndValues)...)
	}
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	if l != nil {
		l.SugaredLogger.Infow(msg, sanitizeKVs(keysAndValues)...)
	}
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	if l != nil {
		l.SugaredLogger.Warnw(msg, sanitizeKVs(keysAndValues)...)
	}
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	if l != nil {
		l.SugaredLogger.Errorw(msg, sanitizeKVs(keysAndValues)...)
	}
}

func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	if l == nil {
		l = Nop()
	}
	l.SugaredLogger.Fatalw(msg, sanitizeKVs(keysAndValues)...)
}

func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{SugaredLogger: l.SugaredLogger.With(sanitizeKVs(keysAndValues)...)}
}
