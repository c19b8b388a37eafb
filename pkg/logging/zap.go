package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger implements the Logger interface using uber-go/zap
type ZapLogger struct {
	logger *zap.Logger
	fields []Field
}

// ZapOption defines a function that can configure a zap logger
type ZapOption func(*zapOptions)

type zapOptions struct {
	development bool
	level       *zapcore.Level
	outputPaths []string
}

// WithDevelopmentMode enables development mode with console-friendly output.
func WithDevelopmentMode() ZapOption {
	return func(opts *zapOptions) {
		opts.development = true
	}
}

// WithLogLevel sets a specific log level
func WithLogLevel(level Level) ZapOption {
	return func(opts *zapOptions) {
		var zapLevel zapcore.Level
		switch level {
		case DEBUG:
			zapLevel = zapcore.DebugLevel
		case INFO:
			zapLevel = zapcore.InfoLevel
		case WARN:
			zapLevel = zapcore.WarnLevel
		case ERROR:
			zapLevel = zapcore.ErrorLevel
		default:
			zapLevel = zapcore.InfoLevel
		}
		opts.level = &zapLevel
	}
}

// WithOutputPaths sets output paths for the logger
func WithOutputPaths(paths ...string) ZapOption {
	return func(opts *zapOptions) {
		opts.outputPaths = paths
	}
}

// NewZapLogger creates a new Logger implementation backed by zap.
// If the zap logger cannot be built, the plain JSON logger is returned
// instead so callers never receive a nil logger.
func NewZapLogger(options ...ZapOption) Logger {
	opts := &zapOptions{
		outputPaths: []string{"stdout"},
	}
	for _, opt := range options {
		opt(opts)
	}

	config := zap.NewProductionConfig()
	if opts.development {
		config = zap.NewDevelopmentConfig()
	}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.OutputPaths = opts.outputPaths
	if opts.level != nil {
		config.Level = zap.NewAtomicLevelAt(*opts.level)
	}

	logger, err := config.Build(
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return NewLogger()
	}

	return &ZapLogger{logger: logger}
}

func (l *ZapLogger) Debug(msg string, fields ...Field) {
	if ce := l.logger.Check(zapcore.DebugLevel, msg); ce != nil {
		ce.Write(l.convertFields(fields...)...)
	}
}

func (l *ZapLogger) Info(msg string, fields ...Field) {
	if ce := l.logger.Check(zapcore.InfoLevel, msg); ce != nil {
		ce.Write(l.convertFields(fields...)...)
	}
}

func (l *ZapLogger) Warn(msg string, fields ...Field) {
	if ce := l.logger.Check(zapcore.WarnLevel, msg); ce != nil {
		ce.Write(l.convertFields(fields...)...)
	}
}

func (l *ZapLogger) Error(msg string, fields ...Field) {
	if ce := l.logger.Check(zapcore.ErrorLevel, msg); ce != nil {
		ce.Write(l.convertFields(fields...)...)
	}
}

// WithFields implements Logger interface
func (l *ZapLogger) WithFields(fields ...Field) Logger {
	newLogger := *l
	newLogger.fields = make([]Field, len(l.fields)+len(fields))
	copy(newLogger.fields, l.fields)
	copy(newLogger.fields[len(l.fields):], fields)
	return &newLogger
}

// SetLevel is not supported after construction; zap levels are atomic and
// fixed at build time here. Use WithLogLevel when constructing instead.
func (l *ZapLogger) SetLevel(level Level) {
	l.logger.Debug("SetLevel ignored on zap logger; set level at construction")
}

// Close flushes any buffered log entries
func (l *ZapLogger) Close() error {
	return l.logger.Sync()
}

func (l *ZapLogger) convertFields(fields ...Field) []zap.Field {
	zapFields := make([]zap.Field, 0, len(l.fields)+len(fields))
	for _, f := range l.fields {
		zapFields = append(zapFields, zap.Any(f.Key, f.Value))
	}
	for _, f := range fields {
		zapFields = append(zapFields, zap.Any(f.Key, f.Value))
	}
	return zapFields
}
