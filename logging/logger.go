package logging

import (
	"context"
	"io"
	"log/slog"
)

// Logger is the structured logging interface injected into components.
//
// Context variants also emit any fields attached to ctx with WithFields.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)

	// With returns a Logger that adds args to every record.
	With(args ...any) Logger
}

// NewLogger builds a Logger from config.
func NewLogger(config Config) (Logger, io.Closer, error) {
	logger, closer, err := New(config)
	if err != nil {
		return nil, closer, err
	}
	return FromSlog(logger), closer, nil
}

// FromSlog adapts an existing *slog.Logger.
func FromSlog(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &slogLogger{logger: logger}
}

// GetLogger returns the global logger as a Logger.
func GetLogger() Logger {
	return FromSlog(Get())
}

// Discard returns a Logger that drops every record.
func Discard() Logger {
	return FromSlog(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type slogLogger struct {
	logger *slog.Logger
}

func (s *slogLogger) Debug(msg string, args ...any) { s.logger.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.logger.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.logger.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.logger.Error(msg, args...) }

func (s *slogLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	s.logger.DebugContext(ctx, msg, withContextFields(ctx, args)...)
}

func (s *slogLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	s.logger.InfoContext(ctx, msg, withContextFields(ctx, args)...)
}

func (s *slogLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	s.logger.WarnContext(ctx, msg, withContextFields(ctx, args)...)
}

func (s *slogLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	s.logger.ErrorContext(ctx, msg, withContextFields(ctx, args)...)
}

func (s *slogLogger) With(args ...any) Logger {
	return &slogLogger{logger: s.logger.With(args...)}
}

// ComponentLogger tags every record with component and component_type.
//
//	log := logging.NewComponentLogger(base, "listener", "udp")
//	log.Info("listener started")
//	// ... component=listener component_type=udp
type ComponentLogger struct {
	Logger
	component     string
	componentType string
}

// NewComponentLogger wraps base (the global logger when nil) with component
// attributes.
func NewComponentLogger(base Logger, component, componentType string) *ComponentLogger {
	if base == nil {
		base = GetLogger()
	}
	return &ComponentLogger{
		Logger:        base.With("component", component, "component_type", componentType),
		component:     component,
		componentType: componentType,
	}
}

// Component returns the component name.
func (cl *ComponentLogger) Component() string { return cl.component }

// ComponentType returns the component type.
func (cl *ComponentLogger) ComponentType() string { return cl.componentType }

type fieldsKey struct{}

// WithFields returns a context carrying key/value pairs that context-aware
// Logger methods append to their records. Fields accumulate across calls.
func WithFields(ctx context.Context, args ...any) context.Context {
	if len(args) == 0 {
		return ctx
	}
	existing := FieldsFrom(ctx)
	merged := make([]any, 0, len(existing)+len(args))
	merged = append(merged, existing...)
	merged = append(merged, args...)
	return context.WithValue(ctx, fieldsKey{}, merged)
}

// FieldsFrom returns the fields attached to ctx with WithFields.
func FieldsFrom(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey{}).([]any)
	return fields
}

func withContextFields(ctx context.Context, args []any) []any {
	fields := FieldsFrom(ctx)
	if len(fields) == 0 {
		return args
	}
	out := make([]any, 0, len(args)+len(fields))
	out = append(out, args...)
	return append(out, fields...)
}
