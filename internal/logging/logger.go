package logging

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/markethub/markethub/internal/tracing"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
}

// Logger provides structured logging with trace correlation. Entries are
// emitted by zerolog as one JSON object per line on stdout.
type Logger struct {
	service string
	zl      zerolog.Logger
}

// New creates a new structured logger for the given service
func New(service string) *Logger {
	zl := zerolog.New(os.Stdout).With().Timestamp().Str("service", service).Logger()
	return &Logger{
		service: service,
		zl:      zl,
	}
}

// LogEntry accumulates the typed fields of a single log line
type LogEntry struct {
	zl          zerolog.Logger
	traceID     string
	taskID      string
	productID   string
	marketplace string
	eventID     string
	step        string
	err         error
	fields      map[string]any
}

// WithContext creates a log entry with trace correlation from context
func (l *Logger) WithContext(ctx context.Context) *LogEntry {
	entry := &LogEntry{zl: l.zl}
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		entry.traceID = traceID
	}
	return entry
}

// WithFields creates a log entry with arbitrary key-value pairs
func (l *Logger) WithFields(fields map[string]any) *LogEntry {
	return &LogEntry{zl: l.zl, fields: fields}
}

// Plain creates a basic log entry without context
func (l *Logger) Plain() *LogEntry {
	return &LogEntry{zl: l.zl}
}

// Fluent interface methods for LogEntry

// WithTraceID sets the trace ID for the log entry
func (e *LogEntry) WithTraceID(traceID string) *LogEntry {
	e.traceID = traceID
	return e
}

// WithTask sets the publication task ID for the log entry
func (e *LogEntry) WithTask(taskID string) *LogEntry {
	e.taskID = taskID
	return e
}

// WithProduct sets the product ID for the log entry
func (e *LogEntry) WithProduct(productID string) *LogEntry {
	e.productID = productID
	return e
}

// WithMarketplace sets the marketplace slug for the log entry
func (e *LogEntry) WithMarketplace(slug string) *LogEntry {
	e.marketplace = slug
	return e
}

// WithEvent sets the webhook event ID for the log entry
func (e *LogEntry) WithEvent(eventID string) *LogEntry {
	e.eventID = eventID
	return e
}

// WithStep sets the saga step name for the log entry
func (e *LogEntry) WithStep(step string) *LogEntry {
	e.step = step
	return e
}

// WithField adds a single field to the log entry
func (e *LogEntry) WithField(key string, value any) *LogEntry {
	if e.fields == nil {
		e.fields = make(map[string]any)
	}
	e.fields[key] = value
	return e
}

// WithFields adds multiple fields to the log entry
func (e *LogEntry) WithFields(fields map[string]any) *LogEntry {
	if e.fields == nil {
		e.fields = make(map[string]any)
	}
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

// WithError adds an error field to the log entry
func (e *LogEntry) WithError(err error) *LogEntry {
	e.err = err
	return e
}

// Log methods

// Debug logs at debug level
func (e *LogEntry) Debug(message string) {
	e.emit(e.zl.Debug(), message)
}

// Debugf logs at debug level with formatting
func (e *LogEntry) Debugf(format string, args ...any) {
	e.emitf(e.zl.Debug(), format, args...)
}

// Info logs at info level
func (e *LogEntry) Info(message string) {
	e.emit(e.zl.Info(), message)
}

// Infof logs at info level with formatting
func (e *LogEntry) Infof(format string, args ...any) {
	e.emitf(e.zl.Info(), format, args...)
}

// Warn logs at warn level
func (e *LogEntry) Warn(message string) {
	e.emit(e.zl.Warn(), message)
}

// Warnf logs at warn level with formatting
func (e *LogEntry) Warnf(format string, args ...any) {
	e.emitf(e.zl.Warn(), format, args...)
}

// Error logs at error level
func (e *LogEntry) Error(message string) {
	e.emit(e.zl.Error(), message)
}

// Errorf logs at error level with formatting
func (e *LogEntry) Errorf(format string, args ...any) {
	e.emitf(e.zl.Error(), format, args...)
}

// Fatal logs at fatal level and exits
func (e *LogEntry) Fatal(message string) {
	e.emit(e.zl.Fatal(), message)
}

// Fatalf logs at fatal level with formatting and exits
func (e *LogEntry) Fatalf(format string, args ...any) {
	e.emitf(e.zl.Fatal(), format, args...)
}

func (e *LogEntry) decorate(evt *zerolog.Event) *zerolog.Event {
	if e.traceID != "" {
		evt = evt.Str("trace_id", e.traceID)
	}
	if e.taskID != "" {
		evt = evt.Str("task_id", e.taskID)
	}
	if e.productID != "" {
		evt = evt.Str("product_id", e.productID)
	}
	if e.marketplace != "" {
		evt = evt.Str("marketplace", e.marketplace)
	}
	if e.eventID != "" {
		evt = evt.Str("event_id", e.eventID)
	}
	if e.step != "" {
		evt = evt.Str("step", e.step)
	}
	if e.err != nil {
		evt = evt.Err(e.err)
	}
	if len(e.fields) > 0 {
		evt = evt.Fields(e.fields)
	}
	return evt
}

func (e *LogEntry) emit(evt *zerolog.Event, message string) {
	e.decorate(evt).Msg(message)
}

func (e *LogEntry) emitf(evt *zerolog.Event, format string, args ...any) {
	e.decorate(evt).Msgf(format, args...)
}

// Global convenience functions

var defaultLogger = New("markethub")

// WithContext creates a log entry with trace correlation from context using the default logger
func WithContext(ctx context.Context) *LogEntry {
	return defaultLogger.WithContext(ctx)
}

// WithFields creates a log entry with fields using the default logger
func WithFields(fields map[string]any) *LogEntry {
	return defaultLogger.WithFields(fields)
}

// Plain creates a basic log entry using the default logger
func Plain() *LogEntry {
	return defaultLogger.Plain()
}

// SetDefaultService sets the service name for the default logger
func SetDefaultService(service string) {
	*defaultLogger = *New(service)
}
