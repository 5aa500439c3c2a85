// Package logging provides structured logging with cycle/phase context
// for the worker core.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carried through the main loop.
type ContextKey string

const (
	// CycleIDKey correlates every log line emitted during one main-loop
	// cycle.
	CycleIDKey ContextKey = "cycle_id"
	// RequestIDKey correlates log lines for one request's journey through
	// Discovery -> Eligibility -> Claim -> Executor -> Deliverer.
	RequestIDKey ContextKey = "request_id"
	// PhaseKey names the current component (A-I) emitting the line.
	PhaseKey ContextKey = "phase"
)

// Logger wraps logrus.Logger with worker-specific context helpers.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a Logger for the named component ("cycle", "discovery",
// "executor", ...).
func New(component, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if strings.ToLower(format) == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, component: component}
}

// NewFromEnv builds a Logger from LOG_LEVEL / LOG_FORMAT, defaulting to
// info/json.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(component, level, format)
}

// WithContext attaches cycle/request/phase fields found on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)
	if v := ctx.Value(CycleIDKey); v != nil {
		entry = entry.WithField("cycle_id", v)
	}
	if v := ctx.Value(RequestIDKey); v != nil {
		entry = entry.WithField("request_id", v)
	}
	if v := ctx.Value(PhaseKey); v != nil {
		entry = entry.WithField("phase", v)
	}
	return entry
}

// WithFields creates a logger entry with the component field plus custom
// fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}

// WithError creates a logger entry carrying the component field and the
// error.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"component": l.component,
		"error":     err.Error(),
	})
}

// NewCycleID generates a fresh correlation id for one main-loop cycle.
func NewCycleID() string {
	return uuid.New().String()
}

// WithCycleID stores a cycle id on ctx.
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, CycleIDKey, cycleID)
}

// WithRequestID stores a request id on ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithPhase stores the active component name on ctx.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, PhaseKey, phase)
}
