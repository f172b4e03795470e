// Package logging provides structured logging shared by every subsystem.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carried through request-scoped logging.
type ContextKey string

const (
	AccountKey ContextKey = "account"
	WorldKey   ContextKey = "world"
	WorkerKey  ContextKey = "worker"
)

// Logger wraps logrus.Logger with agent-specific field conventions.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a Logger for the named component ("session", "login", "supervisor", ...).
func New(component, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
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

// NewFromEnv builds a Logger using LOG_LEVEL / LOG_FORMAT, defaulting to info/text
// since this agent's primary audience is a human watching a terminal, not a log shipper.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "text"
	}
	return New(component, level, format)
}

// WithContext returns an entry enriched with account/world/worker fields, if present.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)
	if account := ctx.Value(AccountKey); account != nil {
		entry = entry.WithField("account", account)
	}
	if world := ctx.Value(WorldKey); world != nil {
		entry = entry.WithField("world", world)
	}
	if worker := ctx.Value(WorkerKey); worker != nil {
		entry = entry.WithField("worker", worker)
	}
	return entry
}

// WithFields returns an entry with the component field plus the given fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}

// WithError returns an entry with the component field and the error attached.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"component": l.component}).WithError(err)
}

// Default builds a component logger from LOG_LEVEL/LOG_FORMAT and returns
// its base entry, for call sites that just want a ready-to-use
// *logrus.Entry without holding onto the Logger wrapper themselves.
func Default(component string) *logrus.Entry {
	return NewFromEnv(component).WithFields(nil)
}

// NewRequestID generates an opaque id for correlating diagnostic ring-buffer
// entries with log lines, mirroring the trace-id convention the ambient
// logging stack already uses for HTTP request correlation.
func NewRequestID() string {
	return uuid.New().String()
}

// WithAccount attaches an account label to ctx for downstream logging.
func WithAccount(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, AccountKey, account)
}

// WithWorld attaches a world label to ctx for downstream logging.
func WithWorld(ctx context.Context, world string) context.Context {
	return context.WithValue(ctx, WorldKey, world)
}

// WithWorker attaches a worker label (pid or label) to ctx for downstream logging.
func WithWorker(ctx context.Context, worker string) context.Context {
	return context.WithValue(ctx, WorkerKey, worker)
}
