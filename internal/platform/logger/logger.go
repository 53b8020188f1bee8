// Package logger wraps logrus with the field conventions the rest of the
// gateway relies on: structured fields, a context-carried trace id, and a
// handful of environment-driven presets for local vs. production output.
package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a thin wrapper so call sites depend on this package rather than
// logrus directly.
type Logger struct {
	*logrus.Logger
}

// Config controls format and destination.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // text, json
	Output     string // stdout, stderr, or a file path
	FilePrefix string
}

// New builds a Logger from Config, defaulting to info/text/stdout.
func New(cfg Config) (*Logger, error) {
	l := logrus.New()

	level, err := logrus.ParseLevel(defaultString(cfg.Level, "info"))
	if err != nil {
		return nil, err
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer
	switch strings.ToLower(defaultString(cfg.Output, "stdout")) {
	case "stderr":
		out = os.Stderr
	case "stdout", "":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		out = f
	}
	l.SetOutput(out)

	return &Logger{Logger: l}, nil
}

// NewDefault returns a text/stdout/info logger for use before
// configuration has loaded. The name argument is not attached to the
// lines the returned logger writes.
func NewDefault(name string) *Logger {
	l, _ := New(Config{Level: "info", Format: "text", Output: "stdout"})
	return &Logger{Logger: l.WithField("service", name).Logger}
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// ctxKey is the context-value namespace for fields this package injects.
type ctxKey int

const (
	TraceIDKey ctxKey = iota
	UserIDKey
	RoleKey
	ServiceKey
)

// WithContext builds a logrus.Entry pre-populated with whichever of
// trace_id/user_id/role/service are present on ctx, so call sites never
// have to thread them through manually.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	fields := logrus.Fields{}
	if v, ok := ctx.Value(TraceIDKey).(string); ok && v != "" {
		fields["trace_id"] = v
	}
	if v, ok := ctx.Value(UserIDKey).(string); ok && v != "" {
		fields["user_id"] = v
	}
	if v, ok := ctx.Value(RoleKey).(string); ok && v != "" {
		fields["role"] = v
	}
	if v, ok := ctx.Value(ServiceKey).(string); ok && v != "" {
		fields["service"] = v
	}
	return l.Logger.WithFields(fields)
}

// ContextWithTrace returns a derived context carrying the given trace id,
// for handlers to seed at the request boundary.
func ContextWithTrace(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// ContextWithUser returns a derived context carrying user id and role.
func ContextWithUser(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, RoleKey, role)
}
