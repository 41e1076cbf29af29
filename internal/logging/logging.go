// Package logging provides structured logging with zap. Request-scoped
// loggers travel in the context and pick up the request id and, once a
// token is checked, the share connection the request acts for.
package logging

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey struct{}

var global = zap.NewNop()

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // stdout, stderr, or file path
}

// Init builds the global logger. An unknown level falls back to info.
func Init(cfg Config) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	if cfg.Format == "console" {
		config = zap.NewDevelopmentConfig()
	}
	config.Level = zap.NewAtomicLevelAt(level)
	if cfg.OutputPath != "" {
		config.OutputPaths = []string{cfg.OutputPath}
	}

	logger, err := config.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return err
	}
	global = logger
	return nil
}

// InitNop discards all output. It is the state before Init.
func InitNop() {
	global = zap.NewNop()
}

// Sync flushes any buffered log entries.
func Sync() error {
	return global.Sync()
}

// WithContext returns the request-scoped logger, or the global one.
func WithContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*zap.Logger); ok {
		return logger
	}
	return global
}

// WithConnection tags every later log line of ctx with the share
// connection id.
func WithConnection(ctx context.Context, connectionID string) context.Context {
	return with(ctx, ConnectionID(connectionID))
}

// ConnectionID is the field used for share connection ids.
func ConnectionID(id string) zap.Field {
	return zap.String("connection_id", id)
}

func with(ctx context.Context, fields ...zap.Field) context.Context {
	return context.WithValue(ctx, contextKey{}, WithContext(ctx).With(fields...))
}

func Debug(msg string, fields ...zap.Field) { global.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { global.Info(msg, fields...) }
func Error(msg string, fields ...zap.Field) { global.Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { global.Fatal(msg, fields...) }

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int64
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += int64(n)
	return n, err
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware gives every request a logger carrying its request id (taken
// from X-Request-ID or generated) and logs one line when it completes.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := with(r.Context(), zap.String("request_id", requestID))
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(ctx))

		WithContext(ctx).Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.status),
			zap.Int64("size", rw.size),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
