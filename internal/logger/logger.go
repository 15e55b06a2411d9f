// Package logger is the process-wide structured logger. Output is JSON on
// stdout, or OTLP when MODBOT_OTEL_ENABLED=true. Warnings and errors are
// counted in Prometheus before sampling, so dashboards stay exact when the
// log stream is thinned.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Level = slog.Level

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug
	LevelInfo    = slog.LevelInfo
	LevelWarning = slog.LevelWarn
	LevelError   = slog.LevelError
	LevelFatal   = slog.Level(12)
)

const defaultServiceName = "modbot"

var (
	Logger *slog.Logger
	// sampleRate keeps 1 out of every N warnings and errors
	sampleRate   atomic.Int32
	programLevel = new(slog.LevelVar)
	shutdownFunc func(context.Context) error
)

var logEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_log_events",
	Help: "number of warnings and errors reported, before sampling",
}, []string{"level"})

var httpResponses = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modbot_http_problem_responses",
	Help: "number of HTTP responses that were errors or slow",
}, []string{"kind"})

func init() {
	programLevel.Set(LevelInfo)
	if level, err := ParseLevel(os.Getenv("MODBOT_LOG_LEVEL")); err == nil {
		programLevel.Set(level)
	}

	sampleRate.Store(1)
	if raw := os.Getenv("MODBOT_ERROR_SAMPLE_RATE"); raw != "" {
		if rate, err := strconv.Atoi(raw); err == nil && rate > 0 {
			sampleRate.Store(int32(rate))
		}
	}

	if strings.EqualFold(os.Getenv("MODBOT_OTEL_ENABLED"), "true") {
		serviceName := os.Getenv("OTEL_SERVICE_NAME")
		if serviceName == "" {
			serviceName = defaultServiceName
		}
		shutdown, err := setupOTELLogging(context.Background(), serviceName)
		if err == nil {
			shutdownFunc = shutdown
			return
		}
		fmt.Fprintf(os.Stderr, "OTLP logging unavailable, using JSON: %v\n", err)
	}
	setupJSONLogging()
}

func setupJSONLogging() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: programLevel})
	Logger = slog.New(handler).With("service", defaultServiceName)
	slog.SetDefault(Logger)
}

func setupOTELLogging(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlploggrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	Logger = slog.New(&levelHandler{
		level:   programLevel,
		handler: otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(provider)),
	})
	slog.SetDefault(Logger)

	return provider.Shutdown, nil
}

// levelHandler applies programLevel to handlers that have no level option
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// Shutdown flushes the OTLP exporter when one is in use
func Shutdown(ctx context.Context) error {
	if shutdownFunc != nil {
		return shutdownFunc(ctx)
	}
	return nil
}

func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// SetSampleRate keeps 1 out of every rate warnings and errors. Rates below 1
// are treated as 1.
func SetSampleRate(rate int) {
	if rate < 1 {
		rate = 1
	}
	sampleRate.Store(int32(rate))
}

// ParseLevel converts a level name to slog.Level. An empty name is an error
// so callers can tell "unset" from "info".
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

func shouldSample() bool {
	rate := sampleRate.Load()
	if rate <= 1 {
		return true
	}
	return rand.Intn(int(rate)) == 0
}

func Trace(msg string, args ...any) {
	Logger.Log(context.Background(), LevelTrace, msg, args...)
}

func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn is sampled; the counter is not
func Warn(msg string, args ...any) {
	logEvents.WithLabelValues("warn").Inc()
	if shouldSample() {
		Logger.Warn(msg, args...)
	}
}

// Error is sampled; the counter is not
func Error(msg string, args ...any) {
	logEvents.WithLabelValues("error").Inc()
	if shouldSample() {
		Logger.Error(msg, args...)
	}
}

// Fatal logs, flushes and exits
func Fatal(msg string, args ...any) {
	Logger.Log(context.Background(), LevelFatal, msg, args...)
	if shutdownFunc != nil {
		_ = shutdownFunc(context.Background())
	}
	os.Exit(1)
}

// ErrorHttp5xx counts a server error response
func ErrorHttp5xx() {
	httpResponses.WithLabelValues("5xx").Inc()
}

// WarnHttp4xx counts a client error response, keeping the common codes apart
func WarnHttp4xx(status int) {
	switch status {
	case 400, 404, 409, 429:
		httpResponses.WithLabelValues(strconv.Itoa(status)).Inc()
	default:
		httpResponses.WithLabelValues("4xx").Inc()
	}
}

// WarnSlowRequest counts a request that exceeded the slow threshold
func WarnSlowRequest() {
	httpResponses.WithLabelValues("slow").Inc()
}
