package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/francisco-leal/ModBot/internal/logger"
)

// slowRequest is the latency past which a request is counted as slow
const slowRequest = 2 * time.Second

// requestLogger logs every request through the structured logger and feeds
// the HTTP counters
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", elapsed.String(),
			"requestId", middleware.GetReqID(r.Context()),
		}

		switch {
		case status >= 500:
			logger.ErrorHttp5xx()
			logger.Error("request failed", args...)
		case status >= 400:
			logger.WarnHttp4xx(status)
			logger.Debug("request rejected", args...)
		default:
			logger.Debug("request", args...)
		}

		if elapsed > slowRequest {
			logger.WarnSlowRequest()
			logger.Warn("slow request", args...)
		}
	})
}
