package middleware

import (
	"net/http"
	"time"

	"github.com/kbukum/infermesh/httpclient"
	"github.com/kbukum/infermesh/logger"
	"github.com/kbukum/infermesh/observability"
)

// RequestLogger logs every request with method, path, status code and
// duration and response size, and records it in metrics. /health is counted but not logged.
func RequestLogger(log *logger.Logger, metrics *observability.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)
			duration := time.Since(start)

			metrics.RecordRequest(r.Context(), r.Method, r.URL.Path, sw.status, duration)
			if r.URL.Path == "/health" {
				return
			}

			fields := logger.DurationFields(duration,
				"method", r.Method,
				"path", r.URL.Path,
				logger.FieldStatus, sw.status,
			)
			if id := r.Header.Get(httpclient.HeaderRequestID); id != "" {
				fields["request_id"] = id
			}
			logByStatus(log, fields, sw.status)
		})
	}
}

// logByStatus logs request fields at the level matching the status code.
func logByStatus(log *logger.Logger, fields map[string]interface{}, status int) {
	switch {
	case status >= 500:
		log.Error("request completed", fields)
	case status >= 400:
		log.Warn("request completed", fields)
	default:
		log.Debug("request completed", fields)
	}
}
