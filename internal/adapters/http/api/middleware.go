package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/trustledger/pkg/metrics"
)

// MetricsMiddleware records request count and latency for endpoint, and an
// error breakdown for 4xx and 5xx answers.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := metrics.Since(start)
		code := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, elapsed)

		if kind, severity, ok := classifyStatus(rec.status); ok {
			metrics.RecordErrorByEndpoint(endpoint, r.Method, kind)
			metrics.RecordErrorByType(kind, severity)
			metrics.RecordErrorLatency("http", kind, elapsed)
		}
	}
}

// classifyStatus maps the statuses the handlers emit to an error kind and
// severity. Rejected input is the caller's fault; a 500 means a service
// fault the ledger pipeline should never cause.
func classifyStatus(status int) (kind, severity string, ok bool) {
	switch {
	case status < http.StatusBadRequest:
		return "", "", false
	case status == http.StatusBadRequest:
		return "invalid_request", "low", true
	case status == http.StatusNotFound:
		return "not_found", "low", true
	case status < http.StatusInternalServerError:
		return "client_error", "medium", true
	default:
		return "server_error", "high", true
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
