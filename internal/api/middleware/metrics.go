// metrics.go — Prometheus HTTP метрики API реестра.
// Регистрирует метрики: ccm_http_requests_total, ccm_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ccm_http_requests_total",
			Help: "Общее количество HTTP-запросов к API реестра",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ccm_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к API реестра в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Имена пакетов заменяются на {name}, чтобы ограничить кардинальность
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// normalizePath заменяет имя пакета в пути на {name}.
// /api/commands/hello/versions → /api/commands/{name}/versions
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/openapi.yaml",
		"/api/commands",
		"/api/commands/search",
		"/api/auth/register",
		"/api/auth/login",
		"/api/auth/me",
		"/api/auth/regenerate-api-key":
		return path
	}

	const prefix = "/api/commands/"
	if !strings.HasPrefix(path, prefix) {
		return "other"
	}
	rest := strings.TrimPrefix(path, prefix)
	name, suffix, found := strings.Cut(rest, "/")
	if name == "" {
		return "other"
	}
	if !found {
		return prefix + "{name}"
	}
	switch suffix {
	case "versions", "download":
		return prefix + "{name}/" + suffix
	default:
		return "other"
	}
}
