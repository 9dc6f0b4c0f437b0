package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	api := rl.Middleware("")(okHandler)
	authAPI := rl.Middleware(ScopeAuth)(okHandler)

	do := func(h http.Handler, addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/commands", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := do(api, "10.0.0.1:1234"); rec.Code != http.StatusOK {
			t.Fatalf("запрос %d: статус %d, ожидается 200", i+1, rec.Code)
		}
	}

	rec := do(api, "10.0.0.1:5555")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("третий запрос: статус %d, ожидается 429", rec.Code)
	}
	if got, _ := strconv.Atoi(rec.Header().Get("Retry-After")); got < 29 || got > 31 {
		t.Errorf("Retry-After = %q, ожидается около 30", rec.Header().Get("Retry-After"))
	}

	if rec := do(api, "10.0.0.2:1234"); rec.Code != http.StatusOK {
		t.Errorf("другой клиент: статус %d, ожидается 200", rec.Code)
	}
	if rec := do(authAPI, "10.0.0.1:1234"); rec.Code != http.StatusOK {
		t.Errorf("маршруты auth считаются отдельно: статус %d, ожидается 200", rec.Code)
	}

	now = now.Add(31 * time.Second)
	if rec := do(api, "10.0.0.1:1234"); rec.Code != http.StatusOK {
		t.Errorf("после пополнения: статус %d, ожидается 200", rec.Code)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/commands", "/api/commands"},
		{"/api/commands/search", "/api/commands/search"},
		{"/api/commands/hello", "/api/commands/{name}"},
		{"/api/commands/hello/versions", "/api/commands/{name}/versions"},
		{"/api/commands/hello/download", "/api/commands/{name}/download"},
		{"/api/commands/hello/unknown", "other"},
		{"/api/auth/login", "/api/auth/login"},
		{"/health/ready", "/health/ready"},
		{"/random/scan", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.want {
				t.Errorf("normalizePath(%q) = %q, ожидается %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rec.Header().Get(HeaderRequestID) != seen {
		t.Errorf("сгенерированный id = %q, заголовок = %q", seen, rec.Header().Get(HeaderRequestID))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc-123" || rec.Header().Get(HeaderRequestID) != "abc-123" {
		t.Errorf("входящий id не сохранён: %q", seen)
	}
}
