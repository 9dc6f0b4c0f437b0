package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"валидное тело", `{"name":"x"}`, ""},
		{"пустое тело", ``, "request body is required"},
		{"неизвестное поле", `{"name":"x","extra":1}`, "invalid JSON"},
		{"данные после объекта", `{"name":"x"}{"name":"y"}`, "unexpected data after object"},
		{"слишком большое тело", `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`, "exceeds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst payload
			err := decodeJSON(httptest.NewRecorder(), req, &dst)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("decodeJSON() ошибка: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ошибка = %v, ожидается подстрока %q", err, tt.wantErr)
			}
		})
	}
}

func TestBindPage(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
		wantErr    bool
	}{
		{"", 0, 0, false},
		{"limit=10&offset=5", 10, 5, false},
		{"limit=abc", 0, 0, true},
		{"offset=1.5", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/commands?"+tt.query, nil)
			limit, offset, err := bindPage(req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("bindPage() ошибка = %v, wantErr = %v", err, tt.wantErr)
			}
			if !tt.wantErr && (limit != tt.wantLimit || offset != tt.wantOffset) {
				t.Errorf("bindPage() = %d, %d; ожидается %d, %d", limit, offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

type stubChecker struct{ status, msg string }

func (s stubChecker) CheckReady() (string, string) { return s.status, s.msg }

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		checker    ReadinessChecker
		wantStatus int
		wantValue  string
	}{
		{"PostgreSQL доступен", stubChecker{"ok", "подключение активно"}, http.StatusOK, "ok"},
		{"PostgreSQL недоступен", stubChecker{"fail", "timeout"}, http.StatusServiceUnavailable, "fail"},
		{"checker не задан", nil, http.StatusServiceUnavailable, "fail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.checker)
			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("статус = %d, ожидается %d", rec.Code, tt.wantStatus)
			}
			var resp healthReadyResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("некорректный JSON: %v", err)
			}
			if resp.Status != tt.wantValue || resp.Service != serviceName {
				t.Errorf("ответ = %+v", resp)
			}
		})
	}
}
