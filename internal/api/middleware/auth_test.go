package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	apierrors "github.com/drdator/ccm/internal/api/errors"
	"github.com/drdator/ccm/internal/domain/model"
	"github.com/drdator/ccm/internal/service"
)

// mockAuthenticator — мок Authenticator на функциональных полях.
type mockAuthenticator struct {
	tokenFn  func(token string) (*model.Identity, error)
	apiKeyFn func(key string) (*model.Identity, error)
}

func (m *mockAuthenticator) AuthenticateToken(_ context.Context, token string) (*model.Identity, error) {
	if m.tokenFn == nil {
		return nil, &service.Error{Kind: service.ErrUnauthorized, Message: "invalid token format"}
	}
	return m.tokenFn(token)
}

func (m *mockAuthenticator) AuthenticateAPIKey(_ context.Context, key string) (*model.Identity, error) {
	if m.apiKeyFn == nil {
		return nil, &service.Error{Kind: service.ErrUnauthorized, Message: "invalid API key"}
	}
	return m.apiKeyFn(key)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// identityEcho — handler, возвращающий имя пользователя из контекста.
var identityEcho = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id := IdentityFromContext(r.Context())
	if id == nil {
		_, _ = w.Write([]byte("anonymous"))
		return
	}
	_, _ = w.Write([]byte(id.Username + "/" + id.Method))
})

func TestAuthRequired(t *testing.T) {
	authn := &mockAuthenticator{
		tokenFn: func(token string) (*model.Identity, error) {
			switch token {
			case "good":
				return &model.Identity{UserID: 1, Username: "alice", Method: "token"}, nil
			case "expired":
				return nil, &service.Error{Kind: service.ErrUnauthorized, Message: "token has expired, please login again"}
			case "db-down":
				return nil, errors.New("connection refused")
			}
			return nil, &service.Error{Kind: service.ErrUnauthorized, Message: "invalid token format"}
		},
		apiKeyFn: func(key string) (*model.Identity, error) {
			if key == "k1" {
				return &model.Identity{UserID: 1, Username: "alice", Method: "api_key"}, nil
			}
			return nil, &service.Error{Kind: service.ErrUnauthorized, Message: "invalid API key"}
		},
	}
	handler := NewAuth(authn, testLogger()).Required()(identityEcho)

	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
		wantBody   string
		wantMsg    string
	}{
		{"без учётных данных", nil, http.StatusUnauthorized, "", "authentication required"},
		{"верный токен", map[string]string{"Authorization": "Bearer good"}, http.StatusOK, "alice/token", ""},
		{"схема в нижнем регистре", map[string]string{"Authorization": "bearer good"}, http.StatusOK, "alice/token", ""},
		{"верный API-ключ", map[string]string{HeaderAPIKey: "k1"}, http.StatusOK, "alice/api_key", ""},
		{"неверный токен, верный ключ", map[string]string{"Authorization": "Bearer bad", HeaderAPIKey: "k1"}, http.StatusOK, "alice/api_key", ""},
		{"истёкший токен", map[string]string{"Authorization": "Bearer expired"}, http.StatusUnauthorized, "", "token has expired, please login again"},
		{"неверный токен", map[string]string{"Authorization": "Bearer bad"}, http.StatusUnauthorized, "", "invalid token format"},
		{"неверный ключ", map[string]string{HeaderAPIKey: "nope"}, http.StatusUnauthorized, "", "invalid API key"},
		{"Basic вместо Bearer", map[string]string{"Authorization": "Basic Zm9vOmJhcg=="}, http.StatusUnauthorized, "", "authentication required"},
		{"ошибка хранилища", map[string]string{"Authorization": "Bearer db-down"}, http.StatusInternalServerError, "", "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("статус = %d, ожидается %d (body: %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, ожидается %q", rec.Body.String(), tt.wantBody)
			}
			if tt.wantMsg != "" {
				var body apierrors.Body
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
					t.Fatalf("некорректный JSON ошибки: %v", err)
				}
				if body.Error.Message != tt.wantMsg {
					t.Errorf("message = %q, ожидается %q", body.Error.Message, tt.wantMsg)
				}
			}
		})
	}
}

func TestAuthOptional(t *testing.T) {
	authn := &mockAuthenticator{
		apiKeyFn: func(key string) (*model.Identity, error) {
			return &model.Identity{UserID: 2, Username: "bob", Method: "api_key"}, nil
		},
	}
	handler := NewAuth(authn, testLogger()).Optional()(identityEcho)

	tests := []struct {
		name     string
		header   string
		value    string
		wantBody string
	}{
		{"анонимно", "", "", "anonymous"},
		{"неверный токен игнорируется", "Authorization", "Bearer junk", "anonymous"},
		{"API-ключ", HeaderAPIKey, "any", "bob/api_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/commands/hello/download", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK || rec.Body.String() != tt.wantBody {
				t.Errorf("ответ = %d %q, ожидается 200 %q", rec.Code, rec.Body.String(), tt.wantBody)
			}
		})
	}
}
