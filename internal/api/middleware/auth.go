// auth.go — аутентификация запросов к API реестра.
// Принимается сессионный токен (Authorization: Bearer <jwt>) или
// API-ключ (X-API-Key: <key>); достаточно любого из двух.
// Идентичность пользователя помещается в контекст для handlers.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/drdator/ccm/internal/api/errors"
	"github.com/drdator/ccm/internal/domain/model"
	"github.com/drdator/ccm/internal/service"
)

// HeaderAPIKey — заголовок с API-ключом.
const HeaderAPIKey = "X-API-Key"

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyIdentity — идентичность аутентифицированного пользователя.
	ContextKeyIdentity contextKey = "identity"
)

// Authenticator проверяет учётные данные запроса.
// Реализуется service.AccountService.
type Authenticator interface {
	AuthenticateToken(ctx context.Context, token string) (*model.Identity, error)
	AuthenticateAPIKey(ctx context.Context, apiKey string) (*model.Identity, error)
}

// Auth — middleware аутентификации.
type Auth struct {
	authn  Authenticator
	logger *slog.Logger
}

// NewAuth создаёт middleware аутентификации.
func NewAuth(authn Authenticator, logger *slog.Logger) *Auth {
	return &Auth{
		authn:  authn,
		logger: logger.With(slog.String("component", "auth_middleware")),
	}
}

// Required пропускает только аутентифицированные запросы.
// Без учётных данных — 401 "authentication required".
func (a *Auth) Required() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.authenticate(r)
			switch {
			case err == nil && id == nil:
				apierrors.Unauthorized(w, "authentication required")
				return
			case errors.Is(err, service.ErrUnauthorized):
				apierrors.Unauthorized(w, service.Message(err, "authentication failed"))
				return
			case err != nil:
				a.logger.Error("Ошибка аутентификации", slog.String("error", err.Error()))
				apierrors.InternalError(w, "internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// Optional прикрепляет идентичность, если учётные данные верны.
// Неверные или отсутствующие учётные данные — анонимный запрос.
func (a *Auth) Optional() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.authenticate(r)
			if err != nil {
				a.logger.Debug("Учётные данные отклонены, запрос анонимный",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
			}
			if id != nil {
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate проверяет сначала Bearer token, затем API-ключ.
// (nil, nil) — учётные данные не переданы.
func (a *Auth) authenticate(r *http.Request) (*model.Identity, error) {
	token := bearerToken(r.Header.Get("Authorization"))
	apiKey := strings.TrimSpace(r.Header.Get(HeaderAPIKey))
	if token == "" && apiKey == "" {
		return nil, nil
	}

	var firstErr error
	if token != "" {
		id, err := a.authn.AuthenticateToken(r.Context(), token)
		if err == nil {
			return id, nil
		}
		firstErr = err
	}
	if apiKey != "" {
		id, err := a.authn.AuthenticateAPIKey(r.Context(), apiKey)
		if err == nil {
			return id, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// --- Context helpers ---

// WithIdentity возвращает контекст с идентичностью пользователя.
func WithIdentity(ctx context.Context, id *model.Identity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, id)
}

// IdentityFromContext извлекает идентичность из контекста запроса.
// Возвращает nil для анонимных запросов.
func IdentityFromContext(ctx context.Context) *model.Identity {
	id, _ := ctx.Value(ContextKeyIdentity).(*model.Identity)
	return id
}
