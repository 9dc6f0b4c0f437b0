// handler.go — основной обработчик API реестра.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/oapi-codegen/runtime"

	apierrors "github.com/drdator/ccm/internal/api/errors"
	"github.com/drdator/ccm/internal/service"
)

// maxBodyBytes — ограничение размера тела запроса.
const maxBodyBytes = 5 << 20

// APIHandler — обработчик маршрутов /api.
type APIHandler struct {
	resolver *service.ResolverService
	publish  *service.PublishService
	download *service.DownloadService
	accounts *service.AccountService
	logger   *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	resolver *service.ResolverService,
	publish *service.PublishService,
	download *service.DownloadService,
	accounts *service.AccountService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		resolver: resolver,
		publish:  publish,
		download: download,
		accounts: accounts,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает тело запроса в dst. Неизвестные поля и
// лишние данные после объекта отклоняются.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
		}
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid JSON: %v", err)
	}
	if dec.More() {
		return errors.New("invalid JSON: unexpected data after object")
	}
	return nil
}

// bindQuery связывает необязательный query-параметр (form style).
func bindQuery(r *http.Request, name string, dest any) error {
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), dest); err != nil {
		return fmt.Errorf("invalid query parameter %s", name)
	}
	return nil
}

// bindPage связывает limit и offset.
func bindPage(r *http.Request) (limit, offset int, err error) {
	if err := bindQuery(r, "limit", &limit); err != nil {
		return 0, 0, err
	}
	if err := bindQuery(r, "offset", &offset); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

// writeServiceError отображает ошибку сервиса в HTTP-ответ.
// Причина внутренних ошибок только логируется.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, service.Message(err, "invalid request"))
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, service.Message(err, "not found"))
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, service.Message(err, "already exists"))
	case errors.Is(err, service.ErrUnauthorized):
		apierrors.Unauthorized(w, service.Message(err, "unauthorized"))
	default:
		h.logger.ErrorContext(r.Context(), "Ошибка обработки запроса",
			slog.String("op", op),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "internal server error")
	}
}
