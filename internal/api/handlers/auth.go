// auth.go — обработчики /api/auth endpoints.
package handlers

import (
	"net/http"

	"github.com/drdator/ccm/internal/api/dto"
	apierrors "github.com/drdator/ccm/internal/api/errors"
	"github.com/drdator/ccm/internal/api/middleware"
	"github.com/drdator/ccm/internal/service"
)

// Register — POST /api/auth/register.
// Ответ содержит токен и API-ключ нового пользователя.
func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	var body dto.RegisterRequest
	if err := decodeJSON(w, r, &body); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	session, err := h.accounts.Register(r.Context(), service.RegisterRequest{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "register")
		return
	}

	writeJSON(w, http.StatusCreated, dto.AuthResponse{
		Message:   "user registered successfully",
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      dto.FromUser(session.User, true),
	})
}

// Login — POST /api/auth/login по имени пользователя или email.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body dto.LoginRequest
	if err := decodeJSON(w, r, &body); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	session, err := h.accounts.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		h.writeServiceError(w, r, err, "login")
		return
	}

	writeJSON(w, http.StatusOK, dto.AuthResponse{
		Message:   "login successful",
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      dto.FromUser(session.User, false),
	})
}

// Me — GET /api/auth/me. Профиль владельца вместе с API-ключом.
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromContext(r.Context())
	if id == nil {
		apierrors.Unauthorized(w, "authentication required")
		return
	}

	user, err := h.accounts.GetUser(r.Context(), id.UserID)
	if err != nil {
		h.writeServiceError(w, r, err, "me")
		return
	}

	writeJSON(w, http.StatusOK, dto.MeResponse{User: dto.FromUser(user, true)})
}

// RegenerateAPIKey — POST /api/auth/regenerate-api-key.
func (h *APIHandler) RegenerateAPIKey(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromContext(r.Context())
	if id == nil {
		apierrors.Unauthorized(w, "authentication required")
		return
	}

	key, err := h.accounts.RegenerateAPIKey(r.Context(), id.UserID)
	if err != nil {
		h.writeServiceError(w, r, err, "regenerate_api_key")
		return
	}

	writeJSON(w, http.StatusOK, dto.APIKeyResponse{
		Message: "API key generated successfully",
		APIKey:  key,
	})
}
