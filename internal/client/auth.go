package client

import (
	"context"
	"net/http"

	"github.com/drdator/ccm/internal/api/dto"
)

// Register создаёт учётную запись.
func (c *Client) Register(ctx context.Context, req dto.RegisterRequest) (*dto.AuthResponse, error) {
	var out dto.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login выполняет вход по имени пользователя или email.
func (c *Client) Login(ctx context.Context, req dto.LoginRequest) (*dto.AuthResponse, error) {
	var out dto.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me — профиль текущего пользователя.
func (c *Client) Me(ctx context.Context) (*dto.User, error) {
	var out dto.MeResponse
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// RegenerateAPIKey выпускает новый API-ключ; прежний перестаёт действовать.
func (c *Client) RegenerateAPIKey(ctx context.Context) (string, error) {
	var out dto.APIKeyResponse
	if err := c.do(ctx, http.MethodPost, "/auth/regenerate-api-key", nil, nil, &out); err != nil {
		return "", err
	}
	return out.APIKey, nil
}
