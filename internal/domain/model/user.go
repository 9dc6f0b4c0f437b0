package model

import "time"

// User — учётная запись реестра.
type User struct {
	ID       int64
	Username string
	Email    string
	// PasswordHash — bcrypt-хэш пароля
	PasswordHash string
	// APIKey — ротируемый ключ для X-API-Key, уникален
	APIKey    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity — аутентифицированный субъект запроса.
type Identity struct {
	UserID   int64
	Username string
	// Method — способ аутентификации: "token" или "api_key"
	Method string
}
