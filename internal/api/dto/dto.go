// Пакет dto — JSON-представления запросов и ответов API реестра.
// Используется как handlers, так и HTTP-клиентом CLI.
package dto

import (
	"time"

	"github.com/drdator/ccm/internal/domain/model"
)

// Command — опубликованная версия пакета.
type Command struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Version        string    `json:"version"`
	Description    string    `json:"description"`
	Repository     *string   `json:"repository,omitempty"`
	License        *string   `json:"license,omitempty"`
	Homepage       *string   `json:"homepage,omitempty"`
	Category       *string   `json:"category,omitempty"`
	AuthorID       int64     `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	Downloads      int64     `json:"downloads"`
	PublishedAt    time.Time `json:"published_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Tags           []string  `json:"tags"`
}

// Pagination — параметры страницы каталога.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// CommandList — ответ GET /api/commands и /api/commands/search.
type CommandList struct {
	Commands   []Command  `json:"commands"`
	Query      string     `json:"query,omitempty"`
	Pagination Pagination `json:"pagination"`
}

// CommandResponse — ответ GET /api/commands/{name}.
type CommandResponse struct {
	Command Command `json:"command"`
}

// VersionsResponse — ответ GET /api/commands/{name}/versions.
type VersionsResponse struct {
	Name     string    `json:"name"`
	Versions []Command `json:"versions"`
}

// File — файл пакета с содержимым.
type File struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// Download — ответ GET /api/commands/{name}/download.
type Download struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Repository  *string  `json:"repository,omitempty"`
	License     *string  `json:"license,omitempty"`
	Homepage    *string  `json:"homepage,omitempty"`
	Category    *string  `json:"category,omitempty"`
	AuthorID    int64    `json:"author_id"`
	Downloads   int64    `json:"downloads"`
	Tags        []string `json:"tags"`
	Files       []File   `json:"files"`
}

// PublishMetadata — метаданные публикуемой версии.
type PublishMetadata struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description,omitempty"`
	Repository  *string  `json:"repository,omitempty"`
	License     *string  `json:"license,omitempty"`
	Homepage    *string  `json:"homepage,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// PublishRequest — тело POST /api/commands.
type PublishRequest struct {
	Metadata PublishMetadata `json:"metadata"`
	Files    []File          `json:"files"`
}

// PublishResponse — ответ 201 на публикацию.
type PublishResponse struct {
	Message string  `json:"message"`
	Command Command `json:"command"`
}

// RegisterRequest — тело POST /api/auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest — тело POST /api/auth/login. Username — имя или email.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// User — профиль пользователя. APIKey заполняется только владельцу.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	APIKey    string    `json:"api_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthResponse — ответ регистрации и входа.
type AuthResponse struct {
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// MeResponse — ответ GET /api/auth/me.
type MeResponse struct {
	User User `json:"user"`
}

// APIKeyResponse — ответ POST /api/auth/regenerate-api-key.
type APIKeyResponse struct {
	Message string `json:"message"`
	APIKey  string `json:"api_key"`
}

// FromPackage преобразует доменную модель в представление API.
func FromPackage(p *model.Package) Command {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return Command{
		ID:             p.ID,
		Name:           p.Name,
		Version:        p.Version,
		Description:    p.Description,
		Repository:     p.Repository,
		License:        p.License,
		Homepage:       p.Homepage,
		Category:       p.Category,
		AuthorID:       p.AuthorID,
		AuthorUsername: p.AuthorUsername,
		Downloads:      p.Downloads,
		PublishedAt:    p.PublishedAt,
		UpdatedAt:      p.UpdatedAt,
		Tags:           tags,
	}
}

// FromPackages преобразует список пакетов.
func FromPackages(ps []*model.Package) []Command {
	out := make([]Command, 0, len(ps))
	for _, p := range ps {
		out = append(out, FromPackage(p))
	}
	return out
}

// FromUser преобразует пользователя; withKey — включить API-ключ.
func FromUser(u *model.User, withKey bool) User {
	out := User{ID: u.ID, Username: u.Username, Email: u.Email, CreatedAt: u.CreatedAt}
	if withKey {
		out.APIKey = u.APIKey
	}
	return out
}
