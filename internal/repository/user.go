package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/drdator/ccm/internal/domain/model"
)

// UserRepository — доступ к таблице users.
type UserRepository interface {
	// Create регистрирует пользователя. Дубликаты — ErrDuplicateUsername / ErrDuplicateEmail.
	Create(ctx context.Context, u *model.User) error
	// GetByID возвращает пользователя по id.
	GetByID(ctx context.Context, id int64) (*model.User, error)
	// GetByLogin ищет по username или email (email без учёта регистра).
	GetByLogin(ctx context.Context, login string) (*model.User, error)
	// GetByAPIKey ищет владельца API-ключа.
	GetByAPIKey(ctx context.Context, apiKey string) (*model.User, error)
	// UpdateAPIKey заменяет API-ключ; прежний ключ перестаёт действовать сразу.
	UpdateAPIKey(ctx context.Context, id int64, apiKey string) error
}

const userColumns = `id, username, email, password_hash, api_key, created_at, updated_at`

type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash, api_key)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		u.Username, u.Email, u.PasswordHash, u.APIKey,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if c, ok := uniqueViolation(err); ok {
			switch c {
			case "users_username_key":
				return ErrDuplicateUsername
			case "users_email_key":
				return ErrDuplicateEmail
			default:
				return fmt.Errorf("%w: %s", ErrConflict, c)
			}
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *userRepo) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	return r.getOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1 OR lower(email) = lower($1) LIMIT 1`,
		login,
	)
}

func (r *userRepo) GetByAPIKey(ctx context.Context, apiKey string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE api_key = $1`, apiKey)
}

func (r *userRepo) UpdateAPIKey(ctx context.Context, id int64, apiKey string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET api_key = $2, updated_at = now() WHERE id = $1`, id, apiKey)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: api_key", ErrConflict)
		}
		return fmt.Errorf("ошибка обновления API-ключа: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) getOne(ctx context.Context, query string, args ...any) (*model.User, error) {
	u := &model.User{}
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.APIKey, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}
