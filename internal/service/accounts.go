// accounts.go — регистрация, вход, ротация API-ключа и
// аутентификация запросов по токену или API-ключу.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/drdator/ccm/internal/auth"
	"github.com/drdator/ccm/internal/domain/model"
	"github.com/drdator/ccm/internal/repository"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	minPasswordLen = 6
	maxPasswordLen = 128
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Session — результат регистрации или входа.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

// RegisterRequest — данные регистрации.
type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

// AccountService — учётные записи пользователей.
type AccountService struct {
	users      repository.UserRepository
	tokens     *auth.TokenIssuer
	bcryptCost int
	logger     *slog.Logger
}

// NewAccountService создаёт сервис учётных записей.
func NewAccountService(
	users repository.UserRepository,
	tokens *auth.TokenIssuer,
	bcryptCost int,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		logger:     logger.With(slog.String("component", "account_service")),
	}
}

// Register создаёт пользователя и сразу выпускает токен.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validateRegister(req); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	apiKey, err := auth.GenerateAPIKey()
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		APIKey:       apiKey,
	}
	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateUsername):
			return nil, errorf(ErrConflict, "username already exists")
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, errorf(ErrConflict, "email already exists")
		case errors.Is(err, repository.ErrConflict):
			return nil, wrapf(ErrConflict, err, "account already exists")
		}
		return nil, fmt.Errorf("регистрация пользователя: %w", err)
	}

	s.logger.Info("Пользователь зарегистрирован",
		slog.Int64("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return s.newSession(user)
}

// Login проверяет пароль по username или email и выпускает токен.
// Неверный логин и неверный пароль неразличимы для клиента.
func (s *AccountService) Login(ctx context.Context, login, password string) (*Session, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, errorf(ErrValidation, "username and password are required")
	}

	user, err := s.users.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errorf(ErrUnauthorized, "invalid credentials")
		}
		return nil, fmt.Errorf("поиск пользователя: %w", err)
	}

	ok, err := auth.CheckPassword(user.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn("Неудачная попытка входа", slog.Int64("user_id", user.ID))
		return nil, errorf(ErrUnauthorized, "invalid credentials")
	}

	return s.newSession(user)
}

// GetUser возвращает профиль пользователя.
func (s *AccountService) GetUser(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errorf(ErrNotFound, "user not found")
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return user, nil
}

// RegenerateAPIKey выдаёт новый API-ключ. Прежний ключ недействителен сразу.
func (s *AccountService) RegenerateAPIKey(ctx context.Context, userID int64) (string, error) {
	apiKey, err := auth.GenerateAPIKey()
	if err != nil {
		return "", err
	}
	if err := s.users.UpdateAPIKey(ctx, userID, apiKey); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", errorf(ErrNotFound, "user not found")
		}
		return "", fmt.Errorf("ротация API-ключа: %w", err)
	}

	s.logger.Info("API-ключ перевыпущен", slog.Int64("user_id", userID))
	return apiKey, nil
}

// AuthenticateToken проверяет сессионный токен и существование пользователя.
func (s *AccountService) AuthenticateToken(ctx context.Context, token string) (*model.Identity, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, wrapf(ErrUnauthorized, err, "token has expired, please login again")
		}
		return nil, wrapf(ErrUnauthorized, err, "invalid token format")
	}
	userID, _ := claims.UserID()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errorf(ErrUnauthorized, "user no longer exists")
		}
		return nil, fmt.Errorf("проверка токена: %w", err)
	}
	return &model.Identity{UserID: user.ID, Username: user.Username, Method: "token"}, nil
}

// AuthenticateAPIKey находит владельца API-ключа.
func (s *AccountService) AuthenticateAPIKey(ctx context.Context, apiKey string) (*model.Identity, error) {
	user, err := s.users.GetByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errorf(ErrUnauthorized, "invalid API key")
		}
		return nil, fmt.Errorf("проверка API-ключа: %w", err)
	}
	return &model.Identity{UserID: user.ID, Username: user.Username, Method: "api_key"}, nil
}

func (s *AccountService) newSession(user *model.User) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func validateRegister(req RegisterRequest) error {
	if n := len(req.Username); n < minUsernameLen || n > maxUsernameLen {
		return errorf(ErrValidation, "username must be %d-%d characters", minUsernameLen, maxUsernameLen)
	}
	if !usernamePattern.MatchString(req.Username) {
		return errorf(ErrValidation, "username may contain only letters, digits, underscores and hyphens")
	}
	addr, err := mail.ParseAddress(req.Email)
	if err != nil || addr.Address != req.Email {
		return errorf(ErrValidation, "email must be a valid address")
	}
	if n := len(req.Password); n < minPasswordLen || n > maxPasswordLen {
		return errorf(ErrValidation, "password must be %d-%d characters", minPasswordLen, maxPasswordLen)
	}
	return nil
}
