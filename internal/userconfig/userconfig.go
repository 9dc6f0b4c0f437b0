// Пакет userconfig — пользовательская конфигурация CLI (~/.ccm/config.toml):
// адрес реестра и учётные данные.
package userconfig

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultRegistry — реестр по умолчанию, если не задан CCM_REGISTRY_URL.
const DefaultRegistry = "https://claudecommands.dev/api"

// ErrUnknownKey — неизвестный ключ для --get / --set.
var ErrUnknownKey = errors.New("unknown config key")

// Config — содержимое config.toml.
type Config struct {
	Registry string `toml:"registry"`
	Token    string `toml:"token,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
	Username string `toml:"username,omitempty"`
}

// Authenticated — сохранён ли токен или API-ключ.
func (c *Config) Authenticated() bool {
	return c.Token != "" || c.APIKey != ""
}

// ClearAuth удаляет учётные данные (logout).
func (c *Config) ClearAuth() {
	c.Token = ""
	c.APIKey = ""
	c.Username = ""
}

// Get возвращает значение ключа: registry, username, authenticated.
func (c *Config) Get(key string) (string, error) {
	switch strings.ToLower(key) {
	case "registry", "registryurl":
		return c.Registry, nil
	case "username":
		return c.Username, nil
	case "authenticated":
		return strconv.FormatBool(c.Authenticated()), nil
	default:
		return "", fmt.Errorf("%w: %s (available keys: registry, username, authenticated)", ErrUnknownKey, key)
	}
}

// Set изменяет ключ. Изменяемый ключ один — registry.
func (c *Config) Set(key, value string) error {
	switch strings.ToLower(key) {
	case "registry", "registryurl":
		registry, err := NormalizeRegistry(value)
		if err != nil {
			return err
		}
		c.Registry = registry
		return nil
	default:
		return fmt.Errorf("%w: %s (settable keys: registry)", ErrUnknownKey, key)
	}
}

// NormalizeRegistry дополняет адрес схемой https:// и суффиксом /api.
func NormalizeRegistry(raw string) (string, error) {
	s := strings.TrimRight(strings.TrimSpace(raw), "/")
	if s == "" {
		return "", errors.New("registry URL is empty")
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}
	if !strings.HasSuffix(s, "/api") {
		s += "/api"
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid registry URL: %s", raw)
	}
	return s, nil
}

// Store — файл конфигурации на диске.
type Store struct {
	path            string
	defaultRegistry string
}

// DefaultPath возвращает ~/.ccm/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("определение домашнего каталога: %w", err)
	}
	return filepath.Join(home, ".ccm", "config.toml"), nil
}

// NewStore создаёт хранилище. defaultRegistry подставляется,
// если в файле адрес не задан; пустое значение — DefaultRegistry.
func NewStore(path, defaultRegistry string) *Store {
	if defaultRegistry == "" {
		defaultRegistry = DefaultRegistry
	}
	return &Store{path: path, defaultRegistry: defaultRegistry}
}

// Path — путь к файлу конфигурации.
func (s *Store) Path() string {
	return s.path
}

// Load читает конфигурацию. Отсутствующий файл — значения по умолчанию.
func (s *Store) Load() (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(s.path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("чтение %s: %w", s.path, err)
	}
	if cfg.Registry == "" {
		cfg.Registry = s.defaultRegistry
	}
	return cfg, nil
}

// Save атомарно записывает конфигурацию с правами 0600.
func (s *Store) Save(cfg *Config) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("создание %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("создание временного файла: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("права временного файла: %w", err)
	}
	if err := toml.NewEncoder(tmp).Encode(cfg); err != nil {
		tmp.Close()
		return fmt.Errorf("кодирование конфигурации: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("закрытие временного файла: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("сохранение %s: %w", s.path, err)
	}
	return nil
}
