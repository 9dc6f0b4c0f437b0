package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/drdator/ccm/internal/auth"
	"github.com/drdator/ccm/internal/domain/model"
	"github.com/drdator/ccm/internal/repository/memrepo"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// testEnv — сервисы поверх хранилища в памяти.
type testEnv struct {
	store    *memrepo.Store
	resolver *ResolverService
	publish  *PublishService
	download *DownloadService
	accounts *AccountService
	tokens   *auth.TokenIssuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memrepo.New()
	repos := store.Repos()

	tokens := auth.NewTokenIssuer(testSecret, time.Hour)

	resolver := NewResolverService(repos.Packages, repos.Tags, logger)
	return &testEnv{
		store:    store,
		resolver: resolver,
		publish:  NewPublishService(repos.Packages, store, logger),
		download: NewDownloadService(resolver, repos.Files, store, logger),
		// минимальная стоимость bcrypt ускоряет тесты
		accounts: NewAccountService(repos.Users, tokens, 4, logger),
		tokens:   tokens,
	}
}

// author создаёт пользователя-автора.
func (e *testEnv) author(t *testing.T, username string) *model.User {
	t.Helper()
	u := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		APIKey:       "key-" + username,
	}
	if err := e.store.Repos().Users.Create(context.Background(), u); err != nil {
		t.Fatalf("создание пользователя: %v", err)
	}
	return u
}

// mustPublish публикует пакет с одним файлом.
func (e *testEnv) mustPublish(t *testing.T, author *model.User, name, version string, tags ...string) *model.Package {
	t.Helper()
	pkg, err := e.publish.Publish(context.Background(), PublishRequest{
		Name:           name,
		Version:        version,
		Description:    "description of " + name,
		Tags:           tags,
		Files:          []PublishFile{{Filename: "hello.md", Content: "# " + name + " " + version}},
		AuthorID:       author.ID,
		AuthorUsername: author.Username,
	})
	if err != nil {
		t.Fatalf("Publish(%s@%s): %v", name, version, err)
	}
	return pkg
}

func assertKind(t *testing.T, err, kind error) {
	t.Helper()
	if err == nil {
		t.Fatalf("ожидалась ошибка %v, получено nil", kind)
	}
	if !errors.Is(err, kind) {
		t.Fatalf("ожидалась ошибка вида %v, получено %v", kind, err)
	}
}
