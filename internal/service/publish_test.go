package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/drdator/ccm/internal/repository"
)

func validRequest() PublishRequest {
	return PublishRequest{
		Name:    "hello",
		Version: "1.0.0",
		Files:   []PublishFile{{Filename: "hello.md", Content: "# Hello"}},
	}
}

func strPtr(s string) *string { return &s }

func TestValidatePublish(t *testing.T) {
	manyFiles := make([]PublishFile, maxFiles+1)
	for i := range manyFiles {
		manyFiles[i] = PublishFile{Filename: fmt.Sprintf("f%d.md", i), Content: "x"}
	}
	manyTags := make([]string, maxTags+1)
	for i := range manyTags {
		manyTags[i] = fmt.Sprintf("t%d", i)
	}

	tests := []struct {
		name    string
		modify  func(r *PublishRequest)
		wantMsg string // подстрока сообщения; пусто — запрос валиден
	}{
		{"валидный запрос", func(r *PublishRequest) {}, ""},
		{"prerelease и build", func(r *PublishRequest) { r.Version = "1.0.0-beta.1+exp.sha" }, ""},
		{"вложенный путь", func(r *PublishRequest) {
			r.Files = []PublishFile{{Filename: "git/commit.md", Content: "x"}}
		}, ""},
		{"заглавные буквы в имени", func(r *PublishRequest) { r.Name = "Hello" }, "invalid command name"},
		{"пустое имя", func(r *PublishRequest) { r.Name = "" }, "invalid command name"},
		{"слишком длинное имя", func(r *PublishRequest) { r.Name = strings.Repeat("a", maxNameLen+1) }, "invalid command name"},
		{"версия без patch", func(r *PublishRequest) { r.Version = "1.0" }, "invalid version"},
		{"версия с префиксом v", func(r *PublishRequest) { r.Version = "v1.0.0" }, "invalid version"},
		{"слишком длинная версия", func(r *PublishRequest) { r.Version = "1.0.0-" + strings.Repeat("a", 20) }, "at most 20 characters"},
		{"нет файлов", func(r *PublishRequest) { r.Files = nil }, "at least one file"},
		{"слишком много файлов", func(r *PublishRequest) { r.Files = manyFiles }, "at most 50 files"},
		{"не markdown", func(r *PublishRequest) {
			r.Files = []PublishFile{{Filename: "script.js", Content: "x"}}
		}, `file "script.js" must have a .md extension (only markdown files are allowed)`},
		{"расширение проверяется раньше путей", func(r *PublishRequest) {
			r.Files = []PublishFile{{Filename: "../a.md", Content: "x"}, {Filename: "b.txt", Content: "x"}}
		}, `file "b.txt" must have a .md extension`},
		{"выход из каталога", func(r *PublishRequest) {
			r.Files = []PublishFile{{Filename: "../a.md", Content: "x"}}
		}, "invalid path segment"},
		{"абсолютный путь", func(r *PublishRequest) {
			r.Files = []PublishFile{{Filename: "/etc/a.md", Content: "x"}}
		}, "relative path"},
		{"повтор файла", func(r *PublishRequest) {
			r.Files = []PublishFile{{Filename: "a.md", Content: "x"}, {Filename: "a.md", Content: "y"}}
		}, "listed more than once"},
		{"пустой файл", func(r *PublishRequest) {
			r.Files = []PublishFile{{Filename: "a.md", Content: ""}}
		}, `file "a.md" is empty`},
		{"слишком большой файл", func(r *PublishRequest) {
			r.Files = []PublishFile{{Filename: "a.md", Content: strings.Repeat("x", maxContentLen+1)}}
		}, "exceeds 50000 characters"},
		{"длинное описание", func(r *PublishRequest) { r.Description = strings.Repeat("d", maxDescriptionLen+1) }, "description"},
		{"repository не URL", func(r *PublishRequest) { r.Repository = strPtr("github.com/x/y") }, "repository must be an absolute http(s) URL"},
		{"пустой homepage допустим", func(r *PublishRequest) { r.Homepage = strPtr("") }, ""},
		{"слишком много тегов", func(r *PublishRequest) { r.Tags = manyTags }, "at most 10 tags"},
		{"длинный тег", func(r *PublishRequest) { r.Keywords = []string{strings.Repeat("k", maxTagLen+1)} }, "keywords entry"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.modify(&req)
			err := ValidatePublish(req)
			if tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("ValidatePublish() ошибка: %v", err)
				}
				return
			}
			assertKind(t, err, ErrValidation)
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("сообщение = %q, ожидается подстрока %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestPublish_DuplicateVersionRejected(t *testing.T) {
	env := newTestEnv(t)
	alice := env.author(t, "alice")
	env.mustPublish(t, alice, "hello", "1.0.0")

	req := validRequest()
	req.AuthorID = alice.ID
	_, err := env.publish.Publish(context.Background(), req)
	assertKind(t, err, ErrConflict)
	if got := Message(err, ""); got != "command hello@1.0.0 already exists" {
		t.Errorf("сообщение = %q", got)
	}

	req.Version = "1.0.1"
	if _, err := env.publish.Publish(context.Background(), req); err != nil {
		t.Fatalf("новая версия отклонена: %v", err)
	}
}

// racyPackages скрывает существующие версии от предварительной проверки,
// имитируя конкурентную публикацию.
type racyPackages struct {
	repository.PackageRepository
}

func (racyPackages) Exists(context.Context, string, string) (bool, error) { return false, nil }

func TestPublish_ConflictFromStorage(t *testing.T) {
	env := newTestEnv(t)
	alice := env.author(t, "alice")
	env.mustPublish(t, alice, "hello", "1.0.0")

	svc := NewPublishService(racyPackages{env.store.Repos().Packages}, env.store, env.publish.logger)
	req := validRequest()
	req.AuthorID = alice.ID
	_, err := svc.Publish(context.Background(), req)
	assertKind(t, err, ErrConflict)
	if !errors.Is(err, repository.ErrConflict) {
		t.Errorf("причина не сохранена: %v", err)
	}
}

func TestPublish_AtomicOnFailure(t *testing.T) {
	env := newTestEnv(t)
	alice := env.author(t, "alice")

	diskFull := errors.New("disk full")
	env.store.FailFilesInsert = diskFull

	req := validRequest()
	req.AuthorID = alice.ID
	req.Tags = []string{"git"}
	_, err := env.publish.Publish(context.Background(), req)
	if !errors.Is(err, diskFull) {
		t.Fatalf("ошибка = %v, ожидается %v", err, diskFull)
	}

	packages, files, tags, _ := env.store.Counts()
	if packages != 0 || files != 0 || tags != 0 {
		t.Fatalf("после отката: packages=%d files=%d tags=%d, ожидаются нули", packages, files, tags)
	}
	if _, err := env.resolver.Resolve(context.Background(), "hello", "1.0.0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("частично сохранённый пакет виден: %v", err)
	}

	env.store.FailFilesInsert = nil
	if _, err := env.publish.Publish(context.Background(), req); err != nil {
		t.Fatalf("повторная публикация после отката: %v", err)
	}
}

func TestPublish_StoresFilesAndTags(t *testing.T) {
	env := newTestEnv(t)
	alice := env.author(t, "alice")

	req := validRequest()
	req.AuthorID = alice.ID
	req.Tags = []string{" Git ", "tools"}
	req.Keywords = []string{"git", "CLI", ""}
	req.License = strPtr("  ")
	req.Files = []PublishFile{
		{Filename: "b.md", Content: "bbb"},
		{Filename: "a/nested.md", Content: "abc"},
	}

	pkg, err := env.publish.Publish(context.Background(), req)
	if err != nil {
		t.Fatalf("Publish() ошибка: %v", err)
	}
	if strings.Join(pkg.Tags, ",") != "git,tools,cli" {
		t.Errorf("Tags = %v, ожидается [git tools cli]", pkg.Tags)
	}
	if pkg.License != nil {
		t.Errorf("пустая лицензия должна сохраняться как nil, получено %q", *pkg.License)
	}
	if pkg.Downloads != 0 {
		t.Errorf("Downloads = %d, ожидается 0", pkg.Downloads)
	}

	res, err := env.download.Download(context.Background(), DownloadRequest{Name: "hello", Version: "1.0.0"})
	if err != nil {
		t.Fatalf("Download() ошибка: %v", err)
	}
	if len(res.Files) != 2 || res.Files[0].Filename != "a/nested.md" {
		t.Fatalf("файлы = %+v", res.Files)
	}
	if res.Files[0].ContentHash != ContentHash("abc") {
		t.Errorf("ContentHash = %s", res.Files[0].ContentHash)
	}
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{"B", " a ", "b"}, nil, []string{"", "C", "a"})
	if strings.Join(got, ",") != "b,a,c" {
		t.Errorf("NormalizeTags() = %v, ожидается [b a c]", got)
	}
	if empty := NormalizeTags(); empty == nil || len(empty) != 0 {
		t.Errorf("NormalizeTags() без аргументов = %#v, ожидается пустой срез", empty)
	}
}

func TestContentHash(t *testing.T) {
	const abc = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := ContentHash("abc"); got != abc {
		t.Errorf("ContentHash(abc) = %s, ожидается %s", got, abc)
	}
}
