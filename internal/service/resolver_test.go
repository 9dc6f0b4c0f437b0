package service

import (
	"context"
	"strings"
	"testing"
)

func TestResolve_LatestIsMostRecentlyPublished(t *testing.T) {
	env := newTestEnv(t)
	alice := env.author(t, "alice")
	ctx := context.Background()

	env.mustPublish(t, alice, "hello", "2.0.0")
	env.mustPublish(t, alice, "hello", "1.0.0")

	pkg, err := env.resolver.Resolve(ctx, "hello", "")
	if err != nil {
		t.Fatalf("Resolve() ошибка: %v", err)
	}
	if pkg.Version != "1.0.0" {
		t.Errorf("последняя версия = %s, ожидается 1.0.0 (опубликована позже)", pkg.Version)
	}
	if pkg.AuthorUsername != "alice" {
		t.Errorf("AuthorUsername = %q, ожидается alice", pkg.AuthorUsername)
	}

	exact, err := env.resolver.Resolve(ctx, "hello", "2.0.0")
	if err != nil {
		t.Fatalf("Resolve(2.0.0) ошибка: %v", err)
	}
	if exact.Version != "2.0.0" {
		t.Errorf("Version = %s, ожидается 2.0.0", exact.Version)
	}
}

func TestResolve_NotFound(t *testing.T) {
	env := newTestEnv(t)
	env.mustPublish(t, env.author(t, "alice"), "hello", "1.0.0")

	tests := []struct {
		name    string
		pkg     string
		version string
		message string
	}{
		{"неизвестное имя", "nope", "", "command nope not found"},
		{"неизвестная версия", "hello", "9.9.9", "command hello@9.9.9 not found"},
		{"префикс версии не разрешается", "hello", "1", "command hello@1 not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.resolver.Resolve(context.Background(), tt.pkg, tt.version)
			assertKind(t, err, ErrNotFound)
			if got := Message(err, ""); got != tt.message {
				t.Errorf("сообщение = %q, ожидается %q", got, tt.message)
			}
		})
	}
}

func TestResolve_EnrichesTags(t *testing.T) {
	env := newTestEnv(t)
	alice := env.author(t, "alice")
	env.mustPublish(t, alice, "tagged", "1.0.0", "Git", "tools")
	env.mustPublish(t, alice, "plain", "1.0.0")

	tagged, err := env.resolver.Resolve(context.Background(), "tagged", "")
	if err != nil {
		t.Fatalf("Resolve() ошибка: %v", err)
	}
	if strings.Join(tagged.Tags, ",") != "git,tools" {
		t.Errorf("Tags = %v, ожидается [git tools]", tagged.Tags)
	}

	plain, err := env.resolver.Resolve(context.Background(), "plain", "")
	if err != nil {
		t.Fatalf("Resolve() ошибка: %v", err)
	}
	if plain.Tags == nil || len(plain.Tags) != 0 {
		t.Errorf("Tags = %#v, ожидается пустой срез", plain.Tags)
	}
}

func TestListVersions(t *testing.T) {
	env := newTestEnv(t)
	alice := env.author(t, "alice")
	for _, v := range []string{"1.0.0", "1.1.0", "0.9.0"} {
		env.mustPublish(t, alice, "hello", v)
	}

	versions, err := env.resolver.ListVersions(context.Background(), "hello")
	if err != nil {
		t.Fatalf("ListVersions() ошибка: %v", err)
	}
	var got []string
	for _, p := range versions {
		got = append(got, p.Version)
	}
	if strings.Join(got, ",") != "0.9.0,1.1.0,1.0.0" {
		t.Errorf("версии = %v, ожидаются новые первыми [0.9.0 1.1.0 1.0.0]", got)
	}

	_, err = env.resolver.ListVersions(context.Background(), "nope")
	assertKind(t, err, ErrNotFound)
}

func TestListLatest_OnePerName(t *testing.T) {
	env := newTestEnv(t)
	alice := env.author(t, "alice")
	env.mustPublish(t, alice, "a", "1.0.0")
	env.mustPublish(t, alice, "b", "1.0.0")
	env.mustPublish(t, alice, "a", "1.1.0")
	env.mustPublish(t, alice, "c", "1.0.0")

	page, err := env.resolver.ListLatest(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("ListLatest() ошибка: %v", err)
	}
	if page.Total != 3 {
		t.Errorf("Total = %d, ожидается 3 (различных имён)", page.Total)
	}
	if len(page.Items) != 2 || page.Limit != 2 || page.Offset != 0 {
		t.Fatalf("страница = %d элементов limit=%d offset=%d", len(page.Items), page.Limit, page.Offset)
	}
	if page.Items[0].Name != "c" || page.Items[1].Name != "a" || page.Items[1].Version != "1.1.0" {
		t.Errorf("порядок = %s@%s, %s@%s", page.Items[0].Name, page.Items[0].Version,
			page.Items[1].Name, page.Items[1].Version)
	}

	rest, err := env.resolver.ListLatest(context.Background(), 2, 2)
	if err != nil {
		t.Fatalf("ListLatest(offset=2) ошибка: %v", err)
	}
	if len(rest.Items) != 1 || rest.Items[0].Name != "b" {
		t.Errorf("вторая страница = %+v", rest.Items)
	}
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)
	alice := env.author(t, "alice")
	ctx := context.Background()

	env.mustPublish(t, alice, "git-helper", "1.0.0")
	env.mustPublish(t, alice, "gitlab-tools", "1.0.0")
	env.mustPublish(t, alice, "other", "1.0.0")

	// скачивания поднимают gitlab-tools выше
	for i := 0; i < 2; i++ {
		if _, err := env.download.Download(ctx, DownloadRequest{Name: "gitlab-tools"}); err != nil {
			t.Fatalf("Download() ошибка: %v", err)
		}
	}

	page, err := env.resolver.Search(ctx, "  GIT ", 0, 0)
	if err != nil {
		t.Fatalf("Search() ошибка: %v", err)
	}
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("найдено %d (total %d), ожидается 2", len(page.Items), page.Total)
	}
	if page.Items[0].Name != "gitlab-tools" {
		t.Errorf("первый результат = %s, ожидается gitlab-tools (больше скачиваний)", page.Items[0].Name)
	}
	if page.Limit != DefaultPageLimit {
		t.Errorf("Limit = %d, ожидается %d", page.Limit, DefaultPageLimit)
	}

	byDesc, err := env.resolver.Search(ctx, "description of other", 10, 0)
	if err != nil {
		t.Fatalf("Search() ошибка: %v", err)
	}
	if len(byDesc.Items) != 1 || byDesc.Items[0].Name != "other" {
		t.Errorf("поиск по описанию = %+v", byDesc.Items)
	}
}

func TestSearch_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		query string
		limit int
	}{
		{"пустой запрос", "", 10},
		{"только пробелы", "   ", 10},
		{"слишком длинный запрос", strings.Repeat("q", maxQueryLen+1), 10},
		{"отрицательный limit", "git", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.resolver.Search(context.Background(), tt.query, tt.limit, 0)
			assertKind(t, err, ErrValidation)
		})
	}
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name       string
		limit      int
		offset     int
		wantLimit  int
		wantOffset int
		wantErr    bool
	}{
		{"значения по умолчанию", 0, 0, DefaultPageLimit, 0, false},
		{"обычные значения", 5, 10, 5, 10, false},
		{"limit урезается", 1000, 0, MaxPageLimit, 0, false},
		{"отрицательный limit", -5, 0, 0, 0, true},
		{"отрицательный offset", 10, -1, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, offset, err := NormalizePage(tt.limit, tt.offset)
			if tt.wantErr {
				assertKind(t, err, ErrValidation)
				return
			}
			if err != nil {
				t.Fatalf("NormalizePage() ошибка: %v", err)
			}
			if limit != tt.wantLimit || offset != tt.wantOffset {
				t.Errorf("NormalizePage() = %d, %d; ожидается %d, %d", limit, offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}
