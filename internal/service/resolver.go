// resolver.go — разрешение версий пакетов и каталог.
//
// "Последняя" версия — самая недавно опубликованная, а не максимальная
// по semver: публикация 1.0.0 после 2.0.0 делает 1.0.0 последней.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/drdator/ccm/internal/domain/model"
	"github.com/drdator/ccm/internal/repository"
)

// Параметры пагинации каталога.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	maxQueryLen      = 100
)

// PackagePage — страница каталога.
type PackagePage struct {
	Items  []*model.Package
	Limit  int
	Offset int
	Total  int
}

// ResolverService — выбор версии пакета, списки версий, каталог и поиск.
// Все возвращаемые пакеты обогащены тегами.
type ResolverService struct {
	packages repository.PackageRepository
	tags     repository.TagRepository
	logger   *slog.Logger
}

// NewResolverService создаёт сервис разрешения версий.
func NewResolverService(
	packages repository.PackageRepository,
	tags repository.TagRepository,
	logger *slog.Logger,
) *ResolverService {
	return &ResolverService{
		packages: packages,
		tags:     tags,
		logger:   logger.With(slog.String("component", "resolver_service")),
	}
}

// Resolve возвращает точную версию (если version задана) или последнюю
// опубликованную. Префиксы и диапазоны не поддерживаются.
func (s *ResolverService) Resolve(ctx context.Context, name, version string) (*model.Package, error) {
	var (
		pkg *model.Package
		err error
	)
	if version != "" {
		pkg, err = s.packages.GetByNameVersion(ctx, name, version)
	} else {
		pkg, err = s.packages.GetLatest(ctx, name)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if version != "" {
				return nil, errorf(ErrNotFound, "command %s@%s not found", name, version)
			}
			return nil, errorf(ErrNotFound, "command %s not found", name)
		}
		return nil, fmt.Errorf("разрешение версии %s: %w", name, err)
	}

	if err := s.enrich(ctx, pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}

// ListVersions возвращает все версии имени, новые первыми.
// Пустой результат означает неизвестное имя.
func (s *ResolverService) ListVersions(ctx context.Context, name string) ([]*model.Package, error) {
	versions, err := s.packages.ListVersions(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("список версий %s: %w", name, err)
	}
	if len(versions) == 0 {
		return nil, errorf(ErrNotFound, "command %s not found", name)
	}
	if err := s.enrich(ctx, versions...); err != nil {
		return nil, err
	}
	return versions, nil
}

// ListLatest возвращает по одной последней версии на имя.
func (s *ResolverService) ListLatest(ctx context.Context, limit, offset int) (*PackagePage, error) {
	limit, offset, err := NormalizePage(limit, offset)
	if err != nil {
		return nil, err
	}

	items, err := s.packages.ListLatest(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("список пакетов: %w", err)
	}
	total, err := s.packages.CountNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("подсчёт пакетов: %w", err)
	}
	if err := s.enrich(ctx, items...); err != nil {
		return nil, err
	}

	return &PackagePage{Items: items, Limit: limit, Offset: offset, Total: total}, nil
}

// Search ищет подстроку без учёта регистра в имени или описании
// последних версий. Сортировка: скачивания, затем время публикации.
func (s *ResolverService) Search(ctx context.Context, query string, limit, offset int) (*PackagePage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errorf(ErrValidation, "search query is required")
	}
	if utf8.RuneCountInString(query) > maxQueryLen {
		return nil, errorf(ErrValidation, "search query must be at most %d characters", maxQueryLen)
	}
	limit, offset, err := NormalizePage(limit, offset)
	if err != nil {
		return nil, err
	}

	items, err := s.packages.SearchLatest(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("поиск пакетов: %w", err)
	}
	total, err := s.packages.CountSearch(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("подсчёт результатов поиска: %w", err)
	}
	if err := s.enrich(ctx, items...); err != nil {
		return nil, err
	}

	s.logger.Debug("Поиск выполнен",
		slog.String("query", query),
		slog.Int("found", len(items)),
		slog.Int("total", total),
	)

	return &PackagePage{Items: items, Limit: limit, Offset: offset, Total: total}, nil
}

// enrich загружает теги для пакетов одним запросом.
func (s *ResolverService) enrich(ctx context.Context, pkgs ...*model.Package) error {
	if len(pkgs) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(pkgs))
	for _, p := range pkgs {
		ids = append(ids, p.ID)
	}

	tags, err := s.tags.ListByPackages(ctx, ids)
	if err != nil {
		return fmt.Errorf("загрузка тегов: %w", err)
	}
	for _, p := range pkgs {
		p.Tags = tags[p.ID]
		if p.Tags == nil {
			p.Tags = []string{}
		}
	}
	return nil
}

// NormalizePage применяет значения по умолчанию и ограничения пагинации.
// limit == 0 — значение по умолчанию, limit > MaxPageLimit урезается.
func NormalizePage(limit, offset int) (int, int, error) {
	if limit < 0 {
		return 0, 0, errorf(ErrValidation, "limit must be a positive integer")
	}
	if offset < 0 {
		return 0, 0, errorf(ErrValidation, "offset must not be negative")
	}
	if limit == 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return limit, offset, nil
}
