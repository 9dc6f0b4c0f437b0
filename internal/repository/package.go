package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/drdator/ccm/internal/domain/model"
)

// PackageRepository — доступ к таблице packages.
//
// "Последняя" версия имени — строка с максимальным published_at
// (при равенстве — с максимальным id), а не максимальная по semver.
type PackageRepository interface {
	// Create вставляет новую версию пакета. Дубликат (name, version) — ErrConflict.
	Create(ctx context.Context, p *model.Package) error
	// Exists проверяет наличие точной пары (name, version).
	Exists(ctx context.Context, name, version string) (bool, error)
	// GetByNameVersion возвращает точную версию пакета.
	GetByNameVersion(ctx context.Context, name, version string) (*model.Package, error)
	// GetLatest возвращает последнюю опубликованную версию имени.
	GetLatest(ctx context.Context, name string) (*model.Package, error)
	// ListVersions возвращает все версии имени, новые первыми.
	ListVersions(ctx context.Context, name string) ([]*model.Package, error)
	// ListLatest возвращает по одной (последней) строке на имя.
	ListLatest(ctx context.Context, limit, offset int) ([]*model.Package, error)
	// CountNames возвращает количество различных имён.
	CountNames(ctx context.Context) (int, error)
	// SearchLatest ищет подстроку в имени или описании среди последних версий.
	SearchLatest(ctx context.Context, query string, limit, offset int) ([]*model.Package, error)
	// CountSearch возвращает количество результатов SearchLatest без пагинации.
	CountSearch(ctx context.Context, query string) (int, error)
	// IncrementDownloads увеличивает счётчик и возвращает новое значение.
	IncrementDownloads(ctx context.Context, id int64) (int64, error)
}

// packageNameVersionConstraint — ограничение уникальности (name, version).
const packageNameVersionConstraint = "packages_name_version_key"

const packageColumns = `
	p.id, p.name, p.version, p.description, p.repository, p.license, p.homepage,
	p.category, p.author_id, u.username, p.downloads, p.published_at, p.updated_at`

// latestCTE — последние версии каждого имени.
const latestCTE = `
	WITH latest AS (
		SELECT DISTINCT ON (name) *
		FROM packages
		ORDER BY name, published_at DESC, id DESC
	)`

type packageRepo struct {
	db DBTX
}

// NewPackageRepository создаёт репозиторий пакетов.
func NewPackageRepository(db DBTX) PackageRepository {
	return &packageRepo{db: db}
}

func (r *packageRepo) Create(ctx context.Context, p *model.Package) error {
	query := `
		INSERT INTO packages (name, version, description, repository, license,
			homepage, category, author_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, downloads, published_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		p.Name, p.Version, p.Description, p.Repository, p.License,
		p.Homepage, p.Category, p.AuthorID,
	).Scan(&p.ID, &p.Downloads, &p.PublishedAt, &p.UpdatedAt)
	if err != nil {
		if c, ok := uniqueViolation(err); ok && c == packageNameVersionConstraint {
			return fmt.Errorf("%w: %s@%s", ErrConflict, p.Name, p.Version)
		}
		return fmt.Errorf("ошибка создания пакета: %w", err)
	}
	return nil
}

func (r *packageRepo) Exists(ctx context.Context, name, version string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM packages WHERE name = $1 AND version = $2)`,
		name, version,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки пакета: %w", err)
	}
	return exists, nil
}

func (r *packageRepo) GetByNameVersion(ctx context.Context, name, version string) (*model.Package, error) {
	query := `SELECT ` + packageColumns + `
		FROM packages p JOIN users u ON u.id = p.author_id
		WHERE p.name = $1 AND p.version = $2`

	return r.getOne(ctx, query, name, version)
}

func (r *packageRepo) GetLatest(ctx context.Context, name string) (*model.Package, error) {
	query := `SELECT ` + packageColumns + `
		FROM packages p JOIN users u ON u.id = p.author_id
		WHERE p.name = $1
		ORDER BY p.published_at DESC, p.id DESC
		LIMIT 1`

	return r.getOne(ctx, query, name)
}

func (r *packageRepo) ListVersions(ctx context.Context, name string) ([]*model.Package, error) {
	query := `SELECT ` + packageColumns + `
		FROM packages p JOIN users u ON u.id = p.author_id
		WHERE p.name = $1
		ORDER BY p.published_at DESC, p.id DESC`

	return r.list(ctx, query, name)
}

func (r *packageRepo) ListLatest(ctx context.Context, limit, offset int) ([]*model.Package, error) {
	query := latestCTE + `
		SELECT ` + packageColumns + `
		FROM latest p JOIN users u ON u.id = p.author_id
		ORDER BY p.published_at DESC, p.id DESC
		LIMIT $1 OFFSET $2`

	return r.list(ctx, query, limit, offset)
}

func (r *packageRepo) CountNames(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(DISTINCT name) FROM packages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта пакетов: %w", err)
	}
	return count, nil
}

func (r *packageRepo) SearchLatest(ctx context.Context, query string, limit, offset int) ([]*model.Package, error) {
	sql := latestCTE + `
		SELECT ` + packageColumns + `
		FROM latest p JOIN users u ON u.id = p.author_id
		WHERE p.name ILIKE $1 ESCAPE '\' OR p.description ILIKE $1 ESCAPE '\'
		ORDER BY p.downloads DESC, p.published_at DESC, p.id DESC
		LIMIT $2 OFFSET $3`

	return r.list(ctx, sql, likePattern(query), limit, offset)
}

func (r *packageRepo) CountSearch(ctx context.Context, query string) (int, error) {
	sql := latestCTE + `
		SELECT COUNT(*) FROM latest p
		WHERE p.name ILIKE $1 ESCAPE '\' OR p.description ILIKE $1 ESCAPE '\'`

	var count int
	if err := r.db.QueryRow(ctx, sql, likePattern(query)).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта результатов поиска: %w", err)
	}
	return count, nil
}

func (r *packageRepo) IncrementDownloads(ctx context.Context, id int64) (int64, error) {
	var downloads int64
	err := r.db.QueryRow(ctx, `
		UPDATE packages
		SET downloads = downloads + 1, updated_at = now()
		WHERE id = $1
		RETURNING downloads`, id,
	).Scan(&downloads)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("ошибка обновления счётчика скачиваний: %w", err)
	}
	return downloads, nil
}

func (r *packageRepo) getOne(ctx context.Context, query string, args ...any) (*model.Package, error) {
	p, err := scanPackage(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пакета: %w", err)
	}
	return p, nil
}

func (r *packageRepo) list(ctx context.Context, query string, args ...any) ([]*model.Package, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка пакетов: %w", err)
	}
	defer rows.Close()

	var result []*model.Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения пакета: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func scanPackage(row rowScanner) (*model.Package, error) {
	p := &model.Package{}
	err := row.Scan(
		&p.ID, &p.Name, &p.Version, &p.Description, &p.Repository, &p.License,
		&p.Homepage, &p.Category, &p.AuthorID, &p.AuthorUsername, &p.Downloads,
		&p.PublishedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// likeEscaper экранирует метасимволы LIKE.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern превращает пользовательский запрос в шаблон подстроки для ILIKE.
func likePattern(query string) string {
	return "%" + likeEscaper.Replace(query) + "%"
}
