package repository

import (
	"context"
	"fmt"
)

// TagRepository — доступ к таблице package_tags.
type TagRepository interface {
	// AddTags привязывает теги к пакету; уже существующие пары пропускаются.
	AddTags(ctx context.Context, packageID int64, tags []string) error
	// ListByPackages возвращает теги для набора пакетов одним запросом.
	ListByPackages(ctx context.Context, packageIDs []int64) (map[int64][]string, error)
}

type tagRepo struct {
	db DBTX
}

// NewTagRepository создаёт репозиторий тегов.
func NewTagRepository(db DBTX) TagRepository {
	return &tagRepo{db: db}
}

func (r *tagRepo) AddTags(ctx context.Context, packageID int64, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO package_tags (package_id, tag)
		SELECT $1, t FROM unnest($2::text[]) AS t
		ON CONFLICT (package_id, tag) DO NOTHING`,
		packageID, tags,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения тегов: %w", err)
	}
	return nil
}

func (r *tagRepo) ListByPackages(ctx context.Context, packageIDs []int64) (map[int64][]string, error) {
	result := make(map[int64][]string, len(packageIDs))
	if len(packageIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT package_id, tag
		FROM package_tags
		WHERE package_id = ANY($1)
		ORDER BY package_id, tag`, packageIDs)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения тегов: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return nil, fmt.Errorf("ошибка чтения тега: %w", err)
		}
		result[id] = append(result[id], tag)
	}
	return result, rows.Err()
}
