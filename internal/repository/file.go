package repository

import (
	"context"
	"fmt"

	"github.com/drdator/ccm/internal/domain/model"
)

// FileRepository — доступ к таблице package_files.
type FileRepository interface {
	// CreateBatch вставляет файлы пакета. ContentHash должен быть вычислен заранее.
	CreateBatch(ctx context.Context, packageID int64, files []*model.PackageFile) error
	// ListByPackage возвращает файлы пакета, упорядоченные по имени.
	ListByPackage(ctx context.Context, packageID int64) ([]*model.PackageFile, error)
}

type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов пакетов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

func (r *fileRepo) CreateBatch(ctx context.Context, packageID int64, files []*model.PackageFile) error {
	query := `
		INSERT INTO package_files (package_id, filename, content, content_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	for _, f := range files {
		f.PackageID = packageID
		if err := r.db.QueryRow(ctx, query,
			packageID, f.Filename, f.Content, f.ContentHash,
		).Scan(&f.ID, &f.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: файл %s повторяется", ErrConflict, f.Filename)
			}
			return fmt.Errorf("ошибка сохранения файла %s: %w", f.Filename, err)
		}
	}
	return nil
}

func (r *fileRepo) ListByPackage(ctx context.Context, packageID int64) ([]*model.PackageFile, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, package_id, filename, content, content_hash, created_at
		FROM package_files
		WHERE package_id = $1
		ORDER BY filename`, packageID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения файлов пакета: %w", err)
	}
	defer rows.Close()

	var result []*model.PackageFile
	for rows.Next() {
		f := &model.PackageFile{}
		if err := rows.Scan(&f.ID, &f.PackageID, &f.Filename, &f.Content, &f.ContentHash, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка чтения файла пакета: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}
