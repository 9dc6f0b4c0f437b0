package repository

import (
	"context"
	"fmt"

	"github.com/drdator/ccm/internal/domain/model"
)

// DownloadRepository — журнал скачиваний (только вставка).
type DownloadRepository interface {
	// Record добавляет событие скачивания.
	Record(ctx context.Context, e *model.DownloadEvent) error
	// CountByPackage возвращает количество событий для пакета.
	CountByPackage(ctx context.Context, packageID int64) (int64, error)
}

type downloadRepo struct {
	db DBTX
}

// NewDownloadRepository создаёт репозиторий журнала скачиваний.
func NewDownloadRepository(db DBTX) DownloadRepository {
	return &downloadRepo{db: db}
}

func (r *downloadRepo) Record(ctx context.Context, e *model.DownloadEvent) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO download_events (package_id, user_id, ip_address)
		VALUES ($1, $2, $3)
		RETURNING id, downloaded_at`,
		e.PackageID, e.UserID, e.IPAddress,
	).Scan(&e.ID, &e.DownloadedAt)
	if err != nil {
		return fmt.Errorf("ошибка записи события скачивания: %w", err)
	}
	return nil
}

func (r *downloadRepo) CountByPackage(ctx context.Context, packageID int64) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM download_events WHERE package_id = $1`, packageID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта скачиваний: %w", err)
	}
	return count, nil
}
