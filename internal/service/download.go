// download.go — выдача пакета клиенту для установки.
// Разрешение версии → атомарно (счётчик + событие журнала) → файлы целиком.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/drdator/ccm/internal/domain/model"
	"github.com/drdator/ccm/internal/repository"
)

var downloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ccm_package_downloads_total",
	Help: "Общее количество скачиваний пакетов.",
})

// DownloadRequest — параметры скачивания.
type DownloadRequest struct {
	Name    string
	Version string
	// UserID — аутентифицированный пользователь (nil — анонимно)
	UserID *int64
	// IP — адрес клиента (пусто — не записывается)
	IP string
}

// DownloadResult — пакет вместе с содержимым файлов.
type DownloadResult struct {
	Package *model.Package
	Files   []*model.PackageFile
}

// DownloadService — серверная часть протокола установки.
type DownloadService struct {
	resolver *ResolverService
	files    repository.FileRepository
	tx       Transactor
	logger   *slog.Logger
}

// NewDownloadService создаёт сервис скачивания.
func NewDownloadService(
	resolver *ResolverService,
	files repository.FileRepository,
	tx Transactor,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		resolver: resolver,
		files:    files,
		tx:       tx,
		logger:   logger.With(slog.String("component", "download_service")),
	}
}

// Download разрешает версию, в одной транзакции увеличивает счётчик
// и записывает событие журнала, затем возвращает файлы пакета.
func (s *DownloadService) Download(ctx context.Context, req DownloadRequest) (*DownloadResult, error) {
	pkg, err := s.resolver.Resolve(ctx, req.Name, req.Version)
	if err != nil {
		return nil, err
	}

	event := &model.DownloadEvent{PackageID: pkg.ID, UserID: req.UserID}
	if req.IP != "" {
		ip := req.IP
		event.IPAddress = &ip
	}

	err = s.tx.InTx(ctx, func(r repository.Repos) error {
		downloads, err := r.Packages.IncrementDownloads(ctx, pkg.ID)
		if err != nil {
			return err
		}
		pkg.Downloads = downloads
		return r.Downloads.Record(ctx, event)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errorf(ErrNotFound, "command %s@%s not found", pkg.Name, pkg.Version)
		}
		return nil, fmt.Errorf("учёт скачивания %s@%s: %w", pkg.Name, pkg.Version, err)
	}

	files, err := s.files.ListByPackage(ctx, pkg.ID)
	if err != nil {
		return nil, fmt.Errorf("файлы пакета %s@%s: %w", pkg.Name, pkg.Version, err)
	}

	downloadsTotal.Inc()
	s.logger.Info("Пакет скачан",
		slog.String("name", pkg.Name),
		slog.String("version", pkg.Version),
		slog.Int64("downloads", pkg.Downloads),
		slog.Bool("anonymous", req.UserID == nil),
	)

	return &DownloadResult{Package: pkg, Files: files}, nil
}
