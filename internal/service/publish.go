// publish.go — публикация новой версии пакета.
// Валидация, проверка дубликата (name, version) и атомарное сохранение
// пакета, файлов и тегов в одной транзакции.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Masterminds/semver/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/drdator/ccm/internal/domain/model"
	"github.com/drdator/ccm/internal/repository"
)

// Ограничения публикации.
const (
	// CommandFileExt — обязательное расширение файлов пакета.
	CommandFileExt = ".md"

	maxNameLen        = 100
	maxVersionLen     = 20
	maxFiles          = 50
	maxFilenameLen    = 255
	maxContentLen     = 50000
	maxDescriptionLen = 500
	maxURLLen         = 200
	maxLicenseLen     = 50
	maxCategoryLen    = 50
	maxTags           = 10
	maxTagLen         = 30
)

var namePattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Prometheus-метрики публикации.
var (
	packagesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ccm_packages_published_total",
		Help: "Количество опубликованных версий пакетов.",
	})

	publishRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ccm_publish_rejected_total",
		Help: "Количество отклонённых публикаций (по причине).",
	}, []string{"reason"})
)

// Transactor выполняет fn с репозиториями внутри одной транзакции.
// Реализуется repository.TxRunner.
type Transactor interface {
	InTx(ctx context.Context, fn func(repos repository.Repos) error) error
}

// PublishFile — файл в запросе публикации.
type PublishFile struct {
	Filename string
	Content  string
}

// PublishRequest — запрос публикации версии пакета.
type PublishRequest struct {
	Name        string
	Version     string
	Description string
	Repository  *string
	License     *string
	Homepage    *string
	Category    *string
	Tags        []string
	Keywords    []string
	Files       []PublishFile

	AuthorID       int64
	AuthorUsername string
}

// PublishService — конвейер публикации.
type PublishService struct {
	packages repository.PackageRepository
	tx       Transactor
	logger   *slog.Logger
}

// NewPublishService создаёт сервис публикации.
func NewPublishService(packages repository.PackageRepository, tx Transactor, logger *slog.Logger) *PublishService {
	return &PublishService{
		packages: packages,
		tx:       tx,
		logger:   logger.With(slog.String("component", "publish_service")),
	}
}

// Publish валидирует и сохраняет новую версию пакета.
// Повторная публикация той же пары (name, version) всегда отклоняется.
func (s *PublishService) Publish(ctx context.Context, req PublishRequest) (*model.Package, error) {
	if err := ValidatePublish(req); err != nil {
		publishRejected.WithLabelValues("validation").Inc()
		return nil, err
	}

	// Предварительная проверка; окончательное решение принимает
	// ограничение уникальности в БД.
	exists, err := s.packages.Exists(ctx, req.Name, req.Version)
	if err != nil {
		return nil, fmt.Errorf("проверка дубликата: %w", err)
	}
	if exists {
		publishRejected.WithLabelValues("conflict").Inc()
		return nil, conflictError(req.Name, req.Version, nil)
	}

	pkg := &model.Package{
		Name:           req.Name,
		Version:        req.Version,
		Description:    req.Description,
		Repository:     emptyToNil(req.Repository),
		License:        emptyToNil(req.License),
		Homepage:       emptyToNil(req.Homepage),
		Category:       emptyToNil(req.Category),
		AuthorID:       req.AuthorID,
		AuthorUsername: req.AuthorUsername,
	}
	files := buildFiles(req.Files)
	tags := NormalizeTags(req.Tags, req.Keywords)

	err = s.tx.InTx(ctx, func(r repository.Repos) error {
		if err := r.Packages.Create(ctx, pkg); err != nil {
			return err
		}
		if err := r.Files.CreateBatch(ctx, pkg.ID, files); err != nil {
			return err
		}
		return r.Tags.AddTags(ctx, pkg.ID, tags)
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			publishRejected.WithLabelValues("conflict").Inc()
			return nil, conflictError(req.Name, req.Version, err)
		}
		return nil, fmt.Errorf("сохранение пакета %s@%s: %w", req.Name, req.Version, err)
	}
	pkg.Tags = tags

	packagesPublished.Inc()
	s.logger.Info("Пакет опубликован",
		slog.String("name", pkg.Name),
		slog.String("version", pkg.Version),
		slog.Int64("author_id", pkg.AuthorID),
		slog.Int("files", len(files)),
	)

	return pkg, nil
}

// ValidatePublish проверяет запрос в фиксированном порядке: имя, версия,
// наличие файлов, расширения и пути файлов, затем метаданные.
// Первое нарушение прерывает проверку.
func ValidatePublish(req PublishRequest) error {
	if !namePattern.MatchString(req.Name) || len(req.Name) > maxNameLen {
		return errorf(ErrValidation,
			"invalid command name %q: use lowercase letters, digits and hyphens (at most %d characters)",
			req.Name, maxNameLen)
	}

	if len(req.Version) > maxVersionLen {
		return errorf(ErrValidation, "version must be at most %d characters", maxVersionLen)
	}
	if _, err := semver.StrictNewVersion(req.Version); err != nil {
		return errorf(ErrValidation,
			"invalid version %q: expected semantic version MAJOR.MINOR.PATCH[-prerelease][+build]", req.Version)
	}

	if len(req.Files) == 0 {
		return errorf(ErrValidation, "at least one file is required")
	}
	if len(req.Files) > maxFiles {
		return errorf(ErrValidation, "at most %d files are allowed", maxFiles)
	}

	// Расширение проверяется для всех файлов до остальных проверок файлов
	for _, f := range req.Files {
		if !strings.HasSuffix(f.Filename, CommandFileExt) {
			return errorf(ErrValidation,
				"file %q must have a %s extension (only markdown files are allowed)", f.Filename, CommandFileExt)
		}
	}

	seen := make(map[string]bool, len(req.Files))
	for _, f := range req.Files {
		if err := ValidateFilename(f.Filename); err != nil {
			return err
		}
		if seen[f.Filename] {
			return errorf(ErrValidation, "file %q is listed more than once", f.Filename)
		}
		seen[f.Filename] = true

		if f.Content == "" {
			return errorf(ErrValidation, "file %q is empty", f.Filename)
		}
		if utf8.RuneCountInString(f.Content) > maxContentLen {
			return errorf(ErrValidation, "file %q exceeds %d characters", f.Filename, maxContentLen)
		}
	}

	return validateMetadata(req)
}

// ValidateFilename проверяет, что имя файла — относительный путь
// внутри пакета без выхода наружу.
func ValidateFilename(name string) error {
	switch {
	case len(name) > maxFilenameLen:
		return errorf(ErrValidation, "file name %q exceeds %d characters", name, maxFilenameLen)
	case strings.Contains(name, `\`):
		return errorf(ErrValidation, "file name %q must use forward slashes", name)
	case strings.HasPrefix(name, "/"):
		return errorf(ErrValidation, "file name %q must be a relative path", name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return errorf(ErrValidation, "file name %q contains an invalid path segment", name)
		}
	}
	if path.Clean(name) != name {
		return errorf(ErrValidation, "file name %q is not a clean path", name)
	}
	return nil
}

func validateMetadata(req PublishRequest) error {
	if utf8.RuneCountInString(req.Description) > maxDescriptionLen {
		return errorf(ErrValidation, "description must be at most %d characters", maxDescriptionLen)
	}
	for field, v := range map[string]*string{"repository": req.Repository, "homepage": req.Homepage} {
		if v == nil || *v == "" {
			continue
		}
		if len(*v) > maxURLLen {
			return errorf(ErrValidation, "%s must be at most %d characters", field, maxURLLen)
		}
		if !isHTTPURL(*v) {
			return errorf(ErrValidation, "%s must be an absolute http(s) URL", field)
		}
	}
	if req.License != nil && len(*req.License) > maxLicenseLen {
		return errorf(ErrValidation, "license must be at most %d characters", maxLicenseLen)
	}
	if req.Category != nil && len(*req.Category) > maxCategoryLen {
		return errorf(ErrValidation, "category must be at most %d characters", maxCategoryLen)
	}
	for field, list := range map[string][]string{"tags": req.Tags, "keywords": req.Keywords} {
		if len(list) > maxTags {
			return errorf(ErrValidation, "at most %d %s are allowed", maxTags, field)
		}
		for _, t := range list {
			if utf8.RuneCountInString(strings.TrimSpace(t)) > maxTagLen {
				return errorf(ErrValidation, "%s entry %q exceeds %d characters", field, t, maxTagLen)
			}
		}
	}
	return nil
}

// NormalizeTags объединяет теги и ключевые слова: нижний регистр,
// без пробелов по краям, без пустых и повторов, в исходном порядке.
func NormalizeTags(lists ...[]string) []string {
	seen := make(map[string]bool)
	result := []string{}
	for _, list := range lists {
		for _, t := range list {
			t = strings.ToLower(strings.TrimSpace(t))
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			result = append(result, t)
		}
	}
	return result
}

// ContentHash — SHA-256 (hex) содержимого файла.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func buildFiles(in []PublishFile) []*model.PackageFile {
	files := make([]*model.PackageFile, 0, len(in))
	for _, f := range in {
		files = append(files, &model.PackageFile{
			Filename:    f.Filename,
			Content:     f.Content,
			ContentHash: ContentHash(f.Content),
		})
	}
	return files
}

func conflictError(name, version string, cause error) error {
	if cause == nil {
		return errorf(ErrConflict, "command %s@%s already exists", name, version)
	}
	return wrapf(ErrConflict, cause, "command %s@%s already exists", name, version)
}

func isHTTPURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
