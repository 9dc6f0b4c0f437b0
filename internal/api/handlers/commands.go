// commands.go — обработчики /api/commands endpoints.
// Каталог, поиск, версии, скачивание и публикация.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/drdator/ccm/internal/api/dto"
	apierrors "github.com/drdator/ccm/internal/api/errors"
	"github.com/drdator/ccm/internal/api/middleware"
	"github.com/drdator/ccm/internal/service"
)

// ListCommands — GET /api/commands.
// Последняя версия каждого имени, новые публикации первыми.
func (h *APIHandler) ListCommands(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := bindPage(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	page, err := h.resolver.ListLatest(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err, "list_commands")
		return
	}

	writeJSON(w, http.StatusOK, dto.CommandList{
		Commands:   dto.FromPackages(page.Items),
		Pagination: dto.Pagination{Limit: page.Limit, Offset: page.Offset, Total: page.Total},
	})
}

// SearchCommands — GET /api/commands/search?q=.
func (h *APIHandler) SearchCommands(w http.ResponseWriter, r *http.Request) {
	var query string
	if err := bindQuery(r, "q", &query); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	limit, offset, err := bindPage(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	page, err := h.resolver.Search(r.Context(), query, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err, "search_commands")
		return
	}

	writeJSON(w, http.StatusOK, dto.CommandList{
		Commands:   dto.FromPackages(page.Items),
		Query:      query,
		Pagination: dto.Pagination{Limit: page.Limit, Offset: page.Offset, Total: page.Total},
	})
}

// GetCommand — GET /api/commands/{name}?version=.
func (h *APIHandler) GetCommand(w http.ResponseWriter, r *http.Request) {
	var version string
	if err := bindQuery(r, "version", &version); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	pkg, err := h.resolver.Resolve(r.Context(), chi.URLParam(r, "name"), version)
	if err != nil {
		h.writeServiceError(w, r, err, "get_command")
		return
	}

	writeJSON(w, http.StatusOK, dto.CommandResponse{Command: dto.FromPackage(pkg)})
}

// ListVersions — GET /api/commands/{name}/versions.
func (h *APIHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	versions, err := h.resolver.ListVersions(r.Context(), name)
	if err != nil {
		h.writeServiceError(w, r, err, "list_versions")
		return
	}

	writeJSON(w, http.StatusOK, dto.VersionsResponse{Name: name, Versions: dto.FromPackages(versions)})
}

// DownloadCommand — GET /api/commands/{name}/download?version=.
// Каждый успешный ответ учитывается как одно скачивание.
func (h *APIHandler) DownloadCommand(w http.ResponseWriter, r *http.Request) {
	var version string
	if err := bindQuery(r, "version", &version); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	req := service.DownloadRequest{
		Name:    chi.URLParam(r, "name"),
		Version: version,
		IP:      middleware.ClientIP(r),
	}
	if id := middleware.IdentityFromContext(r.Context()); id != nil {
		userID := id.UserID
		req.UserID = &userID
	}

	res, err := h.download.Download(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err, "download_command")
		return
	}

	pkg := res.Package
	files := make([]dto.File, 0, len(res.Files))
	for _, f := range res.Files {
		files = append(files, dto.File{Filename: f.Filename, Content: f.Content})
	}

	writeJSON(w, http.StatusOK, dto.Download{
		Name:        pkg.Name,
		Version:     pkg.Version,
		Description: pkg.Description,
		Repository:  pkg.Repository,
		License:     pkg.License,
		Homepage:    pkg.Homepage,
		Category:    pkg.Category,
		AuthorID:    pkg.AuthorID,
		Downloads:   pkg.Downloads,
		Tags:        dto.FromPackage(pkg).Tags,
		Files:       files,
	})
}

// PublishCommand — POST /api/commands.
// Доступ: аутентифицированный пользователь (становится автором).
func (h *APIHandler) PublishCommand(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromContext(r.Context())
	if id == nil {
		apierrors.Unauthorized(w, "authentication required")
		return
	}

	var body dto.PublishRequest
	if err := decodeJSON(w, r, &body); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	files := make([]service.PublishFile, 0, len(body.Files))
	for _, f := range body.Files {
		files = append(files, service.PublishFile{Filename: f.Filename, Content: f.Content})
	}
	meta := body.Metadata

	pkg, err := h.publish.Publish(r.Context(), service.PublishRequest{
		Name:           meta.Name,
		Version:        meta.Version,
		Description:    meta.Description,
		Repository:     meta.Repository,
		License:        meta.License,
		Homepage:       meta.Homepage,
		Category:       meta.Category,
		Tags:           meta.Tags,
		Keywords:       meta.Keywords,
		Files:          files,
		AuthorID:       id.UserID,
		AuthorUsername: id.Username,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "publish_command")
		return
	}

	writeJSON(w, http.StatusCreated, dto.PublishResponse{
		Message: "command published successfully",
		Command: dto.FromPackage(pkg),
	})
}
