package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/drdator/ccm/internal/api/dto"
)

func pageQuery(limit, offset int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	return q
}

func versionQuery(version string) url.Values {
	if version == "" {
		return nil
	}
	return url.Values{"version": {version}}
}

func commandPath(name string, suffix string) string {
	return "/commands/" + url.PathEscape(name) + suffix
}

// List — каталог последних версий.
func (c *Client) List(ctx context.Context, limit, offset int) (*dto.CommandList, error) {
	var out dto.CommandList
	if err := c.do(ctx, http.MethodGet, "/commands", pageQuery(limit, offset), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search — поиск по имени и описанию.
func (c *Client) Search(ctx context.Context, query string, limit, offset int) (*dto.CommandList, error) {
	q := pageQuery(limit, offset)
	q.Set("q", query)
	var out dto.CommandList
	if err := c.do(ctx, http.MethodGet, "/commands/search", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get — пакет; пустая version — последняя.
func (c *Client) Get(ctx context.Context, name, version string) (*dto.Command, error) {
	var out dto.CommandResponse
	if err := c.do(ctx, http.MethodGet, commandPath(name, ""), versionQuery(version), nil, &out); err != nil {
		return nil, err
	}
	return &out.Command, nil
}

// Versions — все версии пакета, новые первыми.
func (c *Client) Versions(ctx context.Context, name string) (*dto.VersionsResponse, error) {
	var out dto.VersionsResponse
	if err := c.do(ctx, http.MethodGet, commandPath(name, "/versions"), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download — пакет вместе с файлами. Учётные данные, если заданы,
// привязывают скачивание к пользователю.
func (c *Client) Download(ctx context.Context, name, version string) (*dto.Download, error) {
	var out dto.Download
	if err := c.do(ctx, http.MethodGet, commandPath(name, "/download"), versionQuery(version), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Publish публикует новую версию. Не повторяется.
func (c *Client) Publish(ctx context.Context, req dto.PublishRequest) (*dto.PublishResponse, error) {
	var out dto.PublishResponse
	if err := c.do(ctx, http.MethodPost, "/commands", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
