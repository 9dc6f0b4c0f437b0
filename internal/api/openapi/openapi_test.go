package openapi

import (
	"context"
	"net/http"
	"testing"
)

func TestLoad(t *testing.T) {
	doc, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() ошибка: %v", err)
	}
	if doc.Info.Title != "CCM Registry API" {
		t.Errorf("title = %q", doc.Info.Title)
	}

	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodGet, "/api/commands", true},
		{http.MethodPost, "/api/commands", true},
		{http.MethodGet, "/api/commands/{name}/download", true},
		{http.MethodPost, "/api/auth/regenerate-api-key", true},
		{http.MethodDelete, "/api/commands/{name}", false},
		{http.MethodGet, "/api/unknown", false},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			if got := HasOperation(doc, tt.method, tt.path); got != tt.want {
				t.Errorf("HasOperation() = %v, ожидается %v", got, tt.want)
			}
		})
	}
}
