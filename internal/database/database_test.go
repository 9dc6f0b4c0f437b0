package database_test

import (
	"context"
	"testing"

	"github.com/drdator/ccm/internal/database"
	"github.com/drdator/ccm/internal/database/dbtest"
)

// TestMigrate проверяет, что миграции применяются и повторный запуск — no-op.
func TestMigrate(t *testing.T) {
	cfg := dbtest.StartPostgres(t)
	logger := dbtest.Logger()

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() ошибка: %v", err)
	}
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("повторный Migrate() ошибка: %v", err)
	}

	pool, err := database.Connect(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("Connect() ошибка: %v", err)
	}
	defer pool.Close()

	for _, table := range []string{"users", "packages", "package_files", "package_tags", "download_events"} {
		var exists bool
		err := pool.QueryRow(context.Background(),
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table,
		).Scan(&exists)
		if err != nil {
			t.Fatalf("проверка таблицы %s: %v", table, err)
		}
		if !exists {
			t.Errorf("таблица %s не создана", table)
		}
	}

	status, msg := database.NewReadinessChecker(pool).CheckReady()
	if status != "ok" {
		t.Errorf("CheckReady() = %q (%s), ожидается ok", status, msg)
	}
}
