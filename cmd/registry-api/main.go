// Точка входа Registry API — реестр версионированных пакетов команд.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт сервисный слой и API handlers, запускает topologymetrics
// и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/drdator/ccm/internal/api/handlers"
	"github.com/drdator/ccm/internal/api/middleware"
	"github.com/drdator/ccm/internal/api/openapi"
	"github.com/drdator/ccm/internal/auth"
	"github.com/drdator/ccm/internal/config"
	"github.com/drdator/ccm/internal/database"
	"github.com/drdator/ccm/internal/repository"
	"github.com/drdator/ccm/internal/server"
	"github.com/drdator/ccm/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Registry API запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("CCM_DEPHEALTH_GROUP") == "" {
		logger.Warn("CCM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Проверка встроенного OpenAPI контракта
	ctx := context.Background()
	if _, err := openapi.Load(ctx); err != nil {
		logger.Error("Ошибка OpenAPI контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Подключение к PostgreSQL (pgxpool)
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 5.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 6. Repositories
	repos := repository.NewRepos(pool)
	txRunner := repository.NewTxRunner(pool)

	// 7. Services
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	resolverSvc := service.NewResolverService(repos.Packages, repos.Tags, logger)
	publishSvc := service.NewPublishService(repos.Packages, txRunner, logger)
	downloadSvc := service.NewDownloadService(resolverSvc, repos.Files, txRunner, logger)
	accountSvc := service.NewAccountService(repos.Users, tokens, cfg.BcryptCost, logger)

	// 8. topologymetrics — мониторинг PostgreSQL
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"registry-api",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
			defer dephealthSvc.Stop()
		}
	}

	// 9. Handlers и middleware
	h := server.Handlers{
		API:    handlers.NewAPIHandler(resolverSvc, publishSvc, downloadSvc, accountSvc, logger),
		Health: handlers.NewHealthHandler(database.NewReadinessChecker(pool)),
		Auth:   middleware.NewAuth(accountSvc, logger),
	}
	if cfg.RateLimitEnabled {
		h.RateLimiter = middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
		logger.Info("Ограничение частоты запросов включено",
			slog.Int("requests", cfg.RateLimitRequests),
			slog.String("window", cfg.RateLimitWindow.String()),
		)
	}

	// 10. HTTP-сервер
	srv := server.New(cfg, logger, server.NewRouter(cfg, logger, h))
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Registry API остановлен")
}
