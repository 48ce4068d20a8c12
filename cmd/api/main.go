package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/automaxprocs/maxprocs"

	"cvforge/internal/account"
	"cvforge/internal/api"
	"cvforge/internal/api/middleware"
	"cvforge/internal/auth"
	"cvforge/internal/config"
	"cvforge/internal/cv"
	"cvforge/internal/database"
	"cvforge/internal/render"
	"cvforge/internal/storage"
	"cvforge/internal/templates"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logger.Info(fmt.Sprintf(format, args...))
	}))

	db, err := database.InitDatabase(cfg.Database, logger)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}
	logger.Info("database ready",
		slog.String("host", cfg.Database.Host),
		slog.String("db", cfg.Database.Name),
	)

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr()}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	publicKey, err := cfg.JWT.ReadPublicKey()
	if err != nil {
		log.Fatalf("read jwt public key: %v", err)
	}
	authService, err := auth.NewAuthService(nil, publicKey, cfg.JWT.AccessTTL)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	accounts := account.NewService(db)
	templateStore := templates.NewStore(db)
	records := cv.NewProvider(db, cfg.API.ProfileBaseURL)
	pipeline := render.NewPipeline(
		render.NewRegistry(render.QRCoder{}),
		records,
		templateStore,
		render.NewInlineAssets(storageClient),
		logger,
	)
	scanner := api.NewClamdScanner(cfg.Clamd.Addr)

	router := api.NewRouter(logger)
	api.RegisterRoutes(router, api.Handlers{
		Templates: api.NewTemplateHandler(accounts, templateStore, asynqClient, inspector, storageClient, scanner, redisClient, cfg.Worker.GenerationTimeout),
		Render:    api.NewRenderHandler(accounts, templateStore, pipeline, asynqClient, storageClient, cfg.Worker.ExportMaxRetry),
		CV:        api.NewCVHandler(accounts, records),
		Assets:    api.NewAssetHandler(storageClient, scanner),
		Ws:        api.NewWsHandler(redisClient, authService, logger, cfg.API.AllowedOriginList()),
	}, middleware.AuthMiddleware(authService))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start api server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("api shutdown failed", slog.Any("error", err))
	}
	logger.Info("api stopped")
}
