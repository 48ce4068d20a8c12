package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/automaxprocs/maxprocs"

	"cvforge/internal/account"
	"cvforge/internal/config"
	"cvforge/internal/cv"
	"cvforge/internal/database"
	"cvforge/internal/generate"
	"cvforge/internal/metrics"
	"cvforge/internal/pdf"
	"cvforge/internal/render"
	"cvforge/internal/storage"
	"cvforge/internal/tasks"
	"cvforge/internal/templates"
	"cvforge/internal/worker"
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
	log.Println("database connection ready for worker")

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	log.Printf("storage client ready, bucket=%s", cfg.MinIO.Bucket)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	generator, err := generate.NewAnthropicGenerator(generate.AnthropicConfig{
		APIKey:    cfg.Generator.APIKey,
		Model:     cfg.Generator.Model,
		MaxTokens: cfg.Generator.MaxTokens,
		BaseURL:   cfg.Generator.BaseURL,
	})
	if err != nil {
		log.Fatalf("init generator: %v", err)
	}

	accounts := account.NewService(db)
	templateStore := templates.NewStore(db)
	pipeline := render.NewPipeline(
		render.NewRegistry(render.QRCoder{}),
		cv.NewProvider(db, cfg.API.ProfileBaseURL),
		templateStore,
		render.NewInlineAssets(storageClient),
		logger,
	)

	generateHandler := worker.NewGenerateTemplateHandler(
		generate.NewService(generator, templateStore, logger),
		accounts,
		storageClient,
		redisClient,
		cfg.Worker.GenerationTimeout,
		logger,
	)
	exportHandler := worker.NewExportHandler(
		pipeline,
		accounts,
		pdf.NewExporter(pdf.NewRodBackend(cfg.Worker.RenderTimeout)),
		storageClient,
		redisClient,
		logger,
	)

	server := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()}, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues: map[string]int{
			tasks.QueueExport:   6,
			tasks.QueueGenerate: 4,
		},
	})

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeTemplateGenerate, generateHandler)
	mux.Handle(tasks.TypeDocumentExport, exportHandler)

	if cfg.Worker.MetricsPort > 0 {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Worker.MetricsPort)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
	}

	logger.Info("worker service started", slog.String("redis_addr", cfg.Redis.Addr()))
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
