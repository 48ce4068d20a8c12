package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"cvforge/internal/errcode"
	"cvforge/internal/render"
	"cvforge/internal/storage"
	"cvforge/internal/tasks"
)

// RenderExporter 生成导出定义。
type RenderExporter interface {
	Export(ctx context.Context, req render.Request) (render.Result, error)
}

// DocumentPrinter 把导出定义打印为 PDF。
type DocumentPrinter interface {
	Export(ctx context.Context, def render.DocumentDefinition) ([]byte, error)
}

// ExportUploader 保存导出的文件。
type ExportUploader interface {
	UploadBytes(ctx context.Context, objectName string, data []byte, contentType string) error
}

// ExportHandler 负责消费 PDF 导出任务。
type ExportHandler struct {
	pipeline  RenderExporter
	accounts  CapabilitySource
	printer   DocumentPrinter
	objects   ExportUploader
	publisher Publisher
	logger    *slog.Logger
}

// NewExportHandler 创建任务处理器。
func NewExportHandler(
	pipeline RenderExporter,
	accounts CapabilitySource,
	printer DocumentPrinter,
	objects ExportUploader,
	publisher Publisher,
	logger *slog.Logger,
) *ExportHandler {
	return &ExportHandler{
		pipeline:  pipeline,
		accounts:  accounts,
		printer:   printer,
		objects:   objects,
		publisher: publisher,
		logger:    logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *ExportHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.DocumentExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("owner_id", uint64(payload.OwnerID)),
		slog.String("template_id", payload.Config.TemplateID),
	)
	log.Info("Starting document export task...")

	notify := NotifyMessage{
		Event:         EventDocumentExported,
		CorrelationID: payload.CorrelationID,
	}

	// 一旦确定不可重试或是最后一次尝试，就通知前端。
	fail := func(code int, message string, err error, retryable bool) error {
		if retryable && !isFinalAsynqAttempt(ctx) {
			return err
		}
		notify.Status = "error"
		notify.ErrorCode = code
		notify.ErrorMessage = message
		if perr := publish(context.WithoutCancel(ctx), h.publisher, payload.OwnerID, notify); perr != nil {
			log.Error("publish export error notification failed", slog.Any("error", perr))
		}
		if !retryable {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	caps, err := h.accounts.Capabilities(ctx, payload.OwnerID)
	if err != nil {
		res := classify(err)
		log.Error("resolve capabilities failed", slog.Any("error", err))
		return fail(res.code, res.message, err, res.retryable)
	}
	// 导出开关在执行时重新检查，入队后降级的账号同样被拒绝。
	if !caps.ExportEnabled {
		log.Warn("export disabled on current plan")
		return fail(errcode.ExportDisabled, "export not available on current plan", fmt.Errorf("export disabled"), false)
	}

	result, err := h.pipeline.Export(ctx, render.Request{
		OwnerID:      payload.OwnerID,
		Config:       payload.Config,
		Capabilities: caps,
	})
	if err != nil {
		res := classify(err)
		log.Error("render export definition failed", slog.Any("error", err))
		return fail(res.code, res.message, err, res.retryable)
	}

	data, err := h.printer.Export(ctx, result.Definition)
	if err != nil {
		log.Error("print pdf failed", slog.Any("error", err))
		return fail(errcode.SystemError, "please retry", err, true)
	}

	key := storage.ExportKey(payload.OwnerID, payload.ExportID)
	if err := h.objects.UploadBytes(ctx, key, data, "application/pdf"); err != nil {
		log.Error("upload pdf to minio failed", slog.Any("error", err))
		return fail(errcode.SystemError, "please retry", err, true)
	}

	notify.Status = "completed"
	notify.ExportKey = key
	notify.ErrorCode = errcode.OK
	if result.Degraded() {
		notify.ErrorCode = errcode.AssetDegraded
		notify.ErrorMessage = "some optional assets were unavailable and have been omitted"
		notify.MissingKeys = result.MissingAssets()
		log.Warn("pdf exported with missing assets",
			slog.Int("missing_count", len(notify.MissingKeys)),
			slog.Any("missing_keys", notify.MissingKeys),
		)
	}
	if err := publish(ctx, h.publisher, payload.OwnerID, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}

	log.Info("Document export task completed.", slog.String("export_key", key))
	return nil
}
