package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"cvforge/internal/capability"
	"cvforge/internal/errcode"
	"cvforge/internal/generate"
	"cvforge/internal/storage"
	"cvforge/internal/tasks"
	"cvforge/internal/templates"
)

// CapabilitySource 在任务执行时实时解析账号能力。
type CapabilitySource interface {
	Capabilities(ctx context.Context, accountID uint) (capability.RenderCapabilities, error)
}

// TemplateGenerator 是 generate.Service 的消费边界。
type TemplateGenerator interface {
	GenerateAndCreate(ctx context.Context, req generate.Request, caps capability.RenderCapabilities, name, description string) (templates.CustomTemplate, error)
}

// ReferenceStore 读取并清理参考图。
type ReferenceStore interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, string, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// GenerateTemplateHandler 负责消费模板生成任务。
type GenerateTemplateHandler struct {
	generator TemplateGenerator
	accounts  CapabilitySource
	objects   ReferenceStore
	publisher Publisher
	timeout   time.Duration
	logger    *slog.Logger
}

// NewGenerateTemplateHandler 创建任务处理器。timeout 是单次生成的上限。
func NewGenerateTemplateHandler(
	generator TemplateGenerator,
	accounts CapabilitySource,
	objects ReferenceStore,
	publisher Publisher,
	timeout time.Duration,
	logger *slog.Logger,
) *GenerateTemplateHandler {
	return &GenerateTemplateHandler{
		generator: generator,
		accounts:  accounts,
		objects:   objects,
		publisher: publisher,
		timeout:   timeout,
		logger:    logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *GenerateTemplateHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.TemplateGeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("owner_id", uint64(payload.OwnerID)),
	)
	log.Info("Starting template generation task...")

	notify := NotifyMessage{
		Event:         EventTemplateGenerated,
		CorrelationID: payload.CorrelationID,
	}

	defer func() {
		if retErr == nil {
			h.cleanupReference(ctx, log, payload)
			return
		}
		res := classify(retErr)
		if res.retryable && !isFinalAsynqAttempt(ctx) {
			return
		}
		h.cleanupReference(ctx, log, payload)

		notify.Status = "error"
		if res.code == errcode.Canceled {
			notify.Status = "canceled"
		}
		notify.ErrorCode = res.code
		notify.ErrorMessage = res.message
		if err := publish(context.WithoutCancel(ctx), h.publisher, payload.OwnerID, notify); err != nil {
			log.Error("publish generation error notification failed", slog.Any("error", err))
		}
		if !res.retryable {
			retErr = fmt.Errorf("%v: %w", retErr, asynq.SkipRetry)
		}
	}()

	caps, err := h.accounts.Capabilities(ctx, payload.OwnerID)
	if err != nil {
		log.Error("resolve capabilities failed", slog.Any("error", err))
		return err
	}

	req := generate.Request{
		OwnerID:      payload.OwnerID,
		Description:  payload.Brief,
		ReferenceURL: payload.ReferenceURL,
		LayoutHint:   payload.LayoutHint,
		ColorHint:    payload.ColorHint,
	}
	if payload.ReferenceImageKey != "" {
		if !storage.ValidReferenceImageKey(payload.OwnerID, payload.ReferenceImageKey) {
			return fmt.Errorf("%w: reference image key", generate.ErrInvalidReference)
		}
		data, contentType, err := h.objects.ReadObject(ctx, payload.ReferenceImageKey)
		if err != nil {
			if storage.IsNoSuchKey(err) {
				return fmt.Errorf("%w: reference image missing", generate.ErrInvalidReference)
			}
			log.Error("read reference image failed", slog.Any("error", err))
			return err
		}
		req.ReferenceImage = data
		req.ReferenceImageType = payload.ReferenceImageType
		if req.ReferenceImageType == "" {
			req.ReferenceImageType = contentType
		}
	}

	genCtx := ctx
	if h.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	tpl, err := h.generator.GenerateAndCreate(genCtx, req, caps, payload.Name, payload.Description)
	if err != nil {
		log.Warn("template generation failed", slog.Any("error", err))
		return err
	}

	notify.Status = "completed"
	notify.TemplateID = tpl.ID
	notify.ErrorCode = errcode.OK
	if err := publish(ctx, h.publisher, payload.OwnerID, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
	}

	log.Info("Template generation task completed.", slog.String("template_id", tpl.ID))
	return nil
}

func (h *GenerateTemplateHandler) cleanupReference(ctx context.Context, log *slog.Logger, payload tasks.TemplateGeneratePayload) {
	if payload.ReferenceImageKey == "" || !storage.ValidReferenceImageKey(payload.OwnerID, payload.ReferenceImageKey) {
		return
	}
	if err := h.objects.DeleteObject(context.WithoutCancel(ctx), payload.ReferenceImageKey); err != nil {
		log.Warn("delete reference image failed", slog.Any("error", err))
	}
}
