package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"cvforge/internal/api/middleware"
	"cvforge/internal/capability"
	"cvforge/internal/document"
	"cvforge/internal/errcode"
	"cvforge/internal/render"
	"cvforge/internal/storage"
	"cvforge/internal/tasks"
	"cvforge/internal/templates"
)

// AccountService 提供能力解析与最近一次渲染配置。
type AccountService interface {
	CapabilitySource
	RenderPreference(ctx context.Context, accountID uint, caps capability.RenderCapabilities) (document.RenderConfig, error)
	SaveRenderPreference(ctx context.Context, accountID uint, cfg document.RenderConfig) error
}

// Previewer 生成预览，*render.Pipeline 满足该接口。
type Previewer interface {
	Preview(ctx context.Context, req render.Request) (render.Result, error)
}

// ExportLinker 为导出的 PDF 生成下载链接。
type ExportLinker interface {
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration, filename string) (string, error)
}

const exportLinkTTL = 10 * time.Minute

// RenderHandler 负责预览、导出与在线简历。
type RenderHandler struct {
	accounts       AccountService
	templates      TemplateStore
	previewer      Previewer
	queue          TaskEnqueuer
	links          ExportLinker
	exportMaxRetry int
}

// NewRenderHandler 构造 RenderHandler。
func NewRenderHandler(
	accounts AccountService,
	tpls TemplateStore,
	previewer Previewer,
	queue TaskEnqueuer,
	links ExportLinker,
	exportMaxRetry int,
) *RenderHandler {
	return &RenderHandler{
		accounts:       accounts,
		templates:      tpls,
		previewer:      previewer,
		queue:          queue,
		links:          links,
		exportMaxRetry: exportMaxRetry,
	}
}

type renderResponse struct {
	State         render.State         `json:"state"`
	Trace         []render.State       `json:"trace"`
	TemplateID    string               `json:"template_id"`
	Preview       render.PreviewNode   `json:"preview"`
	Degradations  []render.Degradation `json:"degradations,omitempty"`
	MissingAssets []string             `json:"missing_assets,omitempty"`
}

func newRenderResponse(res render.Result) renderResponse {
	return renderResponse{
		State:         res.State,
		Trace:         res.Trace,
		TemplateID:    res.TemplateID,
		Preview:       res.Preview,
		Degradations:  res.Degradations,
		MissingAssets: res.MissingAssets(),
	}
}

// bindConfig 读取请求体中的渲染配置；请求体为空时使用账号最近一次的配置。
func (h *RenderHandler) bindConfig(c *gin.Context, userID uint, caps capability.RenderCapabilities) (document.RenderConfig, bool) {
	if c.Request.ContentLength == 0 {
		cfg, err := h.accounts.RenderPreference(c.Request.Context(), userID, caps)
		if err != nil {
			respondError(c, err)
			return document.RenderConfig{}, false
		}
		return cfg, true
	}
	var cfg document.RenderConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		BadRequest(c, err.Error())
		return document.RenderConfig{}, false
	}
	return cfg.Normalize(), true
}

// notAllowed 拒绝不可用的模板并附带可重试的回退模板，不做静默替换。
func notAllowed(c *gin.Context, caps capability.RenderCapabilities) {
	c.JSON(http.StatusForbidden, gin.H{
		"error":    msgTemplateNotAllowed,
		"code":     errcode.TemplateNotAllowed,
		"fallback": caps.Fallback(),
	})
}

// Preview 渲染预览并记住本次配置。
func (h *RenderHandler) Preview(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c)

	caps, err := h.accounts.Capabilities(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	cfg, ok := h.bindConfig(c, userID, caps)
	if !ok {
		return
	}

	res, err := h.previewer.Preview(ctx, render.Request{OwnerID: userID, Config: cfg, Capabilities: caps})
	if err != nil {
		if errors.Is(err, templates.ErrTemplateNotAllowed) {
			notAllowed(c, caps)
			return
		}
		respondError(c, err)
		return
	}

	if err := h.accounts.SaveRenderPreference(ctx, userID, cfg); err != nil {
		log.Warn("save render preference failed", slog.Any("error", err))
	}
	c.JSON(http.StatusOK, newRenderResponse(res))
}

// Export 检查导出权限后投递导出任务，PDF 完成后通过 WebSocket 通知。
func (h *RenderHandler) Export(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c)

	caps, err := h.accounts.Capabilities(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !caps.ExportEnabled {
		errorWithCode(c, http.StatusForbidden, errcode.ExportDisabled, msgExportDisabled)
		return
	}
	cfg, ok := h.bindConfig(c, userID, caps)
	if !ok {
		return
	}
	if err := document.Validate(cfg, caps); err != nil {
		notAllowed(c, caps)
		return
	}

	payload := tasks.DocumentExportPayload{
		OwnerID:       userID,
		CorrelationID: middleware.GetCorrelationID(c),
		ExportID:      uuid.NewString(),
		Config:        cfg,
	}
	task, err := tasks.NewDocumentExportTask(payload,
		asynq.Queue(tasks.QueueExport),
		asynq.MaxRetry(h.exportMaxRetry),
	)
	if err != nil {
		log.Error("build export task failed", slog.Any("error", err))
		Internal(c, msgRetry)
		return
	}
	info, err := h.queue.EnqueueContext(ctx, task)
	if err != nil {
		log.Error("enqueue export task failed", slog.Any("error", err))
		Internal(c, "failed to enqueue task")
		return
	}

	log.Info("document export enqueued", slog.String("task_id", info.ID), slog.String("export_id", payload.ExportID))
	c.JSON(http.StatusAccepted, gin.H{
		"task_id":        info.ID,
		"export_id":      payload.ExportID,
		"correlation_id": payload.CorrelationID,
	})
}

// ExportLink 返回已完成导出的临时下载链接。
func (h *RenderHandler) ExportLink(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	ctx := c.Request.Context()

	exportID := c.Param("exportID")
	if _, err := uuid.Parse(exportID); err != nil {
		BadRequest(c, "invalid export id")
		return
	}
	key := storage.ExportKey(userID, exportID)
	if !storage.ValidExportKey(userID, key) {
		BadRequest(c, "invalid export id")
		return
	}

	exists, err := h.links.ObjectExists(ctx, key)
	if err != nil {
		middleware.LoggerFromContext(c).Error("stat export failed", slog.Any("error", err))
		Internal(c, msgRetry)
		return
	}
	if !exists {
		NotFound(c, "export not found")
		return
	}

	url, err := h.links.GeneratePresignedURL(ctx, key, exportLinkTTL, "cv.pdf")
	if err != nil {
		middleware.LoggerFromContext(c).Error("generate presigned url", slog.Any("error", err))
		Internal(c, "failed to generate url")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":        url,
		"expires_in": int(exportLinkTTL.Seconds()),
	})
}

// Online 渲染在线简历：优先使用激活的自定义模板，否则使用套餐的回退模板。
// 在线简历不受导出开关影响，也不会改写账号保存的配置。
func (h *RenderHandler) Online(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	ctx := c.Request.Context()

	caps, err := h.accounts.Capabilities(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	cfg, err := h.accounts.RenderPreference(ctx, userID, caps)
	if err != nil {
		respondError(c, err)
		return
	}

	cfg.TemplateID = caps.Fallback()
	if caps.CustomTemplatesEnabled() {
		active, err := h.templates.Active(ctx, userID)
		switch {
		case err == nil:
			if caps.Allows(active.TemplateID()) {
				// 降级后排在最早 N 个之外的激活模板不再生效。
				owned, err := h.templates.List(ctx, userID)
				if err != nil {
					respondError(c, err)
					return
				}
				if templates.WithinQuota(owned, active, caps.Quota()) {
					cfg.TemplateID = active.TemplateID()
				}
			}
		case !errors.Is(err, templates.ErrNotFound):
			respondError(c, err)
			return
		}
	}

	res, err := h.previewer.Preview(ctx, render.Request{OwnerID: userID, Config: cfg, Capabilities: caps})
	if err != nil && errors.Is(err, templates.ErrNotFound) && templates.IsCustomID(cfg.TemplateID) {
		// 激活模板在读取后被删除，回到内置模板。
		cfg.TemplateID = caps.Fallback()
		res, err = h.previewer.Preview(ctx, render.Request{OwnerID: userID, Config: cfg, Capabilities: caps})
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRenderResponse(res))
}
