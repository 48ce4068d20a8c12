package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"

	"cvforge/internal/api/middleware"
	"cvforge/internal/capability"
	"cvforge/internal/errcode"
	"cvforge/internal/generate"
	"cvforge/internal/metrics"
	"cvforge/internal/render"
	"cvforge/internal/storage"
	"cvforge/internal/tasks"
	"cvforge/internal/templates"
)

// CapabilitySource 为每个请求实时解析账号能力。
type CapabilitySource interface {
	Capabilities(ctx context.Context, accountID uint) (capability.RenderCapabilities, error)
}

// TemplateStore 是模板存储在 API 层用到的操作。
type TemplateStore interface {
	List(ctx context.Context, ownerID uint) ([]templates.CustomTemplate, error)
	Active(ctx context.Context, ownerID uint) (templates.CustomTemplate, error)
	Activate(ctx context.Context, ownerID uint, quota templates.Quota, templateID string) error
	Deactivate(ctx context.Context, ownerID uint, templateID string) error
	Delete(ctx context.Context, ownerID uint, templateID string) error
	Usage(ctx context.Context, ownerID uint) (templates.Usage, error)
}

// TaskEnqueuer 投递异步任务，*asynq.Client 满足该接口。
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskCanceler 取消排队中或执行中的任务，*asynq.Inspector 满足该接口。
type TaskCanceler interface {
	DeleteTask(queue, id string) error
	CancelProcessing(id string) error
}

// ObjectUploader 上传用户文件。
type ObjectUploader interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
}

// TemplateHandler 负责模板列表、生命周期与 AI 生成入口。
type TemplateHandler struct {
	accounts          CapabilitySource
	store             TemplateStore
	queue             TaskEnqueuer
	canceler          TaskCanceler
	objects           ObjectUploader
	scanner           VirusScanner
	counter           redisRateCounter
	generationTimeout time.Duration
	now               func() time.Time
}

// NewTemplateHandler 构造 TemplateHandler。
func NewTemplateHandler(
	accounts CapabilitySource,
	store TemplateStore,
	queue TaskEnqueuer,
	canceler TaskCanceler,
	objects ObjectUploader,
	scanner VirusScanner,
	counter redisRateCounter,
	generationTimeout time.Duration,
) *TemplateHandler {
	return &TemplateHandler{
		accounts:          accounts,
		store:             store,
		queue:             queue,
		canceler:          canceler,
		objects:           objects,
		scanner:           scanner,
		counter:           counter,
		generationTimeout: generationTimeout,
		now:               time.Now,
	}
}

type builtInItem struct {
	templates.BuiltIn
	Allowed bool `json:"allowed"`
}

type customItem struct {
	ID          string    `json:"id"`
	TemplateID  string    `json:"template_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	IsActive    bool      `json:"is_active"`
	Slots       []string  `json:"slots,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// GetCapabilities 返回当前套餐能力与模板占用。
func (h *TemplateHandler) GetCapabilities(c *gin.Context) {
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
	usage, err := h.store.Usage(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"capabilities":   caps,
		"custom_enabled": caps.CustomTemplatesEnabled(),
		"fallback":       caps.Fallback(),
		"template_usage": usage,
		"template_quota": caps.Quota(),
	})
}

// ListTemplates 返回内置模板（带是否可用标记）和账号的自定义模板。
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
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
	custom, err := h.store.List(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	builtIns := make([]builtInItem, 0, len(templates.BuiltIns()))
	for _, b := range templates.BuiltIns() {
		builtIns = append(builtIns, builtInItem{BuiltIn: b, Allowed: caps.Allows(b.ID)})
	}
	items := make([]customItem, 0, len(custom))
	for _, t := range custom {
		items = append(items, customItem{
			ID:          t.ID,
			TemplateID:  t.TemplateID(),
			Name:        t.Name,
			Description: t.Description,
			SizeBytes:   t.SizeBytes,
			IsActive:    t.IsActive,
			Slots:       templateSlots(t.Markup),
			CreatedAt:   t.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"built_in":       builtIns,
		"custom":         items,
		"custom_enabled": caps.CustomTemplatesEnabled(),
	})
}

// ActivateTemplate 激活模板；同一账号同时只会有一个激活模板。
func (h *TemplateHandler) ActivateTemplate(c *gin.Context) {
	h.mutate(c, "activate", func(ctx context.Context, userID uint, caps capability.RenderCapabilities, id string) error {
		return h.store.Activate(ctx, userID, caps.Quota(), id)
	})
}

// DeactivateTemplate 取消激活，不会自动选择其它模板。
func (h *TemplateHandler) DeactivateTemplate(c *gin.Context) {
	h.mutate(c, "deactivate", func(ctx context.Context, userID uint, _ capability.RenderCapabilities, id string) error {
		return h.store.Deactivate(ctx, userID, id)
	})
}

// DeleteTemplate 删除模板并释放配额。
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	h.mutate(c, "delete", func(ctx context.Context, userID uint, _ capability.RenderCapabilities, id string) error {
		return h.store.Delete(ctx, userID, id)
	})
}

func (h *TemplateHandler) mutate(c *gin.Context, op string, fn func(context.Context, uint, capability.RenderCapabilities, string) error) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id := c.Param("id")
	if raw, ok := templates.ParseCustomID(id); ok {
		id = raw
	}
	if strings.TrimSpace(id) == "" || templates.IsBuiltIn(id) {
		BadRequest(c, "invalid template id")
		return
	}
	ctx := c.Request.Context()

	caps, err := h.accounts.Capabilities(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := fn(ctx, userID, caps, id); err != nil {
		metrics.ObserveTemplateMutation(op, mutationResult(err))
		respondError(c, err)
		return
	}
	metrics.ObserveTemplateMutation(op, "ok")

	middleware.LoggerFromContext(c).Info("template updated",
		slog.String("operation", op),
		slog.String("template_id", id),
	)
	c.Status(http.StatusNoContent)
}

func mutationResult(err error) string {
	switch {
	case errors.Is(err, templates.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, templates.ErrTemplateNotAllowed):
		return "not_allowed"
	case errors.Is(err, templates.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

type generateTemplateRequest struct {
	Name         string `form:"name" json:"name"`
	Description  string `form:"description" json:"description"`
	Brief        string `form:"brief" json:"brief"`
	ReferenceURL string `form:"reference_url" json:"reference_url"`
	LayoutHint   string `form:"layout_hint" json:"layout_hint"`
	ColorHint    string `form:"color_hint" json:"color_hint"`
}

// GenerateTemplate 校验生成请求并投递异步任务，结果通过 WebSocket 通知。
func (h *TemplateHandler) GenerateTemplate(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	log := middleware.LoggerFromContext(c)
	ctx := c.Request.Context()

	var req generateTemplateRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	caps, err := h.accounts.Capabilities(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !caps.CustomTemplatesEnabled() {
		respondError(c, templates.ErrTemplateNotAllowed)
		return
	}

	genReq := generate.Request{
		OwnerID:      userID,
		Description:  strings.TrimSpace(req.Brief),
		ReferenceURL: strings.TrimSpace(req.ReferenceURL),
		LayoutHint:   strings.TrimSpace(req.LayoutHint),
		ColorHint:    strings.TrimSpace(req.ColorHint),
	}
	if file, err := c.FormFile("reference"); err == nil {
		data, contentType, err := readReferenceImage(file)
		if err != nil {
			respondError(c, err)
			return
		}
		genReq.ReferenceImage = data
		genReq.ReferenceImageType = contentType
	}
	if err := genReq.Validate(); err != nil {
		respondError(c, err)
		return
	}

	quota := dailyQuota{client: h.counter, limit: caps.MaxGenerationsPerDay}
	quotaKey := generationQuotaKey(userID, h.now())
	allowed, err := quota.consume(ctx, quotaKey)
	if err != nil {
		log.Error("increment generation counter failed", slog.Any("error", err))
		Internal(c, msgRetry)
		return
	}
	if !allowed {
		errorWithCode(c, http.StatusTooManyRequests, errcode.QuotaExceeded, "daily generation limit reached")
		return
	}

	payload := tasks.TemplateGeneratePayload{
		OwnerID:       userID,
		CorrelationID: middleware.GetCorrelationID(c),
		Name:          strings.TrimSpace(req.Name),
		Description:   strings.TrimSpace(req.Description),
		Brief:         genReq.Description,
		ReferenceURL:  genReq.ReferenceURL,
		LayoutHint:    genReq.LayoutHint,
		ColorHint:     genReq.ColorHint,
	}

	if len(genReq.ReferenceImage) > 0 {
		if err := h.scanner.Scan(bytes.NewReader(genReq.ReferenceImage)); err != nil {
			quota.release(ctx, quotaKey)
			if errors.Is(err, ErrMaliciousFile) {
				BadRequest(c, "malicious file detected")
				return
			}
			log.Error("scan reference image failed", slog.Any("error", err))
			Internal(c, "failed to scan file")
			return
		}
		key := storage.ReferenceImageKey(userID, imageExtension(genReq.ReferenceImageType))
		if _, err := h.objects.UploadFile(ctx, key, bytes.NewReader(genReq.ReferenceImage), int64(len(genReq.ReferenceImage)), genReq.ReferenceImageType); err != nil {
			quota.release(ctx, quotaKey)
			log.Error("upload reference image failed", slog.Any("error", err))
			Internal(c, "failed to upload file")
			return
		}
		payload.ReferenceImageKey = key
		payload.ReferenceImageType = genReq.ReferenceImageType
	}

	taskID := generationTaskID(userID)
	opts := []asynq.Option{
		asynq.Queue(tasks.QueueGenerate),
		asynq.TaskID(taskID),
		asynq.MaxRetry(2),
	}
	if h.generationTimeout > 0 {
		// 任务超时略大于生成超时，留出落库与通知的时间。
		opts = append(opts, asynq.Timeout(h.generationTimeout+30*time.Second))
	}
	task, err := tasks.NewTemplateGenerateTask(payload, opts...)
	if err != nil {
		quota.release(ctx, quotaKey)
		log.Error("build generation task failed", slog.Any("error", err))
		Internal(c, msgRetry)
		return
	}
	info, err := h.queue.EnqueueContext(ctx, task)
	if err != nil {
		quota.release(ctx, quotaKey)
		log.Error("enqueue generation task failed", slog.Any("error", err))
		Internal(c, "failed to enqueue task")
		return
	}

	log.Info("template generation enqueued", slog.String("task_id", info.ID))
	c.JSON(http.StatusAccepted, gin.H{
		"task_id":        info.ID,
		"correlation_id": payload.CorrelationID,
	})
}

// CancelGeneration 取消账号自己的生成任务，未提交的结果不会落库。
func (h *TemplateHandler) CancelGeneration(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	taskID := c.Param("taskID")
	if !strings.HasPrefix(taskID, generationTaskPrefix(userID)) {
		NotFound(c, "task not found")
		return
	}

	deleteErr := h.canceler.DeleteTask(tasks.QueueGenerate, taskID)
	if deleteErr == nil {
		c.Status(http.StatusNoContent)
		return
	}
	if errors.Is(deleteErr, asynq.ErrQueueNotFound) || errors.Is(deleteErr, asynq.ErrTaskNotFound) {
		NotFound(c, "task not found")
		return
	}
	// 已在执行中的任务不能删除，只能发出取消信号。
	if err := h.canceler.CancelProcessing(taskID); err != nil {
		middleware.LoggerFromContext(c).Error("cancel generation failed", slog.Any("error", err))
		Internal(c, msgRetry)
		return
	}
	c.Status(http.StatusAccepted)
}

func generationTaskPrefix(userID uint) string {
	return fmt.Sprintf("gen-%d-", userID)
}

func generationTaskID(userID uint) string {
	return generationTaskPrefix(userID) + uuid.NewString()
}

func templateSlots(markup string) []string {
	slots, err := render.Slots(markup)
	if err != nil {
		return nil
	}
	return slots
}

// readReferenceImage 读取参考图并按内容识别类型，不信任客户端声明的 Content-Type。
func readReferenceImage(file *multipart.FileHeader) ([]byte, string, error) {
	if file.Size > generate.MaxReferenceImageBytes {
		return nil, "", errors.Join(generate.ErrInvalidReference, errors.New("reference image is too large"))
	}
	f, err := file.Open()
	if err != nil {
		return nil, "", fmt.Errorf("open reference image: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, generate.MaxReferenceImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read reference image: %w", err)
	}
	if len(data) > generate.MaxReferenceImageBytes {
		return nil, "", errors.Join(generate.ErrInvalidReference, errors.New("reference image is too large"))
	}
	return data, http.DetectContentType(data), nil
}
