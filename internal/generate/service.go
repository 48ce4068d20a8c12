package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cvforge/internal/capability"
	"cvforge/internal/templates"
)

// TemplateCreator 是模板存储的写入边界。
type TemplateCreator interface {
	Create(ctx context.Context, ownerID uint, quota templates.Quota, in templates.NewTemplate) (templates.CustomTemplate, error)
}

// Service 串起 校验 → 生成 → 清洗 → 保存。
type Service struct {
	generator Generator
	store     TemplateCreator
	logger    *slog.Logger
}

// NewService 构造 Service。
func NewService(generator Generator, store TemplateCreator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{generator: generator, store: store, logger: logger}
}

// GenerateAndCreate 生成一个模板并在配额允许时保存为未激活状态。
//
// ctx 的截止时间到达时返回 ErrTimeout；在保存之前被取消则什么都不会写入。
// 生成结果只要有一处不安全就整体拒绝，不会部分保存。
func (s *Service) GenerateAndCreate(ctx context.Context, req Request, caps capability.RenderCapabilities, name, description string) (templates.CustomTemplate, error) {
	if err := req.Validate(); err != nil {
		return templates.CustomTemplate{}, err
	}
	if !caps.CustomTemplatesEnabled() {
		return templates.CustomTemplate{}, templates.ErrTemplateNotAllowed
	}

	log := s.logger.With(slog.Uint64("owner_id", uint64(req.OwnerID)))

	raw, err := s.generator.Generate(ctx, req)
	if err != nil {
		if cerr := contextError(ctx, err); cerr != nil {
			log.Warn("template generation interrupted", slog.Any("err", cerr))
			return templates.CustomTemplate{}, cerr
		}
		return templates.CustomTemplate{}, fmt.Errorf("generate template: %w", err)
	}

	clean, err := Sanitize(raw.Markup, raw.Stylesheet)
	if err != nil {
		log.Warn("generated template rejected", slog.Any("err", err))
		return templates.CustomTemplate{}, err
	}
	if len(clean.Slots) == 0 {
		log.Warn("generated template declares no known slots; content will render in the fallback area")
	}

	// 取消发生在生成之后、保存之前时同样不落库。
	if cerr := contextError(ctx, ctx.Err()); cerr != nil {
		return templates.CustomTemplate{}, cerr
	}

	if strings.TrimSpace(name) == "" {
		name = defaultName(req)
	}
	tpl, err := s.store.Create(ctx, req.OwnerID, caps.Quota(), templates.NewTemplate{
		Name:        name,
		Description: description,
		Markup:      clean.Markup,
		Stylesheet:  clean.Stylesheet,
	})
	if err != nil {
		return templates.CustomTemplate{}, err
	}
	log.Info("custom template generated", slog.String("template_id", tpl.ID), slog.Int64("size_bytes", tpl.SizeBytes))
	return tpl, nil
}

// contextError 把因 ctx 结束导致的错误归一：超时 => ErrTimeout，取消 => context.Canceled。
func contextError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, context.DeadlineExceeded)
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return context.Canceled
	}
	return nil
}

func defaultName(req Request) string {
	desc := strings.Join(strings.Fields(req.Description), " ")
	if desc == "" {
		return "Generated template"
	}
	if r := []rune(desc); len(r) > 40 {
		desc = string(r[:40]) + "…"
	}
	return desc
}
