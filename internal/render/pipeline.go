package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cvforge/internal/capability"
	"cvforge/internal/cv"
	"cvforge/internal/document"
	"cvforge/internal/metrics"
	"cvforge/internal/templates"
)

// State 是单次渲染请求的状态，不做持久化。
type State string

const (
	StateRequested State = "requested"
	StateValidated State = "validated"
	StateMapped    State = "mapped"
	StateRendered  State = "rendered"
	StateDegraded  State = "degraded"
	StateDelivered State = "delivered"
	StateFailed    State = "failed"
)

// Mode 区分预览和导出。
type Mode string

const (
	ModePreview Mode = "preview"
	ModeExport  Mode = "export"
)

// RecordSource 提供账号的简历快照。
type RecordSource interface {
	Fetch(ctx context.Context, accountID uint) (cv.Record, error)
}

// TemplateSource 读取账号的自定义模板。
type TemplateSource interface {
	Get(ctx context.Context, ownerID uint, templateID string) (templates.CustomTemplate, error)
}

// Request 是一次渲染请求。Capabilities 必须是本次请求实时解析出的值。
type Request struct {
	OwnerID      uint
	Config       document.RenderConfig
	Capabilities capability.RenderCapabilities
	// Record 非空时直接使用该快照，否则通过 RecordSource 读取。
	Record *cv.Record
}

// Result 是渲染结果，Trace 记录经过的状态。
type Result struct {
	State        State              `json:"state"`
	Trace        []State            `json:"trace"`
	TemplateID   string             `json:"template_id"`
	Preview      PreviewNode        `json:"preview"`
	Definition   DocumentDefinition `json:"definition"`
	Degradations []Degradation      `json:"degradations,omitempty"`
}

// Degraded reports whether an optional asset was omitted.
func (r Result) Degraded() bool {
	return len(r.Degradations) > 0
}

// MissingAssets 返回被省略资源的键（无键时为资源名），按出现顺序去重。
func (r Result) MissingAssets() []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range r.Degradations {
		name := d.Key
		if name == "" {
			name = d.Asset
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

func (r *Result) advance(s State) {
	r.State = s
	r.Trace = append(r.Trace, s)
}

// Pipeline 串起 校验 → 映射 → 资源解析 → 渲染 的完整流程。
// 自定义模板在校验阶段只读取一次，之后始终使用这份快照渲染，
// 即使模板在渲染过程中被删除也不会中断。
type Pipeline struct {
	registry  *Registry
	records   RecordSource
	templates TemplateSource
	assets    AssetResolver
	logger    *slog.Logger
}

// NewPipeline 构造 Pipeline。assets 为空时照片一律按缺失处理。
func NewPipeline(registry *Registry, records RecordSource, tpls TemplateSource, assets AssetResolver, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		registry:  registry,
		records:   records,
		templates: tpls,
		assets:    assets,
		logger:    logger,
	}
}

// Preview 生成预览片段。
func (p *Pipeline) Preview(ctx context.Context, req Request) (Result, error) {
	return p.run(ctx, req, ModePreview)
}

// Export 生成导出定义。
func (p *Pipeline) Export(ctx context.Context, req Request) (Result, error) {
	return p.run(ctx, req, ModeExport)
}

func (p *Pipeline) run(ctx context.Context, req Request, mode Mode) (Result, error) {
	cfg := req.Config.Normalize()
	res := Result{TemplateID: cfg.TemplateID}
	res.advance(StateRequested)

	kind := "builtin"
	if templates.IsCustomID(cfg.TemplateID) {
		kind = "custom"
	}
	log := p.logger.With(
		slog.Uint64("owner_id", uint64(req.OwnerID)),
		slog.String("template_id", cfg.TemplateID),
		slog.String("mode", string(mode)),
	)
	fail := func(err error) (Result, error) {
		res.advance(StateFailed)
		metrics.ObserveRender(kind, string(mode), string(StateFailed))
		return res, err
	}

	if err := document.Validate(cfg, req.Capabilities); err != nil {
		return fail(err)
	}
	renderer, style, err := p.resolve(ctx, req.OwnerID, cfg.TemplateID)
	if err != nil {
		return fail(err)
	}
	res.advance(StateValidated)

	record, err := p.record(ctx, req)
	if err != nil {
		return fail(err)
	}
	model, err := document.Map(record, cfg, req.Capabilities)
	if err != nil {
		if errors.Is(err, document.ErrMalformedRecord) {
			log.Error("cv record could not be mapped", slog.Any("err", err))
		}
		return fail(err)
	}
	res.advance(StateMapped)

	degradations, err := p.resolveAssets(ctx, req.OwnerID, &model)
	if err != nil {
		return fail(err)
	}

	switch mode {
	case ModeExport:
		res.Definition = renderer.RenderExportDefinition(model, style)
		degradations = append(degradations, res.Definition.Degradations...)
		res.Definition.Degradations = degradations
	default:
		res.Preview = renderer.RenderPreview(model, style)
		degradations = append(degradations, res.Preview.Degradations...)
		res.Preview.Degradations = degradations
	}
	res.Degradations = degradations
	res.advance(StateRendered)

	outcome := StateDelivered
	if len(degradations) > 0 {
		for _, d := range degradations {
			log.Warn("render degraded: optional asset omitted",
				slog.String("asset", d.Asset),
				slog.String("key", d.Key),
				slog.String("reason", d.Reason),
			)
		}
		res.advance(StateDegraded)
		outcome = StateDegraded
	}
	res.advance(StateDelivered)
	metrics.ObserveRender(kind, string(mode), string(outcome))
	return res, nil
}

func (p *Pipeline) resolve(ctx context.Context, ownerID uint, templateID string) (Renderer, StyleMeta, error) {
	id, ok := templates.ParseCustomID(templateID)
	if !ok {
		return p.registry.Builtin(templateID)
	}
	if p.templates == nil {
		return nil, StyleMeta{}, templates.ErrNotFound
	}
	tpl, err := p.templates.Get(ctx, ownerID, id)
	if err != nil {
		return nil, StyleMeta{}, err
	}
	renderer, style, err := p.registry.Custom(tpl)
	if err != nil {
		return nil, StyleMeta{}, fmt.Errorf("compile template %s: %w", tpl.ID, err)
	}
	return renderer, style, nil
}

func (p *Pipeline) record(ctx context.Context, req Request) (cv.Record, error) {
	if req.Record != nil {
		return *req.Record, nil
	}
	if p.records == nil {
		return cv.Record{}, errors.New("no cv record source configured")
	}
	return p.records.Fetch(ctx, req.OwnerID)
}

// resolveAssets 解析照片；缺失时移除照片块并记录降级，系统错误则中断渲染。
func (p *Pipeline) resolveAssets(ctx context.Context, ownerID uint, model *document.Model) ([]Degradation, error) {
	var degradations []Degradation
	for si := range model.Sections {
		blocks := model.Sections[si].Blocks
		for bi := range blocks {
			if blocks[bi].Kind != document.KindImage {
				continue
			}
			key := blocks[bi].AssetKey
			if p.assets == nil {
				degradations = append(degradations, Degradation{Asset: AssetPhoto, Key: key, Reason: "asset resolver unavailable"})
				continue
			}
			src, err := p.assets.Resolve(ctx, ownerID, key)
			if err != nil {
				if !errors.Is(err, ErrAssetUnavailable) {
					return nil, fmt.Errorf("resolve asset %q: %w", key, err)
				}
				degradations = append(degradations, Degradation{Asset: AssetPhoto, Key: key, Reason: err.Error()})
				continue
			}
			blocks[bi].Src = src
		}
	}
	if len(degradations) > 0 {
		model.RemoveBlocks(document.KindImage)
	}
	return degradations, nil
}
