package render

import (
	"fmt"
	"strings"

	"cvforge/internal/cv"
	"cvforge/internal/document"
	"cvforge/internal/templates"
)

// Renderer 把同一个 Model 渲染为预览片段和导出定义。
// 两种输出都只是数据，渲染器不做文件或网络 I/O。
type Renderer interface {
	ID() string
	RenderPreview(model document.Model, style StyleMeta) PreviewNode
	RenderExportDefinition(model document.Model, style StyleMeta) DocumentDefinition
}

// builtinRenderer 是内置模板的渲染器；版式差异由 twoColumn 和样式元数据决定。
type builtinRenderer struct {
	id        string
	twoColumn bool
	coder     LinkBackCoder
}

// NewMinimal 单栏、留白充足。
func NewMinimal(coder LinkBackCoder) Renderer {
	return &builtinRenderer{id: templates.BuiltinMinimal, coder: coder}
}

// NewClassic 衬线字体，分区标题带分隔线。
func NewClassic(coder LinkBackCoder) Renderer {
	return &builtinRenderer{id: templates.BuiltinClassic, coder: coder}
}

// NewModern 双栏，侧栏放个人信息、技能等短内容。
func NewModern(coder LinkBackCoder) Renderer {
	return &builtinRenderer{id: templates.BuiltinModern, twoColumn: true, coder: coder}
}

func (r *builtinRenderer) ID() string { return r.id }

func (r *builtinRenderer) RenderPreview(model document.Model, style StyleMeta) PreviewNode {
	prepared, degradations := prepare(model, style, r.coder)
	sidebar, main := r.split(prepared, style)

	var b strings.Builder
	fmt.Fprintf(&b, `<div id="%s" class="cv cv--%s" data-template="%s">`, PreviewRootID, esc(r.id), esc(prepared.TemplateID))
	fmt.Fprintf(&b, `<style>%s</style>`, previewCSS(style, r.twoColumn))

	keys := make([]cv.SectionKey, 0, len(prepared.Sections))
	if r.twoColumn {
		b.WriteString(`<aside class="cv-sidebar">`)
		for _, s := range sidebar {
			writeSection(&b, s, style, nil)
			keys = append(keys, s.Key)
		}
		b.WriteString(`</aside><main class="cv-main">`)
		for _, s := range main {
			writeSection(&b, s, style, nil)
			keys = append(keys, s.Key)
		}
		b.WriteString(`</main>`)
	} else {
		for _, s := range main {
			writeSection(&b, s, style, nil)
			keys = append(keys, s.Key)
		}
	}
	b.WriteString(`</div>`)

	return PreviewNode{
		RootID:       PreviewRootID,
		TemplateID:   prepared.TemplateID,
		HTML:         b.String(),
		Sections:     keys,
		Degradations: degradations,
	}
}

func (r *builtinRenderer) RenderExportDefinition(model document.Model, style StyleMeta) DocumentDefinition {
	prepared, degradations := prepare(model, style, r.coder)
	sidebar, main := r.split(prepared, style)

	def := newDefinition(prepared.TemplateID, style)
	def.Degradations = degradations

	if !r.twoColumn {
		for _, s := range main {
			def.Content = append(def.Content, sectionNode(s, style, nil))
		}
		return def
	}

	left := Node{Kind: NodeColumn, Width: style.SidebarWidth}
	for _, s := range sidebar {
		left.Children = append(left.Children, sectionNode(s, style, nil))
	}
	right := Node{Kind: NodeColumn}
	for _, s := range main {
		right.Children = append(right.Children, sectionNode(s, style, nil))
	}
	def.Content = []Node{{Kind: NodeColumns, Children: []Node{left, right}}}
	return def
}

// split 按样式中的侧栏配置拆分分区；单栏模板的全部分区都在 main 中。
func (r *builtinRenderer) split(model document.Model, style StyleMeta) (sidebar, main []document.Section) {
	for _, s := range model.Sections {
		if r.twoColumn && style.inSidebar(s.Key) {
			sidebar = append(sidebar, s)
			continue
		}
		main = append(main, s)
	}
	return sidebar, main
}
