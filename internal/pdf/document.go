package pdf

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"cvforge/internal/render"
)

// 纸张尺寸（英寸），用于 PagePrintToPDF。
var paperSizes = map[string][2]float64{
	"A4":     {8.27, 11.69},
	"LETTER": {8.5, 11},
	"LEGAL":  {8.5, 14},
}

// PageSetup 是打印参数，单位为英寸。
type PageSetup struct {
	Width, Height                                    float64
	MarginTop, MarginRight, MarginBottom, MarginLeft float64
}

// Setup 从导出定义推导纸张和边距；PageMargins 与 CSS 顺序一致，为 [上, 右, 下, 左]，单位 pt。
func Setup(def render.DocumentDefinition) PageSetup {
	size, ok := paperSizes[strings.ToUpper(strings.TrimSpace(def.PageSize))]
	if !ok {
		size = paperSizes["A4"]
	}
	m := def.PageMargins
	return PageSetup{
		Width:        size[0],
		Height:       size[1],
		MarginTop:    m[0] / 72,
		MarginRight:  m[1] / 72,
		MarginBottom: m[2] / 72,
		MarginLeft:   m[3] / 72,
	}
}

// HTML 把导出定义展开为可直接打印的 HTML 文档。
// 只依赖定义本身：图片已经以 data URI 内联，渲染时不会访问网络。
func HTML(def render.DocumentDefinition) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><meta charset=\"UTF-8\">")
	fmt.Fprintf(&b, "<title>%s</title>", esc(def.TemplateID))
	b.WriteString("<style>")
	b.WriteString(baseCSS(def))
	if def.Stylesheet != "" {
		b.WriteString(render.StyleText(def.Stylesheet))
	}
	b.WriteString("</style></head><body><main class=\"cv-document\">")
	for _, n := range def.Content {
		writeNode(&b, n)
	}
	b.WriteString("</main></body></html>")
	return b.String()
}

func esc(s string) string {
	return html.EscapeString(s)
}

func baseCSS(def render.DocumentDefinition) string {
	var b strings.Builder
	size := strings.TrimSpace(def.PageSize)
	if size == "" {
		size = "A4"
	}
	fmt.Fprintf(&b, "@page{size:%s;margin:0}", size)
	fmt.Fprintf(&b, "*{-webkit-print-color-adjust:exact;print-color-adjust:exact}")
	fmt.Fprintf(&b, "html,body{margin:0;padding:0;background:#fff}")
	fmt.Fprintf(&b, "body{%s}", textStyleCSS(def.DefaultStyle))

	// 按名称排序，保证输出稳定。
	names := make([]string, 0, len(def.Styles))
	for name := range def.Styles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, ".s-%s{%s}", name, textStyleCSS(def.Styles[name]))
	}

	b.WriteString(".cv-columns{display:flex;gap:18pt}.cv-column{flex:1 1 auto}")
	b.WriteString(".cv-group{break-inside:avoid;page-break-inside:avoid}")
	b.WriteString(".cv-break{break-before:page;page-break-before:always}")
	b.WriteString(".cv-list{margin:0;padding-left:14pt}.cv-rule{border:0;border-top:1px solid currentColor;margin:2pt 0 6pt}")
	b.WriteString("h1,h2,h3,p{margin:0}")
	return b.String()
}

func textStyleCSS(s render.TextStyle) string {
	var parts []string
	if s.Font != "" {
		parts = append(parts, "font-family:"+s.Font)
	}
	if s.FontSize > 0 {
		parts = append(parts, fmt.Sprintf("font-size:%gpt", s.FontSize))
	}
	if s.LineHeight > 0 {
		parts = append(parts, fmt.Sprintf("line-height:%g", s.LineHeight))
	}
	if s.Bold {
		parts = append(parts, "font-weight:700")
	}
	if s.Italics {
		parts = append(parts, "font-style:italic")
	}
	if s.Color != "" {
		parts = append(parts, "color:"+s.Color)
	}
	if s.MarginTop > 0 {
		parts = append(parts, fmt.Sprintf("margin-top:%gpt", s.MarginTop))
	}
	if s.MarginBottom > 0 {
		parts = append(parts, fmt.Sprintf("margin-bottom:%gpt", s.MarginBottom))
	}
	return strings.Join(parts, ";")
}

func class(base string, n render.Node) string {
	classes := []string{base}
	if n.Style != "" {
		classes = append(classes, "s-"+n.Style)
	}
	if n.PageBreak == "before" {
		classes = append(classes, "cv-break")
	}
	if n.Unbreakable {
		classes = append(classes, "cv-group")
	}
	return strings.Join(classes, " ")
}

func writeNode(b *strings.Builder, n render.Node) {
	switch n.Kind {
	case render.NodeSection:
		fmt.Fprintf(b, `<section class="%s" data-section="%s">`, class("cv-section", n), esc(string(n.Section)))
		writeChildren(b, n)
		b.WriteString("</section>")
	case render.NodeColumns:
		fmt.Fprintf(b, `<div class="%s">`, class("cv-columns", n))
		writeChildren(b, n)
		b.WriteString("</div>")
	case render.NodeColumn:
		if n.Width > 0 {
			fmt.Fprintf(b, `<div class="%s" style="flex:0 0 %gpt">`, class("cv-column", n), n.Width)
		} else {
			fmt.Fprintf(b, `<div class="%s">`, class("cv-column", n))
		}
		writeChildren(b, n)
		b.WriteString("</div>")
	case render.NodeGroup:
		fmt.Fprintf(b, `<div class="%s">`, class("cv-entry", n))
		writeChildren(b, n)
		b.WriteString("</div>")
	case render.NodeHeading:
		tag := "h3"
		switch n.Style {
		case "name":
			tag = "h1"
		case "sectionTitle":
			tag = "h2"
		}
		fmt.Fprintf(b, `<%s class="%s">%s</%s>`, tag, class("cv-heading", n), esc(n.Text), tag)
	case render.NodeText, render.NodeDateRange:
		fmt.Fprintf(b, `<p class="%s">%s</p>`, class("cv-text", n), esc(n.Text))
	case render.NodeList:
		fmt.Fprintf(b, `<ul class="%s">`, class("cv-list", n))
		for _, item := range n.Items {
			fmt.Fprintf(b, "<li>%s</li>", esc(item))
		}
		b.WriteString("</ul>")
	case render.NodeRule:
		b.WriteString(`<hr class="cv-rule">`)
	case render.NodeImage:
		if n.Image == "" {
			return
		}
		fmt.Fprintf(b, `<img class="cv-photo" src="%s" alt="" style="width:%gpt;height:%gpt;object-fit:cover">`, esc(n.Image), n.Width, n.Width)
	case render.NodeLinkBack:
		if n.Image == "" {
			return
		}
		fmt.Fprintf(b, `<a class="cv-link-back" href="%s"><img src="%s" alt="" style="width:%gpt;height:%gpt"></a>`, esc(n.Link), esc(n.Image), n.Width, n.Width)
	default:
		writeChildren(b, n)
	}
}

func writeChildren(b *strings.Builder, n render.Node) {
	for _, c := range n.Children {
		writeNode(b, c)
	}
}
