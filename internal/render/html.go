package render

import (
	"fmt"
	"html"
	"strings"

	"cvforge/internal/cv"
	"cvforge/internal/document"
)

func esc(s string) string {
	return html.EscapeString(s)
}

// writeSection 输出一个带 data-section 标记的分区。
func writeSection(b *strings.Builder, s document.Section, style StyleMeta, skip func(document.Block) bool) {
	fmt.Fprintf(b, `<section class="cv-section cv-section--%s" data-section="%s">`, esc(string(s.Key)), esc(string(s.Key)))
	if s.Key != cv.SectionProfile {
		fmt.Fprintf(b, `<h2 class="cv-section__title">%s</h2>`, esc(s.Title))
		if style.SectionRule {
			b.WriteString(`<hr class="cv-rule">`)
		}
	}
	for _, block := range s.Blocks {
		if skip != nil && skip(block) {
			continue
		}
		writeBlock(b, block, style)
	}
	b.WriteString(`</section>`)
}

func writeBlock(b *strings.Builder, block document.Block, style StyleMeta) {
	switch block.Kind {
	case document.KindHeading:
		level := block.Level
		if level < 1 {
			level = 1
		}
		if level > 4 {
			level = 4
		}
		fmt.Fprintf(b, `<h%d class="cv-heading">%s</h%d>`, level, esc(block.Text), level)
	case document.KindParagraph:
		fmt.Fprintf(b, `<p class="cv-text">%s</p>`, esc(block.Text))
	case document.KindDateRange:
		fmt.Fprintf(b, `<p class="cv-dates">%s</p>`, esc(dateRangeText(block)))
	case document.KindList:
		b.WriteString(`<ul class="cv-list">`)
		for _, item := range block.Items {
			fmt.Fprintf(b, `<li>%s</li>`, esc(item))
		}
		b.WriteString(`</ul>`)
	case document.KindImage:
		size := style.PhotoSize
		fmt.Fprintf(b, `<img class="cv-photo" src="%s" alt="Profile photo" width="%g" height="%g">`, esc(block.Src), size, size)
	case document.KindLinkBack:
		fmt.Fprintf(b, `<a class="cv-link-back" href="%s"><img src="%s" alt="Online profile" width="%d" height="%d"></a>`,
			esc(block.URL), esc(block.Src), style.LinkBackSize, style.LinkBackSize)
	}
}

func dateRangeText(block document.Block) string {
	end := block.End
	if block.Ongoing {
		end = "Present"
	}
	switch {
	case block.Start == "":
		return end
	case end == "":
		return block.Start
	default:
		return block.Start + " – " + end
	}
}

// previewCSS 生成限定在预览根节点下的样式，避免影响宿主页面。
func previewCSS(style StyleMeta, twoColumn bool) string {
	root := "#" + PreviewRootID
	var b strings.Builder
	fmt.Fprintf(&b, "%s{font-family:%s;font-size:%gpt;line-height:%g;color:%s;padding:%gpt %gpt %gpt %gpt}",
		root, style.FontFamily, style.FontSize, style.LineHeight, style.TextColor,
		style.PageMargins[0], style.PageMargins[1], style.PageMargins[2], style.PageMargins[3])
	fmt.Fprintf(&b, "%s h1,%s h2,%s h3,%s h4{font-family:%s;margin:0 0 4pt}", root, root, root, root, style.HeadingFont)
	fmt.Fprintf(&b, "%s .cv-section{margin-bottom:12pt}", root)
	fmt.Fprintf(&b, "%s .cv-section__title{color:%s;font-size:%gpt;text-transform:uppercase;letter-spacing:.04em}", root, style.AccentColor, style.FontSize+2)
	fmt.Fprintf(&b, "%s .cv-rule{border:0;border-top:1px solid %s;margin:2pt 0 6pt}", root, style.AccentColor)
	fmt.Fprintf(&b, "%s .cv-dates{color:%s;font-size:%gpt;margin:0 0 2pt}", root, style.AccentColor, style.FontSize-1)
	fmt.Fprintf(&b, "%s .cv-photo{border-radius:50%%;object-fit:cover}", root)
	if twoColumn {
		fmt.Fprintf(&b, "%s{display:grid;grid-template-columns:%gpt 1fr;gap:24pt}", root, style.SidebarWidth)
		fmt.Fprintf(&b, "%s .cv-sidebar{border-right:3pt solid %s;padding-right:12pt}", root, style.AccentColor)
	}
	return b.String()
}
