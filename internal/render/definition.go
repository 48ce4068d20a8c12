package render

import (
	"cvforge/internal/cv"
	"cvforge/internal/document"
)

func newDefinition(templateID string, style StyleMeta) DocumentDefinition {
	return DocumentDefinition{
		TemplateID:  templateID,
		PageSize:    style.PageSize,
		PageMargins: style.PageMargins,
		DefaultStyle: TextStyle{
			Font:       style.FontFamily,
			FontSize:   style.FontSize,
			LineHeight: style.LineHeight,
			Color:      style.TextColor,
		},
		Styles: map[string]TextStyle{
			"name":         {Font: style.HeadingFont, FontSize: style.FontSize + 10, Bold: true, MarginBottom: 4},
			"sectionTitle": {Font: style.HeadingFont, FontSize: style.FontSize + 2, Bold: true, Color: style.AccentColor, MarginTop: 10, MarginBottom: 4},
			"entryTitle":   {Font: style.HeadingFont, FontSize: style.FontSize + 1, Bold: true, MarginTop: 6},
			"dates":        {FontSize: style.FontSize - 1, Italics: true, Color: style.AccentColor},
			"body":         {MarginBottom: 2},
		},
	}
}

// sectionNode 把分区转换为导出节点。条目标题开始一个不可拆分的分组，
// 使标题、日期与描述不会被分页拆开。
func sectionNode(s document.Section, style StyleMeta, skip func(document.Block) bool) Node {
	node := Node{Kind: NodeSection, Section: s.Key}
	if style.breaksBefore(s.Key) {
		node.PageBreak = "before"
	}
	if s.Key != cv.SectionProfile {
		node.Children = append(node.Children, Node{Kind: NodeHeading, Style: "sectionTitle", Text: s.Title})
		if style.SectionRule {
			node.Children = append(node.Children, Node{Kind: NodeRule, Style: "sectionTitle"})
		}
	}

	var group *Node
	flush := func() {
		if group != nil {
			node.Children = append(node.Children, *group)
			group = nil
		}
	}
	for _, b := range s.Blocks {
		if skip != nil && skip(b) {
			continue
		}
		n := blockNode(b, style)
		if b.Kind == document.KindHeading && b.Level > 1 {
			flush()
			group = &Node{Kind: NodeGroup, Unbreakable: true, Children: []Node{n}}
			continue
		}
		if group != nil {
			group.Children = append(group.Children, n)
			continue
		}
		node.Children = append(node.Children, n)
	}
	flush()
	return node
}

func blockNode(b document.Block, style StyleMeta) Node {
	switch b.Kind {
	case document.KindHeading:
		if b.Level <= 1 {
			return Node{Kind: NodeHeading, Style: "name", Text: b.Text}
		}
		return Node{Kind: NodeHeading, Style: "entryTitle", Text: b.Text}
	case document.KindDateRange:
		return Node{Kind: NodeDateRange, Style: "dates", Text: dateRangeText(b)}
	case document.KindList:
		return Node{Kind: NodeList, Style: "body", Items: append([]string(nil), b.Items...)}
	case document.KindImage:
		return Node{Kind: NodeImage, Image: b.Src, Width: style.PhotoSize}
	case document.KindLinkBack:
		return Node{Kind: NodeLinkBack, Image: b.Src, Link: b.URL, Width: float64(style.LinkBackSize)}
	default:
		return Node{Kind: NodeText, Style: "body", Text: b.Text}
	}
}
