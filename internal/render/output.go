package render

import "cvforge/internal/cv"

// PreviewRootID 是预览片段根元素的固定 id，前端按它整体替换上一次挂载的节点。
const PreviewRootID = "cv-preview"

// 降级资源名称。
const (
	AssetPhoto    = "photo"
	AssetLinkBack = "link_back"
)

// Degradation 记录一次被省略的可选资源。
type Degradation struct {
	Asset  string `json:"asset"`
	Key    string `json:"key,omitempty"`
	Reason string `json:"reason"`
}

// PreviewNode 是可挂载的预览片段。每次渲染都是全新的值，不持有上一次的状态。
type PreviewNode struct {
	RootID       string          `json:"root_id"`
	TemplateID   string          `json:"template_id"`
	HTML         string          `json:"html"`
	Sections     []cv.SectionKey `json:"sections"`
	Degradations []Degradation   `json:"degradations,omitempty"`
}

// NodeKind 标识导出定义中的节点类型。
type NodeKind string

const (
	NodeSection   NodeKind = "section"
	NodeColumns   NodeKind = "columns"
	NodeColumn    NodeKind = "column"
	NodeHeading   NodeKind = "heading"
	NodeText      NodeKind = "text"
	NodeDateRange NodeKind = "date_range"
	NodeList      NodeKind = "list"
	NodeImage     NodeKind = "image"
	NodeLinkBack  NodeKind = "link_back"
	NodeRule      NodeKind = "rule"
	NodeGroup     NodeKind = "group"
)

// TextStyle 是导出定义中的命名样式。
type TextStyle struct {
	Font         string  `json:"font,omitempty"`
	FontSize     float64 `json:"fontSize,omitempty"`
	LineHeight   float64 `json:"lineHeight,omitempty"`
	Bold         bool    `json:"bold,omitempty"`
	Italics      bool    `json:"italics,omitempty"`
	Color        string  `json:"color,omitempty"`
	MarginTop    float64 `json:"marginTop,omitempty"`
	MarginBottom float64 `json:"marginBottom,omitempty"`
}

// Node 是导出定义中的一个块。
type Node struct {
	Kind        NodeKind      `json:"kind"`
	Section     cv.SectionKey `json:"section,omitempty"`
	Style       string        `json:"style,omitempty"`
	Text        string        `json:"text,omitempty"`
	Items       []string      `json:"items,omitempty"`
	Image       string        `json:"image,omitempty"`
	Width       float64       `json:"width,omitempty"`
	Link        string        `json:"link,omitempty"`
	PageBreak   string        `json:"pageBreak,omitempty"`
	Unbreakable bool          `json:"unbreakable,omitempty"`
	Children    []Node        `json:"children,omitempty"`
}

// DocumentDefinition 是与导出后端无关的分页文档描述，只是数据，不做任何 I/O。
type DocumentDefinition struct {
	TemplateID   string               `json:"template_id"`
	PageSize     string               `json:"pageSize"`
	PageMargins  [4]float64           `json:"pageMargins"`
	DefaultStyle TextStyle            `json:"defaultStyle"`
	Styles       map[string]TextStyle `json:"styles"`
	Stylesheet   string               `json:"stylesheet,omitempty"`
	Content      []Node               `json:"content"`
	Degradations []Degradation        `json:"degradations,omitempty"`
}

// SectionKeys returns the section keys present in the definition, in order.
func (d DocumentDefinition) SectionKeys() []cv.SectionKey {
	var keys []cv.SectionKey
	var walk func(nodes []Node)
	walk = func(nodes []Node) {
		for _, n := range nodes {
			if n.Kind == NodeSection {
				keys = append(keys, n.Section)
				continue
			}
			walk(n.Children)
		}
	}
	walk(d.Content)
	return keys
}

// Count 统计指定类型节点的数量（包含嵌套节点）。
func (d DocumentDefinition) Count(kind NodeKind) int {
	n := 0
	var walk func(nodes []Node)
	walk = func(nodes []Node) {
		for _, node := range nodes {
			if node.Kind == kind {
				n++
			}
			walk(node.Children)
		}
	}
	walk(d.Content)
	return n
}
