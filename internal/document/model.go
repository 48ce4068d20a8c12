package document

import "cvforge/internal/cv"

// BlockKind 标识内容块的类型。
type BlockKind string

const (
	KindHeading   BlockKind = "heading"
	KindParagraph BlockKind = "paragraph"
	KindDateRange BlockKind = "date_range"
	KindList      BlockKind = "list"
	KindImage     BlockKind = "image"
	KindLinkBack  BlockKind = "link_back"
)

// Block 是只携带语义内容的内容块（带标签的联合体，按 Kind 使用对应字段）。
type Block struct {
	Kind BlockKind `json:"kind"`

	// Heading
	Level int `json:"level,omitempty"`
	// Heading / Paragraph
	Text string `json:"text,omitempty"`

	// DateRange
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
	Ongoing bool   `json:"ongoing,omitempty"`

	// List
	Items []string `json:"items,omitempty"`

	// Image：AssetKey 是对象存储中的键，Src 由渲染管线在渲染前解析填充。
	AssetKey string `json:"asset_key,omitempty"`
	Src      string `json:"src,omitempty"`

	// LinkBack：在线简历的规范地址。
	URL string `json:"url,omitempty"`
}

// Section 是一个已填充且被选中的分区及其内容块。
type Section struct {
	Key    cv.SectionKey `json:"key"`
	Title  string        `json:"title"`
	Blocks []Block       `json:"blocks"`
}

// Model 是一次渲染的模板无关文档表示，每次渲染重新生成，不做持久化。
type Model struct {
	TemplateID string    `json:"template_id"`
	Sections   []Section `json:"sections"`
}

// SectionKeys returns the section keys in document order.
func (m Model) SectionKeys() []cv.SectionKey {
	keys := make([]cv.SectionKey, 0, len(m.Sections))
	for _, s := range m.Sections {
		keys = append(keys, s.Key)
	}
	return keys
}

// Section returns the section with the given key.
func (m Model) Section(key cv.SectionKey) (Section, bool) {
	for _, s := range m.Sections {
		if s.Key == key {
			return s, true
		}
	}
	return Section{}, false
}

// Blocks returns every block in document order.
func (m Model) Blocks() []Block {
	var out []Block
	for _, s := range m.Sections {
		out = append(out, s.Blocks...)
	}
	return out
}

// Find 返回第一个指定类型的内容块及其所在分区。
func (m Model) Find(kind BlockKind) (Block, cv.SectionKey, bool) {
	for _, s := range m.Sections {
		for _, b := range s.Blocks {
			if b.Kind == kind {
				return b, s.Key, true
			}
		}
	}
	return Block{}, "", false
}

// Clone 返回深拷贝，渲染管线在填充资源前使用，避免修改调用方的 Model。
func (m Model) Clone() Model {
	out := Model{TemplateID: m.TemplateID, Sections: make([]Section, len(m.Sections))}
	for i, s := range m.Sections {
		blocks := make([]Block, len(s.Blocks))
		for j, b := range s.Blocks {
			if b.Items != nil {
				b.Items = append([]string(nil), b.Items...)
			}
			blocks[j] = b
		}
		out.Sections[i] = Section{Key: s.Key, Title: s.Title, Blocks: blocks}
	}
	return out
}

// RemoveBlocks 删除指定类型的内容块，删除后为空的分区一并移除。
func (m *Model) RemoveBlocks(kind BlockKind) {
	sections := m.Sections[:0]
	for _, s := range m.Sections {
		blocks := s.Blocks[:0]
		for _, b := range s.Blocks {
			if b.Kind != kind {
				blocks = append(blocks, b)
			}
		}
		s.Blocks = blocks
		if len(s.Blocks) > 0 {
			sections = append(sections, s)
		}
	}
	m.Sections = sections
}
