package render

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"cvforge/internal/cv"
	"cvforge/internal/document"
	"cvforge/internal/templates"
)

// SlotAttr 是自定义模板中声明占位的属性，例如 <section data-cv-slot="work"></section>。
const SlotAttr = "data-cv-slot"

// 除分区名之外可用的占位名。
const (
	SlotPhoto    = "photo"
	SlotLinkBack = "link_back"
)

// ErrInvalidMarkup is returned when template markup cannot be compiled.
var ErrInvalidMarkup = errors.New("invalid template markup")

type segmentKind int

const (
	segLiteral segmentKind = iota
	segSlot
)

// segment 是编译后的模板片段：原样输出的文本，或绑定到 Model 的占位。
type segment struct {
	kind segmentKind
	text string
	slot string
}

type program struct {
	segments []segment
}

// KnownSlot reports whether name can be bound to document content.
func KnownSlot(name string) bool {
	if name == SlotPhoto || name == SlotLinkBack {
		return true
	}
	return cv.SectionKey(name).Valid()
}

// compile 把已清洗的 markup 编译为字面量/占位序列。占位元素的原有子内容被丢弃，
// 空元素（如 img）上的占位会整体替换该元素。markup 永远不会被当作模板语言求值。
func compile(markup string) (program, error) {
	z := html.NewTokenizer(strings.NewReader(markup))
	var (
		prog     program
		lit      strings.Builder
		skipTag  string
		skipping int
	)
	flush := func() {
		if lit.Len() > 0 {
			prog.segments = append(prog.segments, segment{kind: segLiteral, text: lit.String()})
			lit.Reset()
		}
	}

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				flush()
				return prog, nil
			}
			return program{}, fmt.Errorf("%w: %v", ErrInvalidMarkup, z.Err())
		}
		raw := string(z.Raw())
		tok := z.Token()

		if skipping > 0 {
			switch {
			case tt == html.StartTagToken && tok.Data == skipTag:
				skipping++
			case tt == html.EndTagToken && tok.Data == skipTag:
				skipping--
				if skipping == 0 {
					lit.WriteString(raw)
				}
			}
			continue
		}

		if tt == html.StartTagToken || tt == html.SelfClosingTagToken {
			if slot := strings.TrimSpace(attrValue(tok, SlotAttr)); slot != "" {
				if tt == html.SelfClosingTagToken || isVoid(tok.DataAtom) {
					flush()
					prog.segments = append(prog.segments, segment{kind: segSlot, slot: slot})
					continue
				}
				lit.WriteString(raw)
				flush()
				prog.segments = append(prog.segments, segment{kind: segSlot, slot: slot})
				skipTag = tok.Data
				skipping = 1
				continue
			}
		}
		lit.WriteString(raw)
	}
}

func attrValue(tok html.Token, name string) string {
	for _, a := range tok.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

func isVoid(a atom.Atom) bool {
	switch a {
	case atom.Area, atom.Br, atom.Col, atom.Embed, atom.Hr, atom.Img, atom.Input,
		atom.Link, atom.Meta, atom.Source, atom.Track, atom.Wbr:
		return true
	}
	return false
}

// Slots 返回 markup 中声明的占位名，按出现顺序去重。
func Slots(markup string) ([]string, error) {
	prog, err := compile(markup)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, seg := range prog.segments {
		if seg.kind == segSlot && !seen[seg.slot] {
			seen[seg.slot] = true
			out = append(out, seg.slot)
		}
	}
	return out, nil
}

// customRenderer 是所有自定义模板共用的通用渲染器。
type customRenderer struct {
	templateID string
	prog       program
	coder      LinkBackCoder
}

// NewCustom 编译自定义模板。markup 必须已经过清洗。
func NewCustom(tpl templates.CustomTemplate, coder LinkBackCoder) (Renderer, error) {
	prog, err := compile(tpl.Markup)
	if err != nil {
		return nil, err
	}
	return &customRenderer{templateID: tpl.TemplateID(), prog: prog, coder: coder}, nil
}

func (r *customRenderer) ID() string { return r.templateID }

// binding 是一个占位最终绑定到的内容：整个分区，或单独的照片/二维码块。
type binding struct {
	section *document.Section
	asset   *document.Block
	owner   cv.SectionKey
}

// layoutPlan 由预览与导出共用，保证两者包含相同的分区。
type layoutPlan struct {
	bound map[int]binding
	order []int
	rest  []document.Section
	skip  func(document.Block) bool
}

func (r *customRenderer) plan(model document.Model) layoutPlan {
	slotted := make(map[string]bool)
	for _, seg := range r.prog.segments {
		if seg.kind == segSlot {
			slotted[seg.slot] = true
		}
	}
	skip := func(b document.Block) bool {
		return (b.Kind == document.KindImage && slotted[SlotPhoto]) ||
			(b.Kind == document.KindLinkBack && slotted[SlotLinkBack])
	}

	p := layoutPlan{bound: make(map[int]binding), skip: skip}
	used := make(map[string]bool)
	placed := make(map[cv.SectionKey]bool)
	for i, seg := range r.prog.segments {
		if seg.kind != segSlot || used[seg.slot] {
			continue
		}
		used[seg.slot] = true
		switch seg.slot {
		case SlotPhoto, SlotLinkBack:
			kind := document.KindImage
			if seg.slot == SlotLinkBack {
				kind = document.KindLinkBack
			}
			if block, owner, ok := model.Find(kind); ok {
				b := block
				p.bound[i] = binding{asset: &b, owner: owner}
				p.order = append(p.order, i)
			}
		default:
			key := cv.SectionKey(seg.slot)
			if s, ok := model.Section(key); ok && hasVisible(s, skip) {
				sec := s
				p.bound[i] = binding{section: &sec, owner: key}
				p.order = append(p.order, i)
				placed[key] = true
			}
		}
	}
	for _, s := range model.Sections {
		if !placed[s.Key] && hasVisible(s, skip) {
			p.rest = append(p.rest, s)
		}
	}
	return p
}

func hasVisible(s document.Section, skip func(document.Block) bool) bool {
	for _, b := range s.Blocks {
		if !skip(b) {
			return true
		}
	}
	return false
}

func (r *customRenderer) RenderPreview(model document.Model, style StyleMeta) PreviewNode {
	prepared, degradations := prepare(model, style, r.coder)
	p := r.plan(prepared)

	var b strings.Builder
	fmt.Fprintf(&b, `<div id="%s" class="cv cv--custom" data-template="%s">`, PreviewRootID, esc(r.templateID))
	fmt.Fprintf(&b, `<style>%s%s</style>`, previewCSS(style, false), StyleText(ScopeStylesheet(style.Stylesheet, "#"+PreviewRootID)))

	var keys []cv.SectionKey
	for i, seg := range r.prog.segments {
		if seg.kind == segLiteral {
			b.WriteString(seg.text)
			continue
		}
		bind, ok := p.bound[i]
		if !ok {
			continue
		}
		if bind.section != nil {
			writeSection(&b, *bind.section, style, p.skip)
		} else {
			fmt.Fprintf(&b, `<div class="cv-asset" data-section="%s">`, esc(string(bind.owner)))
			writeBlock(&b, *bind.asset, style)
			b.WriteString(`</div>`)
		}
		keys = append(keys, bind.owner)
	}
	if len(p.rest) > 0 {
		b.WriteString(`<div class="cv-rest">`)
		for _, s := range p.rest {
			writeSection(&b, s, style, p.skip)
			keys = append(keys, s.Key)
		}
		b.WriteString(`</div>`)
	}
	b.WriteString(`</div>`)

	return PreviewNode{
		RootID:       PreviewRootID,
		TemplateID:   r.templateID,
		HTML:         b.String(),
		Sections:     keys,
		Degradations: degradations,
	}
}

func (r *customRenderer) RenderExportDefinition(model document.Model, style StyleMeta) DocumentDefinition {
	prepared, degradations := prepare(model, style, r.coder)
	p := r.plan(prepared)

	def := newDefinition(r.templateID, style)
	def.Stylesheet = style.Stylesheet
	def.Degradations = degradations
	for _, i := range p.order {
		bind := p.bound[i]
		if bind.section != nil {
			def.Content = append(def.Content, sectionNode(*bind.section, style, p.skip))
			continue
		}
		def.Content = append(def.Content, Node{
			Kind:     NodeSection,
			Section:  bind.owner,
			Children: []Node{blockNode(*bind.asset, style)},
		})
	}
	for _, s := range p.rest {
		def.Content = append(def.Content, sectionNode(s, style, p.skip))
	}
	return def
}
