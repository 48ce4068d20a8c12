package document

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"cvforge/internal/capability"
	"cvforge/internal/cv"
)

var sectionTitles = map[cv.SectionKey]string{
	cv.SectionProfile:                  "Profile",
	cv.SectionSummary:                  "Summary",
	cv.SectionWork:                     "Work Experience",
	cv.SectionEducation:                "Education",
	cv.SectionProjects:                 "Projects",
	cv.SectionSkills:                   "Skills",
	cv.SectionCertifications:           "Certifications",
	cv.SectionMemberships:              "Memberships",
	cv.SectionInterests:                "Interests",
	cv.SectionQualificationEquivalence: "Qualification Equivalence",
	cv.SectionLinkBack:                 "Online Profile",
}

// Title returns the display title of a section.
func Title(key cv.SectionKey) string {
	return sectionTitles[key]
}

// Map 把简历快照和渲染配置映射为 Model。
//
// 模板不在允许列表时返回 ErrTemplateNotAllowed 且不产出任何内容；
// 分区只按数据是否存在过滤，不按套餐过滤。缺少必填字段的条目会被丢弃，
// 只有无法解析的日期才视为 ErrMalformedRecord。
func Map(record cv.Record, cfg RenderConfig, caps capability.RenderCapabilities) (Model, error) {
	cfg = cfg.Normalize()
	if err := Validate(cfg, caps); err != nil {
		return Model{}, err
	}
	if err := record.Validate(); err != nil {
		return Model{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	model := Model{TemplateID: cfg.TemplateID}
	add := func(key cv.SectionKey, blocks []Block) {
		if len(blocks) == 0 {
			return
		}
		model.Sections = append(model.Sections, Section{Key: key, Title: Title(key), Blocks: blocks})
	}

	profileShown := false
	for _, key := range cv.CanonicalOrder {
		if !cfg.Selects(key) {
			continue
		}
		switch key {
		case cv.SectionProfile:
			blocks := profileBlocks(record, cfg)
			profileShown = len(blocks) > 0
			add(key, blocks)
		case cv.SectionSummary:
			if text := strings.TrimSpace(record.Summary); text != "" {
				add(key, []Block{paragraph(text)})
			}
		case cv.SectionWork:
			add(key, workBlocks(record.Work))
		case cv.SectionEducation:
			add(key, educationBlocks(record.Education))
		case cv.SectionProjects:
			add(key, projectBlocks(record.Projects))
		case cv.SectionSkills:
			add(key, skillBlocks(record.Skills))
		case cv.SectionCertifications:
			add(key, certificationBlocks(record.Certifications))
		case cv.SectionMemberships:
			add(key, membershipBlocks(record.Memberships))
		case cv.SectionInterests:
			add(key, listOf(record.Interests))
		case cv.SectionQualificationEquivalence:
			add(key, equivalenceBlocks(record.QualificationEquivalence))
		}
	}

	// 没有个人信息头部时，link-back 码放在文末单独的分区；照片只跟随头部出现。
	if !profileShown && cfg.IncludeLinkBackCode {
		if url := strings.TrimSpace(record.ProfileURL); url != "" {
			add(cv.SectionLinkBack, []Block{{Kind: KindLinkBack, URL: url}})
		}
	}

	return model, nil
}

func profileBlocks(record cv.Record, cfg RenderConfig) []Block {
	p := record.Profile
	name := strings.TrimSpace(p.FullName)
	headline := strings.TrimSpace(p.Headline)
	contact := joinNonEmpty(" · ", p.Email, p.Phone, p.Location, p.Website)
	if name == "" && headline == "" && contact == "" {
		return nil
	}

	var blocks []Block
	if name != "" {
		blocks = append(blocks, Block{Kind: KindHeading, Level: 1, Text: name})
	}
	if headline != "" {
		blocks = append(blocks, paragraph(headline))
	}
	if contact != "" {
		blocks = append(blocks, paragraph(contact))
	}
	if cfg.IncludePhoto {
		if key := strings.TrimSpace(p.PhotoKey); key != "" {
			blocks = append(blocks, Block{Kind: KindImage, AssetKey: key})
		}
	}
	if cfg.IncludeLinkBackCode {
		if url := strings.TrimSpace(record.ProfileURL); url != "" {
			blocks = append(blocks, Block{Kind: KindLinkBack, URL: url})
		}
	}
	return blocks
}

func workBlocks(entries []cv.WorkEntry) []Block {
	type item struct {
		entry cv.WorkEntry
		key   chronoKey
	}
	items := make([]item, 0, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Title) == "" && strings.TrimSpace(e.Company) == "" {
			continue
		}
		items = append(items, item{entry: e, key: newChronoKey(i, e.StartDate, e.EndDate)})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].key.before(items[j].key) })

	var blocks []Block
	for _, it := range items {
		e := it.entry
		blocks = append(blocks, heading(joinNonEmpty(" · ", e.Title, e.Company, e.Location)))
		blocks = appendDateRange(blocks, e.StartDate, e.EndDate)
		if text := strings.TrimSpace(e.Description); text != "" {
			blocks = append(blocks, paragraph(text))
		}
		if highlights := compact(e.Highlights); len(highlights) > 0 {
			blocks = append(blocks, Block{Kind: KindList, Items: highlights})
		}
	}
	return blocks
}

func educationBlocks(entries []cv.EducationEntry) []Block {
	type item struct {
		entry cv.EducationEntry
		key   chronoKey
	}
	items := make([]item, 0, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Institution) == "" && strings.TrimSpace(e.Degree) == "" {
			continue
		}
		items = append(items, item{entry: e, key: newChronoKey(i, e.StartDate, e.EndDate)})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].key.before(items[j].key) })

	var blocks []Block
	for _, it := range items {
		e := it.entry
		degree := joinNonEmpty(", ", e.Degree, e.Field)
		blocks = append(blocks, heading(joinNonEmpty(" · ", degree, e.Institution)))
		blocks = appendDateRange(blocks, e.StartDate, e.EndDate)
		if text := strings.TrimSpace(e.Description); text != "" {
			blocks = append(blocks, paragraph(text))
		}
	}
	return blocks
}

func projectBlocks(entries []cv.Project) []Block {
	var blocks []Block
	for _, p := range entries {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		blocks = append(blocks, heading(joinNonEmpty(" · ", p.Name, p.Role)))
		blocks = appendDateRange(blocks, p.StartDate, p.EndDate)
		if text := strings.TrimSpace(p.Description); text != "" {
			blocks = append(blocks, paragraph(text))
		}
		if url := strings.TrimSpace(p.URL); url != "" {
			blocks = append(blocks, paragraph(url))
		}
	}
	return blocks
}

func skillBlocks(skills []cv.Skill) []Block {
	items := make([]string, 0, len(skills))
	for _, s := range skills {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			continue
		}
		if level := strings.TrimSpace(s.Level); level != "" {
			name = fmt.Sprintf("%s (%s)", name, level)
		}
		items = append(items, name)
	}
	if len(items) == 0 {
		return nil
	}
	return []Block{{Kind: KindList, Items: items}}
}

func certificationBlocks(certs []cv.Certification) []Block {
	items := make([]string, 0, len(certs))
	for _, c := range certs {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		items = append(items, joinNonEmpty(" · ", c.Name, c.Issuer, c.IssuedOn))
	}
	if len(items) == 0 {
		return nil
	}
	return []Block{{Kind: KindList, Items: items}}
}

func membershipBlocks(memberships []cv.Membership) []Block {
	items := make([]string, 0, len(memberships))
	for _, m := range memberships {
		org := strings.TrimSpace(m.Organization)
		if org == "" {
			continue
		}
		text := joinNonEmpty(", ", m.Role, org)
		if since := strings.TrimSpace(m.Since); since != "" {
			text += " (since " + since + ")"
		}
		items = append(items, text)
	}
	if len(items) == 0 {
		return nil
	}
	return []Block{{Kind: KindList, Items: items}}
}

func equivalenceBlocks(entries []cv.Equivalence) []Block {
	var blocks []Block
	for _, e := range entries {
		qual := strings.TrimSpace(e.Qualification)
		equivalent := strings.TrimSpace(e.Equivalent)
		if qual == "" || equivalent == "" {
			continue
		}
		blocks = append(blocks, heading(joinNonEmpty(" · ", qual, e.Country)))
		text := "Equivalent to " + equivalent
		if authority := strings.TrimSpace(e.Authority); authority != "" {
			text += " (assessed by " + authority + ")"
		}
		blocks = append(blocks, paragraph(text))
	}
	return blocks
}

func listOf(values []string) []Block {
	items := compact(values)
	if len(items) == 0 {
		return nil
	}
	return []Block{{Kind: KindList, Items: items}}
}

// chronoKey 排序：进行中的条目最前，其次按开始时间倒序，最后按原始位置。
type chronoKey struct {
	ongoing bool
	start   time.Time
	end     time.Time
	index   int
}

func newChronoKey(index int, start, end string) chronoKey {
	s, _ := cv.ParseDate(start)
	e, _ := cv.ParseDate(end)
	return chronoKey{ongoing: strings.TrimSpace(end) == "", start: s, end: e, index: index}
}

func (k chronoKey) before(o chronoKey) bool {
	if k.ongoing != o.ongoing {
		return k.ongoing
	}
	if !k.start.Equal(o.start) {
		return k.start.After(o.start)
	}
	if !k.end.Equal(o.end) {
		return k.end.After(o.end)
	}
	return k.index < o.index
}

func heading(text string) Block {
	return Block{Kind: KindHeading, Level: 3, Text: text}
}

func paragraph(text string) Block {
	return Block{Kind: KindParagraph, Text: text}
}

func appendDateRange(blocks []Block, start, end string) []Block {
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)
	if start == "" && end == "" {
		return blocks
	}
	return append(blocks, Block{Kind: KindDateRange, Start: start, End: end, Ongoing: end == ""})
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func joinNonEmpty(sep string, parts ...string) string {
	return strings.Join(compact(parts), sep)
}
