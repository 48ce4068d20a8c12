package render

import (
	"embed"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-yaml"

	"cvforge/internal/cv"
)

//go:embed styles/*.yaml
var styleFS embed.FS

// ErrUnknownStyle is returned when no embedded style exists for a template id.
var ErrUnknownStyle = errors.New("unknown template style")

// StyleMeta 是模板自身的样式元数据，只影响版式，不影响内容。
type StyleMeta struct {
	ID              string          `yaml:"id"`
	PageSize        string          `yaml:"page_size"`
	PageMargins     [4]float64      `yaml:"page_margins"` // pt，CSS 顺序：上 右 下 左
	FontFamily      string          `yaml:"font_family"`
	HeadingFont     string          `yaml:"heading_font"`
	FontSize        float64         `yaml:"font_size"`
	LineHeight      float64         `yaml:"line_height"`
	TextColor       string          `yaml:"text_color"`
	AccentColor     string          `yaml:"accent_color"`
	SectionRule     bool            `yaml:"section_rule"`
	PhotoSize       float64         `yaml:"photo_size"`
	LinkBackSize    int             `yaml:"link_back_size"`
	SidebarWidth    float64         `yaml:"sidebar_width"`
	SidebarSections []cv.SectionKey `yaml:"sidebar_sections"`
	PageBreakBefore []cv.SectionKey `yaml:"page_break_before"`

	// Stylesheet 只用于自定义模板，是已清洗的 CSS。
	Stylesheet string `yaml:"-"`
}

var (
	stylesOnce sync.Once
	styles     map[string]StyleMeta
	stylesErr  error
)

// LoadStyle 返回内置样式（minimal/classic/modern/custom）。
func LoadStyle(id string) (StyleMeta, error) {
	stylesOnce.Do(func() {
		styles, stylesErr = loadStyles()
	})
	if stylesErr != nil {
		return StyleMeta{}, stylesErr
	}
	meta, ok := styles[id]
	if !ok {
		return StyleMeta{}, fmt.Errorf("%w: %q", ErrUnknownStyle, id)
	}
	meta.SidebarSections = append([]cv.SectionKey(nil), meta.SidebarSections...)
	meta.PageBreakBefore = append([]cv.SectionKey(nil), meta.PageBreakBefore...)
	return meta, nil
}

func loadStyles() (map[string]StyleMeta, error) {
	entries, err := styleFS.ReadDir("styles")
	if err != nil {
		return nil, fmt.Errorf("read embedded styles: %w", err)
	}
	out := make(map[string]StyleMeta, len(entries))
	for _, entry := range entries {
		data, err := styleFS.ReadFile("styles/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read style %s: %w", entry.Name(), err)
		}
		var meta StyleMeta
		if err := yaml.UnmarshalWithOptions(data, &meta, yaml.Strict()); err != nil {
			return nil, fmt.Errorf("parse style %s: %w", entry.Name(), err)
		}
		if meta.ID == "" {
			return nil, fmt.Errorf("style %s has no id", entry.Name())
		}
		out[meta.ID] = meta
	}
	return out, nil
}

func (s StyleMeta) inSidebar(key cv.SectionKey) bool {
	return containsKey(s.SidebarSections, key)
}

func (s StyleMeta) breaksBefore(key cv.SectionKey) bool {
	return containsKey(s.PageBreakBefore, key)
}

func containsKey(keys []cv.SectionKey, key cv.SectionKey) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
