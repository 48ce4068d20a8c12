package document

import (
	"errors"
	"strings"

	"cvforge/internal/capability"
	"cvforge/internal/cv"
	"cvforge/internal/templates"
)

var (
	// ErrTemplateNotAllowed 与模板存储共用同一个哨兵错误，便于 API 层统一映射。
	ErrTemplateNotAllowed = templates.ErrTemplateNotAllowed
	ErrMalformedRecord    = errors.New("malformed cv record")
)

// RenderConfig 是单次渲染的选择：模板、分区以及可选资源。
type RenderConfig struct {
	TemplateID          string          `json:"template_id"`
	Sections            []cv.SectionKey `json:"sections"`
	IncludePhoto        bool            `json:"include_photo"`
	IncludeLinkBackCode bool            `json:"include_link_back_code"`
}

// DefaultRenderConfig 返回账号从未保存过偏好时使用的配置。
func DefaultRenderConfig(caps capability.RenderCapabilities) RenderConfig {
	return RenderConfig{
		TemplateID: caps.Fallback(),
		Sections:   append([]cv.SectionKey(nil), cv.CanonicalOrder...),
	}
}

// Normalize 去除未知和重复的分区，并按固定顺序排列。
func (c RenderConfig) Normalize() RenderConfig {
	selected := make(map[cv.SectionKey]bool, len(c.Sections))
	for _, s := range c.Sections {
		selected[cv.SectionKey(strings.TrimSpace(string(s)))] = true
	}
	sections := make([]cv.SectionKey, 0, len(selected))
	for _, s := range cv.CanonicalOrder {
		if selected[s] {
			sections = append(sections, s)
		}
	}
	c.TemplateID = strings.TrimSpace(c.TemplateID)
	c.Sections = sections
	return c
}

// Selects reports whether the section was requested.
func (c RenderConfig) Selects(key cv.SectionKey) bool {
	for _, s := range c.Sections {
		if s == key {
			return true
		}
	}
	return false
}

// Validate 检查模板 ID 是否在能力允许列表内。
// 不做静默替换：调用方收到 ErrTemplateNotAllowed 后应改用 caps.Fallback() 重试。
func Validate(cfg RenderConfig, caps capability.RenderCapabilities) error {
	if !caps.Allows(strings.TrimSpace(cfg.TemplateID)) {
		return ErrTemplateNotAllowed
	}
	return nil
}
