package capability

import (
	"errors"
	"fmt"
	"strings"

	"cvforge/internal/cv"
	"cvforge/internal/templates"
)

// 套餐档位与订阅状态，取值由外部计费系统同步。
const (
	TierFree     = "free"
	TierPro      = "pro"
	TierBusiness = "business"

	StatusActive   = "active"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
)

// ErrLimitExceeded 表示简历数据超出了套餐的条目或字数限制。
var ErrLimitExceeded = errors.New("plan limit exceeded")

// SubscriptionState 是从计费系统得到的唯一订阅状态值。
type SubscriptionState struct {
	Tier   string `json:"tier"`
	Status string `json:"status"`
}

// RenderCapabilities 是由订阅状态推导出的渲染与模板能力。
// 每次请求重新计算，调用方不应缓存。
type RenderCapabilities struct {
	Tier                 string                `json:"tier"`
	AllowedTemplateIDs   []string              `json:"allowed_template_ids"`
	MaxCustomTemplates   int                   `json:"max_custom_templates"`
	MaxTemplateBytes     int64                 `json:"max_template_bytes"`
	MaxTotalBytes        int64                 `json:"max_total_bytes"`
	SectionEntryLimits   map[cv.SectionKey]int `json:"section_entry_limits"`
	FieldWordLimits      map[cv.FieldKey]int   `json:"field_word_limits"`
	ExportEnabled        bool                  `json:"export_enabled"`
	MaxGenerationsPerDay int                   `json:"max_generations_per_day"`
}

type tierPlan struct {
	allowed        []string
	maxTemplates   int
	maxTemplate    int64
	maxTotal       int64
	entryLimits    map[cv.SectionKey]int
	wordLimits     map[cv.FieldKey]int
	export         bool
	generationsDay int
}

const kib = 1024

var tiers = map[string]tierPlan{
	TierFree: {
		allowed: []string{templates.BuiltinMinimal},
		entryLimits: map[cv.SectionKey]int{
			cv.SectionWork:           3,
			cv.SectionEducation:      2,
			cv.SectionSkills:         10,
			cv.SectionProjects:       2,
			cv.SectionCertifications: 3,
			cv.SectionMemberships:    2,
			cv.SectionInterests:      5,
		},
		wordLimits: map[cv.FieldKey]int{
			cv.FieldSummary:            80,
			cv.FieldHeadline:           12,
			cv.FieldWorkDescription:    60,
			cv.FieldEducationDetails:   40,
			cv.FieldProjectDescription: 40,
		},
	},
	TierPro: {
		allowed: []string{
			templates.BuiltinMinimal,
			templates.BuiltinClassic,
			templates.BuiltinModern,
			templates.CustomFamily,
		},
		maxTemplates: 3,
		maxTemplate:  64 * kib,
		maxTotal:     192 * kib,
		entryLimits: map[cv.SectionKey]int{
			cv.SectionWork:           15,
			cv.SectionEducation:      8,
			cv.SectionSkills:         40,
			cv.SectionProjects:       10,
			cv.SectionCertifications: 15,
			cv.SectionMemberships:    10,
			cv.SectionInterests:      20,
		},
		wordLimits: map[cv.FieldKey]int{
			cv.FieldSummary:            250,
			cv.FieldHeadline:           25,
			cv.FieldWorkDescription:    200,
			cv.FieldEducationDetails:   120,
			cv.FieldProjectDescription: 150,
		},
		export:         true,
		generationsDay: 10,
	},
	TierBusiness: {
		allowed: []string{
			templates.BuiltinMinimal,
			templates.BuiltinClassic,
			templates.BuiltinModern,
			templates.CustomFamily,
		},
		maxTemplates: 10,
		maxTemplate:  128 * kib,
		maxTotal:     1024 * kib,
		entryLimits: map[cv.SectionKey]int{
			cv.SectionWork:           40,
			cv.SectionEducation:      15,
			cv.SectionSkills:         80,
			cv.SectionProjects:       30,
			cv.SectionCertifications: 40,
			cv.SectionMemberships:    20,
			cv.SectionInterests:      40,
		},
		wordLimits: map[cv.FieldKey]int{
			cv.FieldSummary:            500,
			cv.FieldHeadline:           40,
			cv.FieldWorkDescription:    400,
			cv.FieldEducationDetails:   250,
			cv.FieldProjectDescription: 300,
		},
		export:         true,
		generationsDay: 50,
	},
}

// Resolve 把订阅状态映射为渲染能力。纯函数，可在每个请求中调用。
// 未知档位或非 active 状态（past_due、canceled）一律按 free 处理。
func Resolve(state SubscriptionState) RenderCapabilities {
	tier := strings.ToLower(strings.TrimSpace(state.Tier))
	status := strings.ToLower(strings.TrimSpace(state.Status))
	if status != "" && status != StatusActive {
		tier = TierFree
	}
	plan, ok := tiers[tier]
	if !ok {
		tier = TierFree
		plan = tiers[TierFree]
	}

	caps := RenderCapabilities{
		Tier:                 tier,
		AllowedTemplateIDs:   append([]string(nil), plan.allowed...),
		MaxCustomTemplates:   plan.maxTemplates,
		MaxTemplateBytes:     plan.maxTemplate,
		MaxTotalBytes:        plan.maxTotal,
		SectionEntryLimits:   make(map[cv.SectionKey]int, len(plan.entryLimits)),
		FieldWordLimits:      make(map[cv.FieldKey]int, len(plan.wordLimits)),
		ExportEnabled:        plan.export,
		MaxGenerationsPerDay: plan.generationsDay,
	}
	for k, v := range plan.entryLimits {
		caps.SectionEntryLimits[k] = v
	}
	for k, v := range plan.wordLimits {
		caps.FieldWordLimits[k] = v
	}
	return caps
}

// CustomTemplatesEnabled reports whether the plan lets the account use its own templates.
func (c RenderCapabilities) CustomTemplatesEnabled() bool {
	if c.MaxCustomTemplates <= 0 {
		return false
	}
	for _, id := range c.AllowedTemplateIDs {
		if id == templates.CustomFamily {
			return true
		}
	}
	return false
}

// Allows 判断模板 ID 是否在允许列表中。
// 自定义模板（custom:<uuid>）由 custom 家族条目整体放行，归属检查由调用方完成。
func (c RenderCapabilities) Allows(templateID string) bool {
	if templates.IsCustomID(templateID) {
		return c.CustomTemplatesEnabled()
	}
	if templateID == templates.CustomFamily {
		return false
	}
	for _, id := range c.AllowedTemplateIDs {
		if id == templateID {
			return true
		}
	}
	return false
}

// Fallback 返回允许列表的第一项，调用方在 TemplateNotAllowed 后用它重试。
func (c RenderCapabilities) Fallback() string {
	if len(c.AllowedTemplateIDs) == 0 {
		return templates.BuiltinMinimal
	}
	return c.AllowedTemplateIDs[0]
}

// Quota 返回模板存储使用的限额。
func (c RenderCapabilities) Quota() templates.Quota {
	if !c.CustomTemplatesEnabled() {
		return templates.Quota{}
	}
	return templates.Quota{
		MaxTemplates:     c.MaxCustomTemplates,
		MaxTemplateBytes: c.MaxTemplateBytes,
		MaxTotalBytes:    c.MaxTotalBytes,
	}
}

// LimitError 指出第一个超限的分区或字段。
type LimitError struct {
	Section cv.SectionKey
	Field   cv.FieldKey
	Limit   int
	Actual  int
}

func (e *LimitError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s word limit reached (%d/%d)", e.Field, e.Actual, e.Limit)
	}
	return fmt.Sprintf("%s entry limit reached (%d/%d)", e.Section, e.Actual, e.Limit)
}

func (e *LimitError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// CheckRecord 校验简历数据是否满足条目数与字数限制，按固定顺序返回第一个违规项。
func (c RenderCapabilities) CheckRecord(record cv.Record) error {
	for _, section := range cv.CanonicalOrder {
		limit, ok := c.SectionEntryLimits[section]
		if !ok {
			continue
		}
		if n := record.EntryCount(section); n > limit {
			return &LimitError{Section: section, Limit: limit, Actual: n}
		}
	}
	for _, field := range fieldOrder {
		limit, ok := c.FieldWordLimits[field]
		if !ok {
			continue
		}
		for _, text := range record.FieldTexts(field) {
			if n := cv.WordCount(text); n > limit {
				return &LimitError{Field: field, Limit: limit, Actual: n}
			}
		}
	}
	return nil
}

var fieldOrder = []cv.FieldKey{
	cv.FieldHeadline,
	cv.FieldSummary,
	cv.FieldWorkDescription,
	cv.FieldEducationDetails,
	cv.FieldProjectDescription,
}
