package templates

import (
	"time"

	"cvforge/internal/database"
)

// CustomTemplate 是账号私有模板的领域表示。
type CustomTemplate struct {
	ID          string    `json:"id"`
	OwnerID     uint      `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Markup      string    `json:"markup"`
	Stylesheet  string    `json:"stylesheet"`
	SizeBytes   int64     `json:"size_bytes"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// TemplateID 返回模板在渲染配置中的寻址 ID。
func (t CustomTemplate) TemplateID() string {
	return CustomID(t.ID)
}

// WithinQuota reports whether t is among the oldest q.MaxTemplates entries of list.
// 排名规则与 Store.Activate 相同：created_at 升序，相同时按 id。
func WithinQuota(list []CustomTemplate, t CustomTemplate, q Quota) bool {
	older := 0
	for _, o := range list {
		if o.ID == t.ID {
			continue
		}
		if o.CreatedAt.Before(t.CreatedAt) || (o.CreatedAt.Equal(t.CreatedAt) && o.ID < t.ID) {
			older++
		}
	}
	return older < q.MaxTemplates
}

// NewTemplate 是创建自定义模板的输入，Markup/Stylesheet 必须已经过清洗。
type NewTemplate struct {
	Name        string
	Description string
	Markup      string
	Stylesheet  string
}

// SizeBytes 是模板占用的字节数（markup + stylesheet）。
func (n NewTemplate) SizeBytes() int64 {
	return int64(len(n.Markup) + len(n.Stylesheet))
}

// Quota 是创建/激活时生效的套餐限额。
type Quota struct {
	MaxTemplates     int
	MaxTemplateBytes int64
	MaxTotalBytes    int64
}

// Enabled reports whether the plan allows custom templates at all.
func (q Quota) Enabled() bool {
	return q.MaxTemplates > 0
}

// Usage 是账号当前的模板占用情况。
type Usage struct {
	Count      int64 `json:"count"`
	TotalBytes int64 `json:"total_bytes"`
}

func fromModel(m database.CustomTemplate) CustomTemplate {
	return CustomTemplate{
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		Name:        m.Name,
		Description: m.Description,
		Markup:      m.Markup,
		Stylesheet:  m.Stylesheet,
		SizeBytes:   m.SizeBytes,
		IsActive:    m.IsActive,
		CreatedAt:   m.CreatedAt,
	}
}
