package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account 表示系统中的账号及其订阅状态。
// 订阅状态由外部计费系统同步写入，这里只保存单一的 plan/status 值。
type Account struct {
	gorm.Model
	Username         string           `gorm:"uniqueIndex;size:64"`
	Plan             string           `gorm:"size:32;default:free"`
	PlanStatus       string           `gorm:"size:32;default:active"`
	RenderPreference datatypes.JSON   `gorm:"type:jsonb"`
	CustomTemplates  []CustomTemplate `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`
}

// CustomTemplate 表示账号私有的（AI 生成的）模板。
// 同一账号下至多一个 IsActive=true，由部分唯一索引兜底。
type CustomTemplate struct {
	ID          string    `gorm:"primaryKey;size:36"`
	OwnerID     uint      `gorm:"not null;index;uniqueIndex:idx_custom_templates_one_active,where:is_active = true"`
	Name        string    `gorm:"size:255"`
	Description string    `gorm:"size:1024"`
	Markup      string    `gorm:"type:text"`
	Stylesheet  string    `gorm:"type:text"`
	SizeBytes   int64     `gorm:"not null;default:0"`
	IsActive    bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"index"`
}

// CVRecord 保存账号的结构化简历数据快照（由外部编辑器写入）。
type CVRecord struct {
	gorm.Model
	AccountID uint           `gorm:"uniqueIndex"`
	Content   datatypes.JSON `gorm:"type:jsonb"`
}

// Models 返回需要自动迁移的全部模型。
func Models() []any {
	return []any{&Account{}, &CustomTemplate{}, &CVRecord{}}
}
