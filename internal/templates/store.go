package templates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cvforge/internal/database"
)

// Store 管理账号的自定义模板。
//
// 所有变更都在事务中先锁住账号行（SELECT ... FOR UPDATE），
// 因此同一账号的 create/activate/deactivate/delete 串行执行，不同账号互不影响。
// 配额检查基于事务内读取到的已提交状态，相当于对数量/容量做 compare-and-set。
type Store struct {
	db    *gorm.DB
	now   func() time.Time
	newID func() string
}

// NewStore 构造 Store。
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:    db,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Create 在配额允许时保存一个新模板，新模板总是未激活状态。
func (s *Store) Create(ctx context.Context, ownerID uint, quota Quota, in NewTemplate) (CustomTemplate, error) {
	if ownerID == 0 {
		return CustomTemplate{}, ErrUnauthorized
	}

	size := in.SizeBytes()
	model := database.CustomTemplate{
		ID:          s.newID(),
		OwnerID:     ownerID,
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Markup:      in.Markup,
		Stylesheet:  in.Stylesheet,
		SizeBytes:   size,
		IsActive:    false,
		CreatedAt:   s.now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockOwner(tx, ownerID); err != nil {
			return err
		}

		usage, err := usageOf(tx, ownerID)
		if err != nil {
			return err
		}

		if usage.Count >= int64(quota.MaxTemplates) {
			return &QuotaError{Attribute: AttrTemplateCount, Limit: int64(quota.MaxTemplates), Current: usage.Count}
		}
		if size > quota.MaxTemplateBytes {
			return &QuotaError{Attribute: AttrTemplateSize, Limit: quota.MaxTemplateBytes, Current: size}
		}
		if usage.TotalBytes+size > quota.MaxTotalBytes {
			return &QuotaError{Attribute: AttrTotalStorage, Limit: quota.MaxTotalBytes, Current: usage.TotalBytes + size}
		}

		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("insert template: %w", err)
		}
		return nil
	})
	if err != nil {
		return CustomTemplate{}, err
	}

	return fromModel(model), nil
}

// Activate 把目标模板设为激活，并在同一事务内清除该账号其它模板的激活标记。
//
// 降级后只有按创建时间最早的 quota.MaxTemplates 个模板仍可被激活。
func (s *Store) Activate(ctx context.Context, ownerID uint, quota Quota, templateID string) error {
	if ownerID == 0 {
		return ErrUnauthorized
	}
	if !quota.Enabled() {
		return ErrTemplateNotAllowed
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockOwner(tx, ownerID); err != nil {
			return err
		}

		target, err := findOwned(tx, ownerID, templateID)
		if err != nil {
			return err
		}

		var older int64
		if err := tx.Model(&database.CustomTemplate{}).
			Where("owner_id = ? AND (created_at < ? OR (created_at = ? AND id < ?))",
				ownerID, target.CreatedAt, target.CreatedAt, target.ID).
			Count(&older).Error; err != nil {
			return fmt.Errorf("rank template: %w", err)
		}
		if older >= int64(quota.MaxTemplates) {
			return ErrTemplateNotAllowed
		}

		if err := tx.Model(&database.CustomTemplate{}).
			Where("owner_id = ? AND id <> ? AND is_active = ?", ownerID, target.ID, true).
			Update("is_active", false).Error; err != nil {
			return fmt.Errorf("clear active template: %w", err)
		}
		if err := tx.Model(&database.CustomTemplate{}).
			Where("owner_id = ? AND id = ?", ownerID, target.ID).
			Update("is_active", true).Error; err != nil {
			return fmt.Errorf("set active template: %w", err)
		}
		return nil
	})
}

// Deactivate 取消模板的激活状态，不会自动选择替代模板。
func (s *Store) Deactivate(ctx context.Context, ownerID uint, templateID string) error {
	if ownerID == 0 {
		return ErrUnauthorized
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockOwner(tx, ownerID); err != nil {
			return err
		}
		if _, err := findOwned(tx, ownerID, templateID); err != nil {
			return err
		}
		if err := tx.Model(&database.CustomTemplate{}).
			Where("owner_id = ? AND id = ?", ownerID, templateID).
			Update("is_active", false).Error; err != nil {
			return fmt.Errorf("deactivate template: %w", err)
		}
		return nil
	})
}

// Delete 删除模板并立即释放配额；若删除的是激活模板，账号回到无激活模板的状态。
func (s *Store) Delete(ctx context.Context, ownerID uint, templateID string) error {
	if ownerID == 0 {
		return ErrUnauthorized
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockOwner(tx, ownerID); err != nil {
			return err
		}
		result := tx.Where("owner_id = ? AND id = ?", ownerID, templateID).
			Delete(&database.CustomTemplate{})
		if result.Error != nil {
			return fmt.Errorf("delete template: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// List 返回账号的全部模板，最新创建的在前。
func (s *Store) List(ctx context.Context, ownerID uint) ([]CustomTemplate, error) {
	if ownerID == 0 {
		return nil, ErrUnauthorized
	}

	var models []database.CustomTemplate
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	out := make([]CustomTemplate, 0, len(models))
	for _, m := range models {
		out = append(out, fromModel(m))
	}
	return out, nil
}

// Get 返回账号拥有的指定模板。
func (s *Store) Get(ctx context.Context, ownerID uint, templateID string) (CustomTemplate, error) {
	if ownerID == 0 {
		return CustomTemplate{}, ErrUnauthorized
	}
	m, err := findOwned(s.db.WithContext(ctx), ownerID, templateID)
	if err != nil {
		return CustomTemplate{}, err
	}
	return fromModel(m), nil
}

// Active 返回账号当前激活的模板；没有激活模板时返回 ErrNotFound。
func (s *Store) Active(ctx context.Context, ownerID uint) (CustomTemplate, error) {
	if ownerID == 0 {
		return CustomTemplate{}, ErrUnauthorized
	}
	var m database.CustomTemplate
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND is_active = ?", ownerID, true).
		First(&m).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return CustomTemplate{}, ErrNotFound
	case err != nil:
		return CustomTemplate{}, fmt.Errorf("query active template: %w", err)
	}
	return fromModel(m), nil
}

// Usage 返回账号当前的模板数量与总字节数。
func (s *Store) Usage(ctx context.Context, ownerID uint) (Usage, error) {
	if ownerID == 0 {
		return Usage{}, ErrUnauthorized
	}
	return usageOf(s.db.WithContext(ctx), ownerID)
}

func lockOwner(tx *gorm.DB, ownerID uint) error {
	var account database.Account
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		First(&account, ownerID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrUnauthorized
	case err != nil:
		return fmt.Errorf("lock account: %w", err)
	}
	return nil
}

func findOwned(tx *gorm.DB, ownerID uint, templateID string) (database.CustomTemplate, error) {
	var m database.CustomTemplate
	if strings.TrimSpace(templateID) == "" {
		return m, ErrNotFound
	}
	err := tx.Where("owner_id = ? AND id = ?", ownerID, templateID).First(&m).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return m, ErrNotFound
	case err != nil:
		return m, fmt.Errorf("query template: %w", err)
	}
	return m, nil
}

func usageOf(tx *gorm.DB, ownerID uint) (Usage, error) {
	var usage Usage
	if err := tx.Model(&database.CustomTemplate{}).
		Select("COUNT(*) AS count, COALESCE(SUM(size_bytes), 0) AS total_bytes").
		Where("owner_id = ?", ownerID).
		Scan(&usage).Error; err != nil {
		return Usage{}, fmt.Errorf("sum template usage: %w", err)
	}
	return usage, nil
}
