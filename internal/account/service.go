package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"cvforge/internal/capability"
	"cvforge/internal/database"
	"cvforge/internal/document"
)

// ErrNotFound 表示账号不存在。
var ErrNotFound = errors.New("account not found")

// Service 读取账号的订阅状态并保存最近一次使用的渲染配置。
// 订阅状态是计费系统同步过来的单一值，这里不做任何缓存。
type Service struct {
	db *gorm.DB
}

// NewService 构造 Service。
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Subscription 返回账号当前的订阅状态。
func (s *Service) Subscription(ctx context.Context, accountID uint) (capability.SubscriptionState, error) {
	acc, err := s.find(ctx, accountID)
	if err != nil {
		return capability.SubscriptionState{}, err
	}
	return capability.SubscriptionState{Tier: acc.Plan, Status: acc.PlanStatus}, nil
}

// Capabilities 按当前订阅状态实时解析渲染能力。
func (s *Service) Capabilities(ctx context.Context, accountID uint) (capability.RenderCapabilities, error) {
	state, err := s.Subscription(ctx, accountID)
	if err != nil {
		return capability.RenderCapabilities{}, err
	}
	return capability.Resolve(state), nil
}

// SetPlan 写入计费系统同步的套餐状态。
func (s *Service) SetPlan(ctx context.Context, accountID uint, state capability.SubscriptionState) error {
	tier := strings.ToLower(strings.TrimSpace(state.Tier))
	status := strings.ToLower(strings.TrimSpace(state.Status))
	if status == "" {
		status = capability.StatusActive
	}
	result := s.db.WithContext(ctx).Model(&database.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]any{"plan": tier, "plan_status": status})
	if result.Error != nil {
		return fmt.Errorf("update plan: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Create 新建账号（管理工具与测试使用；生产环境账号由外部认证服务同步）。
func (s *Service) Create(ctx context.Context, username string, state capability.SubscriptionState) (database.Account, error) {
	acc := database.Account{
		Username:   strings.TrimSpace(username),
		Plan:       strings.ToLower(strings.TrimSpace(state.Tier)),
		PlanStatus: strings.ToLower(strings.TrimSpace(state.Status)),
	}
	if acc.Username == "" {
		return database.Account{}, errors.New("username is required")
	}
	if acc.Plan == "" {
		acc.Plan = capability.TierFree
	}
	if acc.PlanStatus == "" {
		acc.PlanStatus = capability.StatusActive
	}
	if err := s.db.WithContext(ctx).Create(&acc).Error; err != nil {
		return database.Account{}, fmt.Errorf("create account: %w", err)
	}
	return acc, nil
}

// RenderPreference 返回账号最近一次使用的渲染配置；从未保存过时返回默认配置。
func (s *Service) RenderPreference(ctx context.Context, accountID uint, caps capability.RenderCapabilities) (document.RenderConfig, error) {
	acc, err := s.find(ctx, accountID)
	if err != nil {
		return document.RenderConfig{}, err
	}
	if len(acc.RenderPreference) == 0 {
		return document.DefaultRenderConfig(caps), nil
	}
	var cfg document.RenderConfig
	if err := json.Unmarshal(acc.RenderPreference, &cfg); err != nil {
		return document.DefaultRenderConfig(caps), nil
	}
	return cfg.Normalize(), nil
}

// SaveRenderPreference 覆盖最近一次使用的渲染配置。
func (s *Service) SaveRenderPreference(ctx context.Context, accountID uint, cfg document.RenderConfig) error {
	data, err := json.Marshal(cfg.Normalize())
	if err != nil {
		return fmt.Errorf("encode render preference: %w", err)
	}
	result := s.db.WithContext(ctx).Model(&database.Account{}).
		Where("id = ?", accountID).
		Update("render_preference", datatypes.JSON(data))
	if result.Error != nil {
		return fmt.Errorf("save render preference: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) find(ctx context.Context, accountID uint) (database.Account, error) {
	var acc database.Account
	err := s.db.WithContext(ctx).First(&acc, accountID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return database.Account{}, ErrNotFound
	case err != nil:
		return database.Account{}, fmt.Errorf("query account: %w", err)
	}
	return acc, nil
}
