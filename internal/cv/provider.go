package cv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cvforge/internal/database"
)

// Provider 从存储中读取账号的简历快照。
// 没有保存过数据的账号得到一份空 Record，而不是错误。
type Provider struct {
	db             *gorm.DB
	profileBaseURL string
}

// NewProvider 构造 Provider，profileBaseURL 用于拼接在线简历地址。
func NewProvider(db *gorm.DB, profileBaseURL string) *Provider {
	return &Provider{
		db:             db,
		profileBaseURL: strings.TrimRight(strings.TrimSpace(profileBaseURL), "/"),
	}
}

// ProfileURL 返回账号在线简历的规范地址。
func (p *Provider) ProfileURL(accountID uint) string {
	return p.profileBaseURL + "/" + strconv.FormatUint(uint64(accountID), 10)
}

// Fetch 读取账号的简历快照。
func (p *Provider) Fetch(ctx context.Context, accountID uint) (Record, error) {
	var model database.CVRecord
	err := p.db.WithContext(ctx).Where("account_id = ?", accountID).First(&model).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Record{ProfileURL: p.ProfileURL(accountID)}, nil
	case err != nil:
		return Record{}, fmt.Errorf("query cv record: %w", err)
	}

	var record Record
	if len(model.Content) > 0 {
		if err := json.Unmarshal(model.Content, &record); err != nil {
			return Record{}, fmt.Errorf("decode cv record: %w", err)
		}
	}
	record.ProfileURL = p.ProfileURL(accountID)
	return record, nil
}

// Save 覆盖账号的简历快照。
func (p *Provider) Save(ctx context.Context, accountID uint, record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode cv record: %w", err)
	}
	model := database.CVRecord{AccountID: accountID, Content: datatypes.JSON(data)}
	err = p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("save cv record: %w", err)
	}
	return nil
}
