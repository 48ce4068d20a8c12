package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cvforge/internal/cv"
	"cvforge/internal/errcode"
	"cvforge/internal/storage"
)

// RecordStore 读写账号的简历快照。
type RecordStore interface {
	Fetch(ctx context.Context, accountID uint) (cv.Record, error)
	Save(ctx context.Context, accountID uint, record cv.Record) error
}

// CVHandler 暴露简历数据的读写入口，编辑器本身不在本服务内。
type CVHandler struct {
	accounts CapabilitySource
	records  RecordStore
}

// NewCVHandler 构造 CVHandler。
func NewCVHandler(accounts CapabilitySource, records RecordStore) *CVHandler {
	return &CVHandler{accounts: accounts, records: records}
}

// GetCV 返回账号的简历快照，未保存过时返回空记录。
func (h *CVHandler) GetCV(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	record, err := h.records.Fetch(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"record":      record,
		"profile_url": record.ProfileURL,
	})
}

// PutCV 覆盖简历快照；超出套餐条目或字数限制时拒绝保存。
func (h *CVHandler) PutCV(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	ctx := c.Request.Context()

	var record cv.Record
	if err := c.ShouldBindJSON(&record); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := record.Validate(); err != nil {
		errorWithCode(c, http.StatusBadRequest, errcode.InvalidRequest, err.Error())
		return
	}
	if key := strings.TrimSpace(record.Profile.PhotoKey); key != "" && !storage.ValidUserAssetKey(userID, key) {
		errorWithCode(c, http.StatusBadRequest, errcode.InvalidRequest, "invalid photo key")
		return
	}

	caps, err := h.accounts.Capabilities(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := caps.CheckRecord(record); err != nil {
		respondError(c, err)
		return
	}
	if err := h.records.Save(ctx, userID, record); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
