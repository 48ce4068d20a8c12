package templates

import "errors"

// Sentinel errors for template store operations.
var (
	ErrNotFound           = errors.New("template not found")
	ErrQuotaExceeded      = errors.New("template quota exceeded")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTemplateNotAllowed = errors.New("template not available on current plan")
)

// QuotaError 说明具体触发的套餐限额，便于向用户展示可操作的提示。
type QuotaError struct {
	// Attribute 是面向用户的限额描述，例如 "template limit reached"。
	Attribute string
	Limit     int64
	Current   int64
}

func (e *QuotaError) Error() string {
	return e.Attribute
}

func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

const (
	AttrTemplateCount = "template limit reached"
	AttrTemplateSize  = "template size limit reached"
	AttrTotalStorage  = "template storage limit reached"
)
