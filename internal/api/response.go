package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"cvforge/internal/account"
	"cvforge/internal/api/middleware"
	"cvforge/internal/capability"
	"cvforge/internal/document"
	"cvforge/internal/errcode"
	"cvforge/internal/generate"
	"cvforge/internal/templates"
)

// 面向用户的套餐限制提示。
const (
	msgTemplateNotAllowed = "template not available on current plan"
	msgExportDisabled     = "export not available on current plan"
	msgRetry              = "something went wrong, please retry"
)

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func errorWithCode(c *gin.Context, status int, code int, msg string) {
	c.JSON(status, gin.H{"error": msg, "code": code})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func Forbidden(c *gin.Context, msg string)  { Error(c, http.StatusForbidden, msg) }
func NotFound(c *gin.Context, msg string)   { Error(c, http.StatusNotFound, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }

func userIDFromContext(c *gin.Context) (uint, bool) {
	return middleware.UserID(c)
}

// respondError 把领域错误映射为 HTTP 响应。
func respondError(c *gin.Context, err error) {
	var quotaErr *templates.QuotaError
	var limitErr *capability.LimitError
	switch {
	case errors.As(err, &quotaErr):
		errorWithCode(c, http.StatusForbidden, errcode.QuotaExceeded, quotaErr.Attribute)
	case errors.Is(err, templates.ErrQuotaExceeded):
		errorWithCode(c, http.StatusForbidden, errcode.QuotaExceeded, templates.AttrTemplateCount)
	case errors.As(err, &limitErr):
		errorWithCode(c, http.StatusForbidden, errcode.QuotaExceeded, limitErr.Error())
	case errors.Is(err, templates.ErrTemplateNotAllowed):
		errorWithCode(c, http.StatusForbidden, errcode.TemplateNotAllowed, msgTemplateNotAllowed)
	case errors.Is(err, templates.ErrNotFound):
		errorWithCode(c, http.StatusNotFound, errcode.NotFound, "template not found")
	case errors.Is(err, account.ErrNotFound), errors.Is(err, templates.ErrUnauthorized):
		AbortUnauthorized(c)
	case errors.Is(err, generate.ErrUnsafeTemplateContent):
		errorWithCode(c, http.StatusUnprocessableEntity, errcode.UnsafeTemplateContent, "generated template was rejected as unsafe")
	case errors.Is(err, generate.ErrMissingReference), errors.Is(err, generate.ErrInvalidReference):
		errorWithCode(c, http.StatusBadRequest, errcode.InvalidRequest, err.Error())
	case errors.Is(err, generate.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		errorWithCode(c, http.StatusGatewayTimeout, errcode.GenerationTimeout, "request timed out")
	case errors.Is(err, document.ErrMalformedRecord):
		middleware.LoggerFromContext(c).Error("malformed cv record", slog.Any("error", err))
		errorWithCode(c, http.StatusInternalServerError, errcode.SystemError, msgRetry)
	default:
		middleware.LoggerFromContext(c).Error("request failed", slog.Any("error", err))
		errorWithCode(c, http.StatusInternalServerError, errcode.SystemError, msgRetry)
	}
}
