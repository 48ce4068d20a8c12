package worker

import (
	"context"
	"errors"
	"strings"

	"cvforge/internal/account"
	"cvforge/internal/document"
	"cvforge/internal/errcode"
	"cvforge/internal/generate"
	"cvforge/internal/templates"
)

// outcome 描述任务失败时给前端的错误码，以及是否值得重试。
type outcome struct {
	code      int
	message   string
	retryable bool
}

func classify(err error) outcome {
	var quotaErr *templates.QuotaError
	switch {
	case errors.As(err, &quotaErr):
		return outcome{code: errcode.QuotaExceeded, message: quotaErr.Attribute}
	case errors.Is(err, templates.ErrQuotaExceeded):
		return outcome{code: errcode.QuotaExceeded, message: templates.ErrQuotaExceeded.Error()}
	case errors.Is(err, templates.ErrTemplateNotAllowed):
		return outcome{code: errcode.TemplateNotAllowed, message: templates.ErrTemplateNotAllowed.Error()}
	case errors.Is(err, generate.ErrUnsafeTemplateContent):
		return outcome{code: errcode.UnsafeTemplateContent, message: "generated template was rejected as unsafe"}
	case errors.Is(err, generate.ErrTimeout):
		return outcome{code: errcode.GenerationTimeout, message: "template generation timed out, please retry"}
	case errors.Is(err, context.Canceled):
		return outcome{code: errcode.Canceled, message: "canceled"}
	case errors.Is(err, generate.ErrMissingReference), errors.Is(err, generate.ErrInvalidReference):
		return outcome{code: errcode.InvalidRequest, message: strings.TrimSpace(err.Error())}
	case errors.Is(err, templates.ErrNotFound), errors.Is(err, account.ErrNotFound):
		return outcome{code: errcode.NotFound, message: "not found"}
	case errors.Is(err, document.ErrMalformedRecord):
		return outcome{code: errcode.SystemError, message: "cv data could not be rendered, please retry"}
	default:
		return outcome{code: errcode.SystemError, message: "please retry", retryable: true}
	}
}
