package generate

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// 生成流程的哨兵错误。
var (
	ErrMissingReference      = errors.New("a description, reference url or reference image is required")
	ErrInvalidReference      = errors.New("invalid reference")
	ErrTimeout               = errors.New("template generation timed out")
	ErrUnsafeTemplateContent = errors.New("unsafe template content")
	ErrEmptyResult           = errors.New("generator returned no template")
)

// 参考图允许的类型与大小。
const (
	MaxReferenceImageBytes = 5 << 20
	MaxDescriptionLength   = 4000
)

var referenceImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

// Request 描述一次模板生成：描述、参考链接、参考图至少提供一项。
type Request struct {
	OwnerID            uint   `json:"owner_id"`
	Description        string `json:"description,omitempty"`
	ReferenceURL       string `json:"reference_url,omitempty"`
	ReferenceImage     []byte `json:"-"`
	ReferenceImageType string `json:"reference_image_type,omitempty"`
	LayoutHint         string `json:"layout_hint,omitempty"`
	ColorHint          string `json:"color_hint,omitempty"`
}

// Validate 在调用生成服务之前检查输入。
func (r Request) Validate() error {
	desc := strings.TrimSpace(r.Description)
	ref := strings.TrimSpace(r.ReferenceURL)
	if desc == "" && ref == "" && len(r.ReferenceImage) == 0 {
		return ErrMissingReference
	}
	if len(desc) > MaxDescriptionLength {
		return errors.Join(ErrInvalidReference, errors.New("description is too long"))
	}
	if ref != "" {
		u, err := url.Parse(ref)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.Join(ErrInvalidReference, errors.New("reference url must be an absolute http(s) url"))
		}
	}
	if len(r.ReferenceImage) > 0 {
		if len(r.ReferenceImage) > MaxReferenceImageBytes {
			return errors.Join(ErrInvalidReference, errors.New("reference image is too large"))
		}
		if !referenceImageTypes[r.ReferenceImageType] {
			return errors.Join(ErrInvalidReference, errors.New("unsupported reference image type"))
		}
	}
	return nil
}

// Result 是生成服务的原始输出，使用前必须经过 Sanitize。
type Result struct {
	Markup     string `json:"markup"`
	Stylesheet string `json:"stylesheet"`
}

// Generator 是外部生成服务的边界。
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}
