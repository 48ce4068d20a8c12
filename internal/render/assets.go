package render

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cvforge/internal/storage"
)

// ErrAssetUnavailable 表示可选资源缺失或无效，渲染会降级而不是失败。
var ErrAssetUnavailable = errors.New("asset unavailable")

// AssetResolver 在渲染之前把资源键解析为可内联的地址，渲染器本身不做 I/O。
type AssetResolver interface {
	Resolve(ctx context.Context, ownerID uint, key string) (string, error)
}

// ObjectReader 读取对象存储中的内容。
type ObjectReader interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, string, error)
}

// InlineAssets 把对象存储中的照片内联为 data URI。
//
// 键不合法或对象不存在 => ErrAssetUnavailable（降级）；
// Bucket 不存在等其它错误 => 原样返回（系统错误）。
type InlineAssets struct {
	objects ObjectReader
}

// NewInlineAssets 构造 InlineAssets。
func NewInlineAssets(objects ObjectReader) *InlineAssets {
	return &InlineAssets{objects: objects}
}

func (a *InlineAssets) Resolve(ctx context.Context, ownerID uint, key string) (string, error) {
	key = strings.TrimSpace(key)
	if !storage.ValidUserAssetKey(ownerID, key) {
		return "", fmt.Errorf("%w: invalid object key %q", ErrAssetUnavailable, key)
	}

	data, contentType, err := a.objects.ReadObject(ctx, key)
	if err != nil {
		if storage.IsNoSuchBucket(err) {
			return "", fmt.Errorf("minio bucket does not exist: %w", err)
		}
		if storage.IsNoSuchKey(err) {
			return "", fmt.Errorf("%w: object %q not found", ErrAssetUnavailable, key)
		}
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: object %q is empty", ErrAssetUnavailable, key)
	}

	if strings.TrimSpace(contentType) == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w: object %q is %s", ErrAssetUnavailable, key, contentType)
	}
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data)), nil
}
