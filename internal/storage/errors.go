package storage

import (
	"errors"
	"strings"

	"github.com/minio/minio-go/v7"
)

// S3 错误码。
const (
	codeNoSuchKey    = "nosuchkey"
	codeNotFound     = "notfound"
	codeNoSuchBucket = "nosuchbucket"
)

// errorCode 提取 S3 错误码（小写）。经过网关包装成字符串的错误按消息文本识别。
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var resp minio.ErrorResponse
	if errors.As(err, &resp) && resp.Code != "" {
		return strings.ToLower(strings.TrimSpace(resp.Code))
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "nosuchbucket"), strings.Contains(lower, "specified bucket does not exist"):
		return codeNoSuchBucket
	case strings.Contains(lower, "nosuchkey"), strings.Contains(lower, "specified key does not exist"):
		return codeNoSuchKey
	}
	return ""
}

// IsNoSuchKey 判断错误是否明确表示对象不存在。缺失的照片只会让渲染降级。
func IsNoSuchKey(err error) bool {
	switch errorCode(err) {
	case codeNoSuchKey, codeNotFound:
		return true
	}
	return false
}

// IsNoSuchBucket 判断错误是否表示 Bucket 不存在，这属于部署错误，渲染必须失败。
func IsNoSuchBucket(err error) bool {
	return errorCode(err) == codeNoSuchBucket
}
