package storage

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// 对象键前缀，均以账号 ID 分隔。
const (
	userAssetPrefix = "user-assets"
	referencePrefix = "template-references"
	exportPrefix    = "exports"
)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".webp"}

// PhotoKey 返回新上传照片的对象键。
func PhotoKey(ownerID uint, ext string) string {
	return fmt.Sprintf("%s/%d/%s%s", userAssetPrefix, ownerID, uuid.NewString(), ext)
}

// ReferenceImageKey 返回 AI 生成参考图的对象键。
func ReferenceImageKey(ownerID uint, ext string) string {
	return fmt.Sprintf("%s/%d/%s%s", referencePrefix, ownerID, uuid.NewString(), ext)
}

// ExportKey 返回导出 PDF 的对象键。
func ExportKey(ownerID uint, exportID string) string {
	return fmt.Sprintf("%s/%d/%s.pdf", exportPrefix, ownerID, exportID)
}

// ValidUserAssetKey 校验照片键属于该账号且格式合法。
func ValidUserAssetKey(ownerID uint, key string) bool {
	return validOwnedKey(userAssetPrefix, ownerID, key) && hasImageExt(key)
}

// ValidReferenceImageKey 校验参考图键属于该账号且格式合法。
func ValidReferenceImageKey(ownerID uint, key string) bool {
	return validOwnedKey(referencePrefix, ownerID, key) && hasImageExt(key)
}

// ValidExportKey 校验导出文件键属于该账号。
func ValidExportKey(ownerID uint, key string) bool {
	return validOwnedKey(exportPrefix, ownerID, key) && strings.HasSuffix(key, ".pdf")
}

func validOwnedKey(prefix string, ownerID uint, key string) bool {
	if key == "" || len(key) > 200 || !utf8.ValidString(key) {
		return false
	}
	if !strings.HasPrefix(key, fmt.Sprintf("%s/%d/", prefix, ownerID)) {
		return false
	}
	if strings.Contains(key, "..") || strings.Contains(key, "\\") || strings.Contains(key, "//") {
		return false
	}
	return true
}

func hasImageExt(key string) bool {
	ext := strings.ToLower(path.Ext(strings.TrimSpace(key)))
	for _, allowed := range imageExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
