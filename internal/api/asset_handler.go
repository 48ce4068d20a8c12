package api

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"cvforge/internal/api/middleware"
	"cvforge/internal/storage"
)

// MaxPhotoBytes 是照片上传的大小上限。
const MaxPhotoBytes = 5 << 20

var photoTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
}

// AssetHandler 负责处理照片上传。
type AssetHandler struct {
	objects ObjectUploader
	scanner VirusScanner
}

// NewAssetHandler 返回 AssetHandler 实例。
func NewAssetHandler(objects ObjectUploader, scanner VirusScanner) *AssetHandler {
	return &AssetHandler{
		objects: objects,
		scanner: scanner,
	}
}

// UploadPhoto 处理受保护的照片上传，并在上传前扫描病毒。
// 返回的 object_key 写入 CV 数据的 profile.photo_key 后即可在渲染中使用。
func (h *AssetHandler) UploadPhoto(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	log := middleware.LoggerFromContext(c)

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if file.Size > MaxPhotoBytes {
		BadRequest(c, "file too large")
		return
	}

	fileReader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	data, err := io.ReadAll(io.LimitReader(fileReader, MaxPhotoBytes+1))
	fileReader.Close()
	if err != nil {
		Internal(c, "failed to read file")
		return
	}
	if len(data) > MaxPhotoBytes {
		BadRequest(c, "file too large")
		return
	}

	contentType := http.DetectContentType(data)
	if !photoTypes[contentType] {
		BadRequest(c, "unsupported image type")
		return
	}

	if err := h.scanner.Scan(bytes.NewReader(data)); err != nil {
		if errors.Is(err, ErrMaliciousFile) {
			BadRequest(c, "malicious file detected")
			return
		}
		log.Error("scan file", slog.String("error", err.Error()))
		Internal(c, "failed to scan file")
		return
	}

	objectKey := storage.PhotoKey(userID, imageExtension(contentType))
	if _, err := h.objects.UploadFile(c.Request.Context(), objectKey, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		log.Error("upload file", slog.String("error", err.Error()))
		Internal(c, "failed to upload file")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"object_key": objectKey})
}

func imageExtension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		// 参考图允许 gif，但对象键只接受常见位图后缀，按 png 存储不影响读取时的类型判断。
		return ".png"
	}
}
