package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	correlationIDKey    = "correlationID"
	CorrelationIDHeader = "X-Correlation-ID"
	requestIDHeader     = "X-Request-ID"
	maxCorrelationIDLen = 64
)

// CorrelationIDMiddleware 为每个请求确定 Correlation ID。
// 优先沿用上游传入的 X-Correlation-ID / X-Request-ID，不合法时重新生成。
// 该 ID 会随任务载荷进入 worker，并出现在 WebSocket 通知中。
func CorrelationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" {
			id = c.GetHeader(requestIDHeader)
		}
		if !validCorrelationID(id) {
			id = uuid.NewString()
		}

		c.Set(correlationIDKey, id)
		c.Header(CorrelationIDHeader, id)
		c.Next()
	}
}

// validCorrelationID 只接受字母、数字、'-' 与 '_'，防止日志注入。
func validCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// GetCorrelationID 从上下文中取出 Correlation ID。
func GetCorrelationID(c *gin.Context) string {
	id, _ := c.Get(correlationIDKey)
	s, _ := id.(string)
	return s
}
