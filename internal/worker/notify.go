package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// 通知事件类型。
const (
	EventTemplateGenerated = "template_generated"
	EventDocumentExported  = "document_exported"
)

// NotifyMessage 是统一的 WebSocket 消息协议（通过 Redis Pub/Sub 转发给前端）。
// 注意：这里的字段名与前端解析保持一致。
type NotifyMessage struct {
	Event         string   `json:"event"`
	Status        string   `json:"status"`
	CorrelationID string   `json:"correlation_id"`
	TemplateID    string   `json:"template_id,omitempty"`
	ExportKey     string   `json:"export_key,omitempty"`
	ErrorCode     int      `json:"error_code"`
	ErrorMessage  string   `json:"error_message"`
	MissingKeys   []string `json:"missing_keys,omitempty"`
}

// NotifyChannel 返回账号的通知频道。
func NotifyChannel(ownerID uint) string {
	return fmt.Sprintf("user_notify:%d", ownerID)
}

// Publisher 是 Redis 发布能力的最小接口。
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

func publish(ctx context.Context, client Publisher, ownerID uint, msg NotifyMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := NotifyChannel(ownerID)
	if err := client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
