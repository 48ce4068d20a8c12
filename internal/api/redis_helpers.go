package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisRateCounter 是每日配额计数所需的 Redis 子集，*redis.Client 满足该接口。
type redisRateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Decr(ctx context.Context, key string) *redis.IntCmd
	ExpireNX(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

const (
	generationQuotaKeyFormat = "gen_quota:%d:%s"
	generationQuotaTTL       = 24 * time.Hour
)

// dailyQuota 按 UTC 自然日统计账号的生成次数。
type dailyQuota struct {
	client redisRateCounter
	limit  int
}

func generationQuotaKey(userID uint, now time.Time) string {
	return fmt.Sprintf(generationQuotaKeyFormat, userID, now.UTC().Format("20060102"))
}

// consume 占用一次配额。超出上限时归还本次计数并返回 false。
func (q dailyQuota) consume(ctx context.Context, key string) (bool, error) {
	if q.client == nil || q.limit <= 0 {
		return true, nil
	}
	count, err := q.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	// ExpireNX 只在 key 尚无 TTL 时生效，首次写入失败后的请求也能补上过期时间。
	_ = q.client.ExpireNX(ctx, key, generationQuotaTTL).Err()
	if count > int64(q.limit) {
		q.release(ctx, key)
		return false, nil
	}
	return true, nil
}

// release 归还一次配额，用于任务未能投递的情况。
func (q dailyQuota) release(ctx context.Context, key string) {
	if q.client == nil || q.limit <= 0 {
		return
	}
	_ = q.client.Decr(ctx, key).Err()
}
