// Package taskcache 任务回调结果的持久化 KV（Redis + TTL）。
// 取代进程内全局 map：进程重启不丢结果，多实例共享。
package taskcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix      = "task_result:"
	ownerKeyPrefix = "task_owner:"
)

type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{client: client, ttl: ttl}
}

// Put 写入任务结果
func (c *Cache) Put(ctx context.Context, taskID string, result interface{}) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal task result: %w", err)
	}
	return c.client.Set(ctx, keyPrefix+taskID, data, c.ttl).Err()
}

// PutOwner 记录任务归属，回调到达时靠它找到要推送的用户
func (c *Cache) PutOwner(ctx context.Context, taskID, userID string) error {
	return c.client.Set(ctx, ownerKeyPrefix+taskID, userID, c.ttl).Err()
}

// GetOwner 读取任务归属，未命中返回 ("", false, nil)
func (c *Cache) GetOwner(ctx context.Context, taskID string) (string, bool, error) {
	userID, err := c.client.Get(ctx, ownerKeyPrefix+taskID).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, err
	}
	return userID, true, nil
}

// Get 读取任务结果，未命中返回 (nil, false, nil)
func (c *Cache) Get(ctx context.Context, taskID string) (json.RawMessage, bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+taskID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}
