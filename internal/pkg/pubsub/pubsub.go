package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelTaskComplete = "task_complete"
)

// TaskMessage 任务完成消息，经 WebSocket 推给任务所属用户
type TaskMessage struct {
	Type   string      `json:"type"`
	UserID string      `json:"user_id"`
	TaskID string      `json:"task_id"`
	Kind   string      `json:"kind"` // music / image / video
	Result interface{} `json:"result,omitempty"`
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishTaskComplete 发布任务完成事件
func (p *Publisher) PublishTaskComplete(ctx context.Context, msg *TaskMessage) error {
	msg.Type = "task_complete"
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal task message: %w", err)
	}
	return p.client.Publish(ctx, ChannelTaskComplete, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 循环消费任务完成事件，handler 逐条处理
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*TaskMessage)) error {
	sub := s.client.Subscribe(ctx, ChannelTaskComplete)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-ch:
			if !ok {
				return nil
			}
			var msg TaskMessage
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				log.Printf("pubsub: failed to unmarshal message: %v", err)
				continue
			}
			handler(&msg)
		}
	}
}
