package model

import (
	"time"
)

// ProcessedEvent 已处理的支付事件标记。
// 存在即表示"已应用"，只在事件副作用提交成功后写入，写入一次后不再更新。
type ProcessedEvent struct {
	EventID     string    `gorm:"primaryKey;size:64" json:"event_id"`
	EventType   string    `gorm:"size:64" json:"event_type"`
	ProcessedAt time.Time `json:"processed_at"`
}

func (ProcessedEvent) TableName() string {
	return "processed_events"
}
