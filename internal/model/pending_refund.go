package model

import (
	"time"
)

// PendingRefund 同步退款失败时落库的补偿记录，由巡检任务重试。
type PendingRefund struct {
	ID        int64      `gorm:"primaryKey" json:"id"`
	UserID    string     `gorm:"size:128;not null;index" json:"user_id"`
	Amount    int64      `gorm:"not null" json:"amount"`
	Reason    string     `gorm:"size:100" json:"reason"`
	Meta      string     `gorm:"type:text" json:"meta,omitempty"`
	Attempts  int        `gorm:"not null;default:0" json:"attempts"`
	SettledAt *time.Time `gorm:"index" json:"settled_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (PendingRefund) TableName() string {
	return "pending_refunds"
}
