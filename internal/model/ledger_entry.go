package model

import (
	"time"
)

// 流水类型
const (
	EntryTypeDebit  = "debit"
	EntryTypeCredit = "credit"
)

// LedgerEntry 积分流水：只增不改的审计记录。
// Amount 有符号，负数为扣减，正数为充值/退还。
// 余额的并发控制以 accounts.credits 为准，流水仅用于审计与重建。
type LedgerEntry struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"size:128;not null;index:idx_ledger_user_created" json:"user_id"`
	Amount    int64     `gorm:"not null" json:"amount"`
	EntryType string    `gorm:"size:10;not null" json:"entry_type"`
	Reason    string    `gorm:"size:100;not null" json:"reason"`
	Meta      string    `gorm:"type:text" json:"meta,omitempty"` // JSON 序列化的附加参数
	CreatedAt time.Time `gorm:"index:idx_ledger_user_created" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
