package model

import (
	"time"
)

// 订阅生命周期状态
const (
	SubStatusNone                   = "none"
	SubStatusPending                = "pending"
	SubStatusActive                 = "active"
	SubStatusPastDue                = "past_due"
	SubStatusCancelsAtPeriodEnd     = "cancels_at_period_end"
	SubStatusCanceled               = "canceled"
	SubStatusCanceledPendingWebhook = "canceled_pending_webhook"
)

const PlanFree = "free"

// Account 用户账户：积分余额 + 订阅状态的唯一权威记录。
// Credits 永远不允许为负，所有变更必须经过 LedgerService 的事务。
type Account struct {
	UserID                string     `gorm:"primaryKey;size:128" json:"user_id"`
	Email                 string     `gorm:"size:100;index" json:"email"`
	Credits               int64      `gorm:"not null;default:0" json:"credits"`
	Plan                  string     `gorm:"size:20;not null;default:free" json:"plan"`
	SubscriptionStatus    string     `gorm:"size:32;not null;default:none" json:"subscription_status"`
	StripeCustomerID      *string    `gorm:"size:64;index" json:"-"`
	StripeSubscriptionID  *string    `gorm:"size:64;index" json:"-"`
	StripePriceID         *string    `gorm:"size:64" json:"-"`
	NextBillingAt         *time.Time `json:"next_billing_at,omitempty"`
	LastInvoiceID         *string    `gorm:"size:64" json:"-"`
	LastGrantCycle        *string    `gorm:"size:7" json:"-"` // YYYY-MM
	LastCheckoutSessionID *string    `gorm:"size:128" json:"-"`
	CheckoutLockUntil     *time.Time `json:"-"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// HasActiveLikeSubscription 本地状态是否处于"已有订阅"区间（阻止重复 checkout）
func (a *Account) HasActiveLikeSubscription() bool {
	switch a.SubscriptionStatus {
	case SubStatusPending, SubStatusActive, SubStatusPastDue, SubStatusCancelsAtPeriodEnd:
		return true
	}
	return false
}
