package dto

import (
	"time"
)

// CheckoutRequest 创建订阅 checkout
type CheckoutRequest struct {
	Plan  string `json:"plan" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

// CheckoutResponse Stripe Checkout 会话
type CheckoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// BuyCreditsRequest 购买积分包
type BuyCreditsRequest struct {
	Email    string `json:"email" binding:"required,email"`
	PackType string `json:"pack_type" binding:"required"`
}

// CancelSubscriptionRequest 取消订阅
type CancelSubscriptionRequest struct {
	Immediate bool `json:"immediate"`
}

// CancelSubscriptionResponse 取消结果
type CancelSubscriptionResponse struct {
	Immediate          bool       `json:"immediate"`
	AlreadyCanceled    bool       `json:"already_canceled,omitempty"`
	CancelsAtPeriodEnd bool       `json:"cancels_at_period_end,omitempty"`
	CancelAt           *time.Time `json:"cancel_at,omitempty"`
	SubscriptionStatus string     `json:"subscription_status,omitempty"`
}

// ChangeSubscriptionRequest 升降级（previewOnly 时只做试算）
type ChangeSubscriptionRequest struct {
	NewPriceID  string `json:"new_price_id" binding:"required"`
	PreviewOnly bool   `json:"preview_only"`
}

// ChangePreview 升降级试算结果，ChargeNow 只累计 proration 行
type ChangePreview struct {
	Direction       string     `json:"direction"`
	ChargeNow       float64    `json:"charge_now"`
	Currency        string     `json:"currency"`
	NextBillingDate *time.Time `json:"next_billing_date,omitempty"`
}

// ChangeResult 升降级提交结果
type ChangeResult struct {
	Changed            bool   `json:"changed"`
	Direction          string `json:"direction,omitempty"`
	SubscriptionStatus string `json:"subscription_status,omitempty"`
}

// PlanInfo 账户投影：套餐 + 余额 + 下次扣费时间
type PlanInfo struct {
	Plan            string     `json:"plan"`
	Credits         int64      `json:"credits"`
	NextBillingDate *time.Time `json:"next_billing_date,omitempty"`
}
