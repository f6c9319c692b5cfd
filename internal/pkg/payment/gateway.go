// Package payment 封装 Stripe：把 checkout/订阅/发票对象翻译成
// 本系统的套餐/价格词汇，业务层只依赖 Gateway 接口。
package payment

import (
	"errors"
	"time"
)

var (
	// ErrNotFound 上游资源不存在（本地引用已过期）
	ErrNotFound = errors.New("payment: resource not found")
	// ErrInvalidSignature webhook 签名校验失败
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
)

// Proration 行为，取值与 Stripe API 一致
const (
	ProrationCreate  = "create_prorations"
	ProrationNone    = "none"
	ProrationInvoice = "always_invoice"
)

// Subscription 订阅快照（已展开价格项，单套餐订阅只取第一项）
type Subscription struct {
	ID                string
	CustomerID        string
	Status            string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  time.Time
	ItemID            string
	PriceID           string
	UnitAmount        int64
}

// Price 价格快照
type Price struct {
	ID         string
	UnitAmount int64
	Currency   string
}

// CheckoutSession 会话创建结果
type CheckoutSession struct {
	ID  string
	URL string
}

// SubscriptionCheckoutParams 订阅模式 checkout
type SubscriptionCheckoutParams struct {
	CustomerID     string
	UserID         string
	PriceID        string
	Plan           string
	IdempotencyKey string
}

// CreditPackCheckoutParams 一次性积分包 checkout
type CreditPackCheckoutParams struct {
	CustomerID     string
	UserID         string
	PriceID        string
	Credits        int64
	IdempotencyKey string
}

// UpdatePriceParams 订阅换价
type UpdatePriceParams struct {
	SubscriptionID    string
	ItemID            string
	NewPriceID        string
	ProrationBehavior string
	// 升级时清除 cancel_at_period_end；降级保持原值
	CancelAtPeriodEnd *bool
	IdempotencyKey    string
}

// Gateway 支付网关适配器。真实实现见 stripe.go，测试用假实现。
type Gateway interface {
	CreateCustomer(email, userID string) (string, error)

	// GetSubscription 订阅不存在时返回 ErrNotFound
	GetSubscription(subscriptionID string) (*Subscription, error)

	// FindActiveLikeSubscription 查找客户名下任何"存活态"订阅（阻止重复订阅）
	FindActiveLikeSubscription(customerID string) (*Subscription, error)

	GetPrice(priceID string) (*Price, error)

	// PreviewProration 预览换价，只累计 proration 行金额（单位：分）
	PreviewProration(customerID, subscriptionID, itemID, newPriceID, prorationBehavior string) (int64, string, error)

	UpdateSubscriptionPrice(p UpdatePriceParams) (*Subscription, error)

	// CancelNow 立即取消，不做按比例结算
	CancelNow(subscriptionID, idempotencyKey string) (*Subscription, error)

	// CancelAtPeriodEnd 周期末取消
	CancelAtPeriodEnd(subscriptionID, idempotencyKey string) (*Subscription, error)

	CreateSubscriptionCheckout(p SubscriptionCheckoutParams) (*CheckoutSession, error)
	CreateCreditPackCheckout(p CreditPackCheckoutParams) (*CheckoutSession, error)

	// VerifyWebhook 先验签再解析，失败返回 ErrInvalidSignature
	VerifyWebhook(payload []byte, sigHeader string) (*RawEvent, error)
}
