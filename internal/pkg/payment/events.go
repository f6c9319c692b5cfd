package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v76"
)

// ErrInvalidMetadata 事件缺少必要的元数据（userId / credits）
var ErrInvalidMetadata = errors.New("payment: invalid event metadata")

// RawEvent 验签后的原始事件
type RawEvent struct {
	ID   string
	Type string
	Data json.RawMessage
}

// WebhookEvent 边界处解码出的强类型事件变体。
// 解码失败的事件在业务逻辑运行之前就会被拒绝。
type WebhookEvent interface {
	EventID() string
}

type baseEvent struct {
	ID string
}

func (e baseEvent) EventID() string { return e.ID }

// CreditPackCompleted 一次性积分包支付完成
type CreditPackCompleted struct {
	baseEvent
	UserID    string
	Credits   int64
	SessionID string
}

// SubscriptionCheckoutCompleted 订阅 checkout 完成（首张发票未必已支付）
type SubscriptionCheckoutCompleted struct {
	baseEvent
	UserID         string
	Plan           string
	CustomerID     string
	SubscriptionID string
}

// InvoicePaid 发票支付成功
type InvoicePaid struct {
	baseEvent
	InvoiceID      string
	SubscriptionID string
	CustomerID     string
	BillingReason  string
	HasProration   bool
}

// InvoiceFailed 发票支付失败
type InvoiceFailed struct {
	baseEvent
	SubscriptionID string
}

// SubscriptionUpdated 订阅变更（换价、周期末取消标记等）
type SubscriptionUpdated struct {
	baseEvent
	SubscriptionID    string
	PriceID           string
	Status            string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  time.Time
}

// SubscriptionDeleted 订阅终止
type SubscriptionDeleted struct {
	baseEvent
	SubscriptionID string
}

// IgnoredEvent 与账务无关的事件，确认收到即可
type IgnoredEvent struct {
	baseEvent
	Type string
}

// ParseEvent 把 Stripe 事件解码为强类型变体。
// 无法解码的账务事件返回错误（由调用方以 4xx 拒绝），
// 不相关的事件类型返回 IgnoredEvent。
func ParseEvent(raw *RawEvent) (WebhookEvent, error) {
	base := baseEvent{ID: raw.ID}

	switch raw.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(raw.Data, &session); err != nil {
			return nil, fmt.Errorf("payment: decode checkout session: %w", err)
		}
		return parseCheckoutCompleted(base, &session)

	case "invoice.payment_succeeded":
		var inv stripe.Invoice
		if err := json.Unmarshal(raw.Data, &inv); err != nil {
			return nil, fmt.Errorf("payment: decode invoice: %w", err)
		}
		hasProration := false
		if inv.Lines != nil {
			for _, line := range inv.Lines.Data {
				if line.Proration {
					hasProration = true
					break
				}
			}
		}
		return &InvoicePaid{
			baseEvent:      base,
			InvoiceID:      inv.ID,
			SubscriptionID: subscriptionID(inv.Subscription),
			CustomerID:     customerID(inv.Customer),
			BillingReason:  string(inv.BillingReason),
			HasProration:   hasProration,
		}, nil

	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(raw.Data, &inv); err != nil {
			return nil, fmt.Errorf("payment: decode invoice: %w", err)
		}
		return &InvoiceFailed{
			baseEvent:      base,
			SubscriptionID: subscriptionID(inv.Subscription),
		}, nil

	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(raw.Data, &sub); err != nil {
			return nil, fmt.Errorf("payment: decode subscription: %w", err)
		}
		priceID := ""
		if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
			priceID = sub.Items.Data[0].Price.ID
		}
		return &SubscriptionUpdated{
			baseEvent:         base,
			SubscriptionID:    sub.ID,
			PriceID:           priceID,
			Status:            string(sub.Status),
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
			CurrentPeriodEnd:  time.Unix(sub.CurrentPeriodEnd, 0),
		}, nil

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(raw.Data, &sub); err != nil {
			return nil, fmt.Errorf("payment: decode subscription: %w", err)
		}
		return &SubscriptionDeleted{baseEvent: base, SubscriptionID: sub.ID}, nil
	}

	return &IgnoredEvent{baseEvent: base, Type: raw.Type}, nil
}

func parseCheckoutCompleted(base baseEvent, session *stripe.CheckoutSession) (WebhookEvent, error) {
	// 未支付的会话不产生账务动作
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return &IgnoredEvent{baseEvent: base, Type: "checkout.session.completed"}, nil
	}

	userID := session.Metadata["userId"]
	if userID == "" {
		userID = session.ClientReferenceID
	}

	if session.Metadata["type"] == "credit_pack" {
		if userID == "" {
			return nil, fmt.Errorf("%w: credit_pack missing userId (session %s)", ErrInvalidMetadata, session.ID)
		}
		credits, err := strconv.ParseInt(session.Metadata["credits"], 10, 64)
		if err != nil || credits <= 0 {
			return nil, fmt.Errorf("%w: credit_pack invalid credits %q (session %s)",
				ErrInvalidMetadata, session.Metadata["credits"], session.ID)
		}
		return &CreditPackCompleted{
			baseEvent: base,
			UserID:    userID,
			Credits:   credits,
			SessionID: session.ID,
		}, nil
	}

	if session.Mode == stripe.CheckoutSessionModeSubscription {
		if userID == "" {
			return nil, fmt.Errorf("%w: subscription checkout missing userId (session %s)", ErrInvalidMetadata, session.ID)
		}
		return &SubscriptionCheckoutCompleted{
			baseEvent:      base,
			UserID:         userID,
			Plan:           session.Metadata["plan"],
			CustomerID:     customerID(session.Customer),
			SubscriptionID: subscriptionID(session.Subscription),
		}, nil
	}

	return &IgnoredEvent{baseEvent: base, Type: "checkout.session.completed"}, nil
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func subscriptionID(s *stripe.Subscription) string {
	if s == nil {
		return ""
	}
	return s.ID
}
