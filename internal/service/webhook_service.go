package service

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/pixelmuse/pixelmuse_go_server/config"
	"github.com/pixelmuse/pixelmuse_go_server/internal/model"
	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/payment"
	"github.com/pixelmuse/pixelmuse_go_server/internal/repository"
)

var ErrUnknownPlan = errors.New("未知的订阅套餐")

// 发票 billing_reason，取值与 Stripe 一致
const (
	billingReasonCreate = "subscription_create"
	billingReasonCycle  = "subscription_cycle"
	billingReasonUpdate = "subscription_update"
)

// WebhookService 支付事件处理器。
// 每个事件先查处理标记，标记只在副作用提交成功后写入：
// at-least-once 投递 + 发票/事件双层幂等 = 恰好一次生效。
type WebhookService struct {
	accountRepo *repository.AccountRepository
	eventRepo   *repository.EventRepository
	ledger      *LedgerService
	gateway     payment.Gateway
	cfg         *config.Config
}

func NewWebhookService(
	accountRepo *repository.AccountRepository,
	eventRepo *repository.EventRepository,
	ledger *LedgerService,
	gateway payment.Gateway,
	cfg *config.Config,
) *WebhookService {
	return &WebhookService{
		accountRepo: accountRepo,
		eventRepo:   eventRepo,
		ledger:      ledger,
		gateway:     gateway,
		cfg:         cfg,
	}
}

// Process 应用一个已验签的事件。
// 返回 nil 表示已生效或可安全确认；返回错误表示处理方应回 5xx 让 Stripe 重投，
// 此时处理标记不会写入，重试是安全的。
func (s *WebhookService) Process(eventType string, event payment.WebhookEvent) error {
	processed, err := s.eventRepo.Exists(event.EventID())
	if err != nil {
		return err
	}
	if processed {
		return nil
	}

	switch e := event.(type) {
	case *payment.CreditPackCompleted:
		err = s.handleCreditPack(e)
	case *payment.SubscriptionCheckoutCompleted:
		err = s.handleSubscriptionCheckout(e)
	case *payment.InvoicePaid:
		err = s.handleInvoicePaid(e)
	case *payment.InvoiceFailed:
		err = s.handleInvoiceFailed(e)
	case *payment.SubscriptionUpdated:
		err = s.handleSubscriptionUpdated(e)
	case *payment.SubscriptionDeleted:
		err = s.handleSubscriptionDeleted(e)
	case *payment.IgnoredEvent:
		// 与账务无关，确认即可
	default:
		log.Printf("webhook: unhandled event variant %T (%s)", event, event.EventID())
	}
	if err != nil {
		return err
	}

	return s.eventRepo.Mark(event.EventID(), eventType)
}

// handleCreditPack 一次性积分包：入账并记录支付引用
func (s *WebhookService) handleCreditPack(e *payment.CreditPackCompleted) error {
	_, err := s.ledger.Credit(e.UserID, e.Credits, "credit_pack",
		map[string]interface{}{"session_id": e.SessionID})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// 账户不存在无法入账，记录后确认，避免无限重投
			log.Printf("webhook: credit_pack for unknown account %s (session %s)", e.UserID, e.SessionID)
			return nil
		}
		return err
	}

	return s.accountRepo.UpdateFields(e.UserID, map[string]interface{}{
		"last_checkout_session_id": e.SessionID,
	})
}

// handleSubscriptionCheckout 订阅创建：只存引用，
// 生命周期置 pending，首张发票成功后才转 active
func (s *WebhookService) handleSubscriptionCheckout(e *payment.SubscriptionCheckoutCompleted) error {
	plan, ok := s.cfg.Billing.Plans[e.Plan]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPlan, e.Plan)
	}

	fields := map[string]interface{}{
		"plan":                e.Plan,
		"subscription_status": model.SubStatusPending,
		"stripe_price_id":     plan.PriceID,
	}
	if e.CustomerID != "" {
		fields["stripe_customer_id"] = e.CustomerID
	}
	if e.SubscriptionID != "" {
		fields["stripe_subscription_id"] = e.SubscriptionID
	}

	exists, err := s.accountRepo.ExistsByID(e.UserID)
	if err != nil {
		return err
	}
	if !exists {
		account := &model.Account{
			UserID:             e.UserID,
			Plan:               e.Plan,
			SubscriptionStatus: model.SubStatusPending,
		}
		if err := s.accountRepo.Create(account); err != nil {
			return err
		}
	}
	return s.accountRepo.UpdateFields(e.UserID, fields)
}

// handleInvoicePaid 发票成功：按 billing_reason + proration 决定是否发积分
func (s *WebhookService) handleInvoicePaid(e *payment.InvoicePaid) error {
	if e.SubscriptionID == "" {
		return nil
	}

	account, err := s.resolveAccount(e.SubscriptionID, e.CustomerID)
	if err != nil {
		return err
	}
	if account == nil {
		log.Printf("webhook: invoice %s matched no account (sub %s)", e.InvoiceID, e.SubscriptionID)
		return nil
	}

	// 用户级幂等：同一发票只生效一次
	if account.LastInvoiceID != nil && *account.LastInvoiceID == e.InvoiceID {
		return nil
	}

	// 以 Stripe 当前状态为准解析价格（webhook 负载可能是瘦对象）
	sub, err := s.gateway.GetSubscription(e.SubscriptionID)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			log.Printf("webhook: invoice %s references missing subscription %s", e.InvoiceID, e.SubscriptionID)
			return nil
		}
		return err
	}

	planName, plan := s.cfg.Billing.PlanByPriceID(sub.PriceID)
	if plan == nil {
		log.Printf("webhook: invoice %s has unknown price %s", e.InvoiceID, sub.PriceID)
		return nil
	}

	// 换价产生的发票（或任何含 proration 行的发票）只同步套餐字段，绝不发积分
	grantCredits := !e.HasProration &&
		(e.BillingReason == billingReasonCreate || e.BillingReason == billingReasonCycle)

	fields := map[string]interface{}{
		"plan":            planName,
		"stripe_price_id": sub.PriceID,
	}
	if !sub.CurrentPeriodEnd.IsZero() {
		fields["next_billing_at"] = sub.CurrentPeriodEnd
	}

	if !grantCredits {
		return s.accountRepo.UpdateFields(account.UserID, fields)
	}

	fields["subscription_status"] = model.SubStatusActive
	cycle := sub.CurrentPeriodEnd.UTC().Format("2006-01")
	granted, err := s.ledger.GrantInvoiceCredits(account.UserID, plan.MonthlyCredits, e.InvoiceID, cycle, fields)
	if err != nil {
		return err
	}
	if !granted {
		log.Printf("webhook: invoice %s already credited for user %s", e.InvoiceID, account.UserID)
	}
	return nil
}

func (s *WebhookService) handleInvoiceFailed(e *payment.InvoiceFailed) error {
	if e.SubscriptionID == "" {
		return nil
	}
	account, err := s.resolveAccount(e.SubscriptionID, "")
	if err != nil {
		return err
	}
	if account == nil {
		return nil
	}
	return s.accountRepo.UpdateFields(account.UserID, map[string]interface{}{
		"subscription_status": model.SubStatusPastDue,
	})
}

func (s *WebhookService) handleSubscriptionUpdated(e *payment.SubscriptionUpdated) error {
	account, err := s.resolveAccount(e.SubscriptionID, "")
	if err != nil {
		return err
	}
	if account == nil {
		return nil
	}

	status := e.Status
	if e.CancelAtPeriodEnd {
		status = model.SubStatusCancelsAtPeriodEnd
	}

	fields := map[string]interface{}{
		"subscription_status": status,
	}
	if e.PriceID != "" {
		fields["stripe_price_id"] = e.PriceID
		if planName, plan := s.cfg.Billing.PlanByPriceID(e.PriceID); plan != nil {
			fields["plan"] = planName
		}
	}
	if !e.CurrentPeriodEnd.IsZero() {
		fields["next_billing_at"] = e.CurrentPeriodEnd
	}
	return s.accountRepo.UpdateFields(account.UserID, fields)
}

// handleSubscriptionDeleted 订阅终止：重置为免费档
func (s *WebhookService) handleSubscriptionDeleted(e *payment.SubscriptionDeleted) error {
	account, err := s.resolveAccount(e.SubscriptionID, "")
	if err != nil {
		return err
	}
	if account == nil {
		return nil
	}
	return s.accountRepo.UpdateFields(account.UserID, map[string]interface{}{
		"plan":                   model.PlanFree,
		"subscription_status":    model.SubStatusCanceled,
		"stripe_subscription_id": nil,
		"stripe_price_id":        nil,
		"next_billing_at":        nil,
	})
}

// resolveAccount 先按订阅 id 匹配，退化为客户 id，都不中返回 nil
func (s *WebhookService) resolveAccount(subscriptionID, customerID string) (*model.Account, error) {
	account, err := s.accountRepo.GetByStripeSubscriptionID(subscriptionID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if customerID == "" {
		return nil, nil
	}
	account, err = s.accountRepo.GetByStripeCustomerID(customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}
