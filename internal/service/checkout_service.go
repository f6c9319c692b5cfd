package service

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/pixelmuse/pixelmuse_go_server/config"
	"github.com/pixelmuse/pixelmuse_go_server/internal/model"
	"github.com/pixelmuse/pixelmuse_go_server/internal/model/dto"
	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/payment"
	"github.com/pixelmuse/pixelmuse_go_server/internal/repository"
)

var (
	ErrAlreadySubscribed = errors.New("已有生效中的订阅")
	ErrCheckoutInFlight  = errors.New("结账进行中，请稍后再试")
	ErrCreditsRemaining  = errors.New("积分尚未用完")
	ErrUnknownPack       = errors.New("未知的积分包")
)

// 连点保护窗口：同一用户 45 秒内只允许发起一次订阅 checkout
const checkoutLockWindow = 45 * time.Second

// CheckoutService 创建 Stripe Checkout 会话与取消订阅。
// 会话创建永远不动余额：积分只在 webhook 确认付款后入账。
type CheckoutService struct {
	accountRepo *repository.AccountRepository
	gateway     payment.Gateway
	cfg         *config.Config
}

func NewCheckoutService(accountRepo *repository.AccountRepository, gateway payment.Gateway, cfg *config.Config) *CheckoutService {
	return &CheckoutService{accountRepo: accountRepo, gateway: gateway, cfg: cfg}
}

// EnsureAccount 账户不存在则按免费档建档
func (s *CheckoutService) EnsureAccount(userID, email string) (*model.Account, error) {
	account, err := s.accountRepo.GetByID(userID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	account = &model.Account{
		UserID:             userID,
		Email:              email,
		Plan:               model.PlanFree,
		SubscriptionStatus: model.SubStatusNone,
	}
	if err := s.accountRepo.Create(account); err != nil {
		return nil, err
	}
	return account, nil
}

// CreateSubscriptionCheckout 发起订阅。
// 已有存活订阅返回 ErrAlreadySubscribed（本地状态或 Stripe 扫描任一命中都算）。
// clientKey 为调用方自带的幂等键，为空时按锁窗口生成。
func (s *CheckoutService) CreateSubscriptionCheckout(userID, email, planName, clientKey string) (*dto.CheckoutResponse, error) {
	plan, ok := s.cfg.Billing.Plans[planName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlan, planName)
	}

	account, err := s.EnsureAccount(userID, email)
	if err != nil {
		return nil, err
	}

	if account.HasActiveLikeSubscription() {
		return nil, ErrAlreadySubscribed
	}

	// 连点保护
	now := time.Now()
	if account.CheckoutLockUntil != nil && account.CheckoutLockUntil.After(now) {
		return nil, ErrCheckoutInFlight
	}

	customerID, err := s.ensureCustomer(account, email)
	if err != nil {
		return nil, err
	}

	// 本地状态可能落后于 Stripe（webhook 丢失/延迟），创建前再扫一次
	if existing, err := s.gateway.FindActiveLikeSubscription(customerID); err == nil && existing != nil {
		s.healFromSubscription(account.UserID, existing)
		return nil, ErrAlreadySubscribed
	} else if err != nil && !errors.Is(err, payment.ErrNotFound) {
		return nil, err
	}

	lockUntil := now.Add(checkoutLockWindow)
	if err := s.accountRepo.UpdateFields(userID, map[string]interface{}{
		"checkout_lock_until": lockUntil,
	}); err != nil {
		return nil, err
	}

	idemKey := clientKey
	if idemKey == "" {
		idemKey = fmt.Sprintf("sub_checkout_%s_%d", userID, lockUntil.Unix())
	}
	session, err := s.gateway.CreateSubscriptionCheckout(payment.SubscriptionCheckoutParams{
		CustomerID:     customerID,
		UserID:         userID,
		PriceID:        plan.PriceID,
		Plan:           planName,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		return nil, err
	}

	return &dto.CheckoutResponse{SessionID: session.ID, URL: session.URL}, nil
}

// CreateCreditPackCheckout 购买积分包。余额未用完时拒绝（防误购）。
func (s *CheckoutService) CreateCreditPackCheckout(userID, email, packType, clientKey string) (*dto.CheckoutResponse, error) {
	pack, ok := s.cfg.Billing.CreditPacks[packType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPack, packType)
	}

	account, err := s.EnsureAccount(userID, email)
	if err != nil {
		return nil, err
	}
	if account.Credits > 0 {
		return nil, ErrCreditsRemaining
	}

	customerID, err := s.ensureCustomer(account, email)
	if err != nil {
		return nil, err
	}

	idemKey := clientKey
	if idemKey == "" {
		idemKey = fmt.Sprintf("pack_checkout_%s_%s_%d", userID, packType, time.Now().Unix())
	}
	session, err := s.gateway.CreateCreditPackCheckout(payment.CreditPackCheckoutParams{
		CustomerID:     customerID,
		UserID:         userID,
		PriceID:        pack.PriceID,
		Credits:        pack.Credits,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		return nil, err
	}

	return &dto.CheckoutResponse{SessionID: session.ID, URL: session.URL}, nil
}

// CancelSubscription 取消订阅。
// immediate 立即取消（不按比例退差价），否则周期末取消继续用到期。
func (s *CheckoutService) CancelSubscription(userID string, immediate bool) (*dto.CancelSubscriptionResponse, error) {
	account, err := s.accountRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveSubscription
		}
		return nil, err
	}

	sub, err := s.resolveCancelTarget(account)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		// 没有可取消的订阅，返回幂等结果即可
		return &dto.CancelSubscriptionResponse{
			AlreadyCanceled:    true,
			SubscriptionStatus: account.SubscriptionStatus,
		}, nil
	}

	idemKey := fmt.Sprintf("cancel_%s_%s", userID, sub.ID)

	if immediate {
		if _, err := s.gateway.CancelNow(sub.ID, idemKey); err != nil && !errors.Is(err, payment.ErrNotFound) {
			return nil, err
		}
		// 最终的清档交给 subscription.deleted 事件
		if err := s.accountRepo.UpdateFields(userID, map[string]interface{}{
			"subscription_status": model.SubStatusCanceledPendingWebhook,
		}); err != nil {
			return nil, err
		}
		return &dto.CancelSubscriptionResponse{
			Immediate:          true,
			SubscriptionStatus: model.SubStatusCanceledPendingWebhook,
		}, nil
	}

	if sub.CancelAtPeriodEnd {
		t := sub.CurrentPeriodEnd
		return &dto.CancelSubscriptionResponse{
			AlreadyCanceled:    true,
			CancelsAtPeriodEnd: true,
			CancelAt:           &t,
			SubscriptionStatus: model.SubStatusCancelsAtPeriodEnd,
		}, nil
	}

	updated, err := s.gateway.CancelAtPeriodEnd(sub.ID, idemKey)
	if err != nil {
		return nil, err
	}
	fields := map[string]interface{}{
		"subscription_status": model.SubStatusCancelsAtPeriodEnd,
	}
	if !updated.CurrentPeriodEnd.IsZero() {
		fields["next_billing_at"] = updated.CurrentPeriodEnd
	}
	if err := s.accountRepo.UpdateFields(userID, fields); err != nil {
		return nil, err
	}

	resp := &dto.CancelSubscriptionResponse{
		CancelsAtPeriodEnd: true,
		SubscriptionStatus: model.SubStatusCancelsAtPeriodEnd,
	}
	if !updated.CurrentPeriodEnd.IsZero() {
		t := updated.CurrentPeriodEnd
		resp.CancelAt = &t
	}
	return resp, nil
}

// resolveCancelTarget 找到要取消的订阅，引用失效时顺手清理本地状态
func (s *CheckoutService) resolveCancelTarget(account *model.Account) (*payment.Subscription, error) {
	if account.StripeSubscriptionID != nil && *account.StripeSubscriptionID != "" {
		sub, err := s.gateway.GetSubscription(*account.StripeSubscriptionID)
		if err == nil {
			if sub.Status == "canceled" {
				s.clearSubscriptionRefs(account.UserID)
				return nil, nil
			}
			return sub, nil
		}
		if !errors.Is(err, payment.ErrNotFound) {
			return nil, err
		}
		log.Printf("checkout: stale subscription ref %s for user %s", *account.StripeSubscriptionID, account.UserID)
	}

	if account.StripeCustomerID != nil && *account.StripeCustomerID != "" {
		sub, err := s.gateway.FindActiveLikeSubscription(*account.StripeCustomerID)
		if err == nil && sub != nil {
			return sub, nil
		}
		if err != nil && !errors.Is(err, payment.ErrNotFound) {
			return nil, err
		}
	}

	s.clearSubscriptionRefs(account.UserID)
	return nil, nil
}

func (s *CheckoutService) ensureCustomer(account *model.Account, email string) (string, error) {
	if account.StripeCustomerID != nil && *account.StripeCustomerID != "" {
		return *account.StripeCustomerID, nil
	}
	customerID, err := s.gateway.CreateCustomer(email, account.UserID)
	if err != nil {
		return "", err
	}
	if err := s.accountRepo.UpdateFields(account.UserID, map[string]interface{}{
		"stripe_customer_id": customerID,
	}); err != nil {
		return "", err
	}
	return customerID, nil
}

// healFromSubscription 用 Stripe 真实订阅修复本地镜像
func (s *CheckoutService) healFromSubscription(userID string, sub *payment.Subscription) {
	fields := map[string]interface{}{
		"stripe_subscription_id": sub.ID,
		"subscription_status":    model.SubStatusActive,
	}
	if sub.PriceID != "" {
		fields["stripe_price_id"] = sub.PriceID
		if planName, plan := s.cfg.Billing.PlanByPriceID(sub.PriceID); plan != nil {
			fields["plan"] = planName
		}
	}
	if !sub.CurrentPeriodEnd.IsZero() {
		fields["next_billing_at"] = sub.CurrentPeriodEnd
	}
	if err := s.accountRepo.UpdateFields(userID, fields); err != nil {
		log.Printf("checkout: heal local subscription mirror failed for %s: %v", userID, err)
	}
}

func (s *CheckoutService) clearSubscriptionRefs(userID string) {
	err := s.accountRepo.UpdateFields(userID, map[string]interface{}{
		"plan":                   model.PlanFree,
		"subscription_status":    model.SubStatusNone,
		"stripe_subscription_id": nil,
		"stripe_price_id":        nil,
		"next_billing_at":        nil,
	})
	if err != nil {
		log.Printf("checkout: clear subscription refs failed for %s: %v", userID, err)
	}
}
