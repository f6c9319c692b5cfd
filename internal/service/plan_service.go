package service

import (
	"errors"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pixelmuse/pixelmuse_go_server/config"
	"github.com/pixelmuse/pixelmuse_go_server/internal/model"
	"github.com/pixelmuse/pixelmuse_go_server/internal/model/dto"
	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/payment"
	"github.com/pixelmuse/pixelmuse_go_server/internal/repository"
)

var (
	ErrNoActiveSubscription   = errors.New("当前没有生效中的订阅")
	ErrSubscriptionIncomplete = errors.New("订阅尚未完成支付，无法变更")
	ErrUnknownPrice           = errors.New("未知的价格")
	ErrSamePlan               = errors.New("已经是当前套餐")
)

// 换价方向
const (
	DirectionUpgrade   = "upgrade"
	DirectionDowngrade = "downgrade"
)

// PlanService 订阅升降级。
// 升级立即结算差价（always_invoice），降级不结算（none），
// 积分发放一律交给后续发票事件，这里绝不直接动余额。
type PlanService struct {
	accountRepo *repository.AccountRepository
	gateway     payment.Gateway
	cfg         *config.Config
}

func NewPlanService(accountRepo *repository.AccountRepository, gateway payment.Gateway, cfg *config.Config) *PlanService {
	return &PlanService{accountRepo: accountRepo, gateway: gateway, cfg: cfg}
}

// PreviewChange 试算换价。升级返回本次应付差价，降级恒为 0。
func (s *PlanService) PreviewChange(userID, newPriceID string) (*dto.ChangePreview, error) {
	_, sub, err := s.loadChangeContext(userID, newPriceID)
	if err != nil {
		return nil, err
	}

	direction, err := s.direction(sub, newPriceID)
	if err != nil {
		return nil, err
	}

	preview := &dto.ChangePreview{
		Direction: direction,
		Currency:  "usd",
	}
	if !sub.CurrentPeriodEnd.IsZero() {
		t := sub.CurrentPeriodEnd
		preview.NextBillingDate = &t
	}

	// 降级到周期末才生效，本次不收费
	if direction == DirectionDowngrade {
		return preview, nil
	}

	amount, currency, err := s.gateway.PreviewProration(
		sub.CustomerID, sub.ID, sub.ItemID, newPriceID, payment.ProrationCreate)
	if err != nil {
		return nil, err
	}
	preview.ChargeNow = float64(amount) / 100
	if currency != "" {
		preview.Currency = currency
	}
	return preview, nil
}

// CommitChange 提交换价。升级清除 cancel_at_period_end 并立即开票，
// 本地立刻镜像新价格；积分要等 invoice.paid 事件按 proration 规则裁决。
func (s *PlanService) CommitChange(userID, newPriceID, clientKey string) (*dto.ChangeResult, error) {
	account, sub, err := s.loadChangeContext(userID, newPriceID)
	if err != nil {
		if errors.Is(err, ErrSamePlan) {
			return &dto.ChangeResult{Changed: false, SubscriptionStatus: model.SubStatusActive}, nil
		}
		return nil, err
	}

	direction, err := s.direction(sub, newPriceID)
	if err != nil {
		return nil, err
	}

	idemKey := clientKey
	if idemKey == "" {
		idemKey = "plan_change_" + uuid.NewString()
	}
	params := payment.UpdatePriceParams{
		SubscriptionID: sub.ID,
		ItemID:         sub.ItemID,
		NewPriceID:     newPriceID,
		IdempotencyKey: idemKey,
	}
	status := model.SubStatusActive
	if direction == DirectionUpgrade {
		params.ProrationBehavior = payment.ProrationInvoice
		// 升级视为用户反悔取消，恢复续订
		if sub.CancelAtPeriodEnd {
			keep := false
			params.CancelAtPeriodEnd = &keep
		}
	} else {
		params.ProrationBehavior = payment.ProrationNone
		if sub.CancelAtPeriodEnd {
			status = model.SubStatusCancelsAtPeriodEnd
		}
	}

	updated, err := s.gateway.UpdateSubscriptionPrice(params)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"stripe_price_id":     newPriceID,
		"subscription_status": status,
	}
	if planName, plan := s.cfg.Billing.PlanByPriceID(newPriceID); plan != nil {
		fields["plan"] = planName
	}
	if !updated.CurrentPeriodEnd.IsZero() {
		fields["next_billing_at"] = updated.CurrentPeriodEnd
	}
	if err := s.accountRepo.UpdateFields(account.UserID, fields); err != nil {
		// Stripe 已变更成功，本地只是镜像落后，webhook 会补齐
		log.Printf("plan change committed but local mirror failed for %s: %v", account.UserID, err)
	}

	return &dto.ChangeResult{
		Changed:            true,
		Direction:          direction,
		SubscriptionStatus: status,
	}, nil
}

// loadChangeContext 取账户 + 订阅快照，顺带修复过期的本地引用
func (s *PlanService) loadChangeContext(userID, newPriceID string) (*model.Account, *payment.Subscription, error) {
	if _, plan := s.cfg.Billing.PlanByPriceID(newPriceID); plan == nil {
		return nil, nil, ErrUnknownPrice
	}

	account, err := s.accountRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNoActiveSubscription
		}
		return nil, nil, err
	}

	sub, err := s.resolveSubscription(account)
	if err != nil {
		return nil, nil, err
	}

	switch sub.Status {
	case "incomplete", "incomplete_expired":
		return nil, nil, ErrSubscriptionIncomplete
	case "canceled":
		s.resetToFree(account.UserID)
		return nil, nil, ErrNoActiveSubscription
	}

	if sub.PriceID == newPriceID {
		return nil, nil, ErrSamePlan
	}
	return account, sub, nil
}

// resolveSubscription 以 Stripe 为准解析当前订阅。
// 本地订阅 id 失效时退化为按客户扫描存活订阅；都找不到则清理本地引用。
func (s *PlanService) resolveSubscription(account *model.Account) (*payment.Subscription, error) {
	if account.StripeSubscriptionID != nil && *account.StripeSubscriptionID != "" {
		sub, err := s.gateway.GetSubscription(*account.StripeSubscriptionID)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, payment.ErrNotFound) {
			return nil, err
		}
		log.Printf("plan: stale subscription ref %s for user %s", *account.StripeSubscriptionID, account.UserID)
	}

	if account.StripeCustomerID != nil && *account.StripeCustomerID != "" {
		sub, err := s.gateway.FindActiveLikeSubscription(*account.StripeCustomerID)
		if err == nil && sub != nil {
			// 修复本地引用
			_ = s.accountRepo.UpdateFields(account.UserID, map[string]interface{}{
				"stripe_subscription_id": sub.ID,
			})
			return sub, nil
		}
		if err != nil && !errors.Is(err, payment.ErrNotFound) {
			return nil, err
		}
	}

	s.resetToFree(account.UserID)
	return nil, ErrNoActiveSubscription
}

// direction 按单价判定方向，只有新价高于现价才算升级（等价视为降级，不立即开票）
func (s *PlanService) direction(sub *payment.Subscription, newPriceID string) (string, error) {
	newPrice, err := s.gateway.GetPrice(newPriceID)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			return "", ErrUnknownPrice
		}
		return "", err
	}
	if newPrice.UnitAmount > sub.UnitAmount {
		return DirectionUpgrade, nil
	}
	return DirectionDowngrade, nil
}

func (s *PlanService) resetToFree(userID string) {
	err := s.accountRepo.UpdateFields(userID, map[string]interface{}{
		"plan":                   model.PlanFree,
		"subscription_status":    model.SubStatusNone,
		"stripe_subscription_id": nil,
		"stripe_price_id":        nil,
		"next_billing_at":        nil,
	})
	if err != nil {
		log.Printf("plan: reset to free failed for %s: %v", userID, err)
	}
}
