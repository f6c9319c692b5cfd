package testutil

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/pixelmuse/pixelmuse_go_server/internal/model"
)

// TestAccount 创建测试账户
func TestAccount(t *testing.T, db *gorm.DB, opts ...func(*model.Account)) *model.Account {
	t.Helper()

	account := &model.Account{
		UserID:             fmt.Sprintf("user_%d", time.Now().UnixNano()),
		Email:              fmt.Sprintf("test_%d@example.com", time.Now().UnixNano()%100000),
		Credits:            0,
		Plan:               model.PlanFree,
		SubscriptionStatus: model.SubStatusNone,
	}

	for _, opt := range opts {
		opt(account)
	}

	if err := db.Create(account).Error; err != nil {
		t.Fatalf("Failed to create test account: %v", err)
	}

	return account
}

// WithUserID 指定用户 ID
func WithUserID(userID string) func(*model.Account) {
	return func(a *model.Account) {
		a.UserID = userID
	}
}

// WithCredits 设置初始积分
func WithCredits(credits int64) func(*model.Account) {
	return func(a *model.Account) {
		a.Credits = credits
	}
}

// WithPlan 设置套餐与订阅状态
func WithPlan(plan, status string) func(*model.Account) {
	return func(a *model.Account) {
		a.Plan = plan
		a.SubscriptionStatus = status
	}
}

// WithStripeRefs 设置 Stripe 引用
func WithStripeRefs(customerID, subscriptionID, priceID string) func(*model.Account) {
	return func(a *model.Account) {
		if customerID != "" {
			a.StripeCustomerID = &customerID
		}
		if subscriptionID != "" {
			a.StripeSubscriptionID = &subscriptionID
		}
		if priceID != "" {
			a.StripePriceID = &priceID
		}
	}
}

// WithLastInvoice 设置最近一次入账发票
func WithLastInvoice(invoiceID string) func(*model.Account) {
	return func(a *model.Account) {
		a.LastInvoiceID = &invoiceID
	}
}
