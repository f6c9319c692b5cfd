package service

import (
	"github.com/pixelmuse/pixelmuse_go_server/internal/pkg/payment"
)

// fakeGateway 测试用支付网关，按需往字段里塞返回值
type fakeGateway struct {
	subscriptions map[string]*payment.Subscription
	prices        map[string]*payment.Price
	activeByCust  map[string]*payment.Subscription

	previewAmount   int64
	previewCurrency string
	previewErr      error

	updateCalls []payment.UpdatePriceParams
	updateErr   error

	cancelNowCalls      []string
	cancelAtPeriodCalls []string

	checkoutSessions int
	checkoutErr      error

	createdCustomers int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		subscriptions: make(map[string]*payment.Subscription),
		prices:        make(map[string]*payment.Price),
		activeByCust:  make(map[string]*payment.Subscription),
	}
}

func (g *fakeGateway) CreateCustomer(email, userID string) (string, error) {
	g.createdCustomers++
	return "cus_fake_" + userID, nil
}

func (g *fakeGateway) GetSubscription(subscriptionID string) (*payment.Subscription, error) {
	sub, ok := g.subscriptions[subscriptionID]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return sub, nil
}

func (g *fakeGateway) FindActiveLikeSubscription(customerID string) (*payment.Subscription, error) {
	sub, ok := g.activeByCust[customerID]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return sub, nil
}

func (g *fakeGateway) GetPrice(priceID string) (*payment.Price, error) {
	price, ok := g.prices[priceID]
	if !ok {
		return nil, payment.ErrNotFound
	}
	return price, nil
}

func (g *fakeGateway) PreviewProration(customerID, subscriptionID, itemID, newPriceID, prorationBehavior string) (int64, string, error) {
	if g.previewErr != nil {
		return 0, "", g.previewErr
	}
	currency := g.previewCurrency
	if currency == "" {
		currency = "usd"
	}
	return g.previewAmount, currency, nil
}

func (g *fakeGateway) UpdateSubscriptionPrice(p payment.UpdatePriceParams) (*payment.Subscription, error) {
	g.updateCalls = append(g.updateCalls, p)
	if g.updateErr != nil {
		return nil, g.updateErr
	}
	sub, ok := g.subscriptions[p.SubscriptionID]
	if !ok {
		return nil, payment.ErrNotFound
	}
	updated := *sub
	updated.PriceID = p.NewPriceID
	if p.CancelAtPeriodEnd != nil {
		updated.CancelAtPeriodEnd = *p.CancelAtPeriodEnd
	}
	g.subscriptions[p.SubscriptionID] = &updated
	return &updated, nil
}

func (g *fakeGateway) CancelNow(subscriptionID, idempotencyKey string) (*payment.Subscription, error) {
	g.cancelNowCalls = append(g.cancelNowCalls, subscriptionID)
	sub, ok := g.subscriptions[subscriptionID]
	if !ok {
		return nil, payment.ErrNotFound
	}
	updated := *sub
	updated.Status = "canceled"
	g.subscriptions[subscriptionID] = &updated
	return &updated, nil
}

func (g *fakeGateway) CancelAtPeriodEnd(subscriptionID, idempotencyKey string) (*payment.Subscription, error) {
	g.cancelAtPeriodCalls = append(g.cancelAtPeriodCalls, subscriptionID)
	sub, ok := g.subscriptions[subscriptionID]
	if !ok {
		return nil, payment.ErrNotFound
	}
	updated := *sub
	updated.CancelAtPeriodEnd = true
	g.subscriptions[subscriptionID] = &updated
	return &updated, nil
}

func (g *fakeGateway) CreateSubscriptionCheckout(p payment.SubscriptionCheckoutParams) (*payment.CheckoutSession, error) {
	if g.checkoutErr != nil {
		return nil, g.checkoutErr
	}
	g.checkoutSessions++
	return &payment.CheckoutSession{ID: "cs_fake_sub", URL: "https://checkout.example/sub"}, nil
}

func (g *fakeGateway) CreateCreditPackCheckout(p payment.CreditPackCheckoutParams) (*payment.CheckoutSession, error) {
	if g.checkoutErr != nil {
		return nil, g.checkoutErr
	}
	g.checkoutSessions++
	return &payment.CheckoutSession{ID: "cs_fake_pack", URL: "https://checkout.example/pack"}, nil
}

func (g *fakeGateway) VerifyWebhook(payload []byte, sigHeader string) (*payment.RawEvent, error) {
	return nil, payment.ErrInvalidSignature
}
