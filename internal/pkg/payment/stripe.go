package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/pixelmuse/pixelmuse_go_server/config"
)

// StripeGateway Gateway 的 Stripe 实现。
// 客户端在进程启动时显式构造，不依赖包级全局 key。
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	successURL    string
	cancelURL     string
}

func NewStripeGateway(cfg *config.StripeConfig) *StripeGateway {
	api := client.New(cfg.SecretKey, nil)
	return &StripeGateway{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
	}
}

func (g *StripeGateway) CreateCustomer(email, userID string) (string, error) {
	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.AddMetadata("userId", userID)

	c, err := g.api.Customers.New(params)
	if err != nil {
		return "", wrapStripeErr(err)
	}
	return c.ID, nil
}

func (g *StripeGateway) GetSubscription(subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.AddExpand("items.data.price")

	sub, err := g.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, wrapStripeErr(err)
	}
	return fromStripeSubscription(sub), nil
}

// 阻止重复订阅时视为"存活态"的 Stripe 状态
var activeLikeStatuses = map[stripe.SubscriptionStatus]bool{
	stripe.SubscriptionStatusActive:            true,
	stripe.SubscriptionStatusTrialing:          true,
	stripe.SubscriptionStatusPastDue:           true,
	stripe.SubscriptionStatusUnpaid:            true,
	stripe.SubscriptionStatusIncomplete:        true,
	stripe.SubscriptionStatusIncompleteExpired: true,
}

func (g *StripeGateway) FindActiveLikeSubscription(customerID string) (*Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Limit = stripe.Int64(20)
	params.AddExpand("data.items.data.price")

	iter := g.api.Subscriptions.List(params)
	for iter.Next() {
		sub := iter.Subscription()
		if activeLikeStatuses[sub.Status] {
			return fromStripeSubscription(sub), nil
		}
	}
	if err := iter.Err(); err != nil {
		return nil, wrapStripeErr(err)
	}
	return nil, nil
}

func (g *StripeGateway) GetPrice(priceID string) (*Price, error) {
	p, err := g.api.Prices.Get(priceID, nil)
	if err != nil {
		return nil, wrapStripeErr(err)
	}
	return &Price{ID: p.ID, UnitAmount: p.UnitAmount, Currency: string(p.Currency)}, nil
}

func (g *StripeGateway) PreviewProration(customerID, subscriptionID, itemID, newPriceID, prorationBehavior string) (int64, string, error) {
	params := &stripe.InvoiceUpcomingParams{
		Customer:     stripe.String(customerID),
		Subscription: stripe.String(subscriptionID),
		SubscriptionItems: []*stripe.SubscriptionItemsParams{
			{ID: stripe.String(itemID), Price: stripe.String(newPriceID)},
		},
		SubscriptionProrationBehavior: stripe.String(prorationBehavior),
	}

	preview, err := g.api.Invoices.Upcoming(params)
	if err != nil {
		return 0, "", wrapStripeErr(err)
	}

	// 只累计 proration 行，不是整张预览发票
	var total int64
	if preview.Lines != nil {
		for _, line := range preview.Lines.Data {
			if line.Proration {
				total += line.Amount
			}
		}
	}
	return total, string(preview.Currency), nil
}

func (g *StripeGateway) UpdateSubscriptionPrice(p UpdatePriceParams) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{ID: stripe.String(p.ItemID), Price: stripe.String(p.NewPriceID)},
		},
		ProrationBehavior:           stripe.String(p.ProrationBehavior),
		BillingCycleAnchorUnchanged: stripe.Bool(true),
	}
	if p.CancelAtPeriodEnd != nil {
		params.CancelAtPeriodEnd = stripe.Bool(*p.CancelAtPeriodEnd)
	}
	if p.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(p.IdempotencyKey)
	}

	sub, err := g.api.Subscriptions.Update(p.SubscriptionID, params)
	if err != nil {
		return nil, wrapStripeErr(err)
	}
	return fromStripeSubscription(sub), nil
}

func (g *StripeGateway) CancelNow(subscriptionID, idempotencyKey string) (*Subscription, error) {
	params := &stripe.SubscriptionCancelParams{Prorate: stripe.Bool(false)}
	if idempotencyKey != "" {
		params.IdempotencyKey = stripe.String(idempotencyKey)
	}

	sub, err := g.api.Subscriptions.Cancel(subscriptionID, params)
	if err != nil {
		return nil, wrapStripeErr(err)
	}
	return fromStripeSubscription(sub), nil
}

func (g *StripeGateway) CancelAtPeriodEnd(subscriptionID, idempotencyKey string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	if idempotencyKey != "" {
		params.IdempotencyKey = stripe.String(idempotencyKey)
	}

	sub, err := g.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, wrapStripeErr(err)
	}
	return fromStripeSubscription(sub), nil
}

func (g *StripeGateway) CreateSubscriptionCheckout(p SubscriptionCheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(p.CustomerID),
		ClientReferenceID: stripe.String(p.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(p.PriceID), Quantity: stripe.Int64(1)},
		},
		AllowPromotionCodes: stripe.Bool(false),
		SuccessURL:          stripe.String(g.successURL),
		CancelURL:           stripe.String(g.cancelURL),
	}
	params.AddMetadata("type", "subscription")
	params.AddMetadata("userId", p.UserID)
	params.AddMetadata("plan", p.Plan)
	if p.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(p.IdempotencyKey)
	}

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, wrapStripeErr(err)
	}
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

func (g *StripeGateway) CreateCreditPackCheckout(p CreditPackCheckoutParams) (*CheckoutSession, error) {
	credits := fmt.Sprintf("%d", p.Credits)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		Customer:          stripe.String(p.CustomerID),
		ClientReferenceID: stripe.String(p.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(p.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(g.successURL),
		CancelURL:  stripe.String(g.cancelURL),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			SetupFutureUsage: stripe.String("off_session"),
			Metadata: map[string]string{
				"userId":  p.UserID,
				"type":    "credit_pack",
				"credits": credits,
			},
		},
	}
	params.AddMetadata("type", "credit_pack")
	params.AddMetadata("userId", p.UserID)
	params.AddMetadata("credits", credits)
	if p.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(p.IdempotencyKey)
	}

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, wrapStripeErr(err)
	}
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

func (g *StripeGateway) VerifyWebhook(payload []byte, sigHeader string) (*RawEvent, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return &RawEvent{
		ID:   event.ID,
		Type: string(event.Type),
		Data: event.Data.Raw,
	}, nil
}

func fromStripeSubscription(sub *stripe.Subscription) *Subscription {
	s := &Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		s.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		s.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0)
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		s.ItemID = item.ID
		if item.Price != nil {
			s.PriceID = item.Price.ID
			s.UnitAmount = item.Price.UnitAmount
		}
	}
	return s
}

// wrapStripeErr 把 Stripe 404 归一为 ErrNotFound，便于业务层识别过期引用
func wrapStripeErr(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
		return fmt.Errorf("%w: %s", ErrNotFound, stripeErr.Msg)
	}
	return err
}
