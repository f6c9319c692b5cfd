package payment

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawEvent(id, eventType, data string) *RawEvent {
	return &RawEvent{ID: id, Type: eventType, Data: json.RawMessage(data)}
}

func TestParseEvent_CreditPack(t *testing.T) {
	raw := rawEvent("evt_1", "checkout.session.completed", `{
		"id": "cs_1",
		"payment_status": "paid",
		"mode": "payment",
		"metadata": {"type": "credit_pack", "userId": "user_1", "credits": "500"}
	}`)

	event, err := ParseEvent(raw)
	require.NoError(t, err)

	pack, ok := event.(*CreditPackCompleted)
	require.True(t, ok)
	assert.Equal(t, "evt_1", pack.EventID())
	assert.Equal(t, "user_1", pack.UserID)
	assert.Equal(t, int64(500), pack.Credits)
	assert.Equal(t, "cs_1", pack.SessionID)
}

func TestParseEvent_CreditPack_InvalidMetadata(t *testing.T) {
	// 缺 userId
	raw := rawEvent("evt_1", "checkout.session.completed", `{
		"id": "cs_1",
		"payment_status": "paid",
		"metadata": {"type": "credit_pack", "credits": "500"}
	}`)
	_, err := ParseEvent(raw)
	assert.ErrorIs(t, err, ErrInvalidMetadata)

	// credits 不是数字
	raw = rawEvent("evt_2", "checkout.session.completed", `{
		"id": "cs_2",
		"payment_status": "paid",
		"metadata": {"type": "credit_pack", "userId": "u1", "credits": "lots"}
	}`)
	_, err = ParseEvent(raw)
	assert.ErrorIs(t, err, ErrInvalidMetadata)
}

func TestParseEvent_UnpaidSessionIgnored(t *testing.T) {
	raw := rawEvent("evt_1", "checkout.session.completed", `{
		"id": "cs_1",
		"payment_status": "unpaid",
		"metadata": {"type": "credit_pack", "userId": "u1", "credits": "500"}
	}`)

	event, err := ParseEvent(raw)
	require.NoError(t, err)
	_, ok := event.(*IgnoredEvent)
	assert.True(t, ok)
}

func TestParseEvent_SubscriptionCheckout(t *testing.T) {
	raw := rawEvent("evt_1", "checkout.session.completed", `{
		"id": "cs_1",
		"payment_status": "paid",
		"mode": "subscription",
		"customer": {"id": "cus_1"},
		"subscription": {"id": "sub_1"},
		"metadata": {"userId": "user_1", "plan": "creator"}
	}`)

	event, err := ParseEvent(raw)
	require.NoError(t, err)

	checkout, ok := event.(*SubscriptionCheckoutCompleted)
	require.True(t, ok)
	assert.Equal(t, "user_1", checkout.UserID)
	assert.Equal(t, "creator", checkout.Plan)
	assert.Equal(t, "cus_1", checkout.CustomerID)
	assert.Equal(t, "sub_1", checkout.SubscriptionID)
}

func TestParseEvent_InvoicePaid_DetectsProration(t *testing.T) {
	raw := rawEvent("evt_1", "invoice.payment_succeeded", `{
		"id": "in_1",
		"billing_reason": "subscription_update",
		"subscription": {"id": "sub_1"},
		"customer": {"id": "cus_1"},
		"lines": {"data": [{"proration": false}, {"proration": true}]}
	}`)

	event, err := ParseEvent(raw)
	require.NoError(t, err)

	paid, ok := event.(*InvoicePaid)
	require.True(t, ok)
	assert.Equal(t, "in_1", paid.InvoiceID)
	assert.Equal(t, "sub_1", paid.SubscriptionID)
	assert.Equal(t, "subscription_update", paid.BillingReason)
	assert.True(t, paid.HasProration)
}

func TestParseEvent_InvoicePaid_CycleNoProration(t *testing.T) {
	raw := rawEvent("evt_1", "invoice.payment_succeeded", `{
		"id": "in_2",
		"billing_reason": "subscription_cycle",
		"subscription": {"id": "sub_1"},
		"lines": {"data": [{"proration": false}]}
	}`)

	event, err := ParseEvent(raw)
	require.NoError(t, err)

	paid := event.(*InvoicePaid)
	assert.False(t, paid.HasProration)
}

func TestParseEvent_SubscriptionUpdated(t *testing.T) {
	raw := rawEvent("evt_1", "customer.subscription.updated", `{
		"id": "sub_1",
		"status": "active",
		"cancel_at_period_end": true,
		"current_period_end": 1767225600,
		"items": {"data": [{"price": {"id": "price_creator"}}]}
	}`)

	event, err := ParseEvent(raw)
	require.NoError(t, err)

	updated, ok := event.(*SubscriptionUpdated)
	require.True(t, ok)
	assert.Equal(t, "sub_1", updated.SubscriptionID)
	assert.Equal(t, "price_creator", updated.PriceID)
	assert.True(t, updated.CancelAtPeriodEnd)
	assert.Equal(t, int64(1767225600), updated.CurrentPeriodEnd.Unix())
}

func TestParseEvent_UnrelatedTypeIgnored(t *testing.T) {
	raw := rawEvent("evt_1", "payment_intent.created", `{}`)

	event, err := ParseEvent(raw)
	require.NoError(t, err)

	ignored, ok := event.(*IgnoredEvent)
	require.True(t, ok)
	assert.Equal(t, "payment_intent.created", ignored.Type)
}
