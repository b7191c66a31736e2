package payments_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/metrics"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/orders"
	"github.com/viniciusmedieval/pix-portal-sub000/internal/modules/payments"
)

func TestWebhookConfirmsAndDedupes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := payments.NewWebhookService(e.db, e.rec, metrics.Discard())

	o := e.createOrder(t, orders.MethodPix)
	a, err := e.rec.PayPix(ctx, o.ID)
	require.NoError(t, err)

	ev := payments.WebhookEvent{EventID: "evt_1", Type: "PAYMENT_RECEIVED", PaymentRef: a.PaymentRef, Status: "RECEIVED"}
	res, err := svc.Handle(ctx, ev, []byte(`{"event":"PAYMENT_RECEIVED"}`))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.True(t, res.Attempt.Changed)
	assert.Equal(t, orders.StatusPaid, res.Attempt.OrderStatus)

	res, err = svc.Handle(ctx, ev, []byte(`{"event":"PAYMENT_RECEIVED"}`))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Len(t, e.notes.All(), 1)

	var stored payments.ProviderEvent
	require.NoError(t, e.db.First(&stored, "event_id = ?", "evt_1").Error)
	assert.NotNil(t, stored.ProcessedAt)
	assert.Equal(t, a.PaymentRef, stored.PaymentRef)
}

func TestWebhookSupersededReferences(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := payments.NewWebhookService(e.db, e.rec, metrics.Discard())

	o := e.createOrder(t, orders.MethodPix)
	first, err := e.rec.PayPix(ctx, o.ID)
	require.NoError(t, err)
	_, err = e.rec.PayPix(ctx, o.ID)
	require.NoError(t, err)

	res, err := svc.Handle(ctx, payments.WebhookEvent{
		EventID: "evt_overdue", Type: "PAYMENT_OVERDUE", PaymentRef: first.PaymentRef, Status: "OVERDUE",
	}, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, res.Attempt.OrderStatus, "decline of a superseded reference is ignored")

	res, err = svc.Handle(ctx, payments.WebhookEvent{
		EventID: "evt_paid", Type: "PAYMENT_RECEIVED", PaymentRef: first.PaymentRef, Status: "RECEIVED",
	}, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, res.Attempt.OrderStatus, "money received on an old code still pays")
}

func TestWebhookTerminalOrderUntouched(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := payments.NewWebhookService(e.db, e.rec, metrics.Discard())

	o := e.createOrder(t, orders.MethodPix)
	a, err := e.rec.PayPix(ctx, o.ID)
	require.NoError(t, err)
	_, err = orders.NewAdminService(e.orders).Cancel(ctx, o.ID, "admin@example.com", "buyer asked")
	require.NoError(t, err)

	res, err := svc.Handle(ctx, payments.WebhookEvent{
		EventID: "evt_late", Type: "PAYMENT_CONFIRMED", PaymentRef: a.PaymentRef, Status: "CONFIRMED",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCanceled, res.Attempt.OrderStatus)
	assert.False(t, res.Attempt.Changed)
	assert.Empty(t, e.notes.All())
}

func TestWebhookAfterPixExpiry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := payments.NewWebhookService(e.db, e.rec, metrics.Discard())

	e.gw.ExpiresAt = e.clock.Now().Add(10 * time.Minute)
	o := e.createOrder(t, orders.MethodPix)
	a, err := e.rec.PayPix(ctx, o.ID)
	require.NoError(t, err)

	e.clock.Advance(11 * time.Minute)
	res, err := svc.Handle(ctx, payments.WebhookEvent{
		EventID: "evt_late_pix", Type: "PAYMENT_RECEIVED", PaymentRef: a.PaymentRef, Status: "RECEIVED",
	}, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, orders.StatusExpired, res.Attempt.OrderStatus)
	assert.Equal(t, payments.StateExpired, res.Attempt.State)

	got, err := e.orders.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusExpired, got.Status)
	require.Len(t, e.notes.All(), 1)
	assert.Equal(t, payments.SourceExpiry, e.notes.All()[0].Source)
}

func TestWebhookWithoutStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := payments.NewWebhookService(e.db, e.rec, metrics.Discard())

	o := e.createOrder(t, orders.MethodPix)
	a, err := e.rec.PayPix(ctx, o.ID)
	require.NoError(t, err)

	res, err := svc.Handle(ctx, payments.WebhookEvent{
		EventID: "evt_blank", Type: "PAYMENT_UPDATED", PaymentRef: a.PaymentRef,
	}, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, res.Attempt.OrderStatus)
	assert.False(t, res.Attempt.Changed)

	ref, err := e.refs.Active(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", ref.ProviderStatus)
	assert.Empty(t, e.notes.All())
}

func TestWebhookUnknownAndMalformed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := payments.NewWebhookService(e.db, e.rec, metrics.Discard())

	res, err := svc.Handle(ctx, payments.WebhookEvent{EventID: "evt_x", PaymentRef: "pay_unknown", Status: "RECEIVED"}, []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, res.Ignored)

	_, err = svc.Handle(ctx, payments.WebhookEvent{PaymentRef: "pay_1"}, []byte(`{}`))
	assert.ErrorIs(t, err, payments.ErrWebhookMalformed)
}
